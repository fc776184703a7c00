package id

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// Strategy identifies the identifier generation algorithm to use.
type Strategy int

const (
	// StrategyKSUID generates lexicographically sortable identifiers using KSUID.
	StrategyKSUID Strategy = iota
	// StrategyUUIDv7 generates time-ordered identifiers using UUID version 7.
	StrategyUUIDv7
)

var defaultGenerator = &Generator{strategy: StrategyKSUID}

// Generator produces identifiers for tasks, plans, steps, and checkpoints.
type Generator struct {
	mu       sync.RWMutex
	strategy Strategy
}

// SetStrategy configures the generation strategy for the default generator.
func SetStrategy(strategy Strategy) {
	defaultGenerator.mu.Lock()
	defaultGenerator.strategy = strategy
	defaultGenerator.mu.Unlock()
}

// NewTaskID generates a new task identifier with a stable prefix for display.
func NewTaskID() string {
	return defaultGenerator.newIdentifier("task")
}

// NewPlanID generates a new plan identifier.
func NewPlanID() string {
	return defaultGenerator.newIdentifier("plan")
}

// NewStepID generates a new step identifier.
func NewStepID() string {
	return defaultGenerator.newIdentifier("step")
}

// NewCheckpointID generates a new checkpoint identifier.
func NewCheckpointID() string {
	return defaultGenerator.newIdentifier("cp")
}

// NewSessionID generates a new session identifier.
func NewSessionID() string {
	return defaultGenerator.newIdentifier("session")
}

// NewCallID generates an identifier for a single tool invocation.
func NewCallID() string {
	return defaultGenerator.newIdentifier("call")
}

func (g *Generator) newIdentifier(prefix string) string {
	g.mu.RLock()
	strategy := g.strategy
	g.mu.RUnlock()

	var body string
	switch strategy {
	case StrategyUUIDv7:
		uuidv7, err := uuid.NewV7()
		if err == nil {
			body = uuidv7.String()
			break
		}
		fallthrough
	case StrategyKSUID:
		body = ksuid.New().String()
	default:
		body = ksuid.New().String()
	}

	return fmt.Sprintf("%s-%s", prefix, body)
}
