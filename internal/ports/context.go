package ports

import (
	"sync"
	"time"
)

// VariableScope separates orchestration variables by lifetime and writer.
type VariableScope string

const (
	ScopeGlobal VariableScope = "global"
	ScopeTask   VariableScope = "task"
	ScopeStep   VariableScope = "step"
)

// OrchestrationContext is the runtime envelope around a task while it is
// alive. Created when orchestration begins; destroyed after the terminal
// transition plus the retention window.
type OrchestrationContext struct {
	Task Task `json:"task"`

	// Plan is attached once planning succeeds.
	Plan *ExecutionPlan `json:"plan,omitempty"`

	// RetrievedContext is the prior-memory context gathered at submission.
	RetrievedContext string `json:"retrieved_context,omitempty"`

	mu          sync.RWMutex
	variables   map[VariableScope]map[string]any
	checkpoints []*Checkpoint
	cancelled   bool
}

// NewOrchestrationContext wraps a task in a fresh runtime envelope.
func NewOrchestrationContext(task Task) *OrchestrationContext {
	return &OrchestrationContext{
		Task: task,
		variables: map[VariableScope]map[string]any{
			ScopeGlobal: {},
			ScopeTask:   {},
			ScopeStep:   {},
		},
	}
}

// SetVariable writes a scoped variable. The task and step scopes have a
// single writer (the engine); the global scope takes the exclusive lock here.
func (c *OrchestrationContext) SetVariable(scope VariableScope, key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	vars, ok := c.variables[scope]
	if !ok {
		vars = make(map[string]any)
		c.variables[scope] = vars
	}
	vars[key] = value
}

// Variable reads a scoped variable.
func (c *OrchestrationContext) Variable(scope VariableScope, key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	vars, ok := c.variables[scope]
	if !ok {
		return nil, false
	}
	value, ok := vars[key]
	return value, ok
}

// SnapshotVariables deep-copies every scope for checkpointing.
func (c *OrchestrationContext) SnapshotVariables() map[VariableScope]map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyVariables(c.variables)
}

// RestoreVariables replaces every scope from a checkpoint snapshot.
func (c *OrchestrationContext) RestoreVariables(snapshot map[VariableScope]map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.variables = copyVariables(snapshot)
}

// ClearStepScope drops step-scoped variables between steps.
func (c *OrchestrationContext) ClearStepScope() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.variables[ScopeStep] = make(map[string]any)
}

// AddCheckpoint appends a checkpoint to the context's history.
func (c *OrchestrationContext) AddCheckpoint(cp *Checkpoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkpoints = append(c.checkpoints, cp)
}

// Checkpoint returns a checkpoint by id, or nil.
func (c *OrchestrationContext) Checkpoint(checkpointID string) *Checkpoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, cp := range c.checkpoints {
		if cp.ID == checkpointID {
			return cp
		}
	}
	return nil
}

// Checkpoints returns a copy of the checkpoint history, oldest first.
func (c *OrchestrationContext) Checkpoints() []*Checkpoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Checkpoint, len(c.checkpoints))
	copy(out, c.checkpoints)
	return out
}

// Cancel raises the cooperative cancellation flag.
func (c *OrchestrationContext) Cancel() {
	c.mu.Lock()
	c.cancelled = true
	c.mu.Unlock()
}

// Cancelled reports whether cancellation was requested.
func (c *OrchestrationContext) Cancelled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cancelled
}

func copyVariables(src map[VariableScope]map[string]any) map[VariableScope]map[string]any {
	out := make(map[VariableScope]map[string]any, len(src))
	for scope, vars := range src {
		scopeCopy := make(map[string]any, len(vars))
		for k, v := range vars {
			scopeCopy[k] = v
		}
		out[scope] = scopeCopy
	}
	return out
}

// Checkpoint is a snapshot of step states and context variables at a named
// point. The captured maps are copies, never references.
type Checkpoint struct {
	ID          string                           `json:"checkpoint_id"`
	Description string                           `json:"description,omitempty"`
	StepID      string                           `json:"step_id,omitempty"` // step whose completion created it
	CreatedAt   time.Time                        `json:"created_at"`
	Variables   map[VariableScope]map[string]any `json:"variables"`
	StepStates  map[string]StepState             `json:"step_states"`
}

// OrchestrationMode records which path the classifier selected.
type OrchestrationMode string

const (
	ModeChat          OrchestrationMode = "chat"
	ModeOrchestration OrchestrationMode = "orchestration"
	ModeWebSearch     OrchestrationMode = "web_search"
	ModeDeepResearch  OrchestrationMode = "deep_research"
)

// OrchestrationResult is the terminal summary returned to the client.
type OrchestrationResult struct {
	TaskID     string            `json:"task_id"`
	Mode       OrchestrationMode `json:"mode"`
	Status     PlanStatus        `json:"status"`
	Response   string            `json:"response,omitempty"`
	PlanResult *PlanResult       `json:"plan_result,omitempty"`
	Error      string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	Duration   time.Duration     `json:"duration"`
}
