package toolregistry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	otterrors "otto/internal/errors"
	"otto/internal/logging"
	"otto/internal/ports"
	id "otto/internal/utils/id"
)

const defaultToolTimeout = 60 * time.Second

// Registry holds tool capabilities and dispatches calls against them.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]ports.Tool
	logger logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:  make(map[string]ports.Tool),
		logger: logging.NewComponentLogger("ToolRegistry"),
	}
}

// Register adds a tool; fails if the name is already registered.
func (r *Registry) Register(tool ports.Tool) error {
	if tool == nil {
		return otterrors.NewInternal(nil, "nil tool registration")
	}
	desc := tool.Describe()
	if desc.Name == "" {
		return otterrors.NewValidation("name", "tool descriptor has no name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[desc.Name]; exists {
		return otterrors.NewValidation("name", "tool already registered: %s", desc.Name)
	}
	r.tools[desc.Name] = tool
	r.logger.Info("Registered tool %s (side_effect=%s, idempotent=%t)", desc.Name, desc.SideEffect, desc.Idempotent)
	return nil
}

// List returns every registered descriptor, sorted by name.
func (r *Registry) List() []ports.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	descs := make([]ports.ToolDescriptor, 0, len(r.tools))
	for _, tool := range r.tools {
		descs = append(descs, tool.Describe())
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].Name < descs[j].Name })
	return descs
}

// Describe returns the descriptor for one tool.
func (r *Registry) Describe(name string) (ports.ToolDescriptor, error) {
	tool, err := r.get(name)
	if err != nil {
		return ports.ToolDescriptor{}, err
	}
	return tool.Describe(), nil
}

// Has reports whether a tool name resolves.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

func (r *Registry) get(name string) (ports.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	if !ok {
		return nil, otterrors.NewInternal(nil, "tool not found: %s", name)
	}
	return tool, nil
}

// Execute validates params against the descriptor schema, enforces the
// declared timeout via context cancellation, tags the invocation with taskID,
// and returns a uniform ToolResult. Tool-level faults are reified into the
// result; only internal faults (unknown tool) and validation errors raise.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any, taskID string) (*ports.ToolResult, error) {
	tool, err := r.get(name)
	if err != nil {
		return nil, err
	}
	desc := tool.Describe()

	if err := ValidateParams(desc, params); err != nil {
		return nil, err
	}

	timeout := desc.MaxTimeout
	if timeout <= 0 {
		timeout = defaultToolTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	callCtx = id.WithTaskID(callCtx, taskID)

	call := ports.ToolCall{
		ID:     id.NewCallID(),
		Name:   name,
		Params: params,
		TaskID: taskID,
		StepID: id.StepIDFromContext(ctx),
	}

	started := time.Now()
	r.logger.Debug("Dispatching tool %s (call=%s, task=%s)", name, call.ID, taskID)

	type outcome struct {
		result *ports.ToolResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, invokeErr := tool.Invoke(callCtx, call)
		done <- outcome{result: result, err: invokeErr}
	}()

	select {
	case out := <-done:
		elapsed := time.Since(started)
		if out.err != nil {
			// Invoke errors are tool faults; reify them.
			return &ports.ToolResult{
				CallID:   call.ID,
				Success:  false,
				Error:    otterrors.NewTool(name, out.err).Error(),
				Duration: elapsed,
			}, nil
		}
		result := out.result
		if result == nil {
			result = &ports.ToolResult{CallID: call.ID, Success: false, Error: fmt.Sprintf("tool %s returned no result", name)}
		}
		if result.CallID == "" {
			result.CallID = call.ID
		}
		result.Duration = elapsed
		return result, nil
	case <-callCtx.Done():
		// The tool did not resolve before the deadline or cancellation; the
		// goroutine is abandoned and its eventual result discarded.
		elapsed := time.Since(started)
		if ctx.Err() != nil {
			r.logger.Warn("Tool %s interrupted by caller cancellation (task=%s)", name, taskID)
			return &ports.ToolResult{
				CallID:   call.ID,
				Success:  false,
				Error:    (&otterrors.CancelledError{TaskID: taskID}).Error(),
				Duration: elapsed,
			}, nil
		}
		r.logger.Warn("Tool %s timed out after %s (task=%s)", name, timeout, taskID)
		return &ports.ToolResult{
			CallID:   call.ID,
			Success:  false,
			Error:    otterrors.NewTimeout("tool", name).Error(),
			Metadata: map[string]any{"timeout": true},
			Duration: elapsed,
		}, nil
	}
}

var _ ports.ToolDispatcher = (*Registry)(nil)
