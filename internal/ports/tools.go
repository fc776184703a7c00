package ports

import (
	"context"
	"time"
)

// SideEffect classifies what a tool touches outside its own process.
type SideEffect string

const (
	SideEffectReadOnly   SideEffect = "read_only"
	SideEffectFilesystem SideEffect = "filesystem"
	SideEffectNetwork    SideEffect = "network"
	SideEffectProcess    SideEffect = "process"
)

// ToolParam declares a single parameter in a tool's input schema.
type ToolParam struct {
	Type        string `json:"type"` // string, number, integer, boolean, array, object
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
}

// ToolDescriptor declares a tool's contract to the registry and the planner.
type ToolDescriptor struct {
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	Params      map[string]ToolParam `json:"params"`
	SideEffect  SideEffect           `json:"side_effect"`
	Idempotent  bool                 `json:"idempotent"`
	MaxTimeout  time.Duration        `json:"max_timeout"`
}

// ToolCall is a request to execute a tool, tagged for log/event correlation.
type ToolCall struct {
	ID     string         `json:"call_id"`
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
	TaskID string         `json:"task_id,omitempty"`
	StepID string         `json:"step_id,omitempty"`
}

// Artifact references a file or payload produced by a tool.
type Artifact struct {
	Name     string `json:"name"`
	Path     string `json:"path,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// ToolResult is the uniform execution result. Tool-level faults are reified
// here; the dispatcher never raises them to the caller.
type ToolResult struct {
	CallID    string         `json:"call_id,omitempty"`
	Success   bool           `json:"success"`
	Output    string         `json:"output,omitempty"`
	Error     string         `json:"error,omitempty"`
	Artifacts []Artifact     `json:"artifacts,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Duration  time.Duration  `json:"duration,omitempty"`
}

// Tool is a uniformly-invoked capability behind the registry.
//
// Invoke receives the cancellation signal through ctx; tools are expected to
// honor it within their declared timeout. Tool-level faults go into the
// returned ToolResult; the error return is reserved for programmer errors.
type Tool interface {
	Describe() ToolDescriptor
	Invoke(ctx context.Context, call ToolCall) (*ToolResult, error)
}

// ToolDispatcher validates and dispatches tool calls.
type ToolDispatcher interface {
	// Register adds a tool; fails if the name is already registered.
	Register(tool Tool) error

	// List returns every registered descriptor.
	List() []ToolDescriptor

	// Describe returns the descriptor for one tool.
	Describe(name string) (ToolDescriptor, error)

	// Execute validates params, enforces the declared timeout, tags the
	// invocation with taskID, and returns a uniform result. It raises only
	// for internal faults such as an unknown tool or invalid params.
	Execute(ctx context.Context, name string, params map[string]any, taskID string) (*ToolResult, error)
}
