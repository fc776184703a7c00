package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for control-flow decisions.
type Kind int

const (
	// KindValidation - malformed input, unknown tool, cyclic plan. Rejected at the boundary.
	KindValidation Kind = iota
	// KindTool - a tool returned success=false. Subject to retry policy.
	KindTool
	// KindTimeout - tool, step, or plan deadline exceeded.
	KindTimeout
	// KindDependency - a predecessor step ended in a non-success terminal state.
	KindDependency
	// KindCancelled - explicit user cancellation or plan-level timeout.
	KindCancelled
	// KindInternal - violated invariant; aborts the plan.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTool:
		return "tool"
	case KindTimeout:
		return "timeout"
	case KindDependency:
		return "dependency"
	case KindCancelled:
		return "cancelled"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// ValidationError rejects malformed input before it enters execution.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %s", e.Message)
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// NewValidation creates a ValidationError for the given field.
func NewValidation(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ToolError wraps a tool-level fault surfaced in a step result.
type ToolError struct {
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// NewTool wraps err as a tool fault for the named tool.
func NewTool(tool string, err error) *ToolError {
	return &ToolError{Tool: tool, Err: err}
}

// TimeoutError marks a tool, step, or plan deadline overrun.
type TimeoutError struct {
	Scope string // "tool", "step", "plan"
	Name  string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timeout: %s", e.Scope, e.Name)
}

// NewTimeout creates a TimeoutError for the given scope and subject.
func NewTimeout(scope, name string) *TimeoutError {
	return &TimeoutError{Scope: scope, Name: name}
}

// DependencyError marks a step skipped because a predecessor did not succeed.
type DependencyError struct {
	StepID       string
	DependencyID string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("step %s skipped: dependency %s did not succeed", e.StepID, e.DependencyID)
}

// CancelledError is terminal but not an error to the caller.
type CancelledError struct {
	TaskID string
	Reason string
}

func (e *CancelledError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("task %s cancelled", e.TaskID)
	}
	return fmt.Sprintf("task %s cancelled: %s", e.TaskID, e.Reason)
}

// InternalError marks a violated invariant (e.g. missing tool mid-run).
type InternalError struct {
	Message string
	Err     error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("internal: %s", e.Message)
	}
	return fmt.Sprintf("internal: %s: %v", e.Message, e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }

// NewInternal wraps err with an invariant-violation message.
func NewInternal(err error, format string, args ...any) *InternalError {
	return &InternalError{Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf classifies err into the taxonomy. Unknown errors default to internal
// so they abort rather than silently retry.
func KindOf(err error) Kind {
	var (
		validation *ValidationError
		tool       *ToolError
		timeout    *TimeoutError
		dependency *DependencyError
		cancelled  *CancelledError
	)
	switch {
	case errors.As(err, &validation):
		return KindValidation
	case errors.As(err, &timeout):
		return KindTimeout
	case errors.As(err, &tool):
		return KindTool
	case errors.As(err, &dependency):
		return KindDependency
	case errors.As(err, &cancelled):
		return KindCancelled
	default:
		return KindInternal
	}
}

// IsValidation reports whether err is a boundary rejection.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsCancelled reports whether err represents cancellation.
func IsCancelled(err error) bool {
	var c *CancelledError
	return errors.As(err, &c)
}

// IsRetryable reports whether the engine may retry the step that produced err.
// Only tool faults and timeouts are retryable; the idempotency gate is applied
// by the caller.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTool, KindTimeout:
		return true
	default:
		return false
	}
}
