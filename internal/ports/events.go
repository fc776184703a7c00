package ports

import "time"

// EventType discriminates the realtime wire payloads.
type EventType string

const (
	EventProgress   EventType = "progress"
	EventCompletion EventType = "completion"
	EventFailure    EventType = "failure"
)

// Event is a task-scoped realtime message.
type Event interface {
	EventType() EventType
	EventTaskID() string
	EventTime() time.Time
}

// ProgressEvent reports step-level progress for a running plan.
type ProgressEvent struct {
	Type             EventType `json:"type"`
	TaskID           string    `json:"task_id"`
	StepID           string    `json:"step_id"`
	Progress         float64   `json:"progress"` // 0..1
	CurrentStepTitle string    `json:"current_step_title"`
	TotalSteps       int       `json:"total_steps"`
	Timestamp        time.Time `json:"timestamp"`
}

func (e *ProgressEvent) EventType() EventType { return EventProgress }
func (e *ProgressEvent) EventTaskID() string  { return e.TaskID }
func (e *ProgressEvent) EventTime() time.Time { return e.Timestamp }

// CompletionEvent terminates the stream for a task that finished.
type CompletionEvent struct {
	Type               EventType     `json:"type"`
	TaskID             string        `json:"task_id"`
	SuccessRate        float64       `json:"success_rate"`
	TotalExecutionTime time.Duration `json:"total_execution_time"`
	Summary            string        `json:"summary,omitempty"`
	Timestamp          time.Time     `json:"timestamp"`
}

func (e *CompletionEvent) EventType() EventType { return EventCompletion }
func (e *CompletionEvent) EventTaskID() string  { return e.TaskID }
func (e *CompletionEvent) EventTime() time.Time { return e.Timestamp }

// FailureEvent terminates the stream for a task that failed.
type FailureEvent struct {
	Type      EventType      `json:"type"`
	TaskID    string         `json:"task_id"`
	Error     *ErrorData     `json:"error"`
	Context   map[string]any `json:"context,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

func (e *FailureEvent) EventType() EventType { return EventFailure }
func (e *FailureEvent) EventTaskID() string  { return e.TaskID }
func (e *FailureEvent) EventTime() time.Time { return e.Timestamp }

// NewProgressEvent builds a progress event stamped with the current time.
func NewProgressEvent(taskID, stepID, title string, progress float64, totalSteps int) *ProgressEvent {
	return &ProgressEvent{
		Type:             EventProgress,
		TaskID:           taskID,
		StepID:           stepID,
		Progress:         progress,
		CurrentStepTitle: title,
		TotalSteps:       totalSteps,
		Timestamp:        time.Now(),
	}
}

// NewCompletionEvent builds a completion event stamped with the current time.
func NewCompletionEvent(taskID string, successRate float64, total time.Duration, summary string) *CompletionEvent {
	return &CompletionEvent{
		Type:               EventCompletion,
		TaskID:             taskID,
		SuccessRate:        successRate,
		TotalExecutionTime: total,
		Summary:            summary,
		Timestamp:          time.Now(),
	}
}

// NewFailureEvent builds a failure event stamped with the current time.
func NewFailureEvent(taskID string, errData *ErrorData, ctx map[string]any) *FailureEvent {
	return &FailureEvent{
		Type:      EventFailure,
		TaskID:    taskID,
		Error:     errData,
		Context:   ctx,
		Timestamp: time.Now(),
	}
}
