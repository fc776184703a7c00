package ports

import "time"

// Task is an accepted unit of work. Immutable after submission.
type Task struct {
	ID          string            `json:"task_id"`
	UserID      string            `json:"user_id,omitempty"`
	SessionID   string            `json:"session_id,omitempty"`
	Description string            `json:"description"`
	Priority    int               `json:"priority"` // 1 (lowest) to 5 (highest)
	Constraints map[string]string `json:"constraints,omitempty"`
	Preferences map[string]string `json:"preferences,omitempty"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// ClampPriority normalizes the priority into the 1-5 range.
func ClampPriority(priority int) int {
	if priority < 1 {
		return 1
	}
	if priority > 5 {
		return 5
	}
	return priority
}
