package id

import "context"

type contextKey string

const (
	taskKey    contextKey = "otto_task_id"
	userKey    contextKey = "otto_user_id"
	sessionKey contextKey = "otto_session_id"
	stepKey    contextKey = "otto_step_id"
)

// IDs captures the identifiers propagated across orchestration boundaries.
type IDs struct {
	TaskID    string
	UserID    string
	SessionID string
	StepID    string
}

// WithTaskID stores the task identifier on the context.
func WithTaskID(ctx context.Context, taskID string) context.Context {
	if taskID == "" {
		return ctx
	}
	return context.WithValue(ctx, taskKey, taskID)
}

// WithUserID stores the user identifier on the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, userKey, userID)
}

// WithSessionID stores the session identifier on the context.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	if sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKey, sessionID)
}

// WithStepID stores the step identifier on the context.
func WithStepID(ctx context.Context, stepID string) context.Context {
	if stepID == "" {
		return ctx
	}
	return context.WithValue(ctx, stepKey, stepID)
}

// TaskIDFromContext extracts the task identifier, or "" when absent.
func TaskIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, taskKey)
}

// StepIDFromContext extracts the step identifier, or "" when absent.
func StepIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, stepKey)
}

// FromContext collects every identifier stored on the context.
func FromContext(ctx context.Context) IDs {
	return IDs{
		TaskID:    stringFromContext(ctx, taskKey),
		UserID:    stringFromContext(ctx, userKey),
		SessionID: stringFromContext(ctx, sessionKey),
		StepID:    stringFromContext(ctx, stepKey),
	}
}

func stringFromContext(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if value, ok := ctx.Value(key).(string); ok {
		return value
	}
	return ""
}
