package orchestrator

import (
	"context"

	"otto/internal/ports"
)

// ChatRequest is one incoming conversational message. SearchMode forces the
// web_search or deep_research path regardless of classification.
type ChatRequest struct {
	Message    string `json:"message"`
	SessionID  string `json:"session_id,omitempty"`
	UserID     string `json:"user_id,omitempty"`
	SearchMode string `json:"search_mode,omitempty"` // "", "web", "deep"
}

// ChatResult is the conversational answer, or the orchestration summary when
// the message required tools.
type ChatResult struct {
	TaskID   string                     `json:"task_id"`
	Mode     ports.OrchestrationMode    `json:"mode"`
	Response string                     `json:"response"`
	Result   *ports.OrchestrationResult `json:"result,omitempty"`
}

// Chat classifies the message and either answers directly or runs the full
// orchestration path. Forced search modes are expressed through the same
// leading tags the classifier strips.
func (o *Orchestrator) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	description := req.Message
	switch req.SearchMode {
	case "web":
		description = "[WebSearch] " + description
	case "deep":
		description = "[DeepResearch] " + description
	}

	result, err := o.Orchestrate(ctx, Request{
		Description: description,
		UserID:      req.UserID,
		SessionID:   req.SessionID,
	})
	if err != nil {
		return nil, err
	}

	response := result.Response
	if response == "" && result.PlanResult != nil {
		response = o.planResponse(result.PlanResult)
	}
	return &ChatResult{
		TaskID:   result.TaskID,
		Mode:     result.Mode,
		Response: response,
		Result:   result,
	}, nil
}

// planResponse renders the final outputs of a plan as the chat answer: the
// outputs of leaf steps, or the first error when nothing succeeded.
func (o *Orchestrator) planResponse(planResult *ports.PlanResult) string {
	var out string
	for _, sr := range planResult.StepResults {
		if sr.State == ports.StepSucceeded && sr.Result != nil && sr.Result.Output != "" {
			if out != "" {
				out += "\n\n"
			}
			out += sr.Result.Output
		}
	}
	if out == "" && planResult.FirstError != nil {
		out = "The task could not be completed: " + planResult.FirstError.Message
	}
	return out
}
