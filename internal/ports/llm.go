package ports

import "context"

// Message is one turn in an LLM conversation.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// CompletionRequest asks the LLM backend for a completion.
type CompletionRequest struct {
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	// JSONMode constrains the response to a single JSON object where the
	// backend supports it; callers still repair and validate the output.
	JSONMode bool `json:"json_mode,omitempty"`
}

// CompletionResponse is the LLM backend's answer.
type CompletionResponse struct {
	Content    string `json:"content"`
	TokensUsed int    `json:"tokens_used,omitempty"`
}

// LLMClient abstracts the LLM backend transport.
type LLMClient interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Model() string
}

// Embedder turns text into a fixed-dimension vector. One instance per memory
// store; a store never mixes dimensions.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Model() string
}
