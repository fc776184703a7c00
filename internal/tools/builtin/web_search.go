package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"otto/internal/ports"
)

const defaultSearchEndpoint = "https://api.tavily.com/search"

type webSearch struct {
	client   *http.Client
	apiKey   string
	endpoint string
}

// NewWebSearch searches the web through the Tavily API.
func NewWebSearch(cfg Config) ports.Tool {
	endpoint := cfg.SearchEndpoint
	if endpoint == "" {
		endpoint = defaultSearchEndpoint
	}
	return &webSearch{
		client:   &http.Client{Timeout: 30 * time.Second},
		apiKey:   cfg.SearchAPIKey,
		endpoint: endpoint,
	}
}

func (t *webSearch) Describe() ports.ToolDescriptor {
	return ports.ToolDescriptor{
		Name:        "web_search",
		Description: "Search the web for current information; returns summaries and URLs",
		Params: map[string]ports.ToolParam{
			"query":        {Type: "string", Description: "The search query", Required: true},
			"max_results":  {Type: "integer", Description: "Maximum results (1-10, default 5)"},
			"search_depth": {Type: "string", Description: "Search depth", Enum: []any{"basic", "advanced"}},
		},
		SideEffect: ports.SideEffectReadOnly,
		Idempotent: true,
		MaxTimeout: 45 * time.Second,
	}
}

type searchResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

func (t *webSearch) Invoke(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	if t.apiKey == "" {
		return &ports.ToolResult{
			CallID:  call.ID,
			Success: false,
			Error:   "web search not configured: set TAVILY_API_KEY or tools.search_api_key",
		}, nil
	}

	query, _ := call.Params["query"].(string)
	if query == "" {
		return &ports.ToolResult{CallID: call.ID, Success: false, Error: "missing 'query'"}, nil
	}

	maxResults := 5
	if mr, ok := call.Params["max_results"].(float64); ok {
		maxResults = int(mr)
		if maxResults < 1 {
			maxResults = 1
		}
		if maxResults > 10 {
			maxResults = 10
		}
	}
	depth := "basic"
	if d, ok := call.Params["search_depth"].(string); ok && d != "" {
		depth = d
	}

	body, err := json.Marshal(map[string]any{
		"api_key":        t.apiKey,
		"query":          query,
		"max_results":    maxResults,
		"search_depth":   depth,
		"include_answer": true,
	})
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Success: false, Error: err.Error()}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Success: false, Error: err.Error()}, nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Success: false, Error: fmt.Sprintf("search request failed: %v", err)}, nil
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Success: false, Error: err.Error()}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return &ports.ToolResult{
			CallID:  call.ID,
			Success: false,
			Error:   fmt.Sprintf("search API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))),
		}, nil
	}

	var parsed searchResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return &ports.ToolResult{CallID: call.ID, Success: false, Error: fmt.Sprintf("decode search response: %v", err)}, nil
	}

	var b strings.Builder
	if parsed.Answer != "" {
		fmt.Fprintf(&b, "Answer: %s\n\n", parsed.Answer)
	}
	for i, r := range parsed.Results {
		fmt.Fprintf(&b, "%d. %s\n   %s\n   %s\n\n", i+1, r.Title, r.URL, strings.TrimSpace(r.Content))
	}
	if b.Len() == 0 {
		b.WriteString("No results found.")
	}

	return &ports.ToolResult{
		CallID:   call.ID,
		Success:  true,
		Output:   strings.TrimSpace(b.String()),
		Metadata: map[string]any{"query": query, "result_count": len(parsed.Results)},
	}, nil
}
