package builtin

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"otto/internal/ports"
)

const researchMaxQueries = 3

type deepResearch struct {
	search ports.Tool
	llm    ports.LLMClient
}

// NewDeepResearch runs several related searches and synthesizes them into one
// report. Without an LLM the raw findings are returned as-is.
func NewDeepResearch(cfg Config) ports.Tool {
	return &deepResearch{search: NewWebSearch(cfg), llm: cfg.LLM}
}

func (t *deepResearch) Describe() ports.ToolDescriptor {
	return ports.ToolDescriptor{
		Name:        "deep_research",
		Description: "Run multiple web searches on a topic and synthesize a report",
		Params: map[string]ports.ToolParam{
			"topic": {Type: "string", Description: "Topic to research", Required: true},
		},
		SideEffect: ports.SideEffectReadOnly,
		Idempotent: true,
		MaxTimeout: 180 * time.Second,
	}
}

func (t *deepResearch) Invoke(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	topic, _ := call.Params["topic"].(string)
	if topic == "" {
		return &ports.ToolResult{CallID: call.ID, Success: false, Error: "missing 'topic'"}, nil
	}

	queries := t.expandQueries(ctx, topic)

	// Queries are independent; search them in parallel, findings keep query order.
	grp, gctx := errgroup.WithContext(ctx)
	ordered := make([]string, len(queries))
	var searched atomic.Int32
	for i, query := range queries {
		grp.Go(func() error {
			result, err := t.search.Invoke(gctx, ports.ToolCall{
				ID:     call.ID,
				Name:   "web_search",
				Params: map[string]any{"query": query, "search_depth": "advanced"},
				TaskID: call.TaskID,
			})
			if err != nil || result == nil || !result.Success {
				return nil
			}
			searched.Add(1)
			ordered[i] = fmt.Sprintf("## Findings for %q\n\n%s", query, result.Output)
			return nil
		})
	}
	_ = grp.Wait()
	if ctx.Err() != nil {
		return &ports.ToolResult{CallID: call.ID, Success: false, Error: ctx.Err().Error()}, nil
	}

	var findings []string
	for _, f := range ordered {
		if f != "" {
			findings = append(findings, f)
		}
	}
	if len(findings) == 0 {
		return &ports.ToolResult{CallID: call.ID, Success: false, Error: "no search produced usable findings"}, nil
	}

	combined := strings.Join(findings, "\n\n")
	report := combined
	if t.llm != nil {
		if synthesized, err := t.synthesize(ctx, topic, combined); err == nil && synthesized != "" {
			report = synthesized
		}
	}

	return &ports.ToolResult{
		CallID:   call.ID,
		Success:  true,
		Output:   report,
		Metadata: map[string]any{"topic": topic, "queries": len(queries), "searches_succeeded": int(searched.Load())},
	}, nil
}

// expandQueries asks the LLM for angles on the topic; the topic itself is
// always the first query.
func (t *deepResearch) expandQueries(ctx context.Context, topic string) []string {
	queries := []string{topic}
	if t.llm == nil {
		return queries
	}

	resp, err := t.llm.Complete(ctx, ports.CompletionRequest{
		Messages: []ports.Message{
			{Role: "system", Content: "You produce web search queries. Reply with one query per line, nothing else."},
			{Role: "user", Content: fmt.Sprintf("Give %d distinct search queries covering different angles of: %s", researchMaxQueries-1, topic)},
		},
		MaxTokens:   200,
		Temperature: 0.5,
	})
	if err != nil {
		return queries
	}
	for _, line := range strings.Split(resp.Content, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*0123456789. "))
		if line == "" || len(queries) >= researchMaxQueries {
			continue
		}
		queries = append(queries, line)
	}
	return queries
}

func (t *deepResearch) synthesize(ctx context.Context, topic, findings string) (string, error) {
	resp, err := t.llm.Complete(ctx, ports.CompletionRequest{
		Messages: []ports.Message{
			{Role: "system", Content: "You write concise research reports in markdown from raw search findings. Cite source URLs inline."},
			{Role: "user", Content: fmt.Sprintf("Topic: %s\n\nFindings:\n\n%s\n\nWrite the report.", topic, findings)},
		},
		MaxTokens:   2048,
		Temperature: 0.3,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}
