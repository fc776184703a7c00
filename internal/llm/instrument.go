package llm

import (
	"context"
	"time"

	"otto/internal/observability"
	"otto/internal/ports"
)

// instrumentedClient wraps an LLMClient with request metrics and tracing.
type instrumentedClient struct {
	inner ports.LLMClient
	obs   *observability.Observability
}

// Instrument wraps client so every completion is traced and counted. A nil
// observability handle returns the client unchanged.
func Instrument(client ports.LLMClient, obs *observability.Observability) ports.LLMClient {
	if obs == nil {
		return client
	}
	return &instrumentedClient{inner: client, obs: obs}
}

func (c *instrumentedClient) Model() string { return c.inner.Model() }

func (c *instrumentedClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	ctx, span := c.obs.Tracer.StartSpan(ctx, observability.SpanLLMComplete)
	defer span.End()

	start := time.Now()
	resp, err := c.inner.Complete(ctx, req)

	status := "success"
	tokens := 0
	if err != nil {
		status = "error"
		span.SetAttributes(observability.ErrorAttrs(err)...)
	} else {
		tokens = resp.TokensUsed
	}
	c.obs.Metrics.RecordLLMRequest(ctx, c.inner.Model(), status, time.Since(start), tokens)
	return resp, err
}
