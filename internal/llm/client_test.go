package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otto/internal/config"
	"otto/internal/observability"
	"otto/internal/ports"
)

func TestCompleteParsesChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req["model"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "hi there"}, "finish_reason": "stop"},
			},
			"usage": map[string]any{"total_tokens": 12},
		})
	}))
	defer server.Close()

	client := NewClient(config.LLMConfig{Endpoint: server.URL, Model: "test-model", APIKey: "secret"})
	resp, err := client.Complete(context.Background(), ports.CompletionRequest{
		Messages: []ports.Message{{Role: "user", Content: "hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Content)
	assert.Equal(t, 12, resp.TokensUsed)
}

func TestCompleteJSONModeSetsResponseFormat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		format, ok := req["response_format"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "json_object", format["type"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": "{}"}}},
		})
	}))
	defer server.Close()

	client := NewClient(config.LLMConfig{Endpoint: server.URL, Model: "m"})
	_, err := client.Complete(context.Background(), ports.CompletionRequest{JSONMode: true})
	require.NoError(t, err)
}

func TestCompleteSurfacesBackendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "rate limited"},
		})
	}))
	defer server.Close()

	client := NewClient(config.LLMConfig{Endpoint: server.URL, Model: "m"})
	_, err := client.Complete(context.Background(), ports.CompletionRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestMockClientScripts(t *testing.T) {
	mock := NewMockClient("one", "two")

	first, err := mock.Complete(context.Background(), ports.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "one", first.Content)

	second, err := mock.Complete(context.Background(), ports.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "two", second.Content)

	// Last response repeats.
	third, err := mock.Complete(context.Background(), ports.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "two", third.Content)

	assert.Len(t, mock.Requests(), 3)
}

func TestInstrumentPassesCompletionsThrough(t *testing.T) {
	mock := NewMockClient("wrapped")

	assert.Same(t, ports.LLMClient(mock), Instrument(mock, nil))

	client := Instrument(mock, observability.Disabled())
	assert.Equal(t, "mock", client.Model())

	resp, err := client.Complete(context.Background(), ports.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "wrapped", resp.Content)
	assert.Len(t, mock.Requests(), 1)
}
