package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"otto/internal/ports"
)

const embedCacheSize = 10000

// httpEmbedder calls an OpenAI-compatible /embeddings endpoint. Results are
// cached; embedding the same text twice is free.
type httpEmbedder struct {
	model    string
	endpoint string
	apiKey   string
	client   *http.Client
	cache    *lru.Cache[string, []float32]

	mu  sync.Mutex
	dim int
}

// NewHTTPEmbedder builds an embedder against endpoint (the API base, e.g.
// http://localhost:11434/v1).
func NewHTTPEmbedder(endpoint, apiKey, model string) (ports.Embedder, error) {
	cache, err := lru.New[string, []float32](embedCacheSize)
	if err != nil {
		return nil, err
	}
	return &httpEmbedder{
		model:    model,
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 60 * time.Second},
		cache:    cache,
	}, nil
}

func (e *httpEmbedder) Model() string { return e.model }

func (e *httpEmbedder) Dimension() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dim
}

func (e *httpEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := e.cache.Get(text); ok {
		return cached, nil
	}

	body, err := json.Marshal(map[string]any{"model": e.model, "input": []string{text}})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding backend returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedding backend returned no vectors")
	}

	vec := parsed.Data[0].Embedding
	e.mu.Lock()
	if e.dim == 0 {
		e.dim = len(vec)
	}
	dim := e.dim
	e.mu.Unlock()
	if len(vec) != dim {
		return nil, fmt.Errorf("embedding dimension changed: got %d, store uses %d", len(vec), dim)
	}

	e.cache.Add(text, vec)
	return vec, nil
}

// localEmbedder hashes token n-grams into a fixed-dimension vector. It is
// deterministic and offline; retrieval quality is lexical, not semantic. Used
// in tests and as the fallback when no embedding backend is configured.
type localEmbedder struct {
	dim int
}

// NewLocalEmbedder builds the offline hashing embedder.
func NewLocalEmbedder() ports.Embedder {
	return &localEmbedder{dim: 256}
}

func (e *localEmbedder) Model() string  { return "local-hash" }
func (e *localEmbedder) Dimension() int { return e.dim }

func (e *localEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)
	words := strings.Fields(strings.ToLower(text))
	for i, word := range words {
		addToken(vec, word)
		if i+1 < len(words) {
			addToken(vec, word+" "+words[i+1])
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}

func addToken(vec []float32, token string) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	sum := h.Sum32()
	idx := int(sum) % len(vec)
	if idx < 0 {
		idx += len(vec)
	}
	// Sign bit spreads collisions across both directions.
	if sum&1 == 0 {
		vec[idx]++
	} else {
		vec[idx]--
	}
}
