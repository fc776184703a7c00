package toolregistry

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"otto/internal/logging"
	"otto/internal/ports"
)

const (
	defaultCacheSize = 256
	defaultCacheTTL  = 5 * time.Minute
)

type cacheEntry struct {
	result   *ports.ToolResult
	storedAt time.Time
}

// ResultCache memoizes successful results of idempotent read-only tools. It
// wraps a dispatcher; everything else passes straight through.
type ResultCache struct {
	inner   ports.ToolDispatcher
	entries *lru.Cache[string, cacheEntry]
	ttl     time.Duration
	logger  logging.Logger
}

// NewResultCache wraps inner with an LRU result cache. size<=0 and ttl<=0
// select the defaults.
func NewResultCache(inner ports.ToolDispatcher, size int, ttl time.Duration) (*ResultCache, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	entries, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, err
	}
	return &ResultCache{
		inner:   inner,
		entries: entries,
		ttl:     ttl,
		logger:  logging.NewComponentLogger("ToolCache"),
	}, nil
}

func (c *ResultCache) Register(tool ports.Tool) error { return c.inner.Register(tool) }

func (c *ResultCache) List() []ports.ToolDescriptor { return c.inner.List() }

func (c *ResultCache) Describe(name string) (ports.ToolDescriptor, error) {
	return c.inner.Describe(name)
}

// Execute serves cached results for cacheable tools and delegates otherwise.
// Only successful results are stored; faults always re-execute.
func (c *ResultCache) Execute(ctx context.Context, name string, params map[string]any, taskID string) (*ports.ToolResult, error) {
	desc, err := c.inner.Describe(name)
	if err != nil {
		return nil, err
	}
	if !cacheable(desc) {
		return c.inner.Execute(ctx, name, params, taskID)
	}

	key := cacheKey(name, params)
	if entry, ok := c.entries.Get(key); ok {
		if time.Since(entry.storedAt) < c.ttl {
			c.logger.Debug("Cache hit for %s (task=%s)", name, taskID)
			hit := *entry.result
			hit.Metadata = withCacheMarker(hit.Metadata)
			return &hit, nil
		}
		c.entries.Remove(key)
	}

	result, err := c.inner.Execute(ctx, name, params, taskID)
	if err != nil {
		return nil, err
	}
	if result.Success {
		c.entries.Add(key, cacheEntry{result: result, storedAt: time.Now()})
	}
	return result, nil
}

// Purge drops every cached entry.
func (c *ResultCache) Purge() {
	c.entries.Purge()
}

func cacheable(desc ports.ToolDescriptor) bool {
	return desc.Idempotent && desc.SideEffect == ports.SideEffectReadOnly
}

// cacheKey normalizes params so logically equal calls share an entry
// regardless of map iteration order.
func cacheKey(name string, params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		if raw, err := json.Marshal(params[k]); err == nil {
			b.Write(raw)
		}
	}
	return b.String()
}

func withCacheMarker(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out["cached"] = true
	return out
}

var _ ports.ToolDispatcher = (*ResultCache)(nil)
