package toolregistry

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	otterrors "otto/internal/errors"
	"otto/internal/ports"
)

type fakeTool struct {
	desc   ports.ToolDescriptor
	invoke func(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error)
	calls  atomic.Int64
}

func (f *fakeTool) Describe() ports.ToolDescriptor { return f.desc }

func (f *fakeTool) Invoke(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	f.calls.Add(1)
	if f.invoke != nil {
		return f.invoke(ctx, call)
	}
	return &ports.ToolResult{Success: true, Output: "ok"}, nil
}

func echoTool(name string) *fakeTool {
	return &fakeTool{
		desc: ports.ToolDescriptor{
			Name: name,
			Params: map[string]ports.ToolParam{
				"query": {Type: "string", Required: true},
				"limit": {Type: "integer"},
			},
			SideEffect: ports.SideEffectReadOnly,
			Idempotent: true,
			MaxTimeout: 5 * time.Second,
		},
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(echoTool("search")))

	err := reg.Register(echoTool("search"))
	require.Error(t, err)
	assert.True(t, otterrors.IsValidation(err))
}

func TestListSortedByName(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(echoTool("zeta")))
	require.NoError(t, reg.Register(echoTool("alpha")))

	descs := reg.List()
	require.Len(t, descs, 2)
	assert.Equal(t, "alpha", descs[0].Name)
	assert.Equal(t, "zeta", descs[1].Name)
}

func TestExecuteUnknownToolRaises(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Execute(context.Background(), "nope", nil, "task-1")
	require.Error(t, err)
	assert.Equal(t, otterrors.KindInternal, otterrors.KindOf(err))
}

func TestExecuteValidation(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(echoTool("search")))

	cases := []struct {
		name   string
		params map[string]any
	}{
		{"missing required", map[string]any{}},
		{"unknown param", map[string]any{"query": "x", "bogus": 1}},
		{"wrong type", map[string]any{"query": 42}},
		{"fractional integer", map[string]any{"query": "x", "limit": 1.5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := reg.Execute(context.Background(), "search", tc.params, "task-1")
			require.Error(t, err)
			assert.True(t, otterrors.IsValidation(err))
		})
	}
}

func TestExecuteAcceptsJSONIntegers(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(echoTool("search")))

	// JSON decoding produces float64 for every number.
	result, err := reg.Execute(context.Background(), "search", map[string]any{"query": "x", "limit": float64(3)}, "task-1")
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestExecuteEnum(t *testing.T) {
	tool := &fakeTool{
		desc: ports.ToolDescriptor{
			Name: "mode",
			Params: map[string]ports.ToolParam{
				"level": {Type: "string", Required: true, Enum: []any{"low", "high"}},
			},
			SideEffect: ports.SideEffectReadOnly,
		},
	}
	reg := NewRegistry()
	require.NoError(t, reg.Register(tool))

	_, err := reg.Execute(context.Background(), "mode", map[string]any{"level": "medium"}, "task-1")
	require.Error(t, err)
	assert.True(t, otterrors.IsValidation(err))

	result, err := reg.Execute(context.Background(), "mode", map[string]any{"level": "low"}, "task-1")
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestExecuteReifiesInvokeError(t *testing.T) {
	tool := echoTool("flaky")
	tool.invoke = func(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
		return nil, assert.AnError
	}
	reg := NewRegistry()
	require.NoError(t, reg.Register(tool))

	result, err := reg.Execute(context.Background(), "flaky", map[string]any{"query": "x"}, "task-1")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "flaky")
}

func TestExecuteTimeout(t *testing.T) {
	tool := echoTool("slow")
	tool.desc.MaxTimeout = 50 * time.Millisecond
	tool.invoke = func(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	reg := NewRegistry()
	require.NoError(t, reg.Register(tool))

	result, err := reg.Execute(context.Background(), "slow", map[string]any{"query": "x"}, "task-1")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "timeout")
}

func TestExecuteCallerCancellation(t *testing.T) {
	tool := echoTool("slow")
	tool.invoke = func(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	reg := NewRegistry()
	require.NoError(t, reg.Register(tool))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	result, err := reg.Execute(ctx, "slow", map[string]any{"query": "x"}, "task-7")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "cancelled")
}

func TestExecuteTagsCall(t *testing.T) {
	var seen ports.ToolCall
	tool := echoTool("search")
	tool.invoke = func(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
		seen = call
		return &ports.ToolResult{Success: true}, nil
	}
	reg := NewRegistry()
	require.NoError(t, reg.Register(tool))

	result, err := reg.Execute(context.Background(), "search", map[string]any{"query": "x"}, "task-42")
	require.NoError(t, err)
	assert.Equal(t, "task-42", seen.TaskID)
	assert.NotEmpty(t, seen.ID)
	assert.Equal(t, seen.ID, result.CallID)
}

func TestResultCacheHitsIdempotentReadOnly(t *testing.T) {
	tool := echoTool("search")
	reg := NewRegistry()
	require.NoError(t, reg.Register(tool))

	cached, err := NewResultCache(reg, 16, time.Minute)
	require.NoError(t, err)

	params := map[string]any{"query": "go concurrency"}
	first, err := cached.Execute(context.Background(), "search", params, "task-1")
	require.NoError(t, err)
	require.True(t, first.Success)

	second, err := cached.Execute(context.Background(), "search", params, "task-2")
	require.NoError(t, err)
	require.True(t, second.Success)
	assert.Equal(t, true, second.Metadata["cached"])
	assert.Equal(t, int64(1), tool.calls.Load())
}

func TestResultCacheBypassesSideEffectTools(t *testing.T) {
	tool := echoTool("write_file")
	tool.desc.SideEffect = ports.SideEffectFilesystem
	reg := NewRegistry()
	require.NoError(t, reg.Register(tool))

	cached, err := NewResultCache(reg, 16, time.Minute)
	require.NoError(t, err)

	params := map[string]any{"query": "x"}
	_, err = cached.Execute(context.Background(), "write_file", params, "task-1")
	require.NoError(t, err)
	_, err = cached.Execute(context.Background(), "write_file", params, "task-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), tool.calls.Load())
}

func TestResultCacheKeyIgnoresMapOrder(t *testing.T) {
	a := cacheKey("search", map[string]any{"a": 1, "b": "x"})
	b := cacheKey("search", map[string]any{"b": "x", "a": 1})
	assert.Equal(t, a, b)
}

func TestResultCacheExpiry(t *testing.T) {
	tool := echoTool("search")
	reg := NewRegistry()
	require.NoError(t, reg.Register(tool))

	cached, err := NewResultCache(reg, 16, 10*time.Millisecond)
	require.NoError(t, err)

	params := map[string]any{"query": "x"}
	_, err = cached.Execute(context.Background(), "search", params, "task-1")
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	_, err = cached.Execute(context.Background(), "search", params, "task-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), tool.calls.Load())
}
