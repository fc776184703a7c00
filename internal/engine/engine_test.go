package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otto/internal/config"
	otterrors "otto/internal/errors"
	"otto/internal/observability"
	"otto/internal/ports"
	"otto/internal/toolregistry"
)

type scriptTool struct {
	name       string
	idempotent bool
	invoke     func(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error)
	calls      atomic.Int64
}

func (s *scriptTool) Describe() ports.ToolDescriptor {
	return ports.ToolDescriptor{
		Name:       s.name,
		Idempotent: s.idempotent,
		SideEffect: ports.SideEffectReadOnly,
		MaxTimeout: 5 * time.Second,
	}
}

func (s *scriptTool) Invoke(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	s.calls.Add(1)
	if s.invoke == nil {
		return &ports.ToolResult{Success: true, Output: s.name + " done"}, nil
	}
	return s.invoke(ctx, call)
}

func okTool(name string) *scriptTool {
	return &scriptTool{name: name, idempotent: true}
}

func newTestEngine(t *testing.T, cfg config.EngineConfig, tools ...*scriptTool) *Engine {
	t.Helper()
	reg := toolregistry.NewRegistry()
	for _, tool := range tools {
		require.NoError(t, reg.Register(tool))
	}
	return New(reg, cfg)
}

func testConfig() config.EngineConfig {
	return config.EngineConfig{
		MaxParallelSteps:   4,
		WorkerPoolSize:     8,
		MaxRetries:         0,
		PlanTimeoutSeconds: 30,
	}
}

func mkPlan(steps ...ports.ExecutionStep) *ports.ExecutionPlan {
	return &ports.ExecutionPlan{
		ID:     "plan-1",
		TaskID: "task-1",
		Steps:  steps,
	}
}

func step(id, tool string, deps ...string) ports.ExecutionStep {
	return ports.ExecutionStep{ID: id, Title: id, ToolName: tool, DependsOn: deps}
}

func TestLinearPlanSucceeds(t *testing.T) {
	e := newTestEngine(t, testConfig(), okTool("alpha"))
	octx := ports.NewOrchestrationContext(ports.Task{ID: "task-1"})

	plan := mkPlan(
		step("s1", "alpha"),
		step("s2", "alpha", "s1"),
		step("s3", "alpha", "s2"),
	)
	result, err := e.Execute(context.Background(), octx, plan, Hooks{})
	require.NoError(t, err)

	assert.Equal(t, ports.PlanSuccess, result.Status)
	assert.InDelta(t, 1.0, result.SuccessRate, 0.001)
	for _, id := range []string{"s1", "s2", "s3"} {
		require.Contains(t, result.StepResults, id)
		assert.Equal(t, ports.StepSucceeded, result.StepResults[id].State)
	}
	// One automatic checkpoint per succeeded step.
	assert.Len(t, octx.Checkpoints(), 3)
	// Step outputs land in the task scope.
	out, ok := octx.Variable(ports.ScopeTask, "step_output:s1")
	require.True(t, ok)
	assert.Equal(t, "alpha done", out)
}

func TestDependenciesGateDispatch(t *testing.T) {
	var mu sync.Mutex
	var order []string
	record := func(name string) *scriptTool {
		return &scriptTool{name: name, idempotent: true, invoke: func(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return &ports.ToolResult{Success: true}, nil
		}}
	}

	e := newTestEngine(t, testConfig(), record("first"), record("second"), record("third"), record("last"))
	octx := ports.NewOrchestrationContext(ports.Task{ID: "task-1"})

	// Diamond: s1 -> (s2, s3) -> s4.
	plan := mkPlan(
		step("s1", "first"),
		step("s2", "second", "s1"),
		step("s3", "third", "s1"),
		step("s4", "last", "s2", "s3"),
	)
	result, err := e.Execute(context.Background(), octx, plan, Hooks{})
	require.NoError(t, err)
	require.Equal(t, ports.PlanSuccess, result.Status)

	require.Len(t, order, 4)
	assert.Equal(t, "first", order[0])
	assert.Equal(t, "last", order[3])
}

func TestFanOutIsBounded(t *testing.T) {
	var inFlight, peak atomic.Int64
	slow := &scriptTool{name: "slow", idempotent: true, invoke: func(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(40 * time.Millisecond)
		inFlight.Add(-1)
		return &ports.ToolResult{Success: true}, nil
	}}

	cfg := testConfig()
	e := newTestEngine(t, cfg, slow)
	octx := ports.NewOrchestrationContext(ports.Task{ID: "task-1"})

	plan := mkPlan(step("s1", "slow"), step("s2", "slow"), step("s3", "slow"), step("s4", "slow"))
	plan.MaxParallelSteps = 1

	result, err := e.Execute(context.Background(), octx, plan, Hooks{})
	require.NoError(t, err)
	assert.Equal(t, ports.PlanSuccess, result.Status)
	assert.EqualValues(t, 1, peak.Load())
}

func TestIdempotentStepIsRetried(t *testing.T) {
	flaky := &scriptTool{name: "flaky", idempotent: true}
	flaky.invoke = func(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
		if flaky.calls.Load() == 1 {
			return &ports.ToolResult{Success: false, Error: "transient"}, nil
		}
		return &ports.ToolResult{Success: true}, nil
	}

	cfg := testConfig()
	cfg.MaxRetries = 1
	e := newTestEngine(t, cfg, flaky)
	octx := ports.NewOrchestrationContext(ports.Task{ID: "task-1"})

	result, err := e.Execute(context.Background(), octx, mkPlan(step("s1", "flaky")), Hooks{})
	require.NoError(t, err)
	assert.Equal(t, ports.PlanSuccess, result.Status)
	assert.EqualValues(t, 2, flaky.calls.Load())
	assert.Equal(t, 2, result.StepResults["s1"].Attempts)
}

func TestNonIdempotentStepIsNotRetried(t *testing.T) {
	once := &scriptTool{name: "once", idempotent: false, invoke: func(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
		return &ports.ToolResult{Success: false, Error: "boom"}, nil
	}}

	cfg := testConfig()
	cfg.MaxRetries = 2
	e := newTestEngine(t, cfg, once)
	octx := ports.NewOrchestrationContext(ports.Task{ID: "task-1"})

	result, err := e.Execute(context.Background(), octx, mkPlan(step("s1", "once")), Hooks{})
	require.NoError(t, err)
	assert.Equal(t, ports.PlanFailed, result.Status)
	assert.EqualValues(t, 1, once.calls.Load())
	require.NotNil(t, result.FirstError)
	assert.Equal(t, "s1", result.FirstError.StepID)
	assert.Equal(t, "tool", result.FirstError.Kind)
}

func TestAbortPlanSkipsTheRest(t *testing.T) {
	boom := &scriptTool{name: "boom", idempotent: true, invoke: func(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
		return &ports.ToolResult{Success: false, Error: "fatal"}, nil
	}}
	e := newTestEngine(t, testConfig(), boom, okTool("fine"))
	octx := ports.NewOrchestrationContext(ports.Task{ID: "task-1"})

	plan := mkPlan(
		step("s1", "boom"),
		step("s2", "fine", "s1"),
	)
	result, err := e.Execute(context.Background(), octx, plan, Hooks{})
	require.NoError(t, err)

	assert.Equal(t, ports.PlanFailed, result.Status)
	assert.Equal(t, ports.StepFailed, result.StepResults["s1"].State)
	assert.Equal(t, ports.StepSkipped, result.StepResults["s2"].State)
}

func TestSkipStepPolicyLetsDependentsRun(t *testing.T) {
	boom := &scriptTool{name: "boom", idempotent: true, invoke: func(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
		return &ports.ToolResult{Success: false, Error: "ignorable"}, nil
	}}
	fine := okTool("fine")
	e := newTestEngine(t, testConfig(), boom, fine)
	octx := ports.NewOrchestrationContext(ports.Task{ID: "task-1"})

	skipped := step("s1", "boom")
	skipped.OnFailure = ports.FailSkipStep
	plan := mkPlan(skipped, step("s2", "fine", "s1"))

	result, err := e.Execute(context.Background(), octx, plan, Hooks{})
	require.NoError(t, err)

	assert.Equal(t, ports.PlanSuccess, result.Status)
	assert.Equal(t, ports.StepSkipped, result.StepResults["s1"].State)
	assert.Equal(t, ports.StepSucceeded, result.StepResults["s2"].State)
	assert.EqualValues(t, 1, fine.calls.Load())
}

func TestContinuePolicyYieldsPartial(t *testing.T) {
	boom := &scriptTool{name: "boom", idempotent: true, invoke: func(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
		return &ports.ToolResult{Success: false, Error: "recorded"}, nil
	}}
	fine := okTool("fine")
	e := newTestEngine(t, testConfig(), boom, fine)
	octx := ports.NewOrchestrationContext(ports.Task{ID: "task-1"})

	failing := step("s1", "boom")
	failing.OnFailure = ports.FailContinue
	plan := mkPlan(
		failing,
		step("s2", "fine", "s1"), // doomed by s1's failure
		step("s3", "fine"),       // independent, still runs
	)

	result, err := e.Execute(context.Background(), octx, plan, Hooks{})
	require.NoError(t, err)

	assert.Equal(t, ports.PlanPartial, result.Status)
	assert.Equal(t, ports.StepFailed, result.StepResults["s1"].State)
	assert.Equal(t, ports.StepSkipped, result.StepResults["s2"].State)
	assert.Contains(t, result.StepResults["s2"].Error, "dependency")
	assert.Equal(t, ports.StepSucceeded, result.StepResults["s3"].State)
}

func TestCancellationYieldsCancelledResult(t *testing.T) {
	slow := &scriptTool{name: "slow", idempotent: true, invoke: func(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
		select {
		case <-ctx.Done():
			return &ports.ToolResult{Success: false, Error: "interrupted"}, nil
		case <-time.After(3 * time.Second):
			return &ports.ToolResult{Success: true}, nil
		}
	}}
	e := newTestEngine(t, testConfig(), slow, okTool("fine"))
	octx := ports.NewOrchestrationContext(ports.Task{ID: "task-1"})

	plan := mkPlan(step("s1", "slow"), step("s2", "fine", "s1"))

	done := make(chan *ports.PlanResult, 1)
	go func() {
		result, err := e.Execute(context.Background(), octx, plan, Hooks{})
		require.NoError(t, err)
		done <- result
	}()

	time.Sleep(100 * time.Millisecond)
	octx.Cancel()

	select {
	case result := <-done:
		assert.Equal(t, ports.PlanCancelled, result.Status)
		assert.Equal(t, ports.StepSkipped, result.StepResults["s2"].State)
	case <-time.After(2 * time.Second):
		t.Fatal("execution did not terminate after cancellation")
	}
}

func TestPlanTimeoutCancels(t *testing.T) {
	slow := &scriptTool{name: "slow", idempotent: true, invoke: func(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
		select {
		case <-ctx.Done():
			return &ports.ToolResult{Success: false, Error: "interrupted"}, nil
		case <-time.After(3 * time.Second):
			return &ports.ToolResult{Success: true}, nil
		}
	}}
	e := newTestEngine(t, testConfig(), slow)
	octx := ports.NewOrchestrationContext(ports.Task{ID: "task-1"})

	plan := mkPlan(step("s1", "slow"))
	plan.TimeoutSeconds = 0.15

	result, err := e.Execute(context.Background(), octx, plan, Hooks{})
	require.NoError(t, err)
	assert.Equal(t, ports.PlanCancelled, result.Status)
}

func TestHooksFire(t *testing.T) {
	e := newTestEngine(t, testConfig(), okTool("alpha"))
	octx := ports.NewOrchestrationContext(ports.Task{ID: "task-1"})

	progress := make(chan *ports.ProgressEvent, 8)
	complete := make(chan *ports.PlanResult, 1)
	hooks := Hooks{
		OnStepProgress: func(ev *ports.ProgressEvent, states map[string]ports.StepState) { progress <- ev },
		OnPlanComplete: func(result *ports.PlanResult) { complete <- result },
	}

	plan := mkPlan(step("s1", "alpha"), step("s2", "alpha", "s1"))
	_, err := e.Execute(context.Background(), octx, plan, hooks)
	require.NoError(t, err)

	select {
	case result := <-complete:
		assert.Equal(t, ports.PlanSuccess, result.Status)
	case <-time.After(time.Second):
		t.Fatal("completion hook never fired")
	}

	seen := 0
	deadline := time.After(time.Second)
	for seen < 2 {
		select {
		case ev := <-progress:
			assert.Equal(t, "task-1", ev.TaskID)
			assert.Greater(t, ev.Progress, 0.0)
			seen++
		case <-deadline:
			t.Fatalf("only %d progress hooks fired", seen)
		}
	}
}

func TestHooksDrainInOrderBeforeExecuteReturns(t *testing.T) {
	e := newTestEngine(t, testConfig(), okTool("alpha"))
	octx := ports.NewOrchestrationContext(ports.Task{ID: "task-1"})

	var calls []string
	hooks := Hooks{
		OnStepProgress: func(ev *ports.ProgressEvent, states map[string]ports.StepState) {
			calls = append(calls, "progress:"+ev.StepID)
		},
		OnPlanComplete: func(result *ports.PlanResult) {
			calls = append(calls, "complete")
		},
	}

	plan := mkPlan(
		step("s1", "alpha"),
		step("s2", "alpha", "s1"),
		step("s3", "alpha", "s2"),
	)
	_, err := e.Execute(context.Background(), octx, plan, hooks)
	require.NoError(t, err)

	// Every hook has already run, in emission order, with completion last.
	assert.Equal(t, []string{"progress:s1", "progress:s2", "progress:s3", "complete"}, calls)
}

func TestFailedAttemptsReportProgress(t *testing.T) {
	flaky := &scriptTool{name: "flaky", idempotent: true}
	flaky.invoke = func(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
		if flaky.calls.Load() <= 2 {
			return &ports.ToolResult{Success: false, Error: "transient"}, nil
		}
		return &ports.ToolResult{Success: true}, nil
	}

	cfg := testConfig()
	cfg.MaxRetries = 2
	e := newTestEngine(t, cfg, flaky)
	octx := ports.NewOrchestrationContext(ports.Task{ID: "task-1"})

	var events []*ports.ProgressEvent
	var scratch []string
	hooks := Hooks{OnStepProgress: func(ev *ports.ProgressEvent, states map[string]ports.StepState) {
		events = append(events, ev)
		if v, ok := octx.Variable(ports.ScopeStep, "s1:last_error"); ok {
			scratch = append(scratch, v.(string))
		}
	}}

	result, err := e.Execute(context.Background(), octx, mkPlan(step("s1", "flaky")), hooks)
	require.NoError(t, err)

	assert.Equal(t, ports.PlanSuccess, result.Status)
	assert.EqualValues(t, 3, flaky.calls.Load())
	assert.Equal(t, 3, result.StepResults["s1"].Attempts)

	// One event per failed attempt plus the terminal one, in order.
	require.Len(t, events, 3)
	assert.Contains(t, events[0].CurrentStepTitle, "attempt 1 failed")
	assert.Contains(t, events[1].CurrentStepTitle, "attempt 2 failed")
	assert.Equal(t, "s1", events[2].StepID)
	assert.InDelta(t, 1.0, events[2].Progress, 0.001)
	assert.False(t, events[1].Timestamp.Before(events[0].Timestamp))

	// The attempt error is visible in step scope during the run and gone after.
	assert.Contains(t, scratch, "transient")
	_, ok := octx.Variable(ports.ScopeStep, "s1:last_error")
	assert.False(t, ok)
}

// scriptDispatcher drives the engine directly, bypassing the registry's
// reification of tool faults, so dispatch-level errors can be scripted.
type scriptDispatcher struct {
	desc    ports.ToolDescriptor
	calls   atomic.Int64
	execute func(attempt int64) (*ports.ToolResult, error)
}

func (d *scriptDispatcher) Register(tool ports.Tool) error { return nil }
func (d *scriptDispatcher) List() []ports.ToolDescriptor   { return []ports.ToolDescriptor{d.desc} }
func (d *scriptDispatcher) Describe(name string) (ports.ToolDescriptor, error) {
	return d.desc, nil
}
func (d *scriptDispatcher) Execute(ctx context.Context, name string, params map[string]any, taskID string) (*ports.ToolResult, error) {
	return d.execute(d.calls.Add(1))
}

func TestTimeoutErrorsRetryIdempotentSteps(t *testing.T) {
	disp := &scriptDispatcher{desc: ports.ToolDescriptor{Name: "lookup", Idempotent: true}}
	disp.execute = func(attempt int64) (*ports.ToolResult, error) {
		if attempt == 1 {
			return nil, otterrors.NewTimeout("tool", "lookup")
		}
		return &ports.ToolResult{Success: true}, nil
	}

	cfg := testConfig()
	cfg.MaxRetries = 1
	e := New(disp, cfg)
	octx := ports.NewOrchestrationContext(ports.Task{ID: "task-1"})

	result, err := e.Execute(context.Background(), octx, mkPlan(step("s1", "lookup")), Hooks{})
	require.NoError(t, err)

	assert.Equal(t, ports.PlanSuccess, result.Status)
	assert.EqualValues(t, 2, disp.calls.Load())
	assert.Equal(t, 2, result.StepResults["s1"].Attempts)
}

func TestValidationErrorsNeverRetry(t *testing.T) {
	disp := &scriptDispatcher{desc: ports.ToolDescriptor{Name: "lookup", Idempotent: true}}
	disp.execute = func(attempt int64) (*ports.ToolResult, error) {
		return nil, otterrors.NewValidation("query", "query is required")
	}

	cfg := testConfig()
	cfg.MaxRetries = 2
	e := New(disp, cfg)
	octx := ports.NewOrchestrationContext(ports.Task{ID: "task-1"})

	result, err := e.Execute(context.Background(), octx, mkPlan(step("s1", "lookup")), Hooks{})
	require.NoError(t, err)

	assert.Equal(t, ports.PlanFailed, result.Status)
	assert.EqualValues(t, 1, disp.calls.Load())
	require.NotNil(t, result.FirstError)
	assert.Equal(t, "validation", result.FirstError.Kind)
}

func TestStepsAwaitingPoolAdmissionAreReady(t *testing.T) {
	release := make(chan struct{})
	gate := &scriptTool{name: "gate", idempotent: true, invoke: func(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
		<-release
		return &ports.ToolResult{Success: true}, nil
	}}

	cfg := testConfig()
	cfg.WorkerPoolSize = 1
	cfg.MaxParallelSteps = 2
	e := newTestEngine(t, cfg, gate)
	octx := ports.NewOrchestrationContext(ports.Task{ID: "task-1"})

	var snapshots []map[string]ports.StepState
	hooks := Hooks{OnStepProgress: func(ev *ports.ProgressEvent, states map[string]ports.StepState) {
		snapshots = append(snapshots, states)
	}}

	go func() {
		time.Sleep(150 * time.Millisecond)
		close(release)
	}()

	result, err := e.Execute(context.Background(), octx, mkPlan(step("s1", "gate"), step("s2", "gate")), hooks)
	require.NoError(t, err)
	require.Equal(t, ports.PlanSuccess, result.Status)

	// Both steps were dispatched, but the pool admits one at a time: when the
	// first finishes, the other is still ready, not running.
	require.Len(t, snapshots, 2)
	ready := 0
	for _, state := range snapshots[0] {
		if state == ports.StepReady {
			ready++
		}
	}
	assert.Equal(t, 1, ready)
}

func TestResumeFromCheckpointSkipsSucceededSteps(t *testing.T) {
	first := okTool("first")
	flaky := &scriptTool{name: "flaky", idempotent: true}
	flaky.invoke = func(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
		if flaky.calls.Load() == 1 {
			return &ports.ToolResult{Success: false, Error: "transient"}, nil
		}
		return &ports.ToolResult{Success: true}, nil
	}

	e := newTestEngine(t, testConfig(), first, flaky)
	octx := ports.NewOrchestrationContext(ports.Task{ID: "task-1"})

	plan := mkPlan(step("s1", "first"), step("s2", "flaky", "s1"))
	result, err := e.Execute(context.Background(), octx, plan, Hooks{})
	require.NoError(t, err)
	require.Equal(t, ports.PlanFailed, result.Status)

	cps := octx.Checkpoints()
	require.NotEmpty(t, cps)
	cp := cps[0]
	require.Equal(t, ports.StepSucceeded, cp.StepStates["s1"])

	resumed, err := e.ResumeFromCheckpoint(context.Background(), octx, plan, Hooks{}, cp.ID, false)
	require.NoError(t, err)

	assert.Equal(t, ports.PlanSuccess, resumed.Status)
	assert.EqualValues(t, 1, first.calls.Load(), "succeeded step must not re-run")
	assert.EqualValues(t, 2, flaky.calls.Load())
}

func TestResumeRequiresAckForNonIdempotentReruns(t *testing.T) {
	first := okTool("first")
	writer := &scriptTool{name: "writer", idempotent: false, invoke: func(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
		if call.TaskID == "" {
			return nil, fmt.Errorf("missing task id")
		}
		return &ports.ToolResult{Success: false, Error: "disk full"}, nil
	}}

	e := newTestEngine(t, testConfig(), first, writer)
	octx := ports.NewOrchestrationContext(ports.Task{ID: "task-1"})

	plan := mkPlan(step("s1", "first"), step("s2", "writer", "s1"))
	result, err := e.Execute(context.Background(), octx, plan, Hooks{})
	require.NoError(t, err)
	require.Equal(t, ports.PlanFailed, result.Status)

	cp := octx.Checkpoints()[0]

	_, err = e.ResumeFromCheckpoint(context.Background(), octx, plan, Hooks{}, cp.ID, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-idempotent")

	// Acknowledged restore proceeds.
	writer.invoke = func(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
		return &ports.ToolResult{Success: true}, nil
	}
	resumed, err := e.ResumeFromCheckpoint(context.Background(), octx, plan, Hooks{}, cp.ID, true)
	require.NoError(t, err)
	assert.Equal(t, ports.PlanSuccess, resumed.Status)
}

func TestResumeRejectsUnknownCheckpoint(t *testing.T) {
	e := newTestEngine(t, testConfig(), okTool("alpha"))
	octx := ports.NewOrchestrationContext(ports.Task{ID: "task-1"})

	_, err := e.ResumeFromCheckpoint(context.Background(), octx, mkPlan(step("s1", "alpha")), Hooks{}, "cp_missing", false)
	require.Error(t, err)
}

func TestSetObservabilityAcceptsDisabledHandle(t *testing.T) {
	e := newTestEngine(t, testConfig(), okTool("alpha"))
	e.SetObservability(observability.Disabled())
	e.SetObservability(nil) // nil keeps the current handle
	octx := ports.NewOrchestrationContext(ports.Task{ID: "task-1"})

	result, err := e.Execute(context.Background(), octx, mkPlan(step("s1", "alpha")), Hooks{})
	require.NoError(t, err)
	assert.Equal(t, ports.PlanSuccess, result.Status)
}

func TestEmptyPlanSucceedsImmediately(t *testing.T) {
	e := newTestEngine(t, testConfig())
	octx := ports.NewOrchestrationContext(ports.Task{ID: "task-1"})

	complete := make(chan *ports.PlanResult, 1)
	hooks := Hooks{OnPlanComplete: func(result *ports.PlanResult) { complete <- result }}

	result, err := e.Execute(context.Background(), octx, &ports.ExecutionPlan{ID: "p", TaskID: "task-1"}, hooks)
	require.NoError(t, err)
	assert.Equal(t, ports.PlanSuccess, result.Status)
	assert.Empty(t, result.StepResults)

	select {
	case <-complete:
	case <-time.After(time.Second):
		t.Fatal("completion hook never fired")
	}
}
