package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"otto/internal/async"
	"otto/internal/config"
	otterrors "otto/internal/errors"
	"otto/internal/logging"
	"otto/internal/observability"
	"otto/internal/ports"
	id "otto/internal/utils/id"
)

const (
	defaultFanOut     = 4
	defaultPoolSize   = 32
	defaultMaxRetries = 2
	retryBackoffBase  = 500 * time.Millisecond
	cancelPollPeriod  = 50 * time.Millisecond
)

// Hooks are the engine's callback points. For each execution they run in
// submission order on a single goroutine, and every queued hook has returned
// by the time Execute returns. A panicking hook is recovered and logged.
type Hooks struct {
	OnStepProgress func(event *ports.ProgressEvent, states map[string]ports.StepState)
	OnPlanComplete func(result *ports.PlanResult)
	OnError        func(errData *ports.ErrorData)
}

// Engine drives execution plans to a terminal result. One engine serves the
// whole process; per-plan fan-out runs inside the process-wide worker pool.
type Engine struct {
	dispatcher ports.ToolDispatcher
	pool       *semaphore.Weighted
	cfg        config.EngineConfig
	logger     logging.Logger
	obs        *observability.Observability

	mu     sync.Mutex
	active map[string]*execution // by task id
}

// New builds the process-wide engine.
func New(dispatcher ports.ToolDispatcher, cfg config.EngineConfig) *Engine {
	poolSize := cfg.WorkerPoolSize
	if poolSize <= 0 {
		poolSize = defaultPoolSize
	}
	return &Engine{
		dispatcher: dispatcher,
		pool:       semaphore.NewWeighted(int64(poolSize)),
		cfg:        cfg,
		logger:     logging.NewComponentLogger("Engine"),
		obs:        observability.Disabled(),
		active:     make(map[string]*execution),
	}
}

// SetObservability swaps in the process observability handle. Must be called
// before the first Execute.
func (e *Engine) SetObservability(obs *observability.Observability) {
	if obs != nil {
		e.obs = obs
	}
}

// Execute runs the plan from scratch.
func (e *Engine) Execute(ctx context.Context, octx *ports.OrchestrationContext, plan *ports.ExecutionPlan, hooks Hooks) (*ports.PlanResult, error) {
	return e.execute(ctx, octx, plan, hooks, nil)
}

// ResumeFromCheckpoint rewinds the task to a checkpoint and re-executes from
// the resulting ready set. It is only valid while the task has no running
// execution. Steps that would re-run through a non-idempotent tool require
// ackNonIdempotent.
func (e *Engine) ResumeFromCheckpoint(ctx context.Context, octx *ports.OrchestrationContext, plan *ports.ExecutionPlan, hooks Hooks, checkpointID string, ackNonIdempotent bool) (*ports.PlanResult, error) {
	e.mu.Lock()
	_, busy := e.active[plan.TaskID]
	e.mu.Unlock()
	if busy {
		return nil, otterrors.NewValidation("checkpoint_id", "task %s is executing; restore requires an idle task", plan.TaskID)
	}

	cp := octx.Checkpoint(checkpointID)
	if cp == nil {
		return nil, otterrors.NewValidation("checkpoint_id", "unknown checkpoint %s", checkpointID)
	}

	// Only success survives a rewind; everything else re-runs.
	initial := make(map[string]ports.StepState, len(plan.Steps))
	for _, step := range plan.Steps {
		if cp.StepStates[step.ID] == ports.StepSucceeded {
			initial[step.ID] = ports.StepSucceeded
			continue
		}
		initial[step.ID] = ports.StepPending
		if !ackNonIdempotent {
			if desc, err := e.dispatcher.Describe(step.ToolName); err == nil && !desc.Idempotent {
				return nil, otterrors.NewValidation("checkpoint_id",
					"restore would re-run non-idempotent tool %s (step %s); acknowledge to proceed", step.ToolName, step.ID)
			}
		}
	}

	octx.RestoreVariables(cp.Variables)
	e.logger.Info("Restored task %s to checkpoint %s", plan.TaskID, checkpointID)
	return e.execute(ctx, octx, plan, hooks, initial)
}

func (e *Engine) execute(ctx context.Context, octx *ports.OrchestrationContext, plan *ports.ExecutionPlan, hooks Hooks, initial map[string]ports.StepState) (*ports.PlanResult, error) {
	if plan == nil {
		return nil, otterrors.NewValidation("plan", "plan is nil")
	}
	if err := plan.Validate(); err != nil {
		return nil, otterrors.NewValidation("plan", "%v", err)
	}
	if len(plan.Steps) == 0 {
		now := time.Now()
		result := &ports.PlanResult{
			PlanID:      plan.ID,
			TaskID:      plan.TaskID,
			Status:      ports.PlanSuccess,
			StepResults: map[string]*ports.StepResult{},
			SuccessRate: 1,
			StartedAt:   now,
			CompletedAt: now,
		}
		if hooks.OnPlanComplete != nil {
			hooks.OnPlanComplete(result)
		}
		return result, nil
	}

	ex := newExecution(e, octx, plan, hooks, initial)

	e.mu.Lock()
	if _, dup := e.active[plan.TaskID]; dup {
		e.mu.Unlock()
		return nil, otterrors.NewValidation("task_id", "task %s already has a running execution", plan.TaskID)
	}
	e.active[plan.TaskID] = ex
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.active, plan.TaskID)
		e.mu.Unlock()
	}()

	timeout := e.cfg.PlanTimeout()
	if plan.TimeoutSeconds > 0 {
		timeout = time.Duration(plan.TimeoutSeconds * float64(time.Second))
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	runCtx, cancelRun := context.WithTimeout(ctx, timeout)
	defer cancelRun()

	// Bridge the cooperative cancellation flag into context cancellation so
	// running tool invocations observe it.
	watchDone := make(chan struct{})
	defer close(watchDone)
	async.Go(e.logger, "cancel-watch-"+plan.TaskID, func() {
		ticker := time.NewTicker(cancelPollPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-watchDone:
				return
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if octx.Cancelled() {
					cancelRun()
					return
				}
			}
		}
	})

	return ex.run(runCtx)
}

// Running reports whether the task currently has a live execution.
func (e *Engine) Running(taskID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.active[taskID]
	return ok
}

// execution is the per-plan run state. States and results are guarded by mu;
// workers only touch them through the mark* helpers.
type execution struct {
	engine *Engine
	octx   *ports.OrchestrationContext
	plan   *ports.ExecutionPlan
	hooks  Hooks

	// hookCh serializes hook invocations. Workers enqueue, a single drain
	// goroutine invokes; capacity covers every hook the plan can produce so
	// enqueueing never blocks a worker.
	hookCh chan func()

	mu         sync.Mutex
	states     map[string]ports.StepState
	results    map[string]*ports.StepResult
	cleanSkips map[string]bool // skipped via skip_step policy; satisfies dependents
	firstError *ports.ErrorData
	aborted    bool
}

func newExecution(e *Engine, octx *ports.OrchestrationContext, plan *ports.ExecutionPlan, hooks Hooks, initial map[string]ports.StepState) *execution {
	maxRetries := e.cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}
	// Per step: at most maxRetries retry notifications plus one terminal
	// notification; plus the single plan-complete hook.
	hookCap := len(plan.Steps)*(maxRetries+1) + 1
	ex := &execution{
		engine:     e,
		octx:       octx,
		plan:       plan,
		hooks:      hooks,
		hookCh:     make(chan func(), hookCap),
		states:     make(map[string]ports.StepState, len(plan.Steps)),
		results:    make(map[string]*ports.StepResult, len(plan.Steps)),
		cleanSkips: make(map[string]bool),
	}
	for _, step := range plan.Steps {
		state := ports.StepPending
		if initial != nil && initial[step.ID] == ports.StepSucceeded {
			state = ports.StepSucceeded
			ex.results[step.ID] = &ports.StepResult{StepID: step.ID, State: ports.StepSucceeded, Attempts: 0}
		}
		ex.states[step.ID] = state
	}
	return ex
}

type scheduleAction int

const (
	actionNone scheduleAction = iota
	actionRun
	actionSkip
)

func (ex *execution) run(ctx context.Context) (*ports.PlanResult, error) {
	fanOut := ex.plan.MaxParallelSteps
	if fanOut <= 0 {
		fanOut = ex.engine.cfg.MaxParallelSteps
	}
	if fanOut <= 0 {
		fanOut = defaultFanOut
	}

	startedAt := time.Now()
	completions := make(chan string, len(ex.plan.Steps))
	running := 0

	hooksDone := make(chan struct{})
	async.Go(ex.engine.logger, "hooks-"+ex.plan.TaskID, func() {
		defer close(hooksDone)
		for fn := range ex.hookCh {
			ex.invokeHook(fn)
		}
	})

scheduling:
	for {
		// Settle dependency skips and dispatch ready steps until quiescent.
		for {
			stepID, action := ex.next()
			if action == actionSkip {
				ex.markDependencySkipped(stepID)
				continue
			}
			if action == actionRun && running < fanOut && ctx.Err() == nil && !ex.isAborted() {
				// Ready until the worker clears pool admission.
				ex.setState(stepID, ports.StepReady)
				running++
				step := *ex.plan.Step(stepID)
				go ex.runStep(ctx, step, completions)
				continue
			}
			break
		}

		if ctx.Err() != nil || ex.isAborted() {
			break scheduling
		}
		if running == 0 {
			break scheduling
		}

		select {
		case <-completions:
			running--
		case <-ctx.Done():
			break scheduling
		}
	}

	// Let in-flight steps resolve; they observe ctx cancellation themselves.
	for running > 0 {
		<-completions
		running--
	}

	// Step-scoped scratch does not outlive the run.
	ex.octx.ClearStepScope()

	cancelled := ctx.Err() != nil || ex.octx.Cancelled()
	ex.finalize(cancelled)
	result := ex.buildResult(startedAt, cancelled)

	if ex.hooks.OnPlanComplete != nil {
		ex.hookCh <- func() { ex.hooks.OnPlanComplete(result) }
	}
	close(ex.hookCh)
	<-hooksDone
	return result, nil
}

func (ex *execution) invokeHook(fn func()) {
	defer async.Recover(ex.engine.logger, "hook-"+ex.plan.TaskID)
	fn()
}

// next scans for the first actionable step: a pending step whose dependencies
// are all satisfied (run) or one doomed by a failed dependency (skip).
func (ex *execution) next() (string, scheduleAction) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	for _, step := range ex.plan.Steps {
		if ex.states[step.ID] != ports.StepPending {
			continue
		}
		satisfied := true
		doomed := false
		for _, dep := range step.DependsOn {
			switch ex.states[dep] {
			case ports.StepSucceeded:
			case ports.StepSkipped:
				if !ex.cleanSkips[dep] {
					doomed = true
				}
			case ports.StepFailed, ports.StepCancelled:
				doomed = true
			default:
				satisfied = false
			}
		}
		if doomed {
			return step.ID, actionSkip
		}
		if satisfied {
			return step.ID, actionRun
		}
	}
	return "", actionNone
}

func (ex *execution) runStep(ctx context.Context, step ports.ExecutionStep, completions chan<- string) {
	defer func() {
		if r := recover(); r != nil {
			ex.engine.logger.Error("Step %s panicked: %v", step.ID, r)
			ex.markFailed(step, &ports.StepResult{
				StepID: step.ID,
				State:  ports.StepFailed,
				Error:  fmt.Sprintf("internal: step panicked: %v", r),
			}, "internal")
		}
		completions <- step.ID
	}()

	// Global pool admission; per-plan fan-out already holds.
	if err := ex.engine.pool.Acquire(ctx, 1); err != nil {
		ex.markCancelled(step.ID)
		return
	}
	defer ex.engine.pool.Release(1)
	ex.setState(step.ID, ports.StepRunning)

	ctx, stepSpan := ex.engine.obs.Tracer.StartSpan(ctx, observability.SpanStepExecute,
		observability.ToolAttrs(step.ToolName)...)
	defer stepSpan.End()

	desc, descErr := ex.engine.dispatcher.Describe(step.ToolName)
	if descErr != nil {
		// Tool vanished between planning and execution.
		ex.markFailed(step, &ports.StepResult{
			StepID: step.ID,
			State:  ports.StepFailed,
			Error:  descErr.Error(),
		}, "internal")
		ex.setAborted()
		return
	}

	maxRetries := ex.engine.cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}

	stepResult := &ports.StepResult{StepID: step.ID, StartedAt: time.Now()}
	for attempt := 0; ; attempt++ {
		stepResult.Attempts = attempt + 1

		stepCtx := ctx
		var cancelStep context.CancelFunc
		if step.TimeoutSeconds > 0 {
			stepCtx, cancelStep = context.WithTimeout(ctx, time.Duration(step.TimeoutSeconds*float64(time.Second)))
		}
		attemptCtx, toolSpan := ex.engine.obs.Tracer.StartSpan(stepCtx, observability.SpanToolExecute,
			observability.ToolAttrs(step.ToolName)...)
		invokedAt := time.Now()
		result, err := ex.engine.dispatcher.Execute(attemptCtx, step.ToolName, step.Params, ex.plan.TaskID)
		ex.recordToolAttempt(ctx, step.ToolName, result, err, time.Since(invokedAt))
		toolSpan.SetAttributes(observability.ErrorAttrs(err)...)
		toolSpan.End()
		if cancelStep != nil {
			cancelStep()
		}

		if err != nil {
			// Timeouts and tool faults from idempotent tools retry;
			// validation and internal faults never do.
			if otterrors.IsRetryable(err) && desc.Idempotent && attempt < maxRetries {
				if !ex.awaitRetry(ctx, step, attempt, err.Error()) {
					ex.markCancelled(step.ID)
					return
				}
				continue
			}
			stepResult.Error = err.Error()
			ex.markFailed(step, stepResult, otterrors.KindOf(err).String())
			if otterrors.KindOf(err) != otterrors.KindValidation {
				ex.setAborted()
			}
			return
		}

		stepResult.Result = result
		if result.Success {
			ex.markSucceeded(step, stepResult)
			return
		}

		if ctx.Err() != nil || ex.octx.Cancelled() {
			ex.markCancelled(step.ID)
			return
		}

		retryable := desc.Idempotent && attempt < maxRetries
		if !retryable {
			stepResult.Error = result.Error
			ex.markFailed(step, stepResult, "tool")
			return
		}

		if !ex.awaitRetry(ctx, step, attempt, result.Error) {
			ex.markCancelled(step.ID)
			return
		}
	}
}

// awaitRetry reports the failed attempt, waits out the backoff, and reports
// whether the step may try again. The attempt's error stays in step scope so
// later attempts and hooks can inspect it.
func (ex *execution) awaitRetry(ctx context.Context, step ports.ExecutionStep, attempt int, errMsg string) bool {
	ex.octx.SetVariable(ports.ScopeStep, step.ID+":last_error", errMsg)

	if ex.hooks.OnStepProgress != nil {
		ex.mu.Lock()
		states := ex.snapshotStatesLocked()
		terminal := ex.terminalCountLocked()
		ex.mu.Unlock()
		event := ports.NewProgressEvent(ex.plan.TaskID, step.ID,
			fmt.Sprintf("%s (attempt %d failed, retrying)", step.Title, attempt+1),
			float64(terminal)/float64(len(ex.plan.Steps)), len(ex.plan.Steps))
		ex.hookCh <- func() { ex.hooks.OnStepProgress(event, states) }
	}

	backoff := retryBackoffBase << attempt
	ex.engine.logger.Warn("Step %s attempt %d failed (%s); retrying in %s", step.ID, attempt+1, errMsg, backoff)
	select {
	case <-time.After(backoff):
		return true
	case <-ctx.Done():
		return false
	}
}

func (ex *execution) recordToolAttempt(ctx context.Context, toolName string, result *ports.ToolResult, err error, duration time.Duration) {
	status := "success"
	if err != nil || result == nil || !result.Success {
		status = "error"
	}
	ex.engine.obs.Metrics.RecordToolExecution(ctx, toolName, status, duration)
}

func stepDuration(stepResult *ports.StepResult) time.Duration {
	if stepResult.StartedAt.IsZero() {
		return 0
	}
	return stepResult.CompletedAt.Sub(stepResult.StartedAt)
}

func (ex *execution) markSucceeded(step ports.ExecutionStep, stepResult *ports.StepResult) {
	stepResult.State = ports.StepSucceeded
	stepResult.CompletedAt = time.Now()

	ex.mu.Lock()
	ex.states[step.ID] = ports.StepSucceeded
	ex.results[step.ID] = stepResult
	states := ex.snapshotStatesLocked()
	terminal := ex.terminalCountLocked()
	ex.mu.Unlock()

	if stepResult.Result != nil {
		ex.octx.SetVariable(ports.ScopeTask, "step_output:"+step.ID, stepResult.Result.Output)
	}
	ex.checkpoint(step.ID, states)

	ex.engine.obs.Metrics.RecordStep(context.Background(), step.ToolName,
		string(ports.StepSucceeded), stepDuration(stepResult))

	event := ports.NewProgressEvent(ex.plan.TaskID, step.ID, step.Title,
		float64(terminal)/float64(len(ex.plan.Steps)), len(ex.plan.Steps))
	if ex.hooks.OnStepProgress != nil {
		ex.hookCh <- func() { ex.hooks.OnStepProgress(event, states) }
	}
}

func (ex *execution) markFailed(step ports.ExecutionStep, stepResult *ports.StepResult, kind string) {
	stepResult.CompletedAt = time.Now()

	policy := step.FailurePolicyOrDefault()

	ex.mu.Lock()
	switch policy {
	case ports.FailSkipStep:
		stepResult.State = ports.StepSkipped
		ex.states[step.ID] = ports.StepSkipped
		ex.cleanSkips[step.ID] = true
	default:
		stepResult.State = ports.StepFailed
		ex.states[step.ID] = ports.StepFailed
	}
	ex.results[step.ID] = stepResult
	if ex.firstError == nil {
		ex.firstError = &ports.ErrorData{
			StepID:  step.ID,
			Kind:    kind,
			Message: stepResult.Error,
			Context: map[string]any{"tool": step.ToolName, "attempts": stepResult.Attempts},
		}
	}
	errData := ex.firstError
	ex.mu.Unlock()

	if policy == ports.FailAbortPlan {
		ex.setAborted()
	}

	ex.engine.obs.Metrics.RecordStep(context.Background(), step.ToolName,
		string(stepResult.State), stepDuration(stepResult))

	ex.engine.logger.Warn("Step %s terminated %s (policy=%s): %s", step.ID, stepResult.State, policy, stepResult.Error)
	if ex.hooks.OnError != nil {
		ex.hookCh <- func() { ex.hooks.OnError(errData) }
	}
}

func (ex *execution) markDependencySkipped(stepID string) {
	step := ex.plan.Step(stepID)
	var failedDep string
	ex.mu.Lock()
	for _, dep := range step.DependsOn {
		state := ex.states[dep]
		if state == ports.StepFailed || state == ports.StepCancelled || (state == ports.StepSkipped && !ex.cleanSkips[dep]) {
			failedDep = dep
			break
		}
	}
	depErr := &otterrors.DependencyError{StepID: stepID, DependencyID: failedDep}
	ex.states[stepID] = ports.StepSkipped
	ex.results[stepID] = &ports.StepResult{
		StepID:      stepID,
		State:       ports.StepSkipped,
		Error:       depErr.Error(),
		CompletedAt: time.Now(),
	}
	ex.mu.Unlock()
}

func (ex *execution) markCancelled(stepID string) {
	ex.mu.Lock()
	ex.states[stepID] = ports.StepCancelled
	ex.results[stepID] = &ports.StepResult{StepID: stepID, State: ports.StepCancelled, CompletedAt: time.Now()}
	ex.mu.Unlock()
}

// finalize marks every non-terminal step skipped once scheduling stops.
func (ex *execution) finalize(cancelled bool) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	for _, step := range ex.plan.Steps {
		if ex.states[step.ID].Terminal() {
			continue
		}
		ex.states[step.ID] = ports.StepSkipped
		reason := "plan aborted before step became ready"
		if cancelled {
			reason = "execution cancelled"
		}
		ex.results[step.ID] = &ports.StepResult{
			StepID:      step.ID,
			State:       ports.StepSkipped,
			Error:       reason,
			CompletedAt: time.Now(),
		}
	}
}

func (ex *execution) buildResult(startedAt time.Time, cancelled bool) *ports.PlanResult {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	succeeded, failed := 0, 0
	dirtySkips := 0
	for stepID, state := range ex.states {
		switch state {
		case ports.StepSucceeded:
			succeeded++
		case ports.StepFailed:
			failed++
		case ports.StepSkipped:
			if !ex.cleanSkips[stepID] {
				dirtySkips++
			}
		}
	}

	total := len(ex.plan.Steps)
	status := ports.PlanSuccess
	switch {
	case cancelled:
		status = ports.PlanCancelled
	case failed == 0 && dirtySkips == 0:
		status = ports.PlanSuccess
	case !ex.aborted && succeeded > 0:
		status = ports.PlanPartial
	default:
		status = ports.PlanFailed
	}

	completedAt := time.Now()
	return &ports.PlanResult{
		PlanID:      ex.plan.ID,
		TaskID:      ex.plan.TaskID,
		Status:      status,
		StepResults: ex.results,
		SuccessRate: float64(succeeded) / float64(total),
		Duration:    completedAt.Sub(startedAt),
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		FirstError:  ex.firstError,
	}
}

func (ex *execution) checkpoint(stepID string, states map[string]ports.StepState) {
	ex.octx.AddCheckpoint(&ports.Checkpoint{
		ID:         id.NewCheckpointID(),
		StepID:     stepID,
		CreatedAt:  time.Now(),
		Variables:  ex.octx.SnapshotVariables(),
		StepStates: states,
	})
}

func (ex *execution) setAborted() {
	ex.mu.Lock()
	ex.aborted = true
	ex.mu.Unlock()
}

func (ex *execution) isAborted() bool {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.aborted
}

func (ex *execution) setState(stepID string, state ports.StepState) {
	ex.mu.Lock()
	ex.states[stepID] = state
	ex.mu.Unlock()
}

func (ex *execution) snapshotStatesLocked() map[string]ports.StepState {
	out := make(map[string]ports.StepState, len(ex.states))
	for k, v := range ex.states {
		out[k] = v
	}
	return out
}

func (ex *execution) terminalCountLocked() int {
	n := 0
	for _, state := range ex.states {
		if state.Terminal() {
			n++
		}
	}
	return n
}
