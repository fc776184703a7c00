package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"otto/internal/engine"
	otterrors "otto/internal/errors"
	"otto/internal/events"
	"otto/internal/intent"
	"otto/internal/logging"
	"otto/internal/memory"
	"otto/internal/observability"
	"otto/internal/planner"
	"otto/internal/ports"
	id "otto/internal/utils/id"
)

const (
	historyLimit        = 100
	contextRetrievalMax = 5
)

// Request is an incoming orchestration submission.
type Request struct {
	TaskID      string            `json:"task_id,omitempty"`
	Description string            `json:"task_description"`
	UserID      string            `json:"user_id,omitempty"`
	SessionID   string            `json:"session_id,omitempty"`
	Priority    int               `json:"priority,omitempty"`
	Constraints map[string]string `json:"constraints,omitempty"`
	Preferences map[string]string `json:"preferences,omitempty"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
}

// Phase is the orchestrator-level lifecycle phase of a live task.
type Phase string

const (
	PhaseClassifying Phase = "classifying"
	PhasePlanning    Phase = "planning"
	PhaseExecuting   Phase = "executing"
)

// Status is a live snapshot of one orchestration.
type Status struct {
	TaskID      string    `json:"task_id"`
	Description string    `json:"description"`
	Phase       Phase     `json:"phase"`
	Progress    float64   `json:"progress"`
	TotalSteps  int       `json:"total_steps"`
	StartedAt   time.Time `json:"started_at"`
}

// Metrics aggregates terminal outcomes across the orchestrator's lifetime.
type Metrics struct {
	TotalOrchestrations int            `json:"total_orchestrations"`
	ChatResponses       int            `json:"chat_responses"`
	ByStatus            map[string]int `json:"by_status"`
	ActiveCount         int            `json:"active_count"`
	AverageDuration     time.Duration  `json:"average_duration"`
	MemoryStats         map[string]int `json:"memory_stats"`
}

// liveTask tracks one in-flight orchestration.
type liveTask struct {
	mu        sync.Mutex
	task      ports.Task
	octx      *ports.OrchestrationContext
	phase     Phase
	progress  float64
	total     int
	startedAt time.Time
}

// Orchestrator is the top-level state machine: classify, plan, execute,
// record. One instance serves the whole process.
type Orchestrator struct {
	classifier *intent.Classifier
	planner    *planner.Planner
	engine     *engine.Engine
	memory     *memory.Manager
	bus        *events.Bus
	llm        ports.LLMClient
	logger     logging.Logger
	obs        *observability.Observability

	mu            sync.Mutex
	active        map[string]*liveTask
	history       []*ports.OrchestrationResult
	chatCount     int
	totalDuration time.Duration
	terminalCount int
}

// New wires the orchestrator over its collaborators. llm may be nil; chat
// then degrades to a fixed notice and planning uses template fallback.
func New(classifier *intent.Classifier, p *planner.Planner, e *engine.Engine, mem *memory.Manager, bus *events.Bus, llm ports.LLMClient) *Orchestrator {
	return &Orchestrator{
		classifier: classifier,
		planner:    p,
		engine:     e,
		memory:     mem,
		bus:        bus,
		llm:        llm,
		logger:     logging.NewComponentLogger("Orchestrator"),
		obs:        observability.Disabled(),
		active:     make(map[string]*liveTask),
	}
}

// SetObservability swaps in the process observability handle. Must be called
// before the first Orchestrate.
func (o *Orchestrator) SetObservability(obs *observability.Observability) {
	if obs != nil {
		o.obs = obs
	}
}

// Orchestrate drives one task from submission to a terminal result. It
// blocks until the task terminates; realtime consumers follow the event bus.
func (o *Orchestrator) Orchestrate(ctx context.Context, req Request) (*ports.OrchestrationResult, error) {
	if strings.TrimSpace(req.Description) == "" {
		return nil, otterrors.NewValidation("task_description", "description is empty")
	}

	task := ports.Task{
		ID:          req.TaskID,
		UserID:      req.UserID,
		SessionID:   req.SessionID,
		Description: strings.TrimSpace(req.Description),
		Priority:    ports.ClampPriority(req.Priority),
		Constraints: req.Constraints,
		Preferences: req.Preferences,
		Metadata:    req.Metadata,
		CreatedAt:   time.Now(),
	}
	if task.ID == "" {
		task.ID = id.NewTaskID()
	}

	live := &liveTask{
		task:      task,
		octx:      ports.NewOrchestrationContext(task),
		phase:     PhaseClassifying,
		startedAt: time.Now(),
	}

	o.mu.Lock()
	if _, dup := o.active[task.ID]; dup {
		o.mu.Unlock()
		return nil, otterrors.NewValidation("task_id", "task %s already active", task.ID)
	}
	o.active[task.ID] = live
	o.mu.Unlock()

	ctx = id.WithTaskID(ctx, task.ID)
	ctx, span := o.obs.Tracer.StartSpan(ctx, observability.SpanOrchestrate)
	o.obs.Metrics.IncrementActiveOrchestrations(ctx)

	result := o.run(ctx, live)

	o.obs.Metrics.DecrementActiveOrchestrations(ctx)
	o.obs.Metrics.RecordOrchestration(ctx, string(result.Mode), string(result.Status), result.Duration)
	span.SetAttributes(observability.StatusAttrs(string(result.Status))...)
	span.End()

	o.finish(live, result)
	return result, nil
}

// publish pushes the event on the task bus and counts it.
func (o *Orchestrator) publish(ctx context.Context, event ports.Event) {
	o.bus.Publish(event)
	o.obs.Metrics.RecordEventPublished(ctx, string(event.EventType()))
}

func (o *Orchestrator) run(ctx context.Context, live *liveTask) *ports.OrchestrationResult {
	task := live.task
	result := &ports.OrchestrationResult{
		TaskID:    task.ID,
		StartedAt: live.startedAt,
	}

	memCtx, memSpan := o.obs.Tracer.StartSpan(ctx, observability.SpanMemoryQuery)
	retrieved, err := o.memory.RetrieveRelevantContext(memCtx, task.Description, ports.MemoryAll, contextRetrievalMax)
	memSpan.End()
	if err != nil {
		o.logger.Warn("Context retrieval failed for task %s: %v", task.ID, err)
		retrieved = memory.NoRelevantContext
	}
	live.octx.RetrievedContext = retrieved

	classification := o.classifier.Classify(task.Description)
	if classification.Mode == intent.ModeChat {
		result.Mode = ports.ModeChat
		o.chatAnswer(ctx, live, result)
		return result
	}

	// The search tag, if any, never propagates past classification.
	task.Description = classification.CleanMessage
	live.setDescription(classification.CleanMessage)
	live.setPhase(PhasePlanning)

	planCtx, planSpan := o.obs.Tracer.StartSpan(ctx, observability.SpanPlanCreate)
	var plan *ports.ExecutionPlan
	var planErr error
	switch classification.SearchMode {
	case intent.SearchWeb:
		result.Mode = ports.ModeWebSearch
		plan, planErr = o.planner.SearchPlan(task, false)
	case intent.SearchDeep:
		result.Mode = ports.ModeDeepResearch
		plan, planErr = o.planner.SearchPlan(task, true)
	default:
		result.Mode = ports.ModeOrchestration
		plan, planErr = o.planner.CreatePlan(planCtx, task, retrieved)
	}
	planSpan.SetAttributes(observability.ErrorAttrs(planErr)...)
	planSpan.End()
	if planErr != nil {
		o.terminalFailure(ctx, live, result, &ports.ErrorData{
			Kind:    otterrors.KindOf(planErr).String(),
			Message: planErr.Error(),
		})
		return result
	}
	live.octx.Plan = plan

	live.setPhase(PhaseExecuting)
	planResult, execErr := o.engine.Execute(ctx, live.octx, plan, engine.Hooks{
		OnStepProgress: func(event *ports.ProgressEvent, states map[string]ports.StepState) {
			live.setProgress(event.Progress, event.TotalSteps)
			o.publish(ctx, event)
		},
	})
	if execErr != nil {
		o.terminalFailure(ctx, live, result, &ports.ErrorData{
			Kind:    otterrors.KindOf(execErr).String(),
			Message: execErr.Error(),
		})
		return result
	}

	result.Status = planResult.Status
	result.PlanResult = planResult
	result.Duration = time.Since(live.startedAt)
	if planResult.FirstError != nil {
		result.Error = planResult.FirstError.Message
	}

	if planResult.Status == ports.PlanFailed {
		o.publish(ctx, ports.NewFailureEvent(task.ID, planResult.FirstError, map[string]any{
			"plan_id":  plan.ID,
			"strategy": plan.Strategy,
		}))
	} else {
		o.publish(ctx, ports.NewCompletionEvent(task.ID, planResult.SuccessRate, planResult.Duration,
			o.summarize(plan, planResult)))
	}

	o.recordTask(ctx, live, plan, planResult)
	return result
}

// chatAnswer handles the no-tools path: answer from the LLM with retrieved
// context, record a low-importance episode, and terminate the event stream.
func (o *Orchestrator) chatAnswer(ctx context.Context, live *liveTask, result *ports.OrchestrationResult) {
	task := live.task
	response := "The language model backend is not configured; only task orchestration is available."
	if o.llm != nil {
		messages := []ports.Message{{Role: "system", Content: o.chatSystemPrompt(live.octx.RetrievedContext)}}
		messages = append(messages, ports.Message{Role: "user", Content: task.Description})
		resp, err := o.llm.Complete(ctx, ports.CompletionRequest{Messages: messages, MaxTokens: 1024})
		if err != nil {
			o.terminalFailure(ctx, live, result, &ports.ErrorData{Kind: "internal", Message: err.Error()})
			return
		}
		response = resp.Content
	}

	result.Status = ports.PlanSuccess
	result.Response = response
	result.Duration = time.Since(live.startedAt)

	o.publish(ctx, ports.NewCompletionEvent(task.ID, 1, result.Duration, firstLine(response)))

	o.mu.Lock()
	o.chatCount++
	o.mu.Unlock()

	if _, err := o.memory.StoreEpisode(ctx, ports.Episode{
		Title:       "Chat: " + firstLine(task.Description),
		Description: response,
		Success:     true,
		Importance:  2,
		Tags:        []string{"chat"},
	}); err != nil {
		o.logger.Warn("Failed to store chat episode: %v", err)
	} else {
		o.obs.Metrics.RecordMemoryDelta(ctx, "episodic", 1)
	}
}

func (o *Orchestrator) chatSystemPrompt(retrieved string) string {
	prompt := "You are a helpful assistant. Answer directly and concisely."
	if retrieved != "" && retrieved != memory.NoRelevantContext {
		prompt += "\n\nRelevant context from previous interactions:\n" + retrieved
	}
	return prompt
}

// terminalFailure publishes the single failure event for a task that never
// reached a plan result.
func (o *Orchestrator) terminalFailure(ctx context.Context, live *liveTask, result *ports.OrchestrationResult, errData *ports.ErrorData) {
	result.Status = ports.PlanFailed
	result.Error = errData.Message
	result.Duration = time.Since(live.startedAt)
	o.publish(ctx, ports.NewFailureEvent(live.task.ID, errData, nil))
}

// recordTask stores the episode and procedure learned from a finished plan.
func (o *Orchestrator) recordTask(ctx context.Context, live *liveTask, plan *ports.ExecutionPlan, planResult *ports.PlanResult) {
	task := live.task
	succeeded := planResult.Status == ports.PlanSuccess

	var actions, outcomes []string
	for _, step := range plan.Steps {
		sr, ok := planResult.StepResults[step.ID]
		if !ok {
			continue
		}
		actions = append(actions, step.ToolName)
		outcomes = append(outcomes, fmt.Sprintf("%s: %s", step.Title, sr.State))
	}

	importance := 3
	if !succeeded {
		importance = 4
	}
	if _, err := o.memory.StoreEpisode(ctx, ports.Episode{
		Title:       "Task: " + firstLine(task.Description),
		Description: task.Description,
		Context:     map[string]string{"strategy": plan.Strategy, "status": string(planResult.Status)},
		Actions:     actions,
		Outcomes:    outcomes,
		Success:     succeeded,
		Importance:  importance,
		Tags:        []string{"task", plan.Strategy},
	}); err != nil {
		o.logger.Warn("Failed to store task episode: %v", err)
	} else {
		o.obs.Metrics.RecordMemoryDelta(ctx, "episodic", 1)
	}

	if len(actions) > 0 {
		if _, err := o.memory.Procedures.Record(ctx, task.Description, actions, succeeded); err != nil {
			o.logger.Warn("Failed to record procedure: %v", err)
		}
	}
}

// finish moves the task from the active set into the bounded history ring
// and releases its per-task resources.
func (o *Orchestrator) finish(live *liveTask, result *ports.OrchestrationResult) {
	taskID := live.task.ID

	o.memory.Working.ClearTask(taskID)
	o.bus.CloseTask(taskID)

	o.mu.Lock()
	delete(o.active, taskID)
	o.history = append(o.history, result)
	if len(o.history) > historyLimit {
		o.history = o.history[len(o.history)-historyLimit:]
	}
	o.terminalCount++
	o.totalDuration += result.Duration
	o.mu.Unlock()

	o.logger.Info("Task %s terminated with status %s in %s", taskID, result.Status, result.Duration)
}

// Cancel raises the cooperative cancellation flag for a live task.
func (o *Orchestrator) Cancel(taskID string) error {
	o.mu.Lock()
	live, ok := o.active[taskID]
	o.mu.Unlock()
	if !ok {
		return otterrors.NewValidation("task_id", "no active task %s", taskID)
	}
	live.octx.Cancel()
	o.logger.Info("Cancellation requested for task %s", taskID)
	return nil
}

// GetStatus returns a live snapshot for the task, if it is still active.
func (o *Orchestrator) GetStatus(taskID string) (Status, bool) {
	o.mu.Lock()
	live, ok := o.active[taskID]
	o.mu.Unlock()
	if !ok {
		return Status{}, false
	}
	return live.snapshot(), true
}

// ListActive returns snapshots of every live task.
func (o *Orchestrator) ListActive() []Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Status, 0, len(o.active))
	for _, live := range o.active {
		out = append(out, live.snapshot())
	}
	return out
}

// GetMetrics aggregates terminal counters, live counts, and memory stats.
func (o *Orchestrator) GetMetrics() Metrics {
	o.mu.Lock()
	byStatus := make(map[string]int)
	for _, result := range o.history {
		byStatus[string(result.Status)]++
	}
	m := Metrics{
		TotalOrchestrations: o.terminalCount,
		ChatResponses:       o.chatCount,
		ByStatus:            byStatus,
		ActiveCount:         len(o.active),
	}
	if o.terminalCount > 0 {
		m.AverageDuration = o.totalDuration / time.Duration(o.terminalCount)
	}
	o.mu.Unlock()

	m.MemoryStats = o.memory.Stats()
	return m
}

// History returns the retained terminal results, oldest first.
func (o *Orchestrator) History() []*ports.OrchestrationResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*ports.OrchestrationResult, len(o.history))
	copy(out, o.history)
	return out
}

func (o *Orchestrator) summarize(plan *ports.ExecutionPlan, planResult *ports.PlanResult) string {
	succeeded := 0
	for _, sr := range planResult.StepResults {
		if sr.State == ports.StepSucceeded {
			succeeded++
		}
	}
	return fmt.Sprintf("%s: %d/%d steps succeeded (%s)", plan.Title, succeeded, len(plan.Steps), planResult.Status)
}

func (live *liveTask) setDescription(description string) {
	live.mu.Lock()
	live.task.Description = description
	live.mu.Unlock()
}

func (live *liveTask) setPhase(phase Phase) {
	live.mu.Lock()
	live.phase = phase
	live.mu.Unlock()
}

func (live *liveTask) setProgress(progress float64, total int) {
	live.mu.Lock()
	if progress > live.progress {
		live.progress = progress
	}
	live.total = total
	live.mu.Unlock()
}

func (live *liveTask) snapshot() Status {
	live.mu.Lock()
	defer live.mu.Unlock()
	return Status{
		TaskID:      live.task.ID,
		Description: live.task.Description,
		Phase:       live.phase,
		Progress:    live.progress,
		TotalSteps:  live.total,
		StartedAt:   live.startedAt,
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 80 {
		s = s[:80]
	}
	return s
}
