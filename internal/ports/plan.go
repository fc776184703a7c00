package ports

import (
	"fmt"
	"time"
)

// StepState is the lifecycle state of one execution step.
type StepState string

const (
	StepPending   StepState = "pending"
	StepReady     StepState = "ready"
	StepRunning   StepState = "running"
	StepSucceeded StepState = "succeeded"
	StepFailed    StepState = "failed"
	StepSkipped   StepState = "skipped"
	StepCancelled StepState = "cancelled"
)

// Terminal reports whether the state is a sink; terminal states never change.
func (s StepState) Terminal() bool {
	switch s {
	case StepSucceeded, StepFailed, StepSkipped, StepCancelled:
		return true
	default:
		return false
	}
}

// Complexity tags a step's estimated difficulty.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// FailurePolicy decides what happens to the plan when a step exhausts retries.
type FailurePolicy string

const (
	// FailAbortPlan stops the plan; remaining steps are skipped. Default.
	FailAbortPlan FailurePolicy = "abort_plan"
	// FailSkipStep marks the step skipped; dependents may still run.
	FailSkipStep FailurePolicy = "skip_step"
	// FailContinue records the failure but lets independent steps proceed.
	FailContinue FailurePolicy = "continue"
)

// ExecutionStep is one atomic action inside a plan.
type ExecutionStep struct {
	ID               string         `json:"step_id"`
	Title            string         `json:"title"`
	Description      string         `json:"description,omitempty"`
	ToolName         string         `json:"tool_name"`
	Params           map[string]any `json:"params,omitempty"`
	DependsOn        []string       `json:"dependency_step_ids,omitempty"`
	EstimatedSeconds float64        `json:"estimated_duration_seconds,omitempty"`
	Complexity       Complexity     `json:"complexity,omitempty"`
	OnFailure        FailurePolicy  `json:"on_failure,omitempty"`
	TimeoutSeconds   float64        `json:"timeout_seconds,omitempty"` // overrides the tool timeout
}

// FailurePolicyOrDefault returns the step policy, defaulting to abort_plan.
func (s ExecutionStep) FailurePolicyOrDefault() FailurePolicy {
	if s.OnFailure == "" {
		return FailAbortPlan
	}
	return s.OnFailure
}

// ExecutionPlan is the totality of planned work for one task.
type ExecutionPlan struct {
	ID                 string          `json:"plan_id"`
	TaskID             string          `json:"task_id"`
	Title              string          `json:"title"`
	Steps              []ExecutionStep `json:"steps"`
	Strategy           string          `json:"strategy"`
	EstimatedSeconds   float64         `json:"estimated_duration_seconds"`
	ComplexityScore    float64         `json:"complexity_score"`    // 0-1
	SuccessProbability float64         `json:"success_probability"` // 0-1
	RiskFactors        []string        `json:"risk_factors,omitempty"`
	Prerequisites      []string        `json:"prerequisites,omitempty"`
	RequiredTools      []string        `json:"required_tools,omitempty"`
	MaxParallelSteps   int             `json:"max_parallel_steps,omitempty"`
	TimeoutSeconds     float64         `json:"timeout_seconds,omitempty"`
}

// Step returns the step with the given id, or nil.
func (p *ExecutionPlan) Step(stepID string) *ExecutionStep {
	for i := range p.Steps {
		if p.Steps[i].ID == stepID {
			return &p.Steps[i]
		}
	}
	return nil
}

// Validate checks the structural invariants of the plan: unique step ids,
// every dependency resolving inside the plan, and an acyclic dependency graph.
// Tool existence and parameter schemas are checked by the planner against the
// registry.
func (p *ExecutionPlan) Validate() error {
	if p.TaskID == "" {
		return fmt.Errorf("plan %s: missing task_id", p.ID)
	}

	byID := make(map[string]*ExecutionStep, len(p.Steps))
	for i := range p.Steps {
		step := &p.Steps[i]
		if step.ID == "" {
			return fmt.Errorf("plan %s: step %d has no id", p.ID, i)
		}
		if step.ToolName == "" {
			return fmt.Errorf("plan %s: step %s has no tool", p.ID, step.ID)
		}
		if _, dup := byID[step.ID]; dup {
			return fmt.Errorf("plan %s: duplicate step id %s", p.ID, step.ID)
		}
		byID[step.ID] = step
	}

	for _, step := range p.Steps {
		for _, dep := range step.DependsOn {
			if dep == step.ID {
				return fmt.Errorf("plan %s: step %s depends on itself", p.ID, step.ID)
			}
			if _, ok := byID[dep]; !ok {
				return fmt.Errorf("plan %s: step %s depends on unknown step %s", p.ID, step.ID, dep)
			}
		}
	}

	if cycle := findCycle(p.Steps); len(cycle) > 0 {
		return fmt.Errorf("plan %s: dependency cycle: %v", p.ID, cycle)
	}

	return nil
}

// findCycle runs a three-color DFS over the dependency edges and returns the
// first cycle found, or nil.
func findCycle(steps []ExecutionStep) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	deps := make(map[string][]string, len(steps))
	for _, step := range steps {
		deps[step.ID] = step.DependsOn
	}

	color := make(map[string]int, len(steps))
	var cycle []string

	var visit func(id string, stack []string) bool
	visit = func(id string, stack []string) bool {
		color[id] = gray
		stack = append(stack, id)
		for _, dep := range deps[id] {
			switch color[dep] {
			case gray:
				cycle = append(append([]string{}, stack...), dep)
				return true
			case white:
				if visit(dep, stack) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}

	for _, step := range steps {
		if color[step.ID] == white {
			if visit(step.ID, nil) {
				return cycle
			}
		}
	}
	return nil
}

// PlanStatus is the terminal status of one plan execution.
type PlanStatus string

const (
	PlanSuccess   PlanStatus = "success"
	PlanPartial   PlanStatus = "partial"
	PlanFailed    PlanStatus = "failed"
	PlanCancelled PlanStatus = "cancelled"
)

// StepResult records the terminal outcome of one step.
type StepResult struct {
	StepID      string      `json:"step_id"`
	State       StepState   `json:"state"`
	Result      *ToolResult `json:"result,omitempty"`
	Attempts    int         `json:"attempts"`
	Error       string      `json:"error,omitempty"`
	StartedAt   time.Time   `json:"started_at,omitempty"`
	CompletedAt time.Time   `json:"completed_at,omitempty"`
}

// PlanResult is the terminal outcome of one plan execution.
type PlanResult struct {
	PlanID      string                 `json:"plan_id"`
	TaskID      string                 `json:"task_id"`
	Status      PlanStatus             `json:"status"`
	StepResults map[string]*StepResult `json:"step_results"`
	SuccessRate float64                `json:"success_rate"`
	Duration    time.Duration          `json:"total_execution_time"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt time.Time              `json:"completed_at"`
	// FirstError carries the first failing step's error data, if any.
	FirstError *ErrorData `json:"first_error,omitempty"`
}

// ErrorData describes a failure for the failure event payload.
type ErrorData struct {
	StepID  string         `json:"step_id,omitempty"`
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}
