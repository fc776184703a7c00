package planner

import (
	otterrors "otto/internal/errors"
	"otto/internal/ports"
)

// ValidatePlan checks the plan's structural invariants and its tool bindings
// against the registry: every referenced tool must be registered and every
// parameter name declared. Missing required params are allowed here because
// steps may receive values from execution context; the dispatcher enforces
// the full schema at invocation time.
func (p *Planner) ValidatePlan(plan *ports.ExecutionPlan) error {
	if err := plan.Validate(); err != nil {
		return otterrors.NewValidation("plan", "%v", err)
	}

	for _, step := range plan.Steps {
		desc, err := p.registry.Describe(step.ToolName)
		if err != nil {
			return otterrors.NewValidation("tool", "step %s references unknown tool %s", step.ID, step.ToolName)
		}
		for name := range step.Params {
			if _, declared := desc.Params[name]; !declared {
				return otterrors.NewValidation("params", "step %s passes unknown parameter %s to tool %s", step.ID, name, step.ToolName)
			}
		}
		switch step.FailurePolicyOrDefault() {
		case ports.FailAbortPlan, ports.FailSkipStep, ports.FailContinue:
		default:
			return otterrors.NewValidation("on_failure", "step %s has invalid failure policy %q", step.ID, step.OnFailure)
		}
	}
	return nil
}
