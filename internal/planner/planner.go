package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	otterrors "otto/internal/errors"
	"otto/internal/logging"
	"otto/internal/ports"
	id "otto/internal/utils/id"
)

// Planner turns a task into a validated ExecutionPlan. It is side-effect
// free: it never invokes tools, it only reads the registry and memory
// context handed to it.
type Planner struct {
	llm       ports.LLMClient
	registry  ports.ToolDispatcher
	templates []Template
	logger    logging.Logger
}

// New builds a planner over the registry and catalog. llm may be nil; the
// template fallback then always applies.
func New(llm ports.LLMClient, registry ports.ToolDispatcher, templates []Template) *Planner {
	if len(templates) == 0 {
		templates = Catalog()
	}
	return &Planner{
		llm:       llm,
		registry:  registry,
		templates: templates,
		logger:    logging.NewComponentLogger("Planner"),
	}
}

// CreatePlan selects a template for the task, asks the LLM to refine it, and
// validates the result. Any failure on the LLM path falls back to the
// deterministic template plan.
func (p *Planner) CreatePlan(ctx context.Context, task ports.Task, retrievedContext string) (*ports.ExecutionPlan, error) {
	if strings.TrimSpace(task.Description) == "" {
		return nil, otterrors.NewValidation("description", "task description is empty")
	}

	template := SelectTemplate(p.templates, task.Description)
	p.logger.Info("Selected template %s for task %s", template.Name, task.ID)

	if p.llm != nil {
		plan, err := p.refineWithLLM(ctx, task, template, retrievedContext)
		if err == nil {
			return plan, nil
		}
		p.logger.Warn("LLM refinement failed for task %s, using template fallback: %v", task.ID, err)
	}

	plan := p.instantiate(task, template)
	if err := p.ValidatePlan(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// SearchPlan builds the single-step plan used when classification forces a
// search tool.
func (p *Planner) SearchPlan(task ports.Task, deep bool) (*ports.ExecutionPlan, error) {
	tool := "web_search"
	params := map[string]any{"query": task.Description}
	title := "Web search"
	if deep {
		tool = "deep_research"
		params = map[string]any{"topic": task.Description}
		title = "Deep research"
	}

	plan := &ports.ExecutionPlan{
		ID:     id.NewPlanID(),
		TaskID: task.ID,
		Title:  title,
		Steps: []ports.ExecutionStep{{
			ID:          id.NewStepID(),
			Title:       title,
			Description: task.Description,
			ToolName:    tool,
			Params:      params,
			OnFailure:   ports.FailAbortPlan,
		}},
		Strategy:           "search",
		SuccessProbability: 0.9,
		RequiredTools:      []string{tool},
	}
	if err := p.ValidatePlan(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// llmStep is the JSON shape the LLM must emit per step.
type llmStep struct {
	ID               string         `json:"id"`
	Title            string         `json:"title"`
	Description      string         `json:"description"`
	Tool             string         `json:"tool"`
	Params           map[string]any `json:"params"`
	DependsOn        []string       `json:"depends_on"`
	OnFailure        string         `json:"on_failure"`
	EstimatedSeconds float64        `json:"estimated_seconds"`
}

func (p *Planner) refineWithLLM(ctx context.Context, task ports.Task, template Template, retrievedContext string) (*ports.ExecutionPlan, error) {
	resp, err := p.llm.Complete(ctx, ports.CompletionRequest{
		Messages: []ports.Message{
			{Role: "system", Content: p.systemPrompt()},
			{Role: "user", Content: p.userPrompt(task, template, retrievedContext)},
		},
		MaxTokens:   2048,
		Temperature: 0.2,
		JSONMode:    true,
	})
	if err != nil {
		return nil, err
	}

	steps, err := parseSteps(resp.Content)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("llm produced no steps")
	}

	plan := p.assemble(task, template, steps)
	if err := p.ValidatePlan(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// parseSteps decodes {"steps":[...]}, repairing malformed JSON first.
func parseSteps(content string) ([]llmStep, error) {
	content = stripCodeFence(content)

	var envelope struct {
		Steps []llmStep `json:"steps"`
	}
	if err := json.Unmarshal([]byte(content), &envelope); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(content)
		if repairErr != nil {
			return nil, fmt.Errorf("unparseable plan JSON: %w", err)
		}
		if err := json.Unmarshal([]byte(repaired), &envelope); err != nil {
			return nil, fmt.Errorf("plan JSON unusable after repair: %w", err)
		}
	}
	return envelope.Steps, nil
}

func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}

// assemble turns LLM steps into an ExecutionPlan, assigning ids where the
// model omitted them and remapping dependency references.
func (p *Planner) assemble(task ports.Task, template Template, steps []llmStep) *ports.ExecutionPlan {
	idMap := make(map[string]string, len(steps))
	for i := range steps {
		real := id.NewStepID()
		key := steps[i].ID
		if key == "" {
			key = fmt.Sprintf("step_%d", i+1)
		}
		idMap[key] = real
		steps[i].ID = real
	}

	plan := &ports.ExecutionPlan{
		ID:               id.NewPlanID(),
		TaskID:           task.ID,
		Title:            template.DisplayName + ": " + firstLine(task.Description),
		Strategy:         template.Name,
		EstimatedSeconds: float64(template.EstimatedSeconds),
		RequiredTools:    template.RequiredTools,
	}

	var totalEstimate float64
	for _, s := range steps {
		deps := make([]string, 0, len(s.DependsOn))
		for _, dep := range s.DependsOn {
			if mapped, ok := idMap[dep]; ok {
				deps = append(deps, mapped)
			} else {
				// Unknown references are kept so validation rejects the plan
				// instead of silently dropping an ordering constraint.
				deps = append(deps, dep)
			}
		}
		plan.Steps = append(plan.Steps, ports.ExecutionStep{
			ID:               s.ID,
			Title:            s.Title,
			Description:      s.Description,
			ToolName:         s.Tool,
			Params:           s.Params,
			DependsOn:        deps,
			EstimatedSeconds: s.EstimatedSeconds,
			OnFailure:        ports.FailurePolicy(s.OnFailure),
		})
		totalEstimate += s.EstimatedSeconds
	}
	if totalEstimate > 0 {
		plan.EstimatedSeconds = totalEstimate
	}
	scorePlan(plan, template)
	return plan
}

// instantiate expands a template into the deterministic fallback plan.
func (p *Planner) instantiate(task ports.Task, template Template) *ports.ExecutionPlan {
	plan := &ports.ExecutionPlan{
		ID:               id.NewPlanID(),
		TaskID:           task.ID,
		Title:            template.DisplayName + ": " + firstLine(task.Description),
		Strategy:         template.Name,
		EstimatedSeconds: float64(template.EstimatedSeconds),
		RequiredTools:    template.RequiredTools,
	}

	var prev string
	var first string
	for _, ts := range template.Steps {
		step := ports.ExecutionStep{
			ID:               id.NewStepID(),
			Title:            ts.Title,
			Description:      ts.Description,
			ToolName:         ts.Tool,
			Params:           substituteParams(ts.Params, task.Description),
			EstimatedSeconds: float64(ts.EstimatedSeconds),
			Complexity:       ts.Complexity,
		}
		if ts.DependsOnPrevious && prev != "" {
			step.DependsOn = []string{prev}
		} else if first != "" && prev != "" && !ts.DependsOnPrevious {
			step.DependsOn = []string{first}
		}
		if first == "" {
			first = step.ID
		}
		prev = step.ID
		plan.Steps = append(plan.Steps, step)
	}
	scorePlan(plan, template)
	return plan
}

func substituteParams(params map[string]any, description string) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		if s, ok := v.(string); ok {
			out[k] = strings.ReplaceAll(s, "{{description}}", description)
		} else {
			out[k] = v
		}
	}
	return out
}

// scorePlan fills the advisory scoring fields from the template complexity.
func scorePlan(plan *ports.ExecutionPlan, template Template) {
	switch template.Complexity {
	case ports.ComplexityLow:
		plan.ComplexityScore = 0.25
		plan.SuccessProbability = 0.9
	case ports.ComplexityHigh:
		plan.ComplexityScore = 0.8
		plan.SuccessProbability = 0.6
		plan.RiskFactors = []string{"high complexity strategy"}
	default:
		plan.ComplexityScore = 0.5
		plan.SuccessProbability = 0.75
	}
}

func (p *Planner) systemPrompt() string {
	var b strings.Builder
	b.WriteString("You are a planning engine. Reply with a single JSON object of the form ")
	b.WriteString(`{"steps":[{"id":"step_1","title":"...","description":"...","tool":"...","params":{},"depends_on":[],"on_failure":"abort_plan","estimated_seconds":60}]}`)
	b.WriteString(". Use only these tools with only their declared parameters:\n\n")
	for _, desc := range p.registry.List() {
		fmt.Fprintf(&b, "- %s: %s. Params:", desc.Name, desc.Description)
		for name, param := range desc.Params {
			required := ""
			if param.Required {
				required = ", required"
			}
			fmt.Fprintf(&b, " %s (%s%s)", name, param.Type, required)
		}
		b.WriteString("\n")
	}
	b.WriteString("\non_failure is one of abort_plan, skip_step, continue. depends_on lists step ids that must succeed first. No prose, no markdown.")
	return b.String()
}

func (p *Planner) userPrompt(task ports.Task, template Template, retrievedContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", task.Description)
	fmt.Fprintf(&b, "Strategy hint: %s (%s)\n", template.Name, template.Description)
	for key, value := range task.Constraints {
		fmt.Fprintf(&b, "Constraint %s: %s\n", key, value)
	}
	if retrievedContext != "" && retrievedContext != "no relevant context found" {
		fmt.Fprintf(&b, "Relevant prior context:\n%s\n", retrievedContext)
	}
	b.WriteString("Produce the plan.")
	return b.String()
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
