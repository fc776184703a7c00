package planner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otto/internal/llm"
	"otto/internal/ports"
	"otto/internal/toolregistry"
	"otto/internal/tools/builtin"
)

func newTestRegistry(t *testing.T) *toolregistry.Registry {
	t.Helper()
	reg := toolregistry.NewRegistry()
	require.NoError(t, builtin.RegisterAll(reg, builtin.Config{WorkDir: t.TempDir()}))
	return reg
}

func testTask(description string) ports.Task {
	return ports.Task{ID: "task-1", Description: description, Priority: 3, CreatedAt: time.Now()}
}

func TestSelectTemplateByKeywords(t *testing.T) {
	catalog := Catalog()

	cases := map[string]string{
		"crea una página web con html y css":          "web-development",
		"analyze this csv dataset and make a chart":   "data-analysis",
		"rename all files in the folder":              "file-processing",
		"install and configure the nginx service":     "administration",
		"research the latest battery technology":      "research",
		"automate the nightly backup with a script":   "automation",
		"do something entirely unrelated to keywords": "general",
	}
	for description, want := range cases {
		got := SelectTemplate(catalog, description)
		assert.Equal(t, want, got.Name, "description: %s", description)
	}
}

func TestTemplateFallbackWithoutLLM(t *testing.T) {
	p := New(nil, newTestRegistry(t), nil)

	plan, err := p.CreatePlan(context.Background(), testTask("research the history of Go"), "")
	require.NoError(t, err)
	assert.Equal(t, "research", plan.Strategy)
	require.NotEmpty(t, plan.Steps)
	require.NoError(t, plan.Validate())

	// The description is substituted into template params.
	assert.Equal(t, "research the history of Go", plan.Steps[0].Params["query"])
}

func TestCreatePlanRejectsEmptyDescription(t *testing.T) {
	p := New(nil, newTestRegistry(t), nil)
	_, err := p.CreatePlan(context.Background(), testTask("   "), "")
	require.Error(t, err)
}

func TestLLMRefinementParsed(t *testing.T) {
	mock := llm.NewMockClient(`{"steps":[
		{"id":"s1","title":"Search","tool":"web_search","params":{"query":"golang"},"estimated_seconds":30},
		{"id":"s2","title":"Save","tool":"file_write","params":{"path":"out.md","content":"x"},"depends_on":["s1"],"on_failure":"skip_step"}
	]}`)
	p := New(mock, newTestRegistry(t), nil)

	plan, err := p.CreatePlan(context.Background(), testTask("research golang and save notes"), "")
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, "web_search", plan.Steps[0].ToolName)
	require.Len(t, plan.Steps[1].DependsOn, 1)
	assert.Equal(t, plan.Steps[0].ID, plan.Steps[1].DependsOn[0])
	assert.Equal(t, ports.FailSkipStep, plan.Steps[1].OnFailure)
	assert.InDelta(t, 30.0, plan.EstimatedSeconds, 0.1)
}

func TestMalformedLLMJSONIsRepaired(t *testing.T) {
	// Trailing comma and unquoted key; jsonrepair fixes both.
	mock := llm.NewMockClient(`{"steps":[{"id":"s1","title":"Search","tool":"web_search","params":{"query":"golang"},},]}`)
	p := New(mock, newTestRegistry(t), nil)

	plan, err := p.CreatePlan(context.Background(), testTask("research golang news"), "")
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "web_search", plan.Steps[0].ToolName)
}

func TestUnusableLLMOutputFallsBackToTemplate(t *testing.T) {
	mock := llm.NewMockClient("I cannot produce a plan right now, sorry.")
	p := New(mock, newTestRegistry(t), nil)

	plan, err := p.CreatePlan(context.Background(), testTask("research quantum computing"), "")
	require.NoError(t, err)
	assert.Equal(t, "research", plan.Strategy)
	require.NoError(t, plan.Validate())
}

func TestLLMPlanWithUnknownToolFallsBack(t *testing.T) {
	mock := llm.NewMockClient(`{"steps":[{"id":"s1","title":"X","tool":"teleport","params":{}}]}`)
	p := New(mock, newTestRegistry(t), nil)

	plan, err := p.CreatePlan(context.Background(), testTask("research something niche"), "")
	require.NoError(t, err)
	// Fallback plan only uses registered tools.
	for _, step := range plan.Steps {
		_, descErr := newTestRegistry(t).Describe(step.ToolName)
		assert.NoError(t, descErr)
	}
}

func TestValidatePlanRejectsUnknownParam(t *testing.T) {
	p := New(nil, newTestRegistry(t), nil)
	plan := &ports.ExecutionPlan{
		ID:     "plan-1",
		TaskID: "task-1",
		Steps: []ports.ExecutionStep{
			{ID: "s1", Title: "Search", ToolName: "web_search", Params: map[string]any{"qry": "typo"}},
		},
	}
	err := p.ValidatePlan(plan)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown parameter")
}

func TestValidatePlanRejectsCycle(t *testing.T) {
	p := New(nil, newTestRegistry(t), nil)
	plan := &ports.ExecutionPlan{
		ID:     "plan-1",
		TaskID: "task-1",
		Steps: []ports.ExecutionStep{
			{ID: "s1", Title: "A", ToolName: "web_search", DependsOn: []string{"s2"}},
			{ID: "s2", Title: "B", ToolName: "web_search", DependsOn: []string{"s1"}},
		},
	}
	err := p.ValidatePlan(plan)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestSearchPlanShapes(t *testing.T) {
	p := New(nil, newTestRegistry(t), nil)

	web, err := p.SearchPlan(testTask("latest go release"), false)
	require.NoError(t, err)
	require.Len(t, web.Steps, 1)
	assert.Equal(t, "web_search", web.Steps[0].ToolName)

	deep, err := p.SearchPlan(testTask("state of RISC-V adoption"), true)
	require.NoError(t, err)
	require.Len(t, deep.Steps, 1)
	assert.Equal(t, "deep_research", deep.Steps[0].ToolName)
	assert.Equal(t, "state of RISC-V adoption", deep.Steps[0].Params["topic"])
}
