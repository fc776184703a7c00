package orchestrator

import (
	"fmt"
	"sort"

	"otto/internal/ports"
)

const maxRecommendations = 5

// Recommendation suggests an approach derived from procedural memory or the
// terminal-result history.
type Recommendation struct {
	Situation    string   `json:"situation,omitempty"`
	ToolSequence []string `json:"tool_sequence,omitempty"`
	SuccessRate  float64  `json:"success_rate"`
	Source       string   `json:"source"` // "procedural" or "history"
	Suggestion   string   `json:"suggestion"`
}

// GetRecommendations derives suggestions from learned procedures and from
// historical success rates per mode. Best strategies first.
func (o *Orchestrator) GetRecommendations() []Recommendation {
	var recs []Recommendation

	procedures := o.memory.Procedures.All()
	sort.Slice(procedures, func(i, j int) bool {
		return procedures[i].SuccessRate > procedures[j].SuccessRate
	})
	for _, proc := range procedures {
		if proc.SampleCount == 0 {
			continue
		}
		recs = append(recs, Recommendation{
			Situation:    proc.Situation,
			ToolSequence: proc.ToolSequence,
			SuccessRate:  proc.SuccessRate,
			Source:       "procedural",
			Suggestion: fmt.Sprintf("For tasks like %q the sequence %v succeeded %.0f%% of the time (%d samples)",
				proc.Situation, proc.ToolSequence, proc.SuccessRate*100, proc.SampleCount),
		})
		if len(recs) >= maxRecommendations {
			return recs
		}
	}

	// Flag modes that keep failing so the caller can adjust phrasing or tools.
	type tally struct{ total, succeeded int }
	byMode := make(map[ports.OrchestrationMode]*tally)
	for _, result := range o.History() {
		t := byMode[result.Mode]
		if t == nil {
			t = &tally{}
			byMode[result.Mode] = t
		}
		t.total++
		if result.Status == ports.PlanSuccess {
			t.succeeded++
		}
	}
	for mode, t := range byMode {
		if t.total < 3 {
			continue
		}
		rate := float64(t.succeeded) / float64(t.total)
		if rate >= 0.5 {
			continue
		}
		recs = append(recs, Recommendation{
			SuccessRate: rate,
			Source:      "history",
			Suggestion: fmt.Sprintf("Only %.0f%% of recent %s tasks succeeded; consider splitting them into smaller steps",
				rate*100, mode),
		})
		if len(recs) >= maxRecommendations {
			break
		}
	}
	return recs
}
