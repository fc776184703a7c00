package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"otto/internal/ports"
	id "otto/internal/utils/id"
)

// ProceduralStore learns (situation, tool sequence) strategies. The success
// rate is a running average over every recorded outcome; retrieval weighs
// similarity by that rate so strategies that keep failing stop surfacing.
type ProceduralStore struct {
	mu         sync.RWMutex
	index      *vectorIndex
	procedures map[string]ports.Procedure
}

func newProceduralStore(db *chromem.DB, capacity int, embed chromem.EmbeddingFunc) (*ProceduralStore, error) {
	index, err := newVectorIndex(db, "procedures", capacity, embed)
	if err != nil {
		return nil, err
	}
	return &ProceduralStore{index: index, procedures: make(map[string]ports.Procedure)}, nil
}

// Record folds one outcome into the procedure for the situation, creating it
// on first sight.
func (s *ProceduralStore) Record(ctx context.Context, situation string, toolSequence []string, success bool) (ports.Procedure, error) {
	outcome := 0.0
	if success {
		outcome = 1.0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	proc, exists := s.findBySituation(situation)
	if !exists {
		proc = ports.Procedure{
			ID:           id.NewSessionID(),
			Situation:    situation,
			ToolSequence: append([]string(nil), toolSequence...),
		}
		if err := s.index.add(ctx, proc.ID, situation, nil); err != nil {
			return ports.Procedure{}, err
		}
	}

	proc.SuccessRate = (proc.SuccessRate*float64(proc.SampleCount) + outcome) / float64(proc.SampleCount+1)
	proc.SampleCount++
	proc.UpdatedAt = time.Now()
	if success && len(toolSequence) > 0 {
		// The latest successful sequence becomes the recommendation.
		proc.ToolSequence = append([]string(nil), toolSequence...)
	}
	s.procedures[proc.ID] = proc
	pruneMirror(s.procedures, s.index)
	return proc, nil
}

// Search returns procedures for similar situations, ranked by similarity
// weighted with the empirical success rate.
func (s *ProceduralStore) Search(ctx context.Context, situation string, topK int) ([]ports.Procedure, []float64, error) {
	hits, err := s.index.query(ctx, situation, topK, nil)
	if err != nil {
		return nil, nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		proc  ports.Procedure
		score float64
	}
	var ranked []scored
	for _, h := range hits {
		proc, ok := s.procedures[h.ID]
		if !ok {
			continue
		}
		// Unproven procedures get a neutral prior.
		rate := proc.SuccessRate
		if proc.SampleCount == 0 {
			rate = 0.5
		}
		ranked = append(ranked, scored{proc: proc, score: float64(h.Similarity) * rate})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	procs := make([]ports.Procedure, len(ranked))
	scores := make([]float64, len(ranked))
	for i, r := range ranked {
		procs[i] = r.proc
		scores[i] = r.score
	}
	return procs, scores, nil
}

// All returns every stored procedure.
func (s *ProceduralStore) All() []ports.Procedure {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ports.Procedure, 0, len(s.procedures))
	for _, p := range s.procedures {
		out = append(out, p)
	}
	return out
}

// Count returns the number of learned procedures.
func (s *ProceduralStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.procedures)
}

// findBySituation runs under the write lock.
func (s *ProceduralStore) findBySituation(situation string) (ports.Procedure, bool) {
	for _, p := range s.procedures {
		if p.Situation == situation {
			return p, true
		}
	}
	return ports.Procedure{}, false
}
