package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"otto/internal/ports"
)

// Snapshot is the portable JSON form of the durable memory tiers. Working
// memory is task-scoped and deliberately excluded.
type Snapshot struct {
	Version    int               `json:"version"`
	Episodes   []ports.Episode   `json:"episodes"`
	Concepts   []ports.Concept   `json:"concepts"`
	Facts      []ports.Fact      `json:"facts"`
	Procedures []ports.Procedure `json:"procedures"`
}

const snapshotVersion = 1

// Export writes every durable memory as JSON.
func (m *Manager) Export(w io.Writer) error {
	snapshot := Snapshot{
		Version:    snapshotVersion,
		Episodes:   m.Episodes.All(),
		Concepts:   m.Semantic.Concepts(),
		Facts:      m.Semantic.Facts(),
		Procedures: m.Procedures.All(),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snapshot)
}

// Import merges a snapshot into the live stores. Existing ids are replaced;
// procedures merge by situation through the normal recording path so running
// averages stay consistent.
func (m *Manager) Import(ctx context.Context, r io.Reader) error {
	var snapshot Snapshot
	if err := json.NewDecoder(r).Decode(&snapshot); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	if snapshot.Version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", snapshot.Version)
	}

	for _, episode := range snapshot.Episodes {
		if _, err := m.Episodes.Store(ctx, episode); err != nil {
			return fmt.Errorf("import episode %s: %w", episode.ID, err)
		}
	}
	for _, concept := range snapshot.Concepts {
		if _, err := m.Semantic.StoreConcept(ctx, concept); err != nil {
			return fmt.Errorf("import concept %s: %w", concept.ID, err)
		}
	}
	for _, fact := range snapshot.Facts {
		if _, err := m.Semantic.StoreFact(ctx, fact); err != nil {
			return fmt.Errorf("import fact %s: %w", fact.ID, err)
		}
	}
	for _, proc := range snapshot.Procedures {
		if err := m.importProcedure(ctx, proc); err != nil {
			return fmt.Errorf("import procedure %s: %w", proc.ID, err)
		}
	}

	m.logger.Info("Imported %d episodes, %d concepts, %d facts, %d procedures",
		len(snapshot.Episodes), len(snapshot.Concepts), len(snapshot.Facts), len(snapshot.Procedures))
	return nil
}

func (m *Manager) importProcedure(ctx context.Context, proc ports.Procedure) error {
	s := m.Procedures
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.findBySituation(proc.Situation); ok {
		// Merge running averages by sample weight.
		total := existing.SampleCount + proc.SampleCount
		if total > 0 {
			existing.SuccessRate = (existing.SuccessRate*float64(existing.SampleCount) +
				proc.SuccessRate*float64(proc.SampleCount)) / float64(total)
		}
		existing.SampleCount = total
		if proc.UpdatedAt.After(existing.UpdatedAt) {
			existing.UpdatedAt = proc.UpdatedAt
			existing.ToolSequence = append([]string(nil), proc.ToolSequence...)
		}
		s.procedures[existing.ID] = existing
		return nil
	}

	if proc.ID == "" {
		return fmt.Errorf("procedure has no id")
	}
	if err := s.index.add(ctx, proc.ID, proc.Situation, nil); err != nil {
		return err
	}
	s.procedures[proc.ID] = proc
	return nil
}
