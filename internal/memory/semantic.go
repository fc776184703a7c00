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

// SemanticStore holds the long-lived knowledge tier: concepts (abstract
// ideas) and facts (concrete statements) in separate collections with
// separate capacities.
type SemanticStore struct {
	mu       sync.RWMutex
	concepts *vectorIndex
	facts    *vectorIndex

	conceptByID map[string]ports.Concept
	factByID    map[string]ports.Fact
}

func newSemanticStore(db *chromem.DB, conceptCapacity, factCapacity int, embed chromem.EmbeddingFunc) (*SemanticStore, error) {
	concepts, err := newVectorIndex(db, "concepts", conceptCapacity, embed)
	if err != nil {
		return nil, err
	}
	facts, err := newVectorIndex(db, "facts", factCapacity, embed)
	if err != nil {
		return nil, err
	}
	return &SemanticStore{
		concepts:    concepts,
		facts:       facts,
		conceptByID: make(map[string]ports.Concept),
		factByID:    make(map[string]ports.Fact),
	}, nil
}

// StoreConcept saves a concept.
func (s *SemanticStore) StoreConcept(ctx context.Context, concept ports.Concept) (string, error) {
	if concept.ID == "" {
		concept.ID = id.NewSessionID()
	}
	if concept.CreatedAt.IsZero() {
		concept.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.concepts.add(ctx, concept.ID, concept.Text, categoryMetadata(concept.Category)); err != nil {
		return "", err
	}
	s.conceptByID[concept.ID] = concept
	pruneMirror(s.conceptByID, s.concepts)
	return concept.ID, nil
}

// StoreFact saves a fact.
func (s *SemanticStore) StoreFact(ctx context.Context, fact ports.Fact) (string, error) {
	if fact.ID == "" {
		fact.ID = id.NewSessionID()
	}
	if fact.CreatedAt.IsZero() {
		fact.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.facts.add(ctx, fact.ID, fact.Text, categoryMetadata(fact.Category)); err != nil {
		return "", err
	}
	s.factByID[fact.ID] = fact
	pruneMirror(s.factByID, s.facts)
	return fact.ID, nil
}

// Search queries both collections and merges the hits by similarity. An empty
// category matches everything.
func (s *SemanticStore) Search(ctx context.Context, query, category string, topK int) ([]ports.RetrievedContext, error) {
	var where map[string]string
	if category != "" {
		where = map[string]string{"category": category}
	}

	conceptHits, err := s.concepts.query(ctx, query, topK, where)
	if err != nil {
		return nil, err
	}
	factHits, err := s.facts.query(ctx, query, topK, where)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	for _, h := range conceptHits {
		if c, ok := s.conceptByID[h.ID]; ok {
			c.AccessCount++
			s.conceptByID[h.ID] = c
		}
	}
	for _, h := range factHits {
		if f, ok := s.factByID[h.ID]; ok {
			f.AccessCount++
			s.factByID[h.ID] = f
		}
	}
	s.mu.Unlock()

	merged := make([]ports.RetrievedContext, 0, len(conceptHits)+len(factHits))
	for _, h := range conceptHits {
		merged = append(merged, ports.RetrievedContext{Source: ports.MemorySemantic, Text: h.Content, Similarity: float64(h.Similarity)})
	}
	for _, h := range factHits {
		merged = append(merged, ports.RetrievedContext{Source: ports.MemorySemantic, Text: h.Content, Similarity: float64(h.Similarity)})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Similarity > merged[j].Similarity })
	if len(merged) > topK && topK > 0 {
		merged = merged[:topK]
	}
	return merged, nil
}

// Concepts returns every stored concept.
func (s *SemanticStore) Concepts() []ports.Concept {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ports.Concept, 0, len(s.conceptByID))
	for _, c := range s.conceptByID {
		out = append(out, c)
	}
	return out
}

// Facts returns every stored fact.
func (s *SemanticStore) Facts() []ports.Fact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ports.Fact, 0, len(s.factByID))
	for _, f := range s.factByID {
		out = append(out, f)
	}
	return out
}

// Counts returns the live concept and fact counts.
func (s *SemanticStore) Counts() (concepts, facts int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conceptByID), len(s.factByID)
}

func categoryMetadata(category string) map[string]string {
	if category == "" {
		return nil
	}
	return map[string]string{"category": category}
}

func pruneMirror[T any](mirror map[string]T, index *vectorIndex) {
	if len(mirror) <= index.count() {
		return
	}
	index.mu.RLock()
	defer index.mu.RUnlock()
	for itemID := range mirror {
		if !index.present[itemID] {
			delete(mirror, itemID)
		}
	}
}
