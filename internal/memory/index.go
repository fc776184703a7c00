package memory

import (
	"context"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// hit is one ranked result from a vector index query.
type hit struct {
	ID         string
	Content    string
	Metadata   map[string]string
	Similarity float32
}

// vectorIndex wraps one chromem collection with a capacity bound. chromem
// handles embedding and persistence; the index keeps insertion order so the
// oldest entry is evicted when the tier is full.
type vectorIndex struct {
	mu       sync.RWMutex
	coll     *chromem.Collection
	capacity int
	order    []string
	present  map[string]bool
}

func newVectorIndex(db *chromem.DB, name string, capacity int, embed chromem.EmbeddingFunc) (*vectorIndex, error) {
	coll, err := db.GetOrCreateCollection(name, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("create collection %s: %w", name, err)
	}
	idx := &vectorIndex{
		coll:     coll,
		capacity: capacity,
		present:  make(map[string]bool),
	}
	return idx, nil
}

// add inserts a document, evicting the oldest entry when full. Re-adding an
// existing id replaces the document in place.
func (x *vectorIndex) add(ctx context.Context, id, content string, metadata map[string]string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if !x.present[id] && x.capacity > 0 && len(x.order) >= x.capacity {
		oldest := x.order[0]
		x.order = x.order[1:]
		delete(x.present, oldest)
		_ = x.coll.Delete(ctx, nil, nil, oldest)
	}

	if err := x.coll.AddDocument(ctx, chromem.Document{ID: id, Content: content, Metadata: metadata}); err != nil {
		return err
	}
	if !x.present[id] {
		x.present[id] = true
		x.order = append(x.order, id)
	}
	return nil
}

// query runs a kNN search. topK is clamped to the live document count.
func (x *vectorIndex) query(ctx context.Context, text string, topK int, where map[string]string) ([]hit, error) {
	x.mu.RLock()
	count := x.coll.Count()
	x.mu.RUnlock()
	if count == 0 || text == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = 5
	}
	if topK > count {
		topK = count
	}

	results, err := x.coll.Query(ctx, text, topK, where, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}
	hits := make([]hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, hit{ID: r.ID, Content: r.Content, Metadata: r.Metadata, Similarity: r.Similarity})
	}
	return hits, nil
}

// remove deletes documents by id.
func (x *vectorIndex) remove(ctx context.Context, ids ...string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, id := range ids {
		if !x.present[id] {
			continue
		}
		if err := x.coll.Delete(ctx, nil, nil, id); err != nil {
			return err
		}
		delete(x.present, id)
		for i, ordered := range x.order {
			if ordered == id {
				x.order = append(x.order[:i], x.order[i+1:]...)
				break
			}
		}
	}
	return nil
}

func (x *vectorIndex) count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.coll.Count()
}
