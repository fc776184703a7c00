package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"otto/internal/ports"
	id "otto/internal/utils/id"
)

// EpisodicStore records completed conversation and task turns. Retrieval is
// kNN over title plus description; the full record lives in a mirror map so
// episodes can be listed, compressed, and exported.
type EpisodicStore struct {
	mu       sync.RWMutex
	index    *vectorIndex
	episodes map[string]ports.Episode
}

func newEpisodicStore(db *chromem.DB, capacity int, embed chromem.EmbeddingFunc) (*EpisodicStore, error) {
	index, err := newVectorIndex(db, "episodes", capacity, embed)
	if err != nil {
		return nil, err
	}
	return &EpisodicStore{index: index, episodes: make(map[string]ports.Episode)}, nil
}

// Store saves an episode. Missing ids and timestamps are filled in; the
// importance is clamped to 1-5.
func (s *EpisodicStore) Store(ctx context.Context, episode ports.Episode) (string, error) {
	if episode.ID == "" {
		episode.ID = id.NewSessionID()
	}
	if episode.Timestamp.IsZero() {
		episode.Timestamp = time.Now()
	}
	if episode.Importance < 1 {
		episode.Importance = 1
	}
	if episode.Importance > 5 {
		episode.Importance = 5
	}

	content := strings.TrimSpace(episode.Title + "\n" + episode.Description)
	metadata := map[string]string{
		"success":    fmt.Sprintf("%t", episode.Success),
		"importance": fmt.Sprintf("%d", episode.Importance),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.index.add(ctx, episode.ID, content, metadata); err != nil {
		return "", err
	}
	s.episodes[episode.ID] = episode
	pruneMirror(s.episodes, s.index)
	return episode.ID, nil
}

// Search returns the episodes most similar to the query.
func (s *EpisodicStore) Search(ctx context.Context, query string, topK int) ([]ports.Episode, []float64, error) {
	hits, err := s.index.query(ctx, query, topK, nil)
	if err != nil {
		return nil, nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var episodes []ports.Episode
	var similarities []float64
	for _, h := range hits {
		if episode, ok := s.episodes[h.ID]; ok {
			episodes = append(episodes, episode)
			similarities = append(similarities, float64(h.Similarity))
		}
	}
	return episodes, similarities, nil
}

// OlderThan returns uncompressed episodes with a timestamp before the cutoff,
// oldest first.
func (s *EpisodicStore) OlderThan(cutoff time.Time) []ports.Episode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ports.Episode
	for _, episode := range s.episodes {
		if !episode.Compressed && episode.Timestamp.Before(cutoff) {
			out = append(out, episode)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// Replace removes the given episodes and stores their compressed summary.
func (s *EpisodicStore) Replace(ctx context.Context, removed []string, summary ports.Episode) (string, error) {
	s.mu.Lock()
	if err := s.index.remove(ctx, removed...); err != nil {
		s.mu.Unlock()
		return "", err
	}
	for _, episodeID := range removed {
		delete(s.episodes, episodeID)
	}
	s.mu.Unlock()

	summary.Compressed = true
	return s.Store(ctx, summary)
}

// All returns every stored episode, newest first.
func (s *EpisodicStore) All() []ports.Episode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ports.Episode, 0, len(s.episodes))
	for _, episode := range s.episodes {
		out = append(out, episode)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// Count returns the number of live episodes.
func (s *EpisodicStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.episodes)
}
