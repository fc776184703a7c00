package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	chromem "github.com/philippgille/chromem-go"

	"otto/internal/config"
	"otto/internal/logging"
	"otto/internal/ports"
)

// NoRelevantContext is the sentinel returned when retrieval finds nothing
// above the similarity floor. Callers must not feed it back into prompts as
// if it were real context.
const NoRelevantContext = "no relevant context found"

const minSimilarity = 0.3

// Manager fronts the four memory tiers. One embedder is fixed at creation
// and shared by every vector-backed tier; a store never mixes dimensions.
type Manager struct {
	Working    *WorkingMemory
	Episodes   *EpisodicStore
	Semantic   *SemanticStore
	Procedures *ProceduralStore

	db       *chromem.DB
	embedder ports.Embedder
	llm      ports.LLMClient
	logger   logging.Logger
}

// NewManager builds the tiered memory. An empty storage path keeps everything
// in process memory; llm is optional and only used to summarize during
// compression.
func NewManager(cfg config.MemoryConfig, storagePath string, embedder ports.Embedder, llm ports.LLMClient) (*Manager, error) {
	if embedder == nil {
		embedder = NewLocalEmbedder()
	}

	var db *chromem.DB
	var err error
	if storagePath != "" {
		expanded, pathErr := expandHome(storagePath)
		if pathErr != nil {
			return nil, pathErr
		}
		if err := os.MkdirAll(expanded, 0o755); err != nil {
			return nil, fmt.Errorf("create memory dir: %w", err)
		}
		db, err = chromem.NewPersistentDB(filepath.Join(expanded, "chromem.gob"), false)
		if err != nil {
			return nil, fmt.Errorf("open persistent memory: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	embed := chromem.EmbeddingFunc(embedder.Embed)

	working, err := NewWorkingMemory(cfg.WorkingCapacity)
	if err != nil {
		return nil, err
	}
	episodes, err := newEpisodicStore(db, cfg.EpisodicCapacity, embed)
	if err != nil {
		return nil, err
	}
	semantic, err := newSemanticStore(db, cfg.ConceptCapacity, cfg.FactCapacity, embed)
	if err != nil {
		return nil, err
	}
	procedures, err := newProceduralStore(db, cfg.ProceduralCapacity, embed)
	if err != nil {
		return nil, err
	}

	return &Manager{
		Working:    working,
		Episodes:   episodes,
		Semantic:   semantic,
		Procedures: procedures,
		db:         db,
		embedder:   embedder,
		llm:        llm,
		logger:     logging.NewComponentLogger("Memory"),
	}, nil
}

// RetrieveRelevantContext gathers the best prior memory for the query across
// the requested tier(s) and renders it as prompt-ready text. Returns the
// NoRelevantContext sentinel when nothing clears the similarity floor.
func (m *Manager) RetrieveRelevantContext(ctx context.Context, query string, memType ports.MemoryType, max int) (string, error) {
	if max <= 0 {
		max = 5
	}

	var gathered []ports.RetrievedContext

	if memType == ports.MemoryAll || memType == ports.MemoryEpisodic {
		episodes, similarities, err := m.Episodes.Search(ctx, query, max)
		if err != nil {
			return "", err
		}
		for i, episode := range episodes {
			if similarities[i] < minSimilarity {
				continue
			}
			gathered = append(gathered, ports.RetrievedContext{
				Source:     ports.MemoryEpisodic,
				Text:       fmt.Sprintf("%s: %s", episode.Title, episode.Description),
				Similarity: similarities[i],
			})
		}
	}

	if memType == ports.MemoryAll || memType == ports.MemorySemantic {
		hits, err := m.Semantic.Search(ctx, query, "", max)
		if err != nil {
			return "", err
		}
		for _, h := range hits {
			if h.Similarity >= minSimilarity {
				gathered = append(gathered, h)
			}
		}
	}

	if memType == ports.MemoryAll || memType == ports.MemoryProcedural {
		procs, scores, err := m.Procedures.Search(ctx, query, max)
		if err != nil {
			return "", err
		}
		for i, proc := range procs {
			if scores[i] < minSimilarity {
				continue
			}
			gathered = append(gathered, ports.RetrievedContext{
				Source: ports.MemoryProcedural,
				Text: fmt.Sprintf("For %q the sequence [%s] succeeded %.0f%% of the time (%d samples)",
					proc.Situation, strings.Join(proc.ToolSequence, ", "), proc.SuccessRate*100, proc.SampleCount),
				Similarity: scores[i],
			})
		}
	}

	if len(gathered) == 0 {
		return NoRelevantContext, nil
	}

	sort.Slice(gathered, func(i, j int) bool { return gathered[i].Similarity > gathered[j].Similarity })
	if len(gathered) > max {
		gathered = gathered[:max]
	}

	var b strings.Builder
	for _, item := range gathered {
		fmt.Fprintf(&b, "[%s] %s\n", item.Source, item.Text)
	}
	return strings.TrimSpace(b.String()), nil
}

// StoreEpisode saves a completed turn into the episodic tier.
func (m *Manager) StoreEpisode(ctx context.Context, episode ports.Episode) (string, error) {
	episodeID, err := m.Episodes.Store(ctx, episode)
	if err != nil {
		return "", err
	}
	m.logger.Debug("Stored episode %s (importance=%d, success=%t)", episodeID, episode.Importance, episode.Success)
	return episodeID, nil
}

// Stats reports live item counts per tier.
func (m *Manager) Stats() map[string]int {
	concepts, facts := m.Semantic.Counts()
	return map[string]int{
		"working":    m.Working.Len(),
		"episodic":   m.Episodes.Count(),
		"concepts":   concepts,
		"facts":      facts,
		"procedural": m.Procedures.Count(),
	}
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
