package memory

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otto/internal/config"
	"otto/internal/ports"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(config.MemoryConfig{
		WorkingCapacity:    10,
		EpisodicCapacity:   50,
		ConceptCapacity:    50,
		FactCapacity:       50,
		ProceduralCapacity: 50,
	}, "", NewLocalEmbedder(), nil)
	require.NoError(t, err)
	return m
}

func TestWorkingMemoryScopedByTask(t *testing.T) {
	m := newTestManager(t)

	m.Working.Set("task-1", "url", "https://example.com")
	m.Working.Set("task-2", "url", "https://other.example")

	v, ok := m.Working.Get("task-1", "url")
	require.True(t, ok)
	assert.Equal(t, "https://example.com", v)

	m.Working.ClearTask("task-1")
	_, ok = m.Working.Get("task-1", "url")
	assert.False(t, ok)
	_, ok = m.Working.Get("task-2", "url")
	assert.True(t, ok)
}

func TestWorkingMemoryEvictsAtCapacity(t *testing.T) {
	w, err := NewWorkingMemory(3)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		w.Set("task-1", string(rune('a'+i)), i)
	}
	assert.Equal(t, 3, w.Len())
}

func TestEpisodeStoreAndSearch(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	episodeID, err := m.StoreEpisode(ctx, ports.Episode{
		Title:       "Configured nginx reverse proxy",
		Description: "Set up nginx as a reverse proxy for the api service",
		Success:     true,
		Importance:  4,
		Tags:        []string{"web", "nginx"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, episodeID)

	episodes, similarities, err := m.Episodes.Search(ctx, "nginx reverse proxy setup", 5)
	require.NoError(t, err)
	require.NotEmpty(t, episodes)
	assert.Equal(t, "Configured nginx reverse proxy", episodes[0].Title)
	assert.Greater(t, similarities[0], 0.0)
}

func TestRetrieveRelevantContextSentinel(t *testing.T) {
	m := newTestManager(t)

	out, err := m.RetrieveRelevantContext(context.Background(), "anything at all", ports.MemoryAll, 5)
	require.NoError(t, err)
	assert.Equal(t, NoRelevantContext, out)
}

func TestRetrieveRelevantContextFindsEpisode(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.StoreEpisode(ctx, ports.Episode{
		Title:       "Analyzed quarterly sales data",
		Description: "Analyzed quarterly sales data with pandas and produced a report",
		Success:     true,
		Importance:  3,
	})
	require.NoError(t, err)

	out, err := m.RetrieveRelevantContext(ctx, "Analyzed quarterly sales data", ports.MemoryEpisodic, 5)
	require.NoError(t, err)
	assert.NotEqual(t, NoRelevantContext, out)
	assert.Contains(t, out, "quarterly sales")
}

func TestSemanticSearchMergesConceptsAndFacts(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.Semantic.StoreConcept(ctx, ports.Concept{Text: "idempotent operations can be retried safely", Category: "engineering"})
	require.NoError(t, err)
	_, err = m.Semantic.StoreFact(ctx, ports.Fact{Text: "retried operations must be idempotent", Category: "engineering"})
	require.NoError(t, err)

	hits, err := m.Semantic.Search(ctx, "idempotent operations retried", "engineering", 5)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
	// Sorted best first.
	assert.GreaterOrEqual(t, hits[0].Similarity, hits[1].Similarity)
}

func TestProceduralRunningAverage(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	seq := []string{"web_search", "file_write"}
	proc, err := m.Procedures.Record(ctx, "research topic and save notes", seq, true)
	require.NoError(t, err)
	assert.Equal(t, 1.0, proc.SuccessRate)
	assert.Equal(t, 1, proc.SampleCount)

	proc, err = m.Procedures.Record(ctx, "research topic and save notes", seq, false)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, proc.SuccessRate, 1e-9)
	assert.Equal(t, 2, proc.SampleCount)

	procs, _, err := m.Procedures.Search(ctx, "research topic and save notes", 5)
	require.NoError(t, err)
	require.Len(t, procs, 1)
	assert.Equal(t, seq, procs[0].ToolSequence)
}

func TestCompressOldMemoryClustersByTag(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	old := time.Now().AddDate(0, 0, -60)

	for i := 0; i < 4; i++ {
		_, err := m.Episodes.Store(ctx, ports.Episode{
			Title:       "Deployment run",
			Description: "Deployed the service",
			Timestamp:   old,
			Success:     true,
			Importance:  2 + i%2,
			Tags:        []string{"deploy"},
		})
		require.NoError(t, err)
	}
	// Recent episode stays untouched.
	_, err := m.Episodes.Store(ctx, ports.Episode{Title: "Fresh", Description: "Recent work", Success: true, Importance: 1})
	require.NoError(t, err)

	report, err := m.CompressOldMemory(ctx, 30, 1.0)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Examined)
	assert.Equal(t, 4, report.Compressed)

	all := m.Episodes.All()
	var summaries int
	for _, episode := range all {
		if episode.Compressed {
			summaries++
			assert.Equal(t, 3, episode.Importance) // cluster max
			assert.Contains(t, episode.Tags, "deploy")
		}
	}
	assert.Equal(t, 1, summaries)
	assert.Len(t, all, 2)
}

func TestExportImportRoundTrip(t *testing.T) {
	src := newTestManager(t)
	ctx := context.Background()

	_, err := src.StoreEpisode(ctx, ports.Episode{Title: "T", Description: "D", Success: true, Importance: 2})
	require.NoError(t, err)
	_, err = src.Semantic.StoreFact(ctx, ports.Fact{Text: "the sky is blue"})
	require.NoError(t, err)
	_, err = src.Procedures.Record(ctx, "check the weather", []string{"web_search"}, true)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, src.Export(&buf))

	dst := newTestManager(t)
	require.NoError(t, dst.Import(ctx, &buf))

	stats := dst.Stats()
	assert.Equal(t, 1, stats["episodic"])
	assert.Equal(t, 1, stats["facts"])
	assert.Equal(t, 1, stats["procedural"])
}

func TestEpisodicCapacityEvictsOldest(t *testing.T) {
	m, err := NewManager(config.MemoryConfig{
		WorkingCapacity: 10, EpisodicCapacity: 3, ConceptCapacity: 10, FactCapacity: 10, ProceduralCapacity: 10,
	}, "", NewLocalEmbedder(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := m.Episodes.Store(ctx, ports.Episode{Title: "E", Description: "episode"})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, m.Episodes.Count())
}
