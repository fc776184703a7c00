package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"otto/internal/ports"
)

const (
	compressEncoding    = "cl100k_base"
	summaryTokenBudget  = 400
	minClusterSize      = 2
	defaultRetainedDays = 30
)

// CompressionReport summarizes one compression pass.
type CompressionReport struct {
	Examined   int `json:"examined"`
	Clusters   int `json:"clusters"`
	Compressed int `json:"compressed"`
	Remaining  int `json:"remaining"`
}

// CompressOldMemory folds episodes older than thresholdDays into compressed
// summaries. Episodes are clustered by shared tags; each cluster of at least
// two collapses into one representative whose importance is the cluster
// maximum and whose tags are the union. ratio caps how much of the old set
// may be compressed in one pass (0 < ratio <= 1).
func (m *Manager) CompressOldMemory(ctx context.Context, thresholdDays int, ratio float64) (CompressionReport, error) {
	if thresholdDays <= 0 {
		thresholdDays = defaultRetainedDays
	}
	if ratio <= 0 || ratio > 1 {
		ratio = 0.5
	}

	cutoff := time.Now().AddDate(0, 0, -thresholdDays)
	old := m.Episodes.OlderThan(cutoff)
	report := CompressionReport{Examined: len(old)}
	if len(old) < minClusterSize {
		report.Remaining = len(old)
		return report, nil
	}

	budget := int(float64(len(old)) * ratio)
	clusters := clusterByTag(old)
	report.Clusters = len(clusters)

	for _, cluster := range clusters {
		if len(cluster.episodes) < minClusterSize || report.Compressed+len(cluster.episodes) > budget {
			continue
		}
		summary, err := m.summarizeCluster(ctx, cluster)
		if err != nil {
			m.logger.Warn("Compression summary failed for tag %q: %v", cluster.tag, err)
			continue
		}

		ids := make([]string, len(cluster.episodes))
		for i, episode := range cluster.episodes {
			ids[i] = episode.ID
		}
		if _, err := m.Episodes.Replace(ctx, ids, summary); err != nil {
			return report, err
		}
		report.Compressed += len(cluster.episodes)
	}

	report.Remaining = report.Examined - report.Compressed
	m.logger.Info("Compressed %d of %d old episodes into %d summaries", report.Compressed, report.Examined, report.Clusters)
	return report, nil
}

type tagCluster struct {
	tag      string
	episodes []ports.Episode
}

// clusterByTag groups episodes by their most common tag. Untagged episodes
// fall into one shared bucket.
func clusterByTag(episodes []ports.Episode) []tagCluster {
	byTag := make(map[string][]ports.Episode)

	// Count tag frequency so episodes join their strongest cluster.
	frequency := make(map[string]int)
	for _, episode := range episodes {
		for _, tag := range episode.Tags {
			frequency[tag]++
		}
	}

	for _, episode := range episodes {
		best := ""
		for _, tag := range episode.Tags {
			if best == "" || frequency[tag] > frequency[best] {
				best = tag
			}
		}
		if best == "" {
			best = "untagged"
		}
		byTag[best] = append(byTag[best], episode)
	}

	tags := make([]string, 0, len(byTag))
	for tag := range byTag {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	clusters := make([]tagCluster, 0, len(tags))
	for _, tag := range tags {
		clusters = append(clusters, tagCluster{tag: tag, episodes: byTag[tag]})
	}
	return clusters
}

// summarizeCluster produces the compressed representative episode. With an
// LLM available the description is a generated summary; otherwise it is the
// concatenated titles. Either way the text is trimmed to the token budget.
func (m *Manager) summarizeCluster(ctx context.Context, cluster tagCluster) (ports.Episode, error) {
	importance := 1
	success := true
	tagSet := make(map[string]bool)
	var titles []string
	var lines []string
	oldest := cluster.episodes[0].Timestamp

	for _, episode := range cluster.episodes {
		if episode.Importance > importance {
			importance = episode.Importance
		}
		if !episode.Success {
			success = false
		}
		for _, tag := range episode.Tags {
			tagSet[tag] = true
		}
		if episode.Timestamp.Before(oldest) {
			oldest = episode.Timestamp
		}
		titles = append(titles, episode.Title)
		lines = append(lines, fmt.Sprintf("- %s: %s", episode.Title, episode.Description))
	}

	tags := make([]string, 0, len(tagSet))
	for tag := range tagSet {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	description := strings.Join(titles, "; ")
	if m.llm != nil {
		resp, err := m.llm.Complete(ctx, ports.CompletionRequest{
			Messages: []ports.Message{
				{Role: "system", Content: "Summarize these related past episodes into two or three sentences preserving outcomes."},
				{Role: "user", Content: strings.Join(lines, "\n")},
			},
			MaxTokens:   summaryTokenBudget,
			Temperature: 0.2,
		})
		if err == nil && strings.TrimSpace(resp.Content) != "" {
			description = strings.TrimSpace(resp.Content)
		}
	}

	return ports.Episode{
		Title:       fmt.Sprintf("Summary of %d episodes (%s)", len(cluster.episodes), cluster.tag),
		Description: truncateToTokens(description, summaryTokenBudget),
		Timestamp:   oldest,
		Success:     success,
		Importance:  importance,
		Tags:        tags,
	}, nil
}

// truncateToTokens bounds text to maxTokens using the tokenizer; if the
// encoding is unavailable it falls back to a character estimate.
func truncateToTokens(text string, maxTokens int) string {
	enc, err := tiktoken.GetEncoding(compressEncoding)
	if err != nil {
		if len(text) > maxTokens*4 {
			return text[:maxTokens*4]
		}
		return text
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return enc.Decode(tokens[:maxTokens])
}
