package ports

import "time"

// MemoryType selects which store(s) a retrieval touches.
type MemoryType string

const (
	MemoryAll        MemoryType = "all"
	MemoryWorking    MemoryType = "working"
	MemoryEpisodic   MemoryType = "episodic"
	MemorySemantic   MemoryType = "semantic"
	MemoryProcedural MemoryType = "procedural"
)

// WorkingItem is a short-lived key/value held for the current task.
type WorkingItem struct {
	Key       string    `json:"key"`
	TaskID    string    `json:"task_id"`
	Value     any       `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

// Episode is the full record of one completed conversation or task turn.
type Episode struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Context     map[string]string `json:"context,omitempty"`
	Actions     []string          `json:"actions,omitempty"`
	Outcomes    []string          `json:"outcomes,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Success     bool              `json:"success"`
	Importance  int               `json:"importance"` // 1-5
	Tags        []string          `json:"tags,omitempty"`
	Compressed  bool              `json:"compressed,omitempty"`
}

// Concept is a semantic memory item describing an abstract idea.
type Concept struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	Category    string    `json:"category,omitempty"`
	Source      string    `json:"source,omitempty"`
	Confidence  float64   `json:"confidence"` // 0-1
	CreatedAt   time.Time `json:"created_at"`
	AccessCount int       `json:"access_count"`
	Tags        []string  `json:"tags,omitempty"`
}

// Fact is a semantic memory item recording a concrete statement.
type Fact struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	Category    string    `json:"category,omitempty"`
	Source      string    `json:"source,omitempty"`
	Confidence  float64   `json:"confidence"` // 0-1
	CreatedAt   time.Time `json:"created_at"`
	AccessCount int       `json:"access_count"`
	Tags        []string  `json:"tags,omitempty"`
}

// Procedure is a learned (situation, tool sequence) strategy with an
// empirical success rate maintained as a running average.
type Procedure struct {
	ID           string    `json:"id"`
	Situation    string    `json:"situation"`
	ToolSequence []string  `json:"tool_sequence"`
	SuccessRate  float64   `json:"success_rate"`
	SampleCount  int       `json:"sample_count"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RetrievedContext is one ranked hit from a memory retrieval.
type RetrievedContext struct {
	Source     MemoryType `json:"source"`
	Text       string     `json:"text"`
	Similarity float64    `json:"similarity"`
}
