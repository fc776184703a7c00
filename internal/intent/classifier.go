package intent

import "strings"

// Mode is the execution path selected for a message.
type Mode string

const (
	// ModeChat answers directly without tools.
	ModeChat Mode = "chat"
	// ModeTask runs the full orchestration path.
	ModeTask Mode = "task"
)

// SearchMode is the typed replacement for the literal message tags; no tag
// string propagates past classification.
type SearchMode string

const (
	SearchNone SearchMode = "none"
	SearchWeb  SearchMode = "web"
	SearchDeep SearchMode = "deep"
)

const (
	webSearchTag    = "[WebSearch]"
	deepResearchTag = "[DeepResearch]"

	// Messages longer than this are assumed to need tools regardless of lexicon.
	longMessageWords = 15
	// Casual matches only count when the message stays this short.
	casualMaxWords = 10
	// Simple definitions only stay on the chat path when very short.
	definitionMaxWords = 8
)

// Classification is the typed outcome of classifying one message.
type Classification struct {
	Mode       Mode
	SearchMode SearchMode
	// CleanMessage is the message with any search tag stripped.
	CleanMessage string
}

// Classifier decides the path for an incoming message. Classification is
// deterministic and synchronous; no LLM call is made.
type Classifier struct {
	lists WordLists
}

// NewClassifier builds a classifier over the given lexicon.
func NewClassifier(lists WordLists) *Classifier {
	return &Classifier{lists: lists}
}

// Classify inspects the message and picks chat vs task vs forced search.
func (c *Classifier) Classify(message string) Classification {
	message = strings.TrimSpace(message)

	// Literal leading tags force the corresponding tool.
	if rest, ok := stripTag(message, webSearchTag); ok {
		return Classification{Mode: ModeTask, SearchMode: SearchWeb, CleanMessage: rest}
	}
	if rest, ok := stripTag(message, deepResearchTag); ok {
		return Classification{Mode: ModeTask, SearchMode: SearchDeep, CleanMessage: rest}
	}

	lower := strings.ToLower(message)
	words := len(strings.Fields(message))
	sentences := countSentences(message)

	// An exact casual phrase is always chat, before any heuristic.
	if matchesExactly(lower, c.lists.Casual) {
		return Classification{Mode: ModeChat, SearchMode: SearchNone, CleanMessage: message}
	}

	// Research or report requests always orchestrate.
	if containsAny(lower, c.lists.Research) {
		return Classification{Mode: ModeTask, SearchMode: SearchNone, CleanMessage: message}
	}

	// Explicit complexity markers.
	if containsAny(lower, c.lists.Complexity) {
		return Classification{Mode: ModeTask, SearchMode: SearchNone, CleanMessage: message}
	}

	// Action verbs and command patterns that need tools.
	if containsAny(lower, c.lists.ToolIndicating) {
		return Classification{Mode: ModeTask, SearchMode: SearchNone, CleanMessage: message}
	}

	// Long or multi-sentence messages likely need tools.
	if words > longMessageWords || sentences > 1 {
		return Classification{Mode: ModeTask, SearchMode: SearchNone, CleanMessage: message}
	}

	// Clearly casual and short goes to chat.
	if containsAny(lower, c.lists.Casual) && words <= casualMaxWords {
		return Classification{Mode: ModeChat, SearchMode: SearchNone, CleanMessage: message}
	}

	// Very short definition questions stay on the chat path.
	if containsAny(lower, c.lists.SimpleDefinition) && words <= definitionMaxWords {
		return Classification{Mode: ModeChat, SearchMode: SearchNone, CleanMessage: message}
	}

	// Default: chat.
	return Classification{Mode: ModeChat, SearchMode: SearchNone, CleanMessage: message}
}

func stripTag(message, tag string) (string, bool) {
	if !strings.HasPrefix(message, tag) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(message, tag)), true
}

func matchesExactly(lower string, patterns []string) bool {
	trimmed := strings.Trim(lower, " !?¡¿.,")
	for _, pattern := range patterns {
		if trimmed == pattern {
			return true
		}
	}
	return false
}

func containsAny(lower string, patterns []string) bool {
	for _, pattern := range patterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

func countSentences(message string) int {
	count := 0
	for _, part := range strings.Split(message, ".") {
		if strings.TrimSpace(part) != "" {
			count++
		}
	}
	return count
}
