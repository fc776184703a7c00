package intent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyCasualGreetingsGoToChat(t *testing.T) {
	c := NewClassifier(DefaultWordLists())

	for _, message := range []string{"hola", "Hi", "gracias!", "ok", "who are you?"} {
		got := c.Classify(message)
		assert.Equal(t, ModeChat, got.Mode, "message %q", message)
		assert.Equal(t, SearchNone, got.SearchMode)
	}
}

func TestClassifyResearchRequestsOrchestrate(t *testing.T) {
	c := NewClassifier(DefaultWordLists())

	got := c.Classify("research the history of computing")
	assert.Equal(t, ModeTask, got.Mode)
	assert.Equal(t, SearchNone, got.SearchMode)
	assert.Equal(t, "research the history of computing", got.CleanMessage)
}

func TestClassifyToolVerbsOrchestrate(t *testing.T) {
	c := NewClassifier(DefaultWordLists())

	assert.Equal(t, ModeTask, c.Classify("check the weather").Mode)
	assert.Equal(t, ModeTask, c.Classify("lista los archivos del proyecto").Mode)
}

func TestClassifySearchTagsForceTools(t *testing.T) {
	c := NewClassifier(DefaultWordLists())

	web := c.Classify("[WebSearch] latest go release")
	assert.Equal(t, ModeTask, web.Mode)
	assert.Equal(t, SearchWeb, web.SearchMode)
	assert.Equal(t, "latest go release", web.CleanMessage)

	deep := c.Classify("[DeepResearch] quantum error correction")
	assert.Equal(t, ModeTask, deep.Mode)
	assert.Equal(t, SearchDeep, deep.SearchMode)
	assert.Equal(t, "quantum error correction", deep.CleanMessage)
}

func TestClassifyLongMessagesOrchestrate(t *testing.T) {
	c := NewClassifier(DefaultWordLists())

	long := "I wonder whether the weather tomorrow will be nicer than it was yesterday here in this town"
	assert.Equal(t, ModeTask, c.Classify(long).Mode)
}

func TestClassifyShortDefinitionStaysOnChat(t *testing.T) {
	c := NewClassifier(DefaultWordLists())

	got := c.Classify("what is a goroutine")
	assert.Equal(t, ModeChat, got.Mode)
}

func TestLoadWordListsPartialOverrideKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lists.yaml")
	require.NoError(t, os.WriteFile(path, []byte("casual:\n  - yo\n"), 0o644))

	lists, err := LoadWordLists(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"yo"}, lists.Casual)
	assert.NotEmpty(t, lists.Research)
	assert.NotEmpty(t, lists.ToolIndicating)
}
