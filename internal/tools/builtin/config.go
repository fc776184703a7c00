package builtin

import (
	"path/filepath"
	"strings"

	"otto/internal/ports"
)

// Config carries the shared settings for the built-in tool set.
type Config struct {
	// WorkDir anchors relative paths for the file and shell tools.
	WorkDir string
	// SearchAPIKey authenticates against the search API.
	SearchAPIKey string
	// SearchEndpoint overrides the search API endpoint, for tests.
	SearchEndpoint string
	// LLM is used by deep_research for synthesis. Optional for the rest.
	LLM ports.LLMClient
}

// resolvePath anchors a relative path at the configured working directory.
func (c Config) resolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "~") {
		return path
	}
	base := c.WorkDir
	if base == "" {
		base = "."
	}
	return filepath.Join(base, path)
}

// RegisterAll wires every built-in tool into the dispatcher. Tools that need
// missing configuration still register and report their setup requirement at
// call time.
func RegisterAll(dispatcher ports.ToolDispatcher, cfg Config) error {
	tools := []ports.Tool{
		NewShell(cfg),
		NewFileRead(cfg),
		NewFileWrite(cfg),
		NewFileEdit(cfg),
		NewListFiles(cfg),
		NewWebSearch(cfg),
		NewWebFetch(cfg),
		NewDeepResearch(cfg),
	}
	for _, tool := range tools {
		if err := dispatcher.Register(tool); err != nil {
			return err
		}
	}
	return nil
}
