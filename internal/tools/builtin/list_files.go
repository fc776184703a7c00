package builtin

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"otto/internal/ports"
)

const maxListEntries = 500

type listFiles struct {
	cfg Config
}

// NewListFiles lists a directory, directories first.
func NewListFiles(cfg Config) ports.Tool {
	return &listFiles{cfg: cfg}
}

func (t *listFiles) Describe() ports.ToolDescriptor {
	return ports.ToolDescriptor{
		Name:        "list_files",
		Description: "List directory entries with sizes",
		Params: map[string]ports.ToolParam{
			"path": {Type: "string", Description: "Directory path, defaults to the working directory"},
		},
		SideEffect: ports.SideEffectReadOnly,
		Idempotent: true,
		MaxTimeout: 10 * time.Second,
	}
}

func (t *listFiles) Invoke(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	path, _ := call.Params["path"].(string)
	if path == "" {
		path = "."
	}
	path = t.cfg.resolvePath(path)

	entries, err := os.ReadDir(path)
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Success: false, Error: err.Error()}, nil
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return entries[i].Name() < entries[j].Name()
	})

	var b strings.Builder
	shown := 0
	for _, entry := range entries {
		if shown >= maxListEntries {
			fmt.Fprintf(&b, "... and %d more entries\n", len(entries)-shown)
			break
		}
		if entry.IsDir() {
			fmt.Fprintf(&b, "%s/\n", entry.Name())
		} else {
			size := int64(0)
			if info, err := entry.Info(); err == nil {
				size = info.Size()
			}
			fmt.Fprintf(&b, "%s (%d bytes)\n", entry.Name(), size)
		}
		shown++
	}

	return &ports.ToolResult{
		CallID:   call.ID,
		Success:  true,
		Output:   b.String(),
		Metadata: map[string]any{"path": path, "entries": len(entries)},
	}, nil
}
