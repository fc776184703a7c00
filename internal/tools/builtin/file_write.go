package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"otto/internal/ports"
)

type fileWrite struct {
	cfg Config
}

// NewFileWrite writes content to a file, creating parent directories.
func NewFileWrite(cfg Config) ports.Tool {
	return &fileWrite{cfg: cfg}
}

func (t *fileWrite) Describe() ports.ToolDescriptor {
	return ports.ToolDescriptor{
		Name:        "file_write",
		Description: "Write content to a file, replacing what is there",
		Params: map[string]ports.ToolParam{
			"path":    {Type: "string", Description: "File path", Required: true},
			"content": {Type: "string", Description: "Content to write", Required: true},
		},
		SideEffect: ports.SideEffectFilesystem,
		// Writing the same content twice lands in the same state.
		Idempotent: true,
		MaxTimeout: 10 * time.Second,
	}
}

func (t *fileWrite) Invoke(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	path, _ := call.Params["path"].(string)
	content, ok := call.Params["content"].(string)
	if path == "" || !ok {
		return &ports.ToolResult{CallID: call.ID, Success: false, Error: "missing 'path' or 'content'"}, nil
	}
	path = t.cfg.resolvePath(path)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &ports.ToolResult{CallID: call.ID, Success: false, Error: err.Error()}, nil
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return &ports.ToolResult{CallID: call.ID, Success: false, Error: err.Error()}, nil
	}

	return &ports.ToolResult{
		CallID:    call.ID,
		Success:   true,
		Output:    fmt.Sprintf("Wrote %d bytes to %s", len(content), path),
		Artifacts: []ports.Artifact{{Name: filepath.Base(path), Path: path}},
		Metadata:  map[string]any{"path": path, "bytes": len(content)},
	}, nil
}
