package builtin

import (
	"context"
	"fmt"
	"os"
	"time"

	"otto/internal/ports"
)

const maxReadBytes = 2 * 1024 * 1024

type fileRead struct {
	cfg Config
}

// NewFileRead reads file contents from the configured working directory.
func NewFileRead(cfg Config) ports.Tool {
	return &fileRead{cfg: cfg}
}

func (t *fileRead) Describe() ports.ToolDescriptor {
	return ports.ToolDescriptor{
		Name:        "file_read",
		Description: "Read file contents",
		Params: map[string]ports.ToolParam{
			"path": {Type: "string", Description: "File path", Required: true},
		},
		SideEffect: ports.SideEffectReadOnly,
		Idempotent: true,
		MaxTimeout: 10 * time.Second,
	}
}

func (t *fileRead) Invoke(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	path, _ := call.Params["path"].(string)
	if path == "" {
		return &ports.ToolResult{CallID: call.ID, Success: false, Error: "missing 'path'"}, nil
	}
	path = t.cfg.resolvePath(path)

	info, err := os.Stat(path)
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Success: false, Error: err.Error()}, nil
	}
	if info.Size() > maxReadBytes {
		return &ports.ToolResult{
			CallID:  call.ID,
			Success: false,
			Error:   fmt.Sprintf("file too large: %d bytes (limit %d)", info.Size(), maxReadBytes),
		}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Success: false, Error: err.Error()}, nil
	}
	return &ports.ToolResult{
		CallID:   call.ID,
		Success:  true,
		Output:   string(content),
		Metadata: map[string]any{"path": path, "bytes": len(content)},
	}, nil
}
