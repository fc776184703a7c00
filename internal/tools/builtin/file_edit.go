package builtin

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"otto/internal/ports"
)

type fileEdit struct {
	cfg Config
}

// NewFileEdit replaces an exact string in a file and reports the diff.
func NewFileEdit(cfg Config) ports.Tool {
	return &fileEdit{cfg: cfg}
}

func (t *fileEdit) Describe() ports.ToolDescriptor {
	return ports.ToolDescriptor{
		Name:        "file_edit",
		Description: "Replace an exact string in a file",
		Params: map[string]ports.ToolParam{
			"path":        {Type: "string", Description: "File path", Required: true},
			"old_string":  {Type: "string", Description: "Exact text to replace", Required: true},
			"new_string":  {Type: "string", Description: "Replacement text", Required: true},
			"replace_all": {Type: "boolean", Description: "Replace every occurrence"},
		},
		SideEffect: ports.SideEffectFilesystem,
		Idempotent: false,
		MaxTimeout: 10 * time.Second,
	}
}

func (t *fileEdit) Invoke(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	path, _ := call.Params["path"].(string)
	oldString, _ := call.Params["old_string"].(string)
	newString, _ := call.Params["new_string"].(string)
	replaceAll, _ := call.Params["replace_all"].(bool)
	if path == "" || oldString == "" {
		return &ports.ToolResult{CallID: call.ID, Success: false, Error: "missing 'path' or 'old_string'"}, nil
	}
	path = t.cfg.resolvePath(path)

	raw, err := os.ReadFile(path)
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Success: false, Error: err.Error()}, nil
	}
	content := string(raw)

	occurrences := strings.Count(content, oldString)
	if occurrences == 0 {
		return &ports.ToolResult{CallID: call.ID, Success: false, Error: "old_string not found in file"}, nil
	}
	if occurrences > 1 && !replaceAll {
		return &ports.ToolResult{
			CallID:  call.ID,
			Success: false,
			Error:   "old_string matches multiple locations; pass replace_all or a longer string",
		}, nil
	}

	var updated string
	if replaceAll {
		updated = strings.ReplaceAll(content, oldString, newString)
	} else {
		updated = strings.Replace(content, oldString, newString, 1)
	}

	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return &ports.ToolResult{CallID: call.ID, Success: false, Error: err.Error()}, nil
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(content, updated, false)
	added, removed := 0, 0
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += len(d.Text)
		case diffmatchpatch.DiffDelete:
			removed += len(d.Text)
		}
	}

	return &ports.ToolResult{
		CallID:  call.ID,
		Success: true,
		Output:  dmp.DiffPrettyText(diffs),
		Metadata: map[string]any{
			"path":          path,
			"replacements":  occurrences,
			"bytes_added":   added,
			"bytes_removed": removed,
		},
	}, nil
}
