package builtin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otto/internal/ports"
)

func invoke(t *testing.T, tool ports.Tool, params map[string]any) *ports.ToolResult {
	t.Helper()
	result, err := tool.Invoke(context.Background(), ports.ToolCall{ID: "call-test", Params: params})
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func TestFileWriteThenRead(t *testing.T) {
	cfg := Config{WorkDir: t.TempDir()}

	write := invoke(t, NewFileWrite(cfg), map[string]any{"path": "notes/hello.txt", "content": "hello world"})
	require.True(t, write.Success, write.Error)

	read := invoke(t, NewFileRead(cfg), map[string]any{"path": "notes/hello.txt"})
	require.True(t, read.Success, read.Error)
	assert.Equal(t, "hello world", read.Output)
}

func TestFileReadMissingFile(t *testing.T) {
	cfg := Config{WorkDir: t.TempDir()}
	result := invoke(t, NewFileRead(cfg), map[string]any{"path": "absent.txt"})
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

func TestFileEditSingleOccurrence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 8080\nhost: localhost\n"), 0o644))

	cfg := Config{WorkDir: dir}
	result := invoke(t, NewFileEdit(cfg), map[string]any{
		"path":       "config.yaml",
		"old_string": "port: 8080",
		"new_string": "port: 9090",
	})
	require.True(t, result.Success, result.Error)
	assert.Equal(t, 1, result.Metadata["replacements"])

	updated, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(updated), "port: 9090")
}

func TestFileEditAmbiguousWithoutReplaceAll(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("a b a"), 0o644))

	cfg := Config{WorkDir: dir}
	result := invoke(t, NewFileEdit(cfg), map[string]any{
		"path":       "doc.txt",
		"old_string": "a",
		"new_string": "c",
	})
	assert.False(t, result.Success)

	result = invoke(t, NewFileEdit(cfg), map[string]any{
		"path":        "doc.txt",
		"old_string":  "a",
		"new_string":  "c",
		"replace_all": true,
	})
	require.True(t, result.Success, result.Error)
	assert.Equal(t, 2, result.Metadata["replacements"])
}

func TestListFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644))

	cfg := Config{WorkDir: dir}
	result := invoke(t, NewListFiles(cfg), map[string]any{})
	require.True(t, result.Success, result.Error)
	assert.Contains(t, result.Output, "sub/")
	assert.Contains(t, result.Output, "a.txt")
}

func TestShellCapturesOutputAndExitCode(t *testing.T) {
	cfg := Config{WorkDir: t.TempDir()}
	tool := NewShell(cfg)

	ok := invoke(t, tool, map[string]any{"command": "echo hello"})
	require.True(t, ok.Success, ok.Error)
	assert.Contains(t, ok.Output, "hello")
	assert.Equal(t, 0, ok.Metadata["exit_code"])

	failed := invoke(t, tool, map[string]any{"command": "exit 3"})
	assert.False(t, failed.Success)
	assert.Equal(t, 3, failed.Metadata["exit_code"])
}

func TestWebSearchUnconfigured(t *testing.T) {
	result := invoke(t, NewWebSearch(Config{}), map[string]any{"query": "anything"})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "not configured")
}

func TestWebSearchFormatsResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "go generics", req["query"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"answer": "Generics landed in Go 1.18.",
			"results": []map[string]any{
				{"title": "Go Blog", "url": "https://go.dev/blog", "content": "Type parameters.", "score": 0.9},
			},
		})
	}))
	defer server.Close()

	tool := NewWebSearch(Config{SearchAPIKey: "key", SearchEndpoint: server.URL})
	result := invoke(t, tool, map[string]any{"query": "go generics"})
	require.True(t, result.Success, result.Error)
	assert.Contains(t, result.Output, "Generics landed in Go 1.18.")
	assert.Contains(t, result.Output, "https://go.dev/blog")
	assert.Equal(t, 1, result.Metadata["result_count"])
}

func TestWebFetchExtractsText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Docs</title></head><body>
			<script>ignore()</script>
			<h1>Guide</h1><p>First paragraph.</p><ul><li>item one</li></ul>
		</body></html>`))
	}))
	defer server.Close()

	result := invoke(t, NewWebFetch(Config{}), map[string]any{"url": server.URL})
	require.True(t, result.Success, result.Error)
	assert.Contains(t, result.Output, "# Docs")
	assert.Contains(t, result.Output, "First paragraph.")
	assert.Contains(t, result.Output, "- item one")
	assert.NotContains(t, result.Output, "ignore()")
}

func TestWebFetchRejectsNonHTTP(t *testing.T) {
	result := invoke(t, NewWebFetch(Config{}), map[string]any{"url": "file:///etc/passwd"})
	assert.False(t, result.Success)
}

func TestRegisterAllNamesAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, tool := range []ports.Tool{
		NewShell(Config{}), NewFileRead(Config{}), NewFileWrite(Config{}), NewFileEdit(Config{}),
		NewListFiles(Config{}), NewWebSearch(Config{}), NewWebFetch(Config{}), NewDeepResearch(Config{}),
	} {
		name := tool.Describe().Name
		assert.False(t, seen[name], "duplicate tool name %s", name)
		seen[name] = true
	}
}
