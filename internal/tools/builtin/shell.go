package builtin

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"otto/internal/ports"
)

type shell struct {
	cfg Config
}

// NewShell runs commands through bash in the configured working directory.
func NewShell(cfg Config) ports.Tool {
	return &shell{cfg: cfg}
}

func (t *shell) Describe() ports.ToolDescriptor {
	return ports.ToolDescriptor{
		Name:        "shell",
		Description: "Execute a shell command and capture stdout, stderr, and the exit code",
		Params: map[string]ports.ToolParam{
			"command": {Type: "string", Description: "Command to execute", Required: true},
		},
		SideEffect: ports.SideEffectProcess,
		Idempotent: false,
		MaxTimeout: 120 * time.Second,
	}
}

func (t *shell) Invoke(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	command, _ := call.Params["command"].(string)
	if command == "" {
		return &ports.ToolResult{CallID: call.ID, Success: false, Error: "missing 'command'"}, nil
	}

	cmd := exec.CommandContext(ctx, "bash", "-c", command)
	if t.cfg.WorkDir != "" {
		cmd.Dir = t.cfg.WorkDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	// Combined output, stdout first.
	text := strings.TrimSpace(stdout.String())
	if errText := strings.TrimSpace(stderr.String()); errText != "" {
		if text == "" {
			text = errText
		} else {
			text = text + "\n" + errText
		}
	}
	if text == "" {
		text = fmt.Sprintf("command completed with exit code %d and no output", exitCode)
	}

	result := &ports.ToolResult{
		CallID:  call.ID,
		Success: runErr == nil,
		Output:  text,
		Metadata: map[string]any{
			"command":   command,
			"exit_code": exitCode,
		},
	}
	if runErr != nil {
		result.Error = fmt.Sprintf("command failed with exit code %d", exitCode)
	}
	return result, nil
}
