package coding

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chibi-ai/chibi/internal/tools"
)

const defaultTimeout = 2 * time.Minute

// Config controls the shell tool's defaults, sourced from
// models.ResolvedConfig.Security.FileToolsAllowedPaths the same way the
// file tools are scoped.
type Config struct {
	AllowedPaths []string
}

// ShellTool runs one command per call via /bin/sh -c, gated by
// pre_shell_exec (the loop dispatches that gate itself; this tool does
// not self-gate, matching read_file/write_file rather than
// retrieve_content).
type ShellTool struct {
	manager *Manager
}

// NewShellTool creates a shell tool scoped to cfg.AllowedPaths.
func NewShellTool(cfg Config) *ShellTool {
	return &ShellTool{manager: NewManager(cfg.AllowedPaths)}
}

func (t *ShellTool) Name() string             { return "shell_exec" }
func (t *ShellTool) Description() string      { return "Run a shell command and capture its stdout, stderr, and exit code." }
func (t *ShellTool) Category() tools.Category { return tools.CategoryCoding }

// Parallelizable is false: concurrent shell commands can race on a
// shared working directory or clobber each other's side effects.
func (t *ShellTool) Parallelizable() bool { return false }

func (t *ShellTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "string",
				"description": "Shell command to run via /bin/sh -c.",
			},
			"cwd": map[string]interface{}{
				"type":        "string",
				"description": "Working directory, resolved against the allowed paths (default: the first allowed path).",
			},
			"timeout_seconds": map[string]interface{}{
				"type":        "integer",
				"description": "Kill the command after this many seconds (default: 120).",
				"minimum":     0,
			},
		},
		"required": []string{"command"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// Execute runs the command and reports its outcome as tool content;
// a non-zero exit is not a Go error, it is reported in the result so
// the model can see stdout/stderr/exit_code and react.
func (t *ShellTool) Execute(ctx context.Context, params json.RawMessage) (tools.Result, error) {
	var input struct {
		Command        string `json:"command"`
		Cwd            string `json:"cwd"`
		TimeoutSeconds int    `json:"timeout_seconds"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Command) == "" {
		return toolError("command is required"), nil
	}

	timeout := defaultTimeout
	if input.TimeoutSeconds > 0 {
		timeout = time.Duration(input.TimeoutSeconds) * time.Second
	}

	result, err := t.manager.Run(ctx, input.Command, input.Cwd, nil, timeout)
	if err != nil {
		return toolError(err.Error()), nil
	}

	content := fmt.Sprintf("exit_code: %d\nstdout:\n%s", result.ExitCode, result.Stdout)
	if result.Stderr != "" {
		content += fmt.Sprintf("\nstderr:\n%s", result.Stderr)
	}
	return tools.Result{Content: content, IsError: result.ExitCode != 0}, nil
}

func toolError(message string) tools.Result {
	return tools.Result{Content: message, IsError: true}
}
