package coding

import (
	"context"
	"encoding/json"
	"runtime"
	"strings"
	"testing"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell_exec targets /bin/sh, not available on windows")
	}
}

func TestShellToolExecuteCapturesStdout(t *testing.T) {
	skipOnWindows(t)
	root := t.TempDir()
	tool := NewShellTool(Config{AllowedPaths: []string{root}})

	params, _ := json.Marshal(map[string]interface{}{"command": "echo hello"})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", result.Content)
	}
	if !strings.Contains(result.Content, "hello") {
		t.Fatalf("expected stdout in content, got %s", result.Content)
	}
}

func TestShellToolExecuteReportsNonZeroExitAsResultNotError(t *testing.T) {
	skipOnWindows(t)
	root := t.TempDir()
	tool := NewShellTool(Config{AllowedPaths: []string{root}})

	params, _ := json.Marshal(map[string]interface{}{"command": "exit 3"})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("a non-zero shell exit must not be a Go error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected exit 3 to be reported as a tool error")
	}
	if !strings.Contains(result.Content, "exit_code: 3") {
		t.Fatalf("expected exit code in content, got %s", result.Content)
	}
}

func TestShellToolExecuteRejectsEmptyCommand(t *testing.T) {
	root := t.TempDir()
	tool := NewShellTool(Config{AllowedPaths: []string{root}})

	params, _ := json.Marshal(map[string]interface{}{"command": ""})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected empty command to be rejected")
	}
}

func TestShellToolRunsInResolvedWorkingDirectory(t *testing.T) {
	skipOnWindows(t)
	root := t.TempDir()
	tool := NewShellTool(Config{AllowedPaths: []string{root}})

	params, _ := json.Marshal(map[string]interface{}{"command": "pwd", "cwd": root})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", result.Content)
	}
	if !strings.Contains(result.Content, root) {
		t.Fatalf("expected pwd output to mention %s, got %s", root, result.Content)
	}
}

func TestShellToolRejectsCwdOutsideAllowedPaths(t *testing.T) {
	skipOnWindows(t)
	root := t.TempDir()
	tool := NewShellTool(Config{AllowedPaths: []string{root}})

	params, _ := json.Marshal(map[string]interface{}{"command": "pwd", "cwd": "/etc"})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected an out-of-allowlist cwd to be rejected")
	}
}
