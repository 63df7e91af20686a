// Package plugin implements the core's plugin executor: plugins are
// plain executable files, discovered by scanning a directory and invoked
// as short-lived child processes (spec §4.4). No plugin process is ever
// kept alive across calls — every invocation is start, write stdin,
// close, drain stdout, wait. Grounded on the teacher's
// internal/mcp/transport_stdio.go piped-stdio shape, deliberately NOT on
// internal/plugins/plugin.go's in-process Go-function registry, which is
// exactly the plugin ABI spec.md's Non-goals exclude.
package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"unicode/utf8"

	"github.com/chibi-ai/chibi/internal/chibierr"
)

// schemaArg is the single CLI argument the executor invokes a plugin
// with to request its manifest. Spec §4.4 requires a single-argument
// schema request but does not name the flag; this is the core's chosen
// convention, and every plugin under plugins/ must honor it.
const schemaArg = "--chibi-describe"

const (
	envToolName = "CHIBI_TOOL_NAME"
	envHook     = "CHIBI_HOOK"
)

// RegisteredPlugin pairs a discovered plugin's manifest with the
// executable path that produced it.
type RegisteredPlugin struct {
	Manifest Manifest
	Path     string
}

// Executor discovers and invokes plugins rooted at one plugins
// directory.
type Executor struct {
	pluginsDir string
}

// NewExecutor returns an Executor scanning pluginsDir.
func NewExecutor(pluginsDir string) *Executor {
	return &Executor{pluginsDir: pluginsDir}
}

// Discover performs the single directory scan spec §4.4 calls for,
// invoking every executable entry with schemaArg and parsing its
// manifest. A plugin that fails to describe itself is skipped with a
// diagnostic rather than failing the whole scan.
func (e *Executor) Discover(ctx context.Context) ([]RegisteredPlugin, []string, error) {
	entries, err := os.ReadDir(e.pluginsDir)
	if os.IsNotExist(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, chibierr.Wrap(chibierr.InternalError, "scan plugins directory", err)
	}

	var plugins []RegisteredPlugin
	var diagnostics []string
	seen := map[string]bool{}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.Mode()&0o111 == 0 {
			continue // not executable
		}

		path := filepath.Join(e.pluginsDir, entry.Name())
		manifest, err := e.describe(ctx, path)
		if err != nil {
			diagnostics = append(diagnostics, fmt.Sprintf("plugin %s: %v", entry.Name(), err))
			continue
		}
		if manifest.Name == "" {
			diagnostics = append(diagnostics, fmt.Sprintf("plugin %s: manifest has no name, skipped", entry.Name()))
			continue
		}
		if seen[manifest.Name] {
			diagnostics = append(diagnostics, fmt.Sprintf("plugin %s: name %q collides with an already-discovered plugin, skipped", entry.Name(), manifest.Name))
			continue
		}
		seen[manifest.Name] = true
		plugins = append(plugins, RegisteredPlugin{Manifest: manifest, Path: path})
	}

	return plugins, diagnostics, nil
}

func (e *Executor) describe(ctx context.Context, path string) (Manifest, error) {
	cmd := exec.CommandContext(ctx, path, schemaArg)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return Manifest{}, chibierr.Wrap(chibierr.Unavailable, "schema invocation failed", err)
	}
	return decodeJSON[Manifest](stdout.Bytes())
}

// InvokeTool runs the plugin at path as a tool call: CHIBI_TOOL_NAME is
// set, args is written to stdin and the pipe closed, stdout is drained
// to EOF and returned verbatim as the tool result. A non-zero exit is a
// tool failure; non-UTF-8 stdout is invalid_data.
func (e *Executor) InvokeTool(ctx context.Context, path, toolName string, args []byte) ([]byte, error) {
	return e.invoke(ctx, path, envToolName, toolName, args)
}

// InvokeHook runs the plugin at path for a hook point: CHIBI_HOOK is set,
// data is written to stdin, and stdout is returned as the raw hook
// response JSON for the caller (internal/hooks) to decode.
func (e *Executor) InvokeHook(ctx context.Context, path, hookPoint string, data []byte) ([]byte, error) {
	return e.invoke(ctx, path, envHook, hookPoint, data)
}

func (e *Executor) invoke(ctx context.Context, path, envVar, envValue string, payload []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, path)
	cmd.Env = append(os.Environ(), envVar+"="+envValue)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, chibierr.Wrap(chibierr.InternalError, "open plugin stdin", err)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, chibierr.Wrap(chibierr.Unavailable, "start plugin process", err)
	}

	if _, err := stdin.Write(payload); err != nil {
		stdin.Close()
		_ = cmd.Wait()
		return nil, chibierr.Wrap(chibierr.InternalError, "write plugin stdin", err)
	}
	if err := stdin.Close(); err != nil {
		_ = cmd.Wait()
		return nil, chibierr.Wrap(chibierr.InternalError, "close plugin stdin", err)
	}

	if err := cmd.Wait(); err != nil {
		return stdout.Bytes(), chibierr.Wrap(chibierr.InternalError, fmt.Sprintf("plugin exited non-zero (stderr: %q)", stderr.String()), err)
	}

	if !utf8.Valid(stdout.Bytes()) {
		return nil, chibierr.New(chibierr.InvalidData, "plugin stdout is not valid UTF-8")
	}
	return stdout.Bytes(), nil
}

func decodeJSON[T any](data []byte) (T, error) {
	var v T
	if !utf8.Valid(data) {
		return v, chibierr.New(chibierr.InvalidData, "plugin output is not valid UTF-8")
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, chibierr.Wrap(chibierr.InvalidData, "decode plugin manifest", err)
	}
	return v, nil
}
