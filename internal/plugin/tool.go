package plugin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chibi-ai/chibi/internal/tools"
)

// Tool adapts one discovered plugin executable into the core's
// tools.Tool interface (spec §4.4/§4.6's plugin category). Each plugin
// exposes exactly one tool, named and schema'd by its own manifest.
type Tool struct {
	executor *Executor
	plugin   RegisteredPlugin
}

// NewTool wraps one discovered plugin as a tool, invoked through
// executor.
func NewTool(executor *Executor, registered RegisteredPlugin) *Tool {
	return &Tool{executor: executor, plugin: registered}
}

func (t *Tool) Name() string        { return t.plugin.Manifest.Name }
func (t *Tool) Description() string { return t.plugin.Manifest.Description }

func (t *Tool) Schema() json.RawMessage {
	if len(t.plugin.Manifest.Parameters) == 0 {
		return json.RawMessage(`{"type":"object"}`)
	}
	return t.plugin.Manifest.Parameters
}

func (t *Tool) Category() tools.Category { return tools.CategoryPlugin }

// Parallelizable is false: a plugin is a fresh child process per call,
// and the core makes no claim about a plugin author's thread-safety
// assumptions when several of its own invocations might overlap.
func (t *Tool) Parallelizable() bool { return false }

// Execute invokes the plugin's child process, surfacing a non-zero exit
// or non-UTF-8-stdout failure as a tool error (spec §6's recoverable
// failure: "plugin non-zero exit → becomes a tool error surfaced to the
// model") rather than propagating it as a fatal loop error.
func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (tools.Result, error) {
	output, err := t.executor.InvokeTool(ctx, t.plugin.Path, t.plugin.Manifest.Name, params)
	if err != nil {
		return tools.Result{Content: fmt.Sprintf("plugin %s failed: %v", t.plugin.Manifest.Name, err), IsError: true}, nil
	}
	return tools.Result{Content: string(output)}, nil
}
