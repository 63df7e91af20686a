// Package agent implements the agent-category tools: spawn_agent and
// retrieve_content (spec §4.9). Both wrap an internal/subagent.Runner
// and are deliberately non-parallelizable, per spec §4.6's rule that
// agent-spawning tools never run inside a turn's parallel sub-batch —
// the registry/dispatcher honors that through Parallelizable()
// returning false here, not through any special-casing of tool names.
//
// Grounded on the teacher's internal/tools/files package for the
// Tool-wrapper shape (schema building, toolError convention), adapted
// from a file-system gate to the sub-agent runner's.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chibi-ai/chibi/internal/presets"
	"github.com/chibi-ai/chibi/internal/subagent"
	"github.com/chibi-ai/chibi/internal/tools"
	"github.com/chibi-ai/chibi/pkg/models"
)

// configKey is the context key the loop stores the calling turn's
// ResolvedConfig under before invoking Execute, since a Tool's
// interface carries no config parameter of its own.
type configKey struct{}

// WithConfig attaches cfg to ctx for an agent-tool Execute call to read.
func WithConfig(ctx context.Context, cfg models.ResolvedConfig) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

func configFrom(ctx context.Context) models.ResolvedConfig {
	if cfg, ok := ctx.Value(configKey{}).(models.ResolvedConfig); ok {
		return cfg
	}
	return models.DefaultResolvedConfig()
}

func toolError(message string) tools.Result {
	return tools.Result{Content: message, IsError: true}
}

// SpawnAgentTool invokes a one-shot sub-agent call via spawn_agent.
type SpawnAgentTool struct {
	runner   *subagent.Runner
	registry *presets.Registry
}

// NewSpawnAgentTool builds the spawn_agent tool.
func NewSpawnAgentTool(runner *subagent.Runner, registry *presets.Registry) *SpawnAgentTool {
	return &SpawnAgentTool{runner: runner, registry: registry}
}

func (t *SpawnAgentTool) Name() string            { return "spawn_agent" }
func (t *SpawnAgentTool) Description() string     { return "Spawn a one-shot sub-agent call to delegate a focused task." }
func (t *SpawnAgentTool) Category() tools.Category { return tools.CategoryAgent }
func (t *SpawnAgentTool) Parallelizable() bool     { return false }

func (t *SpawnAgentTool) Schema() json.RawMessage {
	caps := t.registry.Capabilities()
	names := make([]string, len(caps))
	for i, c := range caps {
		names[i] = string(c)
	}
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"prompt": map[string]interface{}{
				"type":        "string",
				"description": "The task prompt to give the sub-agent.",
			},
			"capability": map[string]interface{}{
				"type":        "string",
				"description": fmt.Sprintf("Task shape for preset resolution. One of: %v.", names),
				"enum":        names,
			},
			"model": map[string]interface{}{
				"type":        "string",
				"description": "Explicit model override; wins over the resolved preset.",
			},
			"temperature": map[string]interface{}{
				"type":        "number",
				"description": "Explicit temperature override; wins over the resolved preset.",
			},
			"max_tokens": map[string]interface{}{
				"type":        "integer",
				"description": "Explicit max_tokens override; wins over the resolved preset.",
				"minimum":     1,
			},
		},
		"required": []string{"prompt"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *SpawnAgentTool) Execute(ctx context.Context, params json.RawMessage) (tools.Result, error) {
	var input struct {
		Prompt      string   `json:"prompt"`
		Capability  string   `json:"capability"`
		Model       *string  `json:"model"`
		Temperature *float64 `json:"temperature"`
		MaxTokens   int      `json:"max_tokens"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if input.Prompt == "" {
		return toolError("prompt is required"), nil
	}

	parent := configFrom(ctx)
	result, err := t.runner.Spawn(ctx, parent, input.Prompt, subagent.SpawnOptions{
		Capability:  presets.Capability(input.Capability),
		Model:       input.Model,
		Temperature: input.Temperature,
		MaxTokens:   input.MaxTokens,
	})
	if err != nil {
		return toolError(err.Error()), nil
	}

	if len(result.ToolCalls) == 0 {
		return tools.Result{Content: result.Text}, nil
	}

	payload, marshalErr := json.Marshal(struct {
		Text      string            `json:"text"`
		ToolCalls []models.ToolCall `json:"tool_calls"`
	}{Text: result.Text, ToolCalls: result.ToolCalls})
	if marshalErr != nil {
		return tools.Result{Content: result.Text}, nil
	}
	return tools.Result{Content: string(payload)}, nil
}

// RetrieveContentTool fetches file or URL content through the security
// gate via retrieve_content.
type RetrieveContentTool struct {
	runner *subagent.Runner
}

// NewRetrieveContentTool builds the retrieve_content tool.
func NewRetrieveContentTool(runner *subagent.Runner) *RetrieveContentTool {
	return &RetrieveContentTool{runner: runner}
}

func (t *RetrieveContentTool) Name() string            { return "retrieve_content" }
func (t *RetrieveContentTool) Description() string      { return "Retrieve content from a local file (allowlisted) or a URL (SSRF-gated)." }
func (t *RetrieveContentTool) Category() tools.Category { return tools.CategoryAgent }
func (t *RetrieveContentTool) Parallelizable() bool     { return false }

func (t *RetrieveContentTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"source_kind": map[string]interface{}{
				"type":        "string",
				"description": "Either \"file\" or \"url\".",
				"enum":        []string{string(subagent.SourceFile), string(subagent.SourceURL)},
			},
			"source": map[string]interface{}{
				"type":        "string",
				"description": "A file path or a URL, matching source_kind.",
			},
		},
		"required": []string{"source_kind", "source"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *RetrieveContentTool) Execute(ctx context.Context, params json.RawMessage) (tools.Result, error) {
	var input struct {
		SourceKind string `json:"source_kind"`
		Source     string `json:"source"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if input.Source == "" {
		return toolError("source is required"), nil
	}

	kind := subagent.SourceKind(input.SourceKind)
	if kind != subagent.SourceFile && kind != subagent.SourceURL {
		return toolError(fmt.Sprintf("unknown source_kind %q", input.SourceKind)), nil
	}

	cfg := configFrom(ctx)
	content, err := t.runner.RetrieveContent(ctx, cfg, subagent.Source{Kind: kind, Value: input.Source})
	if err != nil {
		return toolError(err.Error()), nil
	}
	return tools.Result{Content: content}, nil
}
