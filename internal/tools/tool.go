// Package tools implements the core's tool registry and dispatch layer
// (spec §4.6): composing the tool list from every category, validating
// arguments against each tool's JSON schema, and executing a turn's
// batch with bounded parallelism while preserving the model's emission
// order for observable diagnostics. Grounded on the teacher's
// internal/agent/tool_registry.go and internal/agent/executor.go.
package tools

import (
	"context"
	"encoding/json"
)

// Category classifies a tool for composition and for the
// non-parallelizable agent-spawning rule (spec §4.6).
type Category string

const (
	CategoryBuiltin Category = "builtin"
	CategoryFile    Category = "file"
	CategoryAgent   Category = "agent"
	CategoryCoding  Category = "coding"
	CategoryPlugin  Category = "plugin"
	CategoryMCP     Category = "mcp"
)

// Result is the outcome of one tool execution, before the dispatcher
// attaches the originating tool_call_id and turns it into a transcript
// entry / models.ToolResult.
type Result struct {
	Content string
	IsError bool
}

// Tool is implemented by every category's concrete tool types (see
// internal/tools/files for the file-tool category).
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Category() Category
	Parallelizable() bool
	Execute(ctx context.Context, params json.RawMessage) (Result, error)
}
