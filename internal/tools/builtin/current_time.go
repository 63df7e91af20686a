// Package builtin implements the built-in static tool list (spec
// §4.3/§6's "built-in static list" startup composition source): tools
// that need no workspace, plugin, or network wiring to function.
// Grounded on the teacher's internal/datetime package for timezone
// resolution and formatting conventions.
package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chibi-ai/chibi/internal/tools"
)

// CurrentTimeTool reports the current time in a requested (or the
// host's) timezone. It has no external dependencies and needs no
// permission gate, unlike the file/coding/agent categories.
type CurrentTimeTool struct{}

// NewCurrentTimeTool constructs the always-available current_time tool.
func NewCurrentTimeTool() *CurrentTimeTool { return &CurrentTimeTool{} }

func (t *CurrentTimeTool) Name() string             { return "current_time" }
func (t *CurrentTimeTool) Description() string      { return "Report the current date and time, optionally in a named IANA timezone." }
func (t *CurrentTimeTool) Category() tools.Category { return tools.CategoryBuiltin }
func (t *CurrentTimeTool) Parallelizable() bool     { return true }

func (t *CurrentTimeTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"timezone": map[string]interface{}{
				"type":        "string",
				"description": "IANA timezone name, e.g. America/New_York (default: host timezone).",
			},
		},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *CurrentTimeTool) Execute(ctx context.Context, params json.RawMessage) (tools.Result, error) {
	var input struct {
		Timezone string `json:"timezone"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &input); err != nil {
			return tools.Result{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
		}
	}

	loc := time.Local
	tz := strings.TrimSpace(input.Timezone)
	if tz != "" {
		resolved, err := time.LoadLocation(tz)
		if err != nil {
			return tools.Result{Content: fmt.Sprintf("unknown timezone %q: %v", tz, err), IsError: true}, nil
		}
		loc = resolved
	}

	now := time.Now().In(loc)
	return tools.Result{Content: now.Format(time.RFC3339)}, nil
}
