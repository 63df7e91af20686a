// Package subagent implements the one-shot, non-streaming sub-agent
// runner invoked by the spawn_agent/retrieve_content tools (spec §4.9).
// A sub-agent call derives its own ResolvedConfig from the parent's,
// optionally through a preset looked up by (subagent_cost_tier,
// capability), drains a gateway stream to a single accumulated result
// instead of forwarding incremental events to a sink, and never
// consumes the parent turn's fuel or spawns further sub-agents in
// parallel — that last rule is enforced by the wrapping tool's
// Parallelizable() returning false, not by this package.
//
// Grounded on the teacher's internal/agent/providers/anthropic.go
// Complete (non-streaming convenience built atop the same streaming
// primitive as Stream) and internal/net/ssrf's fetch-gate pattern for
// retrieve_content's URL branch, generalized onto spec's security gate
// (internal/security) and hook orchestrator (internal/hooks).
package subagent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/chibi-ai/chibi/internal/chibierr"
	"github.com/chibi-ai/chibi/internal/gateway"
	"github.com/chibi-ai/chibi/internal/hooks"
	"github.com/chibi-ai/chibi/internal/presets"
	"github.com/chibi-ai/chibi/internal/security"
	"github.com/chibi-ai/chibi/pkg/models"
)

// maxRetrievedBytes caps how much of a fetched URL or file this package
// will hold in memory before truncating, independent of the tool
// output cache threshold (that truncation happens one layer up, in the
// loop's tool-execution phase).
const maxRetrievedBytes = 2_000_000

// SpawnOptions carries a spawn_agent/retrieve_content call's explicit
// overrides, which win over both the parent config and any resolved
// preset.
type SpawnOptions struct {
	Capability  presets.Capability
	Model       *string
	Temperature *float64
	MaxTokens   int
}

// Runner executes one-shot sub-agent calls and retrieve_content
// fetches. It is constructed once per invocation and shared by every
// spawn_agent/retrieve_content tool call in that invocation, matching
// spec §4.9's "one HTTP client pool is shared across the process".
type Runner struct {
	gateway    *gateway.Client
	hooks      *hooks.Orchestrator
	presets    *presets.Registry
	httpClient *http.Client
}

// NewRunner builds a Runner. allowedPaths is read per call from the
// ResolvedConfig passed to RetrieveContent, not fixed at construction,
// since a sub-agent spawned under a different context may resolve a
// different models.SecurityConfig.
func NewRunner(client *gateway.Client, orchestrator *hooks.Orchestrator, registry *presets.Registry) *Runner {
	return &Runner{
		gateway: client,
		hooks:   orchestrator,
		presets: registry,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ResolveChildConfig derives a sub-agent's ResolvedConfig from the
// parent per spec §4.9: preset model unconditionally overwrites,
// preset parameters fill only fields the parent left unset, then the
// call's explicit overrides win over both.
func (r *Runner) ResolveChildConfig(parent models.ResolvedConfig, opts SpawnOptions) models.ResolvedConfig {
	child := parent

	tier := presets.Tier(parent.Identity.SubagentCostTier)
	capability := opts.Capability
	if capability == "" {
		capability = presets.CapabilityGeneral
	}
	preset := r.presets.Resolve(tier, capability)

	child.Identity.Model = preset.Model
	if child.API.Temperature == nil {
		child.API.Temperature = preset.Parameters.Temperature
	}
	if child.API.TopP == nil {
		child.API.TopP = preset.Parameters.TopP
	}
	if child.API.MaxTokens == 0 {
		child.API.MaxTokens = preset.Parameters.MaxTokens
	}

	if opts.Model != nil {
		child.Identity.Model = *opts.Model
	}
	if opts.Temperature != nil {
		child.API.Temperature = opts.Temperature
	}
	if opts.MaxTokens != 0 {
		child.API.MaxTokens = opts.MaxTokens
	}

	return child
}

// Result is what one sub-agent call produces: the accumulated text and
// any tool calls the model requested (a sub-agent has no loop of its
// own to execute them, so the caller decides what to do with them, if
// anything — this core has no built-in tool-using sub-agent).
type Result struct {
	Text      string
	ToolCalls []models.ToolCall
}

// Spawn runs one non-streaming sub-agent call: it builds the child
// config, drains a gateway.Client.Stream to completion, and returns the
// accumulated result. Spawn dispatches no hooks: the loop dispatches
// the pre_spawn_agent permission gate before running spawn_agent, and
// post_spawn_agent is not dispatched anywhere.
func (r *Runner) Spawn(ctx context.Context, parent models.ResolvedConfig, prompt string, opts SpawnOptions) (Result, error) {
	child := r.ResolveChildConfig(parent, opts)

	req := gateway.Request{
		Model:    child.Identity.Model,
		Messages: []models.Message{{Role: models.RoleUser, Content: prompt}},
		API:      child.API,
	}

	var result Result
	toolInput := map[string]*pendingToolCall{}

	for event := range r.gateway.Stream(ctx, req) {
		switch event.Kind {
		case gateway.EventTextDelta:
			result.Text += event.Text
		case gateway.EventReasoning:
			// Reasoning content is not surfaced to a sub-agent's caller;
			// only the final text and tool calls are.
		case gateway.EventToolCallStart:
			toolInput[event.ToolCallID] = &pendingToolCall{id: event.ToolCallID, name: event.ToolCallName}
		case gateway.EventToolCallDelta:
			if pending, ok := toolInput[event.ToolCallID]; ok {
				pending.input.WriteString(event.InputDelta)
			}
		case gateway.EventError:
			return Result{}, chibierr.Wrap(chibierr.Unavailable, "sub-agent call failed", event.Err)
		case gateway.EventDone:
		}
	}

	for _, pending := range toolInput {
		input := json.RawMessage(pending.input.String())
		if len(input) == 0 {
			input = json.RawMessage(`{}`)
		}
		result.ToolCalls = append(result.ToolCalls, models.ToolCall{
			ID:    pending.id,
			Name:  pending.name,
			Input: input,
		})
	}

	return result, nil
}

type pendingToolCall struct {
	id    string
	name  string
	input strings.Builder
}

// RetrieveContent implements spec §4.9's retrieve_content dispatch: a
// file source goes through validate_file_path, a URL source goes
// through classify_url and the pre_fetch_url permission gate. No raw
// file read or HTTP fetch bypasses either path.
func (r *Runner) RetrieveContent(ctx context.Context, cfg models.ResolvedConfig, source Source) (string, error) {
	switch source.Kind {
	case SourceFile:
		return r.retrieveFile(cfg, source.Value)
	case SourceURL:
		return r.retrieveURL(ctx, source.Value)
	default:
		return "", chibierr.New(chibierr.InvalidInput, fmt.Sprintf("unknown retrieve_content source kind %q", source.Kind))
	}
}

func (r *Runner) retrieveFile(cfg models.ResolvedConfig, path string) (string, error) {
	canonical, err := security.ValidateFilePath(path, cfg.Security.FileToolsAllowedPaths)
	if err != nil {
		return "", err
	}
	data, err := readFileLimited(canonical, maxRetrievedBytes)
	if err != nil {
		return "", chibierr.Wrap(chibierr.InternalError, "read retrieved file", err)
	}
	return string(data), nil
}

func (r *Runner) retrieveURL(ctx context.Context, rawURL string) (string, error) {
	classification := security.ClassifyURL(rawURL)
	if classification.Sensitivity == security.Sensitive {
		payload, _ := json.Marshal(map[string]string{"url": rawURL, "reason": classification.Reason})
		decision, _ := r.hooks.Dispatch(ctx, models.HookPreFetchURL, payload)
		// Sensitive URLs are fail-safe deny: unlike Decision.Approved's
		// default, silence (no handler registered, Approve left nil) is
		// a denial here, not an approval. Only an explicit approve lets
		// a sensitive fetch through.
		if decision.Approve == nil || !*decision.Approve {
			return "", chibierr.New(chibierr.PermissionDenied, fmt.Sprintf("fetch_url denied for %s: %s", rawURL, classification.Reason))
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", chibierr.Wrap(chibierr.InvalidInput, "build fetch request", err)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", chibierr.Wrap(chibierr.Unavailable, "fetch url", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", chibierr.New(chibierr.Unavailable, fmt.Sprintf("fetch url returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRetrievedBytes))
	if err != nil {
		return "", chibierr.Wrap(chibierr.InternalError, "read fetch response", err)
	}
	return string(body), nil
}

// SourceKind distinguishes retrieve_content's two source shapes.
type SourceKind string

const (
	SourceFile SourceKind = "file"
	SourceURL  SourceKind = "url"
)

// Source is one retrieve_content call's input.
type Source struct {
	Kind  SourceKind
	Value string
}

func readFileLimited(path string, limit int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, limit))
}
