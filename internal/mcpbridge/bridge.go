package mcpbridge

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"
	"unicode"

	"github.com/chibi-ai/chibi/internal/backoff"
	"github.com/chibi-ai/chibi/internal/chibierr"
	"github.com/chibi-ai/chibi/internal/tools"
)

const maxToolNameLen = 64

// ToolCallRequest is one length-delimited frame sent to the daemon.
type ToolCallRequest struct {
	Server    string          `json:"server"`
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolCallResponse is the daemon's corresponding reply frame.
type ToolCallResponse struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error"`
	Error   string `json:"error,omitempty"`
}

// Bridge holds the single TCP connection to the companion MCP daemon.
// Safe for concurrent CallTool use: requests are serialised over the one
// connection by a mutex, matching the contract of "a single TCP connection"
// in spec §4.7.
type Bridge struct {
	mu   sync.Mutex
	conn net.Conn
}

// Connect discovers a live daemon via the stateDir lockfile. If none is
// found, it invokes spawn to start one, then retries discovery with a
// bounded startup-only backoff (spec §5's bounded reconnect, reused here
// for the analogous "wait for daemon to come up" case).
func Connect(ctx context.Context, stateDir string, spawn func() error, maxAttempts int) (*Bridge, error) {
	payload, ok := ReadLock(stateDir)
	if !ok {
		if spawn == nil {
			return nil, chibierr.New(chibierr.Unavailable, "mcp bridge daemon not running and no spawn function configured")
		}
		if err := spawn(); err != nil {
			return nil, chibierr.Wrap(chibierr.Unavailable, "spawn mcp bridge daemon", err)
		}
		policy := backoff.DefaultPolicy()
		for attempt := 0; attempt < maxAttempts; attempt++ {
			if payload, ok = ReadLock(stateDir); ok {
				break
			}
			if err := backoff.SleepWithContext(ctx, backoff.ComputeBackoff(policy, attempt)); err != nil {
				return nil, chibierr.Wrap(chibierr.Unavailable, "wait for mcp bridge daemon", err)
			}
		}
		if !ok {
			return nil, chibierr.New(chibierr.Unavailable, "mcp bridge daemon did not come up in time")
		}
	}

	conn, err := Dial(payload.Address)
	if err != nil {
		return nil, err
	}
	return &Bridge{conn: conn}, nil
}

// NewBridge wraps an already-established connection, bypassing lockfile
// discovery. Used where the caller dials or pipes the connection itself,
// e.g. tests and composition wiring that already hold a net.Conn.
func NewBridge(conn net.Conn) *Bridge {
	return &Bridge{conn: conn}
}

// Close releases the underlying connection.
func (b *Bridge) Close() error {
	return b.conn.Close()
}

// CallTool sends one tool-call request and waits for its response.
func (b *Bridge) CallTool(ctx context.Context, server, tool string, arguments json.RawMessage) (ToolCallResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	req := ToolCallRequest{Server: server, Tool: tool, Arguments: arguments}
	if err := WriteFrame(b.conn, req); err != nil {
		return ToolCallResponse{}, err
	}
	var resp ToolCallResponse
	if err := ReadFrame(b.conn, &resp); err != nil {
		return ToolCallResponse{}, err
	}
	return resp, nil
}

// toolListRequest asks the daemon to enumerate every tool across every
// configured MCP server, a second frame kind over the same connection as
// ToolCallRequest/ToolCallResponse.
type toolListRequest struct {
	List bool `json:"list"`
}

// ToolDescriptor is one server's tool as the daemon reports it.
type ToolDescriptor struct {
	Server      string          `json:"server"`
	Tool        string          `json:"tool"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema"`
}

type toolListResponse struct {
	Tools []ToolDescriptor `json:"tools"`
	Error string           `json:"error,omitempty"`
}

// ListTools asks the daemon for every tool it can currently reach across
// its configured servers (spec §4.6's "MCP tools" startup composition
// source).
func (b *Bridge) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := WriteFrame(b.conn, toolListRequest{List: true}); err != nil {
		return nil, err
	}
	var resp toolListResponse
	if err := ReadFrame(b.conn, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, chibierr.New(chibierr.Unavailable, resp.Error)
	}
	return resp.Tools, nil
}

// DiscoverBridgeTools calls ListTools and wraps every descriptor into a
// BridgeTool, assigning each the `<server>_<tool>` name spec §4.6/§4.7
// names (deduplicated and length-bounded via SafeToolName).
func DiscoverBridgeTools(ctx context.Context, bridge *Bridge) ([]*BridgeTool, error) {
	descriptors, err := bridge.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	used := map[string]struct{}{}
	out := make([]*BridgeTool, 0, len(descriptors))
	for _, d := range descriptors {
		name := SafeToolName(d.Server, d.Tool, used)
		out = append(out, NewBridgeTool(bridge, d.Server, d.Tool, name, d.Description, d.Schema))
	}
	return out, nil
}

// SafeToolName builds the `<server>_<tool>` name spec §4.6/§4.7 requires,
// sanitizing both parts and falling back to a hash suffix to stay within
// maxToolNameLen and to disambiguate collisions. Grounded on the teacher's
// internal/mcp/bridge.go safeToolName, retargeted from its "mcp_" prefix
// convention onto spec's bare `<server>_<tool>` scheme.
func SafeToolName(server, tool string, used map[string]struct{}) string {
	base := sanitizeToolPart(server) + "_" + sanitizeToolPart(tool)
	name := base
	if len(name) > maxToolNameLen {
		name = truncateWithHash(base, server, tool)
	}
	if _, exists := used[name]; exists {
		name = dedupeWithHash(name, server, tool)
	}
	used[name] = struct{}{}
	return name
}

func sanitizeToolPart(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	underscore := false
	for _, r := range value {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			underscore = false
		default:
			if !underscore {
				b.WriteByte('_')
				underscore = true
			}
		}
	}
	clean := strings.Trim(b.String(), "_")
	if clean == "" {
		return "tool"
	}
	return clean
}

func toolNameHash(server, tool string) string {
	sum := sha1.Sum([]byte(server + ":" + tool))
	return hex.EncodeToString(sum[:])[:8]
}

func truncateWithHash(base, server, tool string) string {
	suffix := "_" + toolNameHash(server, tool)
	if maxToolNameLen <= len(suffix) {
		return suffix[len(suffix)-maxToolNameLen:]
	}
	trimLen := maxToolNameLen - len(suffix)
	if trimLen > len(base) {
		trimLen = len(base)
	}
	return base[:trimLen] + suffix
}

func dedupeWithHash(base, server, tool string) string {
	suffix := "_" + toolNameHash(server, tool)
	name := base + suffix
	if len(name) <= maxToolNameLen {
		return name
	}
	return truncateWithHash(base, server, tool)
}

// BridgeTool adapts one MCP tool into the core's tools.Tool interface.
type BridgeTool struct {
	bridge      *Bridge
	server      string
	tool        string
	name        string
	description string
	schema      json.RawMessage
}

// NewBridgeTool wraps one discovered MCP tool.
func NewBridgeTool(bridge *Bridge, server, tool, safeName, description string, schema json.RawMessage) *BridgeTool {
	if len(schema) == 0 {
		schema = json.RawMessage(`{"type":"object"}`)
	}
	return &BridgeTool{bridge: bridge, server: server, tool: tool, name: safeName, description: description, schema: schema}
}

func (t *BridgeTool) Name() string             { return t.name }
func (t *BridgeTool) Description() string      { return fmt.Sprintf("MCP tool %s/%s: %s", t.server, t.tool, t.description) }
func (t *BridgeTool) Schema() json.RawMessage  { return t.schema }
func (t *BridgeTool) Category() tools.Category { return tools.CategoryMCP }
func (t *BridgeTool) Parallelizable() bool     { return true }

func (t *BridgeTool) Execute(ctx context.Context, params json.RawMessage) (tools.Result, error) {
	resp, err := t.bridge.CallTool(ctx, t.server, t.tool, params)
	if err != nil {
		return tools.Result{}, err
	}
	if resp.Error != "" {
		return tools.Result{Content: resp.Error, IsError: true}, nil
	}
	return tools.Result{Content: resp.Content, IsError: resp.IsError}, nil
}
