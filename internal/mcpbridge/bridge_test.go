package mcpbridge

import (
	"context"
	"encoding/json"
	"net"
	"testing"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	type payload struct {
		Value string `json:"value"`
	}

	go func() {
		_ = WriteFrame(server, payload{Value: "hello"})
	}()

	var got payload
	if err := ReadFrame(client, &got); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if got.Value != "hello" {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestSafeToolNamePrefixesServerAndTool(t *testing.T) {
	used := map[string]struct{}{}
	name := SafeToolName("github", "create_issue", used)
	if name != "github_create_issue" {
		t.Fatalf("unexpected name: %s", name)
	}
}

func TestSafeToolNameDedupesCollisions(t *testing.T) {
	used := map[string]struct{}{}
	first := SafeToolName("svc", "Run!!", used)
	second := SafeToolName("svc", "run__", used)
	if first == second {
		t.Fatalf("expected sanitization collisions to be deduped, both got %s", first)
	}
}

func TestSafeToolNameTruncatesLongNames(t *testing.T) {
	used := map[string]struct{}{}
	longServer := "a_very_long_server_identifier_that_keeps_going_and_going"
	longTool := "a_very_long_tool_identifier_that_also_keeps_going"
	name := SafeToolName(longServer, longTool, used)
	if len(name) > maxToolNameLen {
		t.Fatalf("expected name within %d chars, got %d: %s", maxToolNameLen, len(name), name)
	}
}

func TestBridgeToolExecuteReturnsBridgeError(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		var req ToolCallRequest
		_ = ReadFrame(server, &req)
		_ = WriteFrame(server, ToolCallResponse{Error: "tool not found"})
	}()

	bridge := &Bridge{conn: client}
	tool := NewBridgeTool(bridge, "github", "create_issue", "github_create_issue", "creates an issue", nil)
	result, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.IsError || result.Content != "tool not found" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestDiscoverBridgeToolsWrapsEveryDescriptor(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		var req toolListRequest
		_ = ReadFrame(server, &req)
		_ = WriteFrame(server, toolListResponse{Tools: []ToolDescriptor{
			{Server: "github", Tool: "create_issue", Description: "creates an issue", Schema: json.RawMessage(`{"type":"object"}`)},
			{Server: "github", Tool: "list_issues", Description: "lists issues"},
		}})
	}()

	bridge := &Bridge{conn: client}
	discovered, err := DiscoverBridgeTools(context.Background(), bridge)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(discovered) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(discovered))
	}
	if discovered[0].Name() != "github_create_issue" || discovered[1].Name() != "github_list_issues" {
		t.Fatalf("unexpected tool names: %s, %s", discovered[0].Name(), discovered[1].Name())
	}
}

func TestListToolsSurfacesDaemonError(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		var req toolListRequest
		_ = ReadFrame(server, &req)
		_ = WriteFrame(server, toolListResponse{Error: "no servers configured"})
	}()

	bridge := &Bridge{conn: client}
	if _, err := bridge.ListTools(context.Background()); err == nil {
		t.Fatal("expected the daemon's error to propagate")
	}
}

func TestBridgeToolExecuteReturnsContent(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		var req ToolCallRequest
		_ = ReadFrame(server, &req)
		_ = WriteFrame(server, ToolCallResponse{Content: "done"})
	}()

	bridge := &Bridge{conn: client}
	tool := NewBridgeTool(bridge, "github", "create_issue", "github_create_issue", "creates an issue", nil)
	result, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.IsError || result.Content != "done" {
		t.Fatalf("unexpected result: %+v", result)
	}
}
