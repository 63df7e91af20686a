package plugin

import (
	"context"
	"testing"
)

func TestPluginToolExecuteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := writeExecutable(t, dir, "echo_plugin.sh", echoPluginScript)

	e := NewExecutor(dir)
	plugins, _, err := e.Discover(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(plugins) != 1 {
		t.Fatalf("expected one discovered plugin, got %d", len(plugins))
	}
	_ = path

	tool := NewTool(e, plugins[0])
	if tool.Name() != "echo" {
		t.Errorf("expected tool name %q, got %q", "echo", tool.Name())
	}
	if tool.Parallelizable() {
		t.Error("plugin tools must not be marked parallelizable")
	}

	result, err := tool.Execute(context.Background(), []byte(`{"n":1}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", result.Content)
	}
	if result.Content != `{"n":1}` {
		t.Errorf("expected echoed stdin, got %q", result.Content)
	}
}

func TestPluginToolExecuteSurfacesNonZeroExitAsToolError(t *testing.T) {
	dir := t.TempDir()
	path := writeExecutable(t, dir, "failing.sh", "#!/bin/sh\nif [ \"$1\" = \"--chibi-describe\" ]; then echo '{\"name\":\"failing\"}'; exit 0; fi\ncat >/dev/null\nexit 1\n")

	e := NewExecutor(dir)
	plugins, _, err := e.Discover(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(plugins) != 1 {
		t.Fatalf("expected one discovered plugin, got %d", len(plugins))
	}
	_ = path

	tool := NewTool(e, plugins[0])
	result, err := tool.Execute(context.Background(), []byte("x"))
	if err != nil {
		t.Fatalf("plugin failures must surface as a tool error, not a Go error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected a non-zero plugin exit to produce an error result")
	}
}
