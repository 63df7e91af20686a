package plugin

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

const echoPluginScript = `#!/bin/sh
if [ "$1" = "--chibi-describe" ]; then
  echo '{"name":"echo","description":"echoes stdin","parameters":{"type":"object"}}'
  exit 0
fi
cat
`

func writeExecutable(t *testing.T, dir, name, content string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("plugin executor tests assume a POSIX shell")
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDiscoverParsesManifest(t *testing.T) {
	dir := t.TempDir()
	writeExecutable(t, dir, "echo_plugin.sh", echoPluginScript)

	e := NewExecutor(dir)
	plugins, diagnostics, err := e.Discover(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(diagnostics) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diagnostics)
	}
	if len(plugins) != 1 || plugins[0].Manifest.Name != "echo" {
		t.Fatalf("expected one echo plugin, got %+v", plugins)
	}
}

func TestInvokeToolRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := writeExecutable(t, dir, "echo_plugin.sh", echoPluginScript)

	e := NewExecutor(dir)
	out, err := e.InvokeTool(context.Background(), path, "echo", []byte(`{"message":"hi"}`))
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"message":"hi"}` {
		t.Fatalf("expected stdin echoed back verbatim, got %q", out)
	}
}

func TestInvokeToolNonZeroExitIsError(t *testing.T) {
	dir := t.TempDir()
	path := writeExecutable(t, dir, "failing.sh", "#!/bin/sh\ncat >/dev/null\nexit 1\n")

	e := NewExecutor(dir)
	if _, err := e.InvokeTool(context.Background(), path, "failing", []byte("x")); err == nil {
		t.Fatal("expected a non-zero exit to surface as an error")
	}
}

func TestDiscoverSkipsNonExecutableFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	e := NewExecutor(dir)
	plugins, _, err := e.Discover(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(plugins) != 0 {
		t.Fatalf("expected non-executable files to be skipped, got %d plugins", len(plugins))
	}
}

func TestDiscoverMissingDirectoryIsNotAnError(t *testing.T) {
	e := NewExecutor(filepath.Join(t.TempDir(), "does-not-exist"))
	plugins, diagnostics, err := e.Discover(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(plugins) != 0 || len(diagnostics) != 0 {
		t.Fatalf("expected an empty, error-free result for a missing plugins dir")
	}
}
