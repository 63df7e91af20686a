package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTOML(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestResolveAppliesDefaultsWhenNoFiles(t *testing.T) {
	cfg, err := Resolve("", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Identity.Model != "claude-sonnet-4-20250514" {
		t.Fatalf("expected the builtin default model, got %q", cfg.Identity.Model)
	}
	if !cfg.Budget.FuelUnlimited() {
		t.Fatal("expected fuel unlimited by default")
	}
}

func TestResolveGlobalThenContextThenRuntimeOverride(t *testing.T) {
	dir := t.TempDir()
	global := writeTOML(t, dir, "config.toml", `
[identity]
model = "global-model"

[budget]
fuel = 100
`)
	perContext := writeTOML(t, dir, "local.toml", `
[budget]
fuel = 50
`)

	cfg, err := Resolve(global, perContext, map[string]interface{}{
		"budget": map[string]interface{}{"fuel": 10},
	})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Identity.Model != "global-model" {
		t.Fatalf("expected the global file's model to survive (not overridden by later layers), got %q", cfg.Identity.Model)
	}
	if cfg.Budget.Fuel != 10 {
		t.Fatalf("expected the runtime override to win over both files, got %d", cfg.Budget.Fuel)
	}
}

func TestResolvePartialTableDoesNotClobberSiblingKeys(t *testing.T) {
	dir := t.TempDir()
	global := writeTOML(t, dir, "config.toml", `
[cache]
tool_output_cache_threshold = 1000
`)

	cfg, err := Resolve(global, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Cache.ToolOutputCacheThreshold != 1000 {
		t.Fatalf("expected the overridden threshold, got %d", cfg.Cache.ToolOutputCacheThreshold)
	}
	if cfg.Cache.ToolCacheMaxAgeDays != 7 {
		t.Fatalf("expected the default max age to survive a partial [cache] override, got %d", cfg.Cache.ToolCacheMaxAgeDays)
	}
}

func TestResolveRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	global := writeTOML(t, dir, "config.toml", `
[identity]
made_up_field = "nope"
`)

	if _, err := Resolve(global, "", nil); err == nil {
		t.Fatal("expected an error for an unknown config key")
	}
}
