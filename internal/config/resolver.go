// Package config implements the core's configuration resolver: a pure
// function from (builtin defaults, global config file, per-context
// overrides file, runtime set-field overrides) to a models.ResolvedConfig
// (spec §3/§9). Grounded on the teacher's internal/config/loader.go
// merge-then-strict-decode shape, retargeted from YAML onto TOML
// (spec §6 names config.toml/local.toml explicitly).
package config

import (
	"bytes"
	"os"

	"github.com/pelletier/go-toml"

	"github.com/chibi-ai/chibi/internal/chibierr"
	"github.com/chibi-ai/chibi/pkg/models"
)

// Resolve merges, in increasing priority, the builtin defaults, the
// global config file at globalPath, the per-context overrides file at
// contextPath, and runtimeOverrides (already-parsed caller-supplied
// set-field values), then strict-decodes the result into a
// models.ResolvedConfig. Either file path may be empty, meaning that
// layer is skipped. Unknown keys at any layer surface as an
// invalid_input error once the merged document is decoded.
func Resolve(globalPath, contextPath string, runtimeOverrides map[string]interface{}) (models.ResolvedConfig, error) {
	merged, err := structToMap(models.DefaultResolvedConfig())
	if err != nil {
		return models.ResolvedConfig{}, err
	}

	for _, path := range []string{globalPath, contextPath} {
		if path == "" {
			continue
		}
		layer, err := loadFileMap(path)
		if err != nil {
			return models.ResolvedConfig{}, err
		}
		mergeMaps(merged, layer)
	}

	if runtimeOverrides != nil {
		mergeMaps(merged, runtimeOverrides)
	}

	data, err := toml.Marshal(merged)
	if err != nil {
		return models.ResolvedConfig{}, chibierr.Wrap(chibierr.InternalError, "marshal merged config", err)
	}

	var cfg models.ResolvedConfig
	dec := toml.NewDecoder(bytes.NewReader(data)).Strict(true)
	if err := dec.Decode(&cfg); err != nil {
		return models.ResolvedConfig{}, chibierr.Wrap(chibierr.InvalidInput, "decode resolved config: unknown or malformed key", err)
	}
	return cfg, nil
}

// structToMap round-trips v through TOML to obtain a generic map
// representation suitable for layered merging.
func structToMap(v interface{}) (map[string]interface{}, error) {
	data, err := toml.Marshal(v)
	if err != nil {
		return nil, chibierr.Wrap(chibierr.InternalError, "marshal defaults", err)
	}
	tree, err := toml.LoadBytes(data)
	if err != nil {
		return nil, chibierr.Wrap(chibierr.InternalError, "load defaults tree", err)
	}
	return tree.ToMap(), nil
}

// loadFileMap loads path as a generic TOML map. A missing file is not an
// error: that layer is simply absent from the merge.
func loadFileMap(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]interface{}{}, nil
	}
	if err != nil {
		return nil, chibierr.Wrap(chibierr.InternalError, "read config file "+path, err)
	}
	tree, err := toml.LoadBytes(data)
	if err != nil {
		return nil, chibierr.Wrap(chibierr.InvalidInput, "parse config file "+path, err)
	}
	return tree.ToMap(), nil
}

// mergeMaps merges src into dst in place, recursing into nested tables so
// a layer only overriding a handful of leaf keys never clobbers the rest
// of a table inherited from a lower layer.
func mergeMaps(dst, src map[string]interface{}) {
	for k, v := range src {
		if srcSub, ok := v.(map[string]interface{}); ok {
			if dstSub, ok := dst[k].(map[string]interface{}); ok {
				mergeMaps(dstSub, srcSub)
				continue
			}
		}
		dst[k] = v
	}
}
