package models

// ResolvedConfig is the single effective configuration for one loop
// invocation. It is produced by internal/config's resolver from (builtin
// defaults, global file, per-context overrides file, runtime set-field
// overrides) and is otherwise treated as a plain value by every other
// package — nothing below the resolver reads a file or an env var.
type ResolvedConfig struct {
	Identity IdentityConfig `toml:"identity"`
	Budget   BudgetConfig   `toml:"budget"`
	Behavior BehaviorConfig `toml:"behavior"`
	Cache    CacheConfig    `toml:"cache"`
	Security SecurityConfig `toml:"security"`
	API      APIConfig      `toml:"api"`
}

type IdentityConfig struct {
	Model            string `toml:"model"`
	APIKey           string `toml:"api_key"`
	Username         string `toml:"username"`
	FallbackTool     string `toml:"fallback_tool"`
	SubagentCostTier string `toml:"subagent_cost_tier"`
}

// BudgetConfig holds the fuel accounting parameters. Fuel == 0 means
// unlimited: no decrements, no exhaustion checks, no fuel-tagged events.
type BudgetConfig struct {
	Fuel                  int `toml:"fuel"`
	FuelEmptyResponseCost int `toml:"fuel_empty_response_cost"`
	ContextWindowLimit    int `toml:"context_window_limit"`
	WarnThresholdPercent  int `toml:"warn_threshold_percent"`
}

type BehaviorConfig struct {
	NoToolCalls                  bool    `toml:"no_tool_calls"`
	ReflectionEnabled            bool    `toml:"reflection_enabled"`
	ReflectionCharacterLimit     int     `toml:"reflection_character_limit"`
	AutoCompact                  bool    `toml:"auto_compact"`
	AutoCompactThreshold         float64 `toml:"auto_compact_threshold"`
	RollingCompactDropPercentage float64 `toml:"rolling_compact_drop_percentage"`
}

type CacheConfig struct {
	ToolOutputCacheThreshold int  `toml:"tool_output_cache_threshold"`
	ToolCachePreviewChars    int  `toml:"tool_cache_preview_chars"`
	ToolCacheMaxAgeDays      int  `toml:"tool_cache_max_age_days"`
	AutoCleanupCache         bool `toml:"auto_cleanup_cache"`
}

// SecurityConfig carries the file-tool allowlist. An empty AllowedPaths
// denies every file_tools_allowed_paths-gated operation (fail-safe deny).
type SecurityConfig struct {
	FileToolsAllowedPaths []string `toml:"file_tools_allowed_paths"`
}

type APIConfig struct {
	Temperature      *float64       `toml:"temperature"`
	MaxTokens        int            `toml:"max_tokens"`
	TopP             *float64       `toml:"top_p"`
	PresencePenalty  *float64       `toml:"presence_penalty"`
	FrequencyPenalty *float64       `toml:"frequency_penalty"`
	Reasoning        ReasoningConfig `toml:"reasoning"`
}

type ReasoningConfig struct {
	Enabled bool    `toml:"enabled"`
	Effort  *string `toml:"effort"`
}

// FuelUnlimited reports whether the budget's fuel sentinel disables all
// fuel accounting for this invocation.
func (b BudgetConfig) FuelUnlimited() bool {
	return b.Fuel == 0
}

// DefaultResolvedConfig returns the built-in defaults that sit at the
// bottom of the resolution order, before any file or override is applied.
func DefaultResolvedConfig() ResolvedConfig {
	return ResolvedConfig{
		Identity: IdentityConfig{
			Model:            "claude-sonnet-4-20250514",
			SubagentCostTier: "low",
		},
		Budget: BudgetConfig{
			Fuel:                  0,
			FuelEmptyResponseCost: 15,
			ContextWindowLimit:    0,
			WarnThresholdPercent:  85,
		},
		Behavior: BehaviorConfig{
			ReflectionCharacterLimit:     4000,
			AutoCompact:                  true,
			AutoCompactThreshold:         0.8,
			RollingCompactDropPercentage: 0.3,
		},
		Cache: CacheConfig{
			ToolOutputCacheThreshold: 5000,
			ToolCachePreviewChars:    400,
			ToolCacheMaxAgeDays:      7,
			AutoCleanupCache:         true,
		},
		Security: SecurityConfig{},
		API: APIConfig{
			MaxTokens: 4096,
		},
	}
}
