package plugin

import "encoding/json"

// Manifest is the schema a plugin executable reports on its first
// invocation (single-argument schema discovery, spec §4.4).
type Manifest struct {
	Name          string            `json:"name"`
	Description   string            `json:"description"`
	Parameters    json.RawMessage   `json:"parameters"`
	Hooks         []string          `json:"hooks,omitempty"`
	SummaryParams []string          `json:"summary_params,omitempty"`
}
