// Package presets resolves (tier, capability) pairs to a model and a set
// of default API parameters (spec §4.9, glossary: "Preset — (tier,
// capability) → model + default parameters, resolved by the gateway").
// It is consulted by internal/subagent when spawning a sub-agent: the
// parent's identity.subagent_cost_tier plus a capability name supplied
// at the call site select a Preset, whose Model overwrites the child
// config's model and whose Parameters fill any field the caller left
// unset (explicit per-call overrides still win over the preset).
//
// Grounded on the teacher's internal/agent/providers/anthropic.go
// Models() method: a small, in-process table of named model metadata,
// looked up by a key derived from the call rather than chosen by the
// caller directly. Nexus's registry is provider-keyed by model ID with
// context-size/vision metadata; chibi's is tier+capability keyed with
// model+parameter metadata, since spec ties sub-agent cost control to
// an explicit tier rather than provider capability probing.
package presets

import "github.com/chibi-ai/chibi/pkg/models"

// Preset is what a (tier, capability) lookup resolves to: a model name
// and the API defaults a sub-agent should start from.
type Preset struct {
	Model      string
	Parameters models.APIConfig
}

// Tier is the cost/capability band named by identity.subagent_cost_tier.
type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// Capability names a sub-agent task shape: what kind of work the spawned
// call is meant to do, independent of which tier is paying for it. These
// are the values a spawn_agent/retrieve_content call site supplies; the
// registry's key space is the cross product of Tier and Capability.
type Capability string

const (
	CapabilityGeneral   Capability = "general"
	CapabilityResearch  Capability = "research"
	CapabilityCoding    Capability = "coding"
	CapabilityRetrieval Capability = "retrieval"
)

func ptr(f float64) *float64 { return &f }

// key joins a tier and capability into the registry's lookup key.
func key(tier Tier, capability Capability) string {
	return string(tier) + "/" + string(capability)
}

// Registry holds the in-process preset table. The zero value is not
// usable; construct with NewRegistry.
type Registry struct {
	presets      map[string]Preset
	capabilities []Capability
}

// NewRegistry builds the built-in preset table. There is no file-backed
// override path in this core: presets are part of the gateway's static
// model metadata, the same way the teacher's provider hardcodes its
// Models() table.
func NewRegistry() *Registry {
	r := &Registry{
		presets: map[string]Preset{
			key(TierLow, CapabilityGeneral):      {Model: "claude-3-5-haiku-20241022", Parameters: models.APIConfig{MaxTokens: 2048}},
			key(TierLow, CapabilityResearch):     {Model: "claude-3-5-haiku-20241022", Parameters: models.APIConfig{MaxTokens: 4096}},
			key(TierLow, CapabilityCoding):       {Model: "claude-3-5-haiku-20241022", Parameters: models.APIConfig{MaxTokens: 4096, Temperature: ptr(0)}},
			key(TierLow, CapabilityRetrieval):    {Model: "claude-3-5-haiku-20241022", Parameters: models.APIConfig{MaxTokens: 2048}},
			key(TierMedium, CapabilityGeneral):   {Model: "claude-sonnet-4-20250514", Parameters: models.APIConfig{MaxTokens: 4096}},
			key(TierMedium, CapabilityResearch):  {Model: "claude-sonnet-4-20250514", Parameters: models.APIConfig{MaxTokens: 8192}},
			key(TierMedium, CapabilityCoding):    {Model: "claude-sonnet-4-20250514", Parameters: models.APIConfig{MaxTokens: 8192, Temperature: ptr(0)}},
			key(TierMedium, CapabilityRetrieval): {Model: "claude-sonnet-4-20250514", Parameters: models.APIConfig{MaxTokens: 4096}},
			key(TierHigh, CapabilityGeneral):     {Model: "claude-opus-4-20250514", Parameters: models.APIConfig{MaxTokens: 8192}},
			key(TierHigh, CapabilityResearch):    {Model: "claude-opus-4-20250514", Parameters: models.APIConfig{MaxTokens: 16384}},
			key(TierHigh, CapabilityCoding):      {Model: "claude-opus-4-20250514", Parameters: models.APIConfig{MaxTokens: 16384, Temperature: ptr(0)}},
			key(TierHigh, CapabilityRetrieval):   {Model: "claude-opus-4-20250514", Parameters: models.APIConfig{MaxTokens: 8192}},
		},
		capabilities: []Capability{CapabilityGeneral, CapabilityResearch, CapabilityCoding, CapabilityRetrieval},
	}
	return r
}

// Resolve looks up the preset for a tier+capability pair. An unrecognized
// tier falls back to TierMedium; an unrecognized capability falls back
// to CapabilityGeneral — spawn calls should never hard-fail just because
// a caller typed a capability name the registry doesn't recognize yet.
func (r *Registry) Resolve(tier Tier, capability Capability) Preset {
	if p, ok := r.presets[key(tier, capability)]; ok {
		return p
	}
	if p, ok := r.presets[key(tier, CapabilityGeneral)]; ok {
		return p
	}
	if p, ok := r.presets[key(TierMedium, capability)]; ok {
		return p
	}
	return r.presets[key(TierMedium, CapabilityGeneral)]
}

// Capabilities returns the known capability names in a stable order, for
// building the dynamic "preset" parameter description a sub-agent-spawning
// tool's schema exposes at registration time (spec line 269: "fields
// like the preset parameter's description are built from runtime data —
// available capability names — no compile-time static descriptions").
func (r *Registry) Capabilities() []Capability {
	out := make([]Capability, len(r.capabilities))
	copy(out, r.capabilities)
	return out
}
