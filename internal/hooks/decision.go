package hooks

// HookResult is the JSON shape a plugin may return on stdout for a hook
// invocation (spec §4.4). Every field is optional; an empty object has no
// effect.
type HookResult struct {
	Approve   *bool         `json:"approve,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Filter    *FilterResult `json:"filter,omitempty"`
	Request   map[string]interface{} `json:"request,omitempty"`
	Fuel      *int          `json:"fuel,omitempty"`
	FuelDelta *int          `json:"fuel_delta,omitempty"`
	Fallback  *string       `json:"fallback,omitempty"`
	Prompt    *string       `json:"prompt,omitempty"`
}

// FilterResult is the pre_api_tools tool-list filter payload.
type FilterResult struct {
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
}

// Decision is the mutable record a hook point's dispatch accumulates
// plugin outputs into, one plugin at a time in registration order, per
// spec §4.5's merge policy.
type Decision struct {
	Approve        *bool
	FilterInclude  map[string]bool
	FilterExclude  map[string]bool
	Fuel           *int
	FuelDelta      int
	Request        map[string]interface{}
	Prompt         *string
	Fallback       *string
	DenyReasons    []string
}

func newDecision() *Decision {
	return &Decision{
		FilterInclude: map[string]bool{},
		FilterExclude: map[string]bool{},
		Request:       map[string]interface{}{},
	}
}

// Approved reports the net approve/deny outcome: no plugin ever setting
// Approve defaults to approved (the caller decides fail-safe-deny
// defaults for its own permission gates, e.g. security.ClassifyURL's
// Sensitive-with-no-handler case, before calling Dispatch).
func (d *Decision) Approved() bool {
	return d.Approve == nil || *d.Approve
}

// merge folds one plugin's HookResult into d per spec §4.5:
//   - approve: logical AND (any deny wins);
//   - filter.include/exclude: set union;
//   - fuel: absolute, last write wins;
//   - fuel_delta: additive;
//   - request: shallow merge, last write wins per key;
//   - prompt, fallback: last write wins.
func (d *Decision) merge(r HookResult) {
	if r.Approve != nil {
		v := *r.Approve
		if d.Approve == nil {
			d.Approve = &v
		} else {
			combined := *d.Approve && v
			d.Approve = &combined
		}
		if !v && r.Reason != "" {
			d.DenyReasons = append(d.DenyReasons, r.Reason)
		}
	}

	if r.Filter != nil {
		for _, name := range r.Filter.Include {
			d.FilterInclude[name] = true
		}
		for _, name := range r.Filter.Exclude {
			d.FilterExclude[name] = true
		}
	}

	if r.Fuel != nil {
		v := *r.Fuel
		d.Fuel = &v
	}
	if r.FuelDelta != nil {
		d.FuelDelta += *r.FuelDelta
	}

	for k, v := range r.Request {
		d.Request[k] = v
	}

	if r.Prompt != nil {
		d.Prompt = r.Prompt
	}
	if r.Fallback != nil {
		d.Fallback = r.Fallback
	}
}

// deny forces the decision to a denial, used when a permission-gate hook
// point's plugin invocation itself fails (non-zero exit / invalid JSON),
// which spec §4.5 treats as a deny rather than a silent pass-through.
func (d *Decision) deny(reason string) {
	no := false
	d.Approve = &no
	d.DenyReasons = append(d.DenyReasons, reason)
}
