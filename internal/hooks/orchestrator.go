// Package hooks implements the core's hook orchestrator (spec §4.5):
// registration-order dispatch across every plugin subscribed to a hook
// point, merged into a single Decision per the spec's explicit per-key
// merge policy. Grounded on the teacher's internal/hooks registry
// (panic-safe dispatch, fluent registration builder), generalized from a
// priority-ordered system onto spec's plain registration-order one.
package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/chibi-ai/chibi/pkg/models"
)

// HandlerFunc invokes one registered hook subscriber with the raw hook
// payload and returns its parsed result. Implementations wrap whatever
// actually runs the plugin (internal/plugin's executor, for
// plugin-backed hooks) so this package stays free of process-exec
// concerns.
type HandlerFunc func(ctx context.Context, point models.HookPoint, data json.RawMessage) (HookResult, error)

type registration struct {
	name    string
	points  map[models.HookPoint]bool
	handler HandlerFunc
}

// Orchestrator holds every registered hook subscriber and dispatches hook
// points to them in the order they were registered.
type Orchestrator struct {
	mu            sync.Mutex
	registrations []registration
}

// New returns an empty Orchestrator.
func New() *Orchestrator {
	return &Orchestrator{}
}

// Register subscribes handler, identified by name for diagnostics, to
// every hook point in points. Registration order is preserved across
// calls and is what Dispatch iterates in.
func (o *Orchestrator) Register(name string, points []models.HookPoint, handler HandlerFunc) {
	set := make(map[models.HookPoint]bool, len(points))
	for _, p := range points {
		set[p] = true
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.registrations = append(o.registrations, registration{name: name, points: set, handler: handler})
}

// Dispatch fires point against every subscribed plugin in registration
// order, folding their outputs into one Decision. A plugin failure
// (handler returning an error) never panics the orchestrator: it is
// recorded as a diagnostic and, for a permission-gate hook point, forces
// the decision to deny per spec §4.5.
func (o *Orchestrator) Dispatch(ctx context.Context, point models.HookPoint, data json.RawMessage) (*Decision, []string) {
	o.mu.Lock()
	subscribed := make([]registration, 0, len(o.registrations))
	for _, r := range o.registrations {
		if r.points[point] {
			subscribed = append(subscribed, r)
		}
	}
	o.mu.Unlock()

	decision := newDecision()
	var diagnostics []string

	for _, r := range subscribed {
		result, err := o.invokeSafely(ctx, r, point, data)
		if err != nil {
			diagnostics = append(diagnostics, fmt.Sprintf("hook %q at %s: %v", r.name, point, err))
			if models.PermissionGates[point] {
				decision.deny(fmt.Sprintf("%s failed: %v", r.name, err))
			}
			continue
		}
		decision.merge(result)
	}

	return decision, diagnostics
}

// invokeSafely recovers a panicking handler into an error so one
// misbehaving plugin wrapper never takes down the loop, matching the
// teacher's panic-safe dispatch idiom.
func (o *Orchestrator) invokeSafely(ctx context.Context, r registration, point models.HookPoint, data json.RawMessage) (result HookResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return r.handler(ctx, point, data)
}
