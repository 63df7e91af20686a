package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/chibi-ai/chibi/internal/chibierr"
	"github.com/chibi-ai/chibi/pkg/models"
)

// Registry composes tool definitions from every category at startup and
// dispatches by name (spec §4.6). Tool names are globally unique across
// categories; a collision is a startup error. Grounded on the teacher's
// internal/agent/tool_registry.go name→handler map.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, returning a startup error on a name collision.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Name()
	if _, exists := r.tools[name]; exists {
		return chibierr.New(chibierr.InvalidInput, fmt.Sprintf("duplicate tool name: %s", name))
	}
	r.tools[name] = t
	return nil
}

// MustRegister panics on a name collision; used during startup composition
// where a collision is a programming error, not a runtime condition.
func (r *Registry) MustRegister(t Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Get returns the tool registered under name, if any.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns every registered tool sorted by name, for building the
// per-turn API tool list (spec §4.6) before hook filtering.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// ByCategory returns every registered tool of the given category, sorted
// by name.
func (r *Registry) ByCategory(category Category) []Tool {
	all := r.List()
	out := make([]Tool, 0, len(all))
	for _, t := range all {
		if t.Category() == category {
			out = append(out, t)
		}
	}
	return out
}

// CallOutcome pairs one tool call with its execution result, keeping the
// originating call alongside its outcome so the caller can write
// tool_call/tool_result transcript entries and diagnostics in emission
// order (spec §4.8 step 4) regardless of which calls ran in parallel.
type CallOutcome struct {
	Call   models.ToolCall
	Result Result
	Err    error
}

const defaultMaxParallel = 4

// ExecuteBatch runs one assistant turn's tool-call batch: calls whose tool
// is parallelizable run concurrently (bounded by maxParallel), everything
// else runs sequentially in emission order. Results land back at their
// original index, so the returned slice preserves the model's emission
// order regardless of internal parallelism (spec §4.6/§4.8). An unknown
// tool name resolves to an error outcome rather than panicking.
func (r *Registry) ExecuteBatch(ctx context.Context, calls []models.ToolCall) []CallOutcome {
	return r.executeBatch(ctx, calls, defaultMaxParallel)
}

func (r *Registry) executeBatch(ctx context.Context, calls []models.ToolCall, maxParallel int) []CallOutcome {
	outcomes := make([]CallOutcome, len(calls))
	if len(calls) == 0 {
		return outcomes
	}

	var parallelIdx, sequentialIdx []int
	for i, call := range calls {
		tool, ok := r.Get(call.Name)
		if ok && tool.Parallelizable() {
			parallelIdx = append(parallelIdx, i)
		} else {
			sequentialIdx = append(sequentialIdx, i)
		}
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxParallel)
	for _, idx := range parallelIdx {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			outcomes[i] = r.executeOne(ctx, calls[i])
		}(idx)
	}

	for _, idx := range sequentialIdx {
		outcomes[idx] = r.executeOne(ctx, calls[idx])
	}

	wg.Wait()
	return outcomes
}

func (r *Registry) executeOne(ctx context.Context, call models.ToolCall) (outcome CallOutcome) {
	outcome.Call = call
	defer func() {
		if rec := recover(); rec != nil {
			outcome.Result = Result{Content: fmt.Sprintf("tool panicked: %v", rec), IsError: true}
			outcome.Err = nil
		}
	}()

	tool, ok := r.Get(call.Name)
	if !ok {
		outcome.Result = Result{Content: fmt.Sprintf("unknown tool: %s", call.Name), IsError: true}
		return outcome
	}

	if err := validateArguments(tool, call.Input); err != nil {
		outcome.Result = Result{Content: fmt.Sprintf("arguments for %s failed schema validation: %v", call.Name, err), IsError: true}
		return outcome
	}

	result, err := tool.Execute(ctx, call.Input)
	outcome.Result = result
	outcome.Err = err
	return outcome
}

var schemaCache sync.Map

// validateArguments checks input against tool's declared JSON Schema
// before dispatch, compiling (and caching) each tool's schema once.
// Grounded on the teacher's pkg/pluginsdk/validation.go compileSchema
// pattern.
func validateArguments(tool Tool, input json.RawMessage) error {
	schema, err := compileSchema(tool.Schema())
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	raw := input
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}

	return schema.Validate(decoded)
}

func compileSchema(raw json.RawMessage) (*jsonschema.Schema, error) {
	key := string(raw)
	if cached, ok := schemaCache.Load(key); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}
	compiled, err := jsonschema.CompileString("tool.schema.json", key)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}
