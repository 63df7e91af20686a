// Package loop implements the fuel-budget agentic turn machine (spec
// §4.8): the per-context loop that builds a request from the
// reconstructed window, streams the model's response, executes any tool
// calls, and decides after each step whether to return control to the
// user or re-engage for another iteration. Grounded on the teacher's
// internal/agent/loop.go (AgenticLoop.Run/streamPhase/executeToolsPhase/
// continuePhase), retargeted from the teacher's MaxIterations/MaxToolCalls
// counters onto this core's single fuel budget and its call_user/
// call_agent handoff signals in place of the teacher's plain "no more
// tool calls" termination.
package loop

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chibi-ai/chibi/internal/compact"
	"github.com/chibi-ai/chibi/internal/gateway"
	"github.com/chibi-ai/chibi/internal/hooks"
	"github.com/chibi-ai/chibi/internal/inbox"
	"github.com/chibi-ai/chibi/internal/tools"
	agenttool "github.com/chibi-ai/chibi/internal/tools/agent"
	"github.com/chibi-ai/chibi/internal/transcript"
	"github.com/chibi-ai/chibi/internal/vfs"
	"github.com/chibi-ai/chibi/pkg/models"
)

// Streamer is the slice of *gateway.Client the loop actually depends on,
// narrowed to an interface so a fake can stand in for it in tests.
// Grounded on the teacher's LLMProvider seam (internal/agent/runtime.go).
type Streamer interface {
	Stream(ctx context.Context, req gateway.Request) <-chan gateway.StreamEvent
}

// Config wires the loop to the rest of the core. Every field is required
// for Run to behave correctly; Cache and Inbox may be nil, in which case
// caching and inbox injection are skipped entirely.
type Config struct {
	Tools      *tools.Registry
	Gateway    Streamer
	Transcript *transcript.Store
	Hooks      *hooks.Orchestrator
	Cache      *vfs.ToolCache
	Inbox      *inbox.Store
}

// RunOptions parameterizes one Run call: the context to operate on, its
// resolved configuration, the new user prompt (if any) to inject before
// the first iteration, and an optional caller-forced handoff that
// preempts the model-signalled one for exactly one evaluation.
type RunOptions struct {
	ContextName   string
	Config        models.ResolvedConfig
	Prompt        string
	ForcedHandoff *models.Handoff
}

// Loop runs the turn machine for one context at a time; it holds no
// per-context state itself, so a single Loop is safe to reuse (but not to
// call Run concurrently for the same ContextName, matching transcript's
// single-writer-per-context model).
type Loop struct {
	cfg Config
}

// New builds a Loop from cfg.
func New(cfg Config) *Loop {
	return &Loop{cfg: cfg}
}

const (
	fuelCostToolRound         = 1
	fuelCostAgentContinuation = 1

	// maxConsecutiveEmptyResponses bounds how many empty responses in a
	// row the loop tolerates before handing back to the user, even when
	// running with unlimited fuel (which has no decrement to exhaust
	// on). Without this, a model that keeps returning empty text with
	// unlimited fuel would spin forever.
	maxConsecutiveEmptyResponses = 3

	// defaultKeepRecentMessages is how many trailing messages
	// auto-compaction always keeps verbatim, archiving everything
	// older into one summary (spec §4's compaction section names no
	// specific count, so this is this implementation's choice).
	defaultKeepRecentMessages = 20
)

// turnState is the loop's mutable state across iterations of one Run
// call.
type turnState struct {
	fuelTotal         int
	fuel              int
	fuelUnlimited     bool
	emptyResponseCost int

	pendingPrompt  string
	originalPrompt string

	consecutiveEmpty int
	firstIteration   bool
	forcedHandoff    *models.Handoff

	hookFallbackOverride *string
	hookPromptOverride   *string
}

// Run starts the turn machine and returns a channel of ResponseEvents,
// closed once the turn hands control back to the user (or the context is
// cancelled).
func (l *Loop) Run(ctx context.Context, opts RunOptions) <-chan models.ResponseEvent {
	out := make(chan models.ResponseEvent, 32)
	go func() {
		defer close(out)
		l.run(ctx, opts, out)
	}()
	return out
}

func (l *Loop) run(ctx context.Context, opts RunOptions, out chan<- models.ResponseEvent) {
	state := &turnState{
		fuelTotal:         opts.Config.Budget.Fuel,
		fuel:              opts.Config.Budget.Fuel,
		fuelUnlimited:     opts.Config.Budget.FuelUnlimited(),
		emptyResponseCost: opts.Config.Budget.FuelEmptyResponseCost,
		pendingPrompt:     opts.Prompt,
		originalPrompt:    opts.Prompt,
		firstIteration:    true,
		forcedHandoff:     opts.ForcedHandoff,
	}

	for {
		if ctx.Err() != nil {
			return
		}

		stop, err := l.iterate(ctx, opts, state, out)
		if err != nil {
			emitDiagnostic(out, "loop", err.Error())
			return
		}
		if stop {
			return
		}
	}
}

// iterate runs one pass of the single-iteration algorithm (spec §4.8).
func (l *Loop) iterate(ctx context.Context, opts RunOptions, state *turnState, out chan<- models.ResponseEvent) (bool, error) {
	cfg := opts.Config
	state.hookFallbackOverride = nil
	state.hookPromptOverride = nil

	if state.firstIteration {
		state.firstIteration = false
		payload, _ := json.Marshal(map[string]string{"context": opts.ContextName})
		decision, diags := l.cfg.Hooks.Dispatch(ctx, models.HookPreAgenticLoop, payload)
		for _, d := range diags {
			emitDiagnostic(out, string(models.HookPreAgenticLoop), d)
		}
		applyFuelOverride(state, decision)
	}

	messages, err := l.prepareTurnMessages(ctx, opts, state, out)
	if err != nil {
		return true, err
	}

	toolList := l.filterTools(ctx, opts.ContextName, l.cfg.Tools.List(), out)
	apiParams := l.resolveAPIParams(ctx, cfg, out)

	if !state.fuelUnlimited {
		emitEvent(out, models.ResponseEvent{FuelStatus: &models.FuelStatusEvent{
			Remaining:     state.fuel,
			Total:         state.fuelTotal,
			Event:         models.FuelEnteringTurn,
			PromptPreview: preview(lastUserContent(messages)),
		}})
	}

	req := gateway.Request{
		Model:    cfg.Identity.Model,
		Messages: messages,
		Tools:    toolList,
		API:      apiParams,
	}

	assistantText, _, calls, err := l.streamTurn(ctx, req, out)
	if err != nil {
		return true, err
	}

	signal := handoffSignalFromCalls(calls, cfg.Identity.FallbackTool)
	realCalls := stripSignalCalls(calls, cfg.Identity.FallbackTool)

	if len(realCalls) > 0 {
		return l.runToolPhase(ctx, opts, state, realCalls, out)
	}

	if strings.TrimSpace(assistantText) == "" && signal == models.HandoffNone {
		return l.handleEmptyResponse(state, out)
	}
	state.consecutiveEmpty = 0

	if strings.TrimSpace(assistantText) != "" {
		entry := models.TranscriptEntry{
			Timestamp: time.Now(),
			EntryType: models.EntryMessage,
			Role:      models.RoleAssistant,
			Content:   assistantText,
		}
		if err := l.cfg.Transcript.Append(opts.ContextName, entry); err != nil {
			return true, err
		}
		payload, _ := json.Marshal(map[string]string{"content": assistantText})
		_, diags := l.cfg.Hooks.Dispatch(ctx, models.HookPostMessage, payload)
		for _, d := range diags {
			emitDiagnostic(out, string(models.HookPostMessage), d)
		}
	}

	return l.evaluateHandoff(ctx, opts, state, signal, out)
}

// handleEmptyResponse applies the empty-response fuel cost (spec §4.8's
// fuel cost table), or the consecutive-empty safety valve when running
// with unlimited fuel.
func (l *Loop) handleEmptyResponse(state *turnState, out chan<- models.ResponseEvent) (bool, error) {
	state.consecutiveEmpty++

	if state.fuelUnlimited {
		return state.consecutiveEmpty >= maxConsecutiveEmptyResponses, nil
	}

	state.fuel -= state.emptyResponseCost
	if state.fuel < 0 {
		state.fuel = 0
	}
	emitEvent(out, models.ResponseEvent{FuelStatus: &models.FuelStatusEvent{
		Remaining: state.fuel, Total: state.fuelTotal, Event: models.FuelEmptyResponse,
	}})
	if state.fuel <= 0 {
		emitEvent(out, models.ResponseEvent{FuelExhausted: &models.FuelExhaustedEvent{Total: state.fuelTotal}})
		return true, nil
	}
	return false, nil
}

// evaluateHandoff implements step 6 of the single-iteration algorithm: a
// forced handoff preempts the model-signalled one; otherwise Agent
// re-engages and User (or no signal at all) ends the turn.
func (l *Loop) evaluateHandoff(ctx context.Context, opts RunOptions, state *turnState, signal models.HandoffKind, out chan<- models.ResponseEvent) (bool, error) {
	if state.forcedHandoff != nil {
		forced := *state.forcedHandoff
		state.forcedHandoff = nil
		if forced.Kind == models.HandoffAgent {
			return l.reengage(ctx, opts, state, out)
		}
		return true, nil
	}

	if signal == models.HandoffAgent {
		return l.reengage(ctx, opts, state, out)
	}
	return true, nil
}

// reengage consumes the agent-continuation fuel cost and queues the
// continuation prompt for the next iteration.
func (l *Loop) reengage(ctx context.Context, opts RunOptions, state *turnState, out chan<- models.ResponseEvent) (bool, error) {
	if !state.fuelUnlimited {
		state.fuel -= fuelCostAgentContinuation
		if state.fuel < 0 {
			state.fuel = 0
		}
		emitEvent(out, models.ResponseEvent{FuelStatus: &models.FuelStatusEvent{
			Remaining: state.fuel, Total: state.fuelTotal, Event: models.FuelAfterContinuation,
		}})
		if state.fuel <= 0 {
			emitEvent(out, models.ResponseEvent{FuelExhausted: &models.FuelExhaustedEvent{Total: state.fuelTotal}})
			return true, nil
		}
	}

	fallback := opts.Config.Identity.FallbackTool
	if state.hookFallbackOverride != nil {
		fallback = *state.hookFallbackOverride
	}
	if fallback == "" {
		fallback = "call_agent"
	}

	if state.hookPromptOverride != nil {
		state.pendingPrompt = *state.hookPromptOverride
	} else {
		state.pendingPrompt = continuationPrompt(fallback, state.fuel, state.fuelTotal, state.fuelUnlimited, state.originalPrompt)
	}
	return false, nil
}

// prepareTurnMessages implements step 2: persist the pending prompt (the
// initial user prompt or a synthetic continuation), drain and persist any
// queued inbox messages, reconstruct the window, and auto-compact it if
// it has grown past the configured threshold.
func (l *Loop) prepareTurnMessages(ctx context.Context, opts RunOptions, state *turnState, out chan<- models.ResponseEvent) ([]models.Message, error) {
	if state.pendingPrompt != "" {
		entry := models.TranscriptEntry{
			Timestamp: time.Now(),
			EntryType: models.EntryMessage,
			Role:      models.RoleUser,
			Content:   state.pendingPrompt,
		}
		if err := l.cfg.Transcript.Append(opts.ContextName, entry); err != nil {
			return nil, err
		}
		state.pendingPrompt = ""
	}

	if l.cfg.Inbox != nil {
		queued, err := l.cfg.Inbox.Drain(opts.ContextName)
		if err != nil {
			return nil, err
		}
		if len(queued) > 0 {
			entries := make([]models.TranscriptEntry, len(queued))
			for i, m := range queued {
				entries[i] = models.TranscriptEntry{
					Timestamp: m.QueuedAt,
					EntryType: models.EntryMessage,
					Role:      models.RoleUser,
					Content:   m.Content,
				}
			}
			if err := l.cfg.Transcript.AppendBatch(opts.ContextName, entries); err != nil {
				return nil, err
			}
			emitEvent(out, models.ResponseEvent{InboxInjected: &models.InboxInjectedEvent{Count: len(queued)}})
		}
	}

	entries, diags, err := l.cfg.Transcript.ReadAll(opts.ContextName)
	if err != nil {
		return nil, err
	}
	for _, d := range diags {
		emitDiagnostic(out, "transcript", d)
	}
	window, recDiags := transcript.ReconstructWindow(entries)
	for _, d := range recDiags {
		emitDiagnostic(out, "transcript", d)
	}

	cfg := opts.Config
	contextWindowLimit := compact.ResolveContextWindowTokens(0, cfg.Budget.ContextWindowLimit)
	tokens := compact.EstimateMessagesTokens(window)
	if compact.IsOverWarnThreshold(tokens, contextWindowLimit, float64(cfg.Budget.WarnThresholdPercent)/100) {
		emitEvent(out, models.ResponseEvent{ContextWarning: &models.ContextWarningEvent{
			TokensRemaining: contextWindowLimit - tokens,
		}})
	}
	if compact.ShouldAutoCompact(tokens, contextWindowLimit, cfg.Behavior.AutoCompactThreshold, cfg.Behavior.AutoCompact) {
		compacted, err := l.autoCompact(ctx, opts, window, out)
		if err != nil {
			emitDiagnostic(out, "auto_compact", err.Error())
		} else {
			window = compacted
		}
	}

	return window, nil
}

// filterTools dispatches pre_api_tools and applies its include/exclude
// filter to the registry's full tool list.
func (l *Loop) filterTools(ctx context.Context, contextName string, all []tools.Tool, out chan<- models.ResponseEvent) []tools.Tool {
	payload, _ := json.Marshal(map[string]string{"context": contextName})
	decision, diags := l.cfg.Hooks.Dispatch(ctx, models.HookPreAPITools, payload)
	for _, d := range diags {
		emitDiagnostic(out, string(models.HookPreAPITools), d)
	}

	if len(decision.FilterInclude) == 0 && len(decision.FilterExclude) == 0 {
		return all
	}
	filtered := make([]tools.Tool, 0, len(all))
	for _, t := range all {
		if decision.FilterExclude[t.Name()] {
			continue
		}
		if len(decision.FilterInclude) > 0 && !decision.FilterInclude[t.Name()] {
			continue
		}
		filtered = append(filtered, t)
	}
	return filtered
}

// resolveAPIParams dispatches pre_api_request and folds any request-map
// overrides into the resolved API config for this turn only.
func (l *Loop) resolveAPIParams(ctx context.Context, cfg models.ResolvedConfig, out chan<- models.ResponseEvent) models.APIConfig {
	payload, _ := json.Marshal(map[string]interface{}{"max_tokens": cfg.API.MaxTokens})
	decision, diags := l.cfg.Hooks.Dispatch(ctx, models.HookPreAPIRequest, payload)
	for _, d := range diags {
		emitDiagnostic(out, string(models.HookPreAPIRequest), d)
	}

	params := cfg.API
	if v, ok := decision.Request["max_tokens"].(float64); ok && v > 0 {
		params.MaxTokens = int(v)
	}
	if v, ok := decision.Request["temperature"].(float64); ok {
		params.Temperature = &v
	}
	return params
}

// streamTurn drains one model response into accumulated text, reasoning,
// and completed tool calls, forwarding text/reasoning chunks to out as
// they arrive (spec §4.8 step 4).
func (l *Loop) streamTurn(ctx context.Context, req gateway.Request, out chan<- models.ResponseEvent) (text, reasoning string, calls []models.ToolCall, err error) {
	emitEvent(out, models.ResponseEvent{StartResponse: true})

	type pendingCall struct {
		id, name string
		input    strings.Builder
	}
	pending := map[string]*pendingCall{}
	var order []string
	var textBuilder, reasoningBuilder strings.Builder

	for evt := range l.cfg.Gateway.Stream(ctx, req) {
		switch evt.Kind {
		case gateway.EventTextDelta:
			textBuilder.WriteString(evt.Text)
			emitEvent(out, models.ResponseEvent{TextChunk: evt.Text})

		case gateway.EventReasoning:
			reasoningBuilder.WriteString(evt.Reasoning)
			emitEvent(out, models.ResponseEvent{Reasoning: evt.Reasoning})

		case gateway.EventToolCallStart:
			pc := &pendingCall{id: evt.ToolCallID, name: evt.ToolCallName}
			pending[evt.ToolCallID] = pc
			order = append(order, evt.ToolCallID)
			emitEvent(out, models.ResponseEvent{ToolStart: &models.ToolStartEvent{Name: evt.ToolCallName}})

		case gateway.EventToolCallDelta:
			if pc, ok := pending[evt.ToolCallID]; ok {
				pc.input.WriteString(evt.InputDelta)
			}

		case gateway.EventError:
			return "", "", nil, evt.Err

		case gateway.EventDone:
			// No-op: the range loop ends naturally when the channel closes.
		}
	}

	emitEvent(out, models.ResponseEvent{Finished: true})

	calls = make([]models.ToolCall, 0, len(order))
	for _, id := range order {
		pc := pending[id]
		raw := pc.input.String()
		if raw == "" {
			raw = "{}"
		}
		calls = append(calls, models.ToolCall{ID: pc.id, Name: pc.name, Input: json.RawMessage(raw)})
	}

	return textBuilder.String(), reasoningBuilder.String(), calls, nil
}

// fileToolGates maps file-, coding- and spawn_agent tool names onto the
// permission gate the loop must dispatch before running them, since
// those tools do not self-gate. retrieve_content is absent here
// deliberately: internal/subagent already fires pre_fetch_url itself.
var fileToolGates = map[string]models.HookPoint{
	"read_file":   models.HookPreFileRead,
	"write_file":  models.HookPreFileWrite,
	"shell_exec":  models.HookPreShellExec,
	"spawn_agent": models.HookPreSpawnAgent,
}

// runToolPhase implements the tool-execution phase (spec §4.8): gate,
// execute, cache oversized output, persist every tool_call entry then
// every tool_result entry as one fsynced batch, then consume the tool-round fuel cost and loop
// unconditionally (no handoff evaluation here; that only applies to a
// plain-text response).
func (l *Loop) runToolPhase(ctx context.Context, opts RunOptions, state *turnState, calls []models.ToolCall, out chan<- models.ResponseEvent) (bool, error) {
	cfg := opts.Config
	state.consecutiveEmpty = 0

	outcomes := make([]tools.CallOutcome, len(calls))
	denied := make([]bool, len(calls))

	execCalls := make([]models.ToolCall, 0, len(calls))
	execIdx := make([]int, 0, len(calls))

	for i, call := range calls {
		payload, _ := json.Marshal(map[string]interface{}{"tool": call.Name, "input": call.Input})

		decision, diags := l.cfg.Hooks.Dispatch(ctx, models.HookPreTool, payload)
		for _, d := range diags {
			emitDiagnostic(out, string(models.HookPreTool), d)
		}
		if !decision.Approved() {
			outcomes[i] = tools.CallOutcome{Call: call, Result: tools.Result{Content: denyMessage(decision), IsError: true}}
			denied[i] = true
			continue
		}

		if gate, ok := fileToolGates[call.Name]; ok {
			gateDecision, gateDiags := l.cfg.Hooks.Dispatch(ctx, gate, payload)
			for _, d := range gateDiags {
				emitDiagnostic(out, string(gate), d)
			}
			if !gateDecision.Approved() {
				outcomes[i] = tools.CallOutcome{Call: call, Result: tools.Result{Content: denyMessage(gateDecision), IsError: true}}
				denied[i] = true
				continue
			}
		}

		execCalls = append(execCalls, call)
		execIdx = append(execIdx, i)
	}

	if len(execCalls) > 0 {
		runCtx := agenttool.WithConfig(ctx, cfg)
		execOutcomes := l.cfg.Tools.ExecuteBatch(runCtx, execCalls)
		for j, idx := range execIdx {
			outcomes[idx] = execOutcomes[j]
		}
	}

	callEntries := make([]models.TranscriptEntry, 0, len(calls))
	resultEntries := make([]models.TranscriptEntry, 0, len(calls))

	for i, call := range calls {
		callEntries = append(callEntries, models.TranscriptEntry{
			Timestamp:  time.Now(),
			EntryType:  models.EntryToolCall,
			ToolName:   call.Name,
			ToolCallID: call.ID,
			Content:    string(call.Input),
		})

		outcome := outcomes[i]
		content := outcome.Result.Content
		isError := outcome.Result.IsError
		if outcome.Err != nil {
			content = outcome.Err.Error()
			isError = true
		}

		if !denied[i] {
			outPayload, _ := json.Marshal(map[string]interface{}{"tool": call.Name, "content": content, "is_error": isError})
			preOutDecision, preOutDiags := l.cfg.Hooks.Dispatch(ctx, models.HookPreToolOutput, outPayload)
			for _, d := range preOutDiags {
				emitDiagnostic(out, string(models.HookPreToolOutput), d)
			}
			if replacement, ok := preOutDecision.Request["content"].(string); ok {
				content = replacement
			}

			cached := false
			if !isError && cfg.Cache.ToolOutputCacheThreshold > 0 && l.cfg.Cache != nil && len(content) > cfg.Cache.ToolOutputCacheThreshold {
				cacheDecision, cacheDiags := l.cfg.Hooks.Dispatch(ctx, models.HookPreCacheOutput, outPayload)
				for _, d := range cacheDiags {
					emitDiagnostic(out, string(models.HookPreCacheOutput), d)
				}
				if cacheDecision.Approved() {
					id := vfs.CacheID(call.Name, time.Now(), []byte(content))
					if putErr := l.cfg.Cache.Put(vfs.SystemCaller, opts.ContextName, id, []byte(content)); putErr == nil {
						l.cfg.Hooks.Dispatch(ctx, models.HookPostCacheOutput, outPayload)
						previewChars := cfg.Cache.ToolCachePreviewChars
						body := content
						if previewChars > 0 && len(body) > previewChars {
							body = body[:previewChars]
						}
						content = fmt.Sprintf("%s\n%s", l.cfg.Cache.Path(opts.ContextName, id), body)
						cached = true
					}
				}
			}

			_, postOutDiags := l.cfg.Hooks.Dispatch(ctx, models.HookPostToolOutput, outPayload)
			for _, d := range postOutDiags {
				emitDiagnostic(out, string(models.HookPostToolOutput), d)
			}
			_, postToolDiags := l.cfg.Hooks.Dispatch(ctx, models.HookPostTool, outPayload)
			for _, d := range postToolDiags {
				emitDiagnostic(out, string(models.HookPostTool), d)
			}

			resultEntries = append(resultEntries, models.TranscriptEntry{
				Timestamp: time.Now(), EntryType: models.EntryToolResult, ToolName: call.Name, ToolCallID: call.ID,
				Content: content, Cached: cached,
			})
			emitEvent(out, models.ResponseEvent{ToolResultEvent: &models.ToolResultEvent{Name: call.Name, Result: content, Cached: cached}})
		} else {
			resultEntries = append(resultEntries, models.TranscriptEntry{
				Timestamp: time.Now(), EntryType: models.EntryToolResult, ToolName: call.Name, ToolCallID: call.ID,
				Content: content,
			})
			emitEvent(out, models.ResponseEvent{ToolResultEvent: &models.ToolResultEvent{Name: call.Name, Result: content}})
		}

		emitEvent(out, models.ResponseEvent{ToolDiagnostic: &models.ToolDiagnosticEvent{Tool: call.Name, Message: diagnosticSummary(call.Name, isError, content)}})
	}

	if err := l.cfg.Transcript.AppendBatch(opts.ContextName, append(callEntries, resultEntries...)); err != nil {
		return true, err
	}

	batchPayload, _ := json.Marshal(map[string]int{"count": len(calls)})
	batchDecision, batchDiags := l.cfg.Hooks.Dispatch(ctx, models.HookPostToolBatch, batchPayload)
	for _, d := range batchDiags {
		emitDiagnostic(out, string(models.HookPostToolBatch), d)
	}
	applyFuelOverride(state, batchDecision)
	if batchDecision.Fallback != nil {
		state.hookFallbackOverride = batchDecision.Fallback
	}
	if batchDecision.Prompt != nil {
		state.hookPromptOverride = batchDecision.Prompt
	}

	if !state.fuelUnlimited {
		state.fuel -= fuelCostToolRound
		if state.fuel < 0 {
			state.fuel = 0
		}
		emitEvent(out, models.ResponseEvent{FuelStatus: &models.FuelStatusEvent{
			Remaining: state.fuel, Total: state.fuelTotal, Event: models.FuelAfterToolBatch,
		}})
		if state.fuel <= 0 {
			emitEvent(out, models.ResponseEvent{FuelExhausted: &models.FuelExhaustedEvent{Total: state.fuelTotal}})
			return true, nil
		}
	}

	return false, nil
}

func emitEvent(out chan<- models.ResponseEvent, evt models.ResponseEvent) {
	out <- evt
}

func emitDiagnostic(out chan<- models.ResponseEvent, source, message string) {
	out <- models.ResponseEvent{HookDebug: &models.HookDebugEvent{Hook: models.HookPoint(source), Message: message}}
}

func applyFuelOverride(state *turnState, decision *hooks.Decision) {
	if state.fuelUnlimited || decision == nil {
		return
	}
	if decision.Fuel != nil {
		state.fuel = *decision.Fuel
		state.fuelTotal = *decision.Fuel
	}
	if decision.FuelDelta != 0 {
		state.fuel += decision.FuelDelta
	}
	if state.fuel < 0 {
		state.fuel = 0
	}
}

func denyMessage(decision *hooks.Decision) string {
	if decision != nil && len(decision.DenyReasons) > 0 {
		return fmt.Sprintf("permission_denied: %s", strings.Join(decision.DenyReasons, "; "))
	}
	return "permission_denied"
}

func diagnosticSummary(toolName string, isError bool, content string) string {
	if isError {
		return fmt.Sprintf("%s failed: %s", toolName, preview(content))
	}
	return fmt.Sprintf("%s ok", toolName)
}

func preview(s string) string {
	const maxPreviewChars = 120
	if len(s) > maxPreviewChars {
		return s[:maxPreviewChars]
	}
	return s
}

func lastUserContent(messages []models.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

// isSignalCall reports whether name is one of the pseudo-tool names the
// model uses to signal a handoff rather than a real tool invocation:
// call_user, call_agent, or the configured fallback tool name (treated
// as a call_agent-equivalent signal).
func isSignalCall(name, fallbackTool string) bool {
	return name == "call_user" || name == "call_agent" || (fallbackTool != "" && name == fallbackTool)
}

func handoffSignalFromCalls(calls []models.ToolCall, fallbackTool string) models.HandoffKind {
	for _, c := range calls {
		if !isSignalCall(c.Name, fallbackTool) {
			continue
		}
		if c.Name == "call_user" {
			return models.HandoffUser
		}
		return models.HandoffAgent
	}
	return models.HandoffNone
}

func stripSignalCalls(calls []models.ToolCall, fallbackTool string) []models.ToolCall {
	out := make([]models.ToolCall, 0, len(calls))
	for _, c := range calls {
		if isSignalCall(c.Name, fallbackTool) {
			continue
		}
		out = append(out, c)
	}
	return out
}
