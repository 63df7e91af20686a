package models

// HookPoint names one of the fixed lifecycle events plugins may subscribe
// to. The enumeration is closed: the orchestrator never invents new points
// at runtime.
type HookPoint string

const (
	HookOnStart HookPoint = "on_start"
	HookOnEnd   HookPoint = "on_end"

	HookPreMessage  HookPoint = "pre_message"
	HookPostMessage HookPoint = "post_message"

	HookPreSendMessage  HookPoint = "pre_send_message"
	HookPostSendMessage HookPoint = "post_send_message"

	HookPreTool  HookPoint = "pre_tool"
	HookPostTool HookPoint = "post_tool"

	HookPreToolOutput  HookPoint = "pre_tool_output"
	HookPostToolOutput HookPoint = "post_tool_output"

	HookPreToolBatch  HookPoint = "pre_tool_batch"
	HookPostToolBatch HookPoint = "post_tool_batch"

	HookPreSystemPrompt  HookPoint = "pre_system_prompt"
	HookPostSystemPrompt HookPoint = "post_system_prompt"

	HookPreAPITools   HookPoint = "pre_api_tools"
	HookPreAPIRequest HookPoint = "pre_api_request"

	HookPreCompact  HookPoint = "pre_compact"
	HookPostCompact HookPoint = "post_compact"

	HookPreRollingCompact  HookPoint = "pre_rolling_compact"
	HookPostRollingCompact HookPoint = "post_rolling_compact"

	HookPreClear  HookPoint = "pre_clear"
	HookPostClear HookPoint = "post_clear"

	HookPreCacheOutput  HookPoint = "pre_cache_output"
	HookPostCacheOutput HookPoint = "post_cache_output"

	HookPreAgenticLoop HookPoint = "pre_agentic_loop"

	// Permission gates. A denial from any of these short-circuits the
	// guarded action; an unhandled Sensitive URL or an unanswered gate
	// fails closed (see internal/security).
	HookPreFileRead  HookPoint = "pre_file_read"
	HookPreFileWrite HookPoint = "pre_file_write"
	HookPreShellExec HookPoint = "pre_shell_exec"
	HookPreFetchURL  HookPoint = "pre_fetch_url"
	HookPreSpawnAgent  HookPoint = "pre_spawn_agent"
	HookPostSpawnAgent HookPoint = "post_spawn_agent"

	HookPostIndexFile HookPoint = "post_index_file"
)

// PermissionGates lists the hook points whose failure (plugin error or
// explicit deny) is treated as a deny rather than a non-vetoing diagnostic.
var PermissionGates = map[HookPoint]bool{
	HookPreFileRead:    true,
	HookPreFileWrite:   true,
	HookPreShellExec:   true,
	HookPreFetchURL:    true,
	HookPreSpawnAgent:  true,
}

// HandoffKind is the per-turn direction of control a response produces.
type HandoffKind string

const (
	// HandoffUser returns control to the user; the turn loop ends.
	HandoffUser HandoffKind = "user"
	// HandoffAgent continues the loop for another iteration.
	HandoffAgent HandoffKind = "agent"
	// HandoffNone defers the decision to the empty/text-response rules.
	HandoffNone HandoffKind = "none"
)

// Handoff is the one-shot outcome produced by evaluating a turn. Forced
// variants (from runtime flags) preempt whatever the model signalled.
type Handoff struct {
	Kind   HandoffKind
	Forced bool
}
