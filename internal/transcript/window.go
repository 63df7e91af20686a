package transcript

import (
	"fmt"

	"github.com/chibi-ai/chibi/pkg/models"
)

// ReconstructWindow rebuilds the ordered, API-shaped message list for ctx
// from its raw transcript entries (spec §4.1). Consecutive tool_call
// entries become one assistant message carrying all of them, immediately
// followed by one tool-result message per matching tool_result entry, in
// the order the results were recorded. message entries map straight
// through. summary entries (left behind by the compactor) become a
// system message at their original position. tool_result entries with no
// matching pending tool_call — orphans, typically legacy or
// post-compaction leftovers — are dropped and reported as diagnostics,
// never silently folded into a message.
func ReconstructWindow(entries []models.TranscriptEntry) ([]models.Message, []string) {
	var (
		messages    []models.Message
		diagnostics []string
		pendingIDs  = map[string]bool{}
		pendingCall []models.ToolCall
	)

	flushCalls := func() {
		if len(pendingCall) == 0 {
			return
		}
		messages = append(messages, models.Message{
			Role:      models.RoleAssistant,
			ToolCalls: append([]models.ToolCall(nil), pendingCall...),
		})
		pendingCall = nil
	}
	// endGroup closes the current tool exchange: a tool_result after it no
	// longer matches the calls before it.
	endGroup := func() {
		flushCalls()
		pendingIDs = map[string]bool{}
	}

	for _, e := range entries {
		switch e.EntryType {
		case models.EntryToolCall:
			id := e.ToolCallID
			if id == "" {
				id = syntheticID(len(messages), len(pendingCall))
			}
			pendingCall = append(pendingCall, models.ToolCall{ID: id, Name: e.ToolName, Input: []byte(e.Content)})
			pendingIDs[id] = true

		case models.EntryToolResult:
			id := e.ToolCallID
			if id == "" || !pendingIDs[id] {
				diagnostics = append(diagnostics, fmt.Sprintf("orphan tool_result for id %q dropped during window reconstruction", id))
				continue
			}
			flushCalls()
			delete(pendingIDs, id)
			messages = append(messages, models.Message{
				Role: models.RoleTool,
				ToolResults: []models.ToolResult{{
					ToolCallID: id,
					Content:    e.Content,
					Cached:     e.Cached,
				}},
			})

		case models.EntryMessage:
			endGroup()
			messages = append(messages, models.Message{
				Role:      e.Role,
				Content:   e.Content,
				CreatedAt: e.Timestamp,
			})

		case models.EntrySystem:
			endGroup()
			messages = append(messages, models.Message{
				Role:      models.RoleSystem,
				Content:   e.Content,
				CreatedAt: e.Timestamp,
			})

		case models.EntrySummary:
			endGroup()
			messages = append(messages, models.Message{
				Role:      models.RoleSystem,
				Content:   e.Content,
				CreatedAt: e.Timestamp,
			})

		default:
			diagnostics = append(diagnostics, fmt.Sprintf("unknown transcript entry type %q skipped", e.EntryType))
		}
	}
	flushCalls()

	return messages, diagnostics
}

func syntheticID(messageIdx, callIdx int) string {
	return fmt.Sprintf("synthetic_%d_%d", messageIdx, callIdx)
}
