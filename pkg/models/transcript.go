package models

import "time"

// EntryType classifies a TranscriptEntry. Window reconstruction switches on
// this field to decide how an entry folds into the message sequence.
type EntryType string

const (
	EntryMessage    EntryType = "message"
	EntryToolCall   EntryType = "tool_call"
	EntryToolResult EntryType = "tool_result"
	EntrySystem     EntryType = "system"
	EntrySummary    EntryType = "summary"
)

// TranscriptEntry is the immutable unit of persistence for a context's
// append-only log. Every entry written is final; corrections happen by
// appending a new entry, never by mutating one in place.
//
// Invariants (enforced by the store, not by this type):
//   - append-only, monotonically non-decreasing Timestamp;
//   - every EntryToolResult has exactly one preceding EntryToolCall in the
//     same context with the same ToolCallID;
//   - all tool_call entries of one assistant turn precede all of that
//     turn's tool_result entries.
type TranscriptEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	EntryType  EntryType `json:"entry_type"`
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	ToolName   string    `json:"tool_name,omitempty"`
	ToolCallID string    `json:"tool_call_id,omitempty"`
	Cached     bool      `json:"cached,omitempty"`
}
