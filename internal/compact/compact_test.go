package compact

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/chibi-ai/chibi/pkg/models"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name     string
		msg      models.Message
		expected int
	}{
		{"empty message", models.Message{}, 0},
		{"short content", models.Message{Content: "Hello"}, 2},
		{"exact multiple", models.Message{Content: "12345678"}, 2},
		{"with tool calls", models.Message{Content: "Hi", ToolCalls: []models.ToolCall{{Name: "call"}}}, 2},
		{"with tool results", models.Message{Content: "Hi", ToolResults: []models.ToolResult{{Content: "result"}}}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateTokens(tt.msg); got != tt.expected {
				t.Errorf("EstimateTokens() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestEstimateMessagesTokens(t *testing.T) {
	messages := []models.Message{
		{Content: "Hello"},
		{Content: "World"},
		{Content: "12345678"},
	}
	if got := EstimateMessagesTokens(messages); got != 6 {
		t.Errorf("EstimateMessagesTokens() = %d, want 6", got)
	}
	if EstimateMessagesTokens(nil) != 0 {
		t.Error("EstimateMessagesTokens(nil) should return 0")
	}
}

func TestSplitMessagesByTokenShare(t *testing.T) {
	tests := []struct {
		name          string
		messages      []models.Message
		parts         int
		expectedParts int
	}{
		{"empty messages", nil, 2, 0},
		{"single message", []models.Message{{Content: "test"}}, 2, 1},
		{"zero parts", []models.Message{{Content: "test"}}, 0, 1},
		{"one part", []models.Message{{Content: "test"}, {Content: "test2"}}, 1, 1},
		{"fewer messages than parts", []models.Message{{Content: "t"}}, 3, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(SplitMessagesByTokenShare(tt.messages, tt.parts)); got != tt.expectedParts {
				t.Errorf("SplitMessagesByTokenShare() returned %d parts, want %d", got, tt.expectedParts)
			}
		})
	}

	t.Run("balanced split", func(t *testing.T) {
		messages := make([]models.Message, 10)
		for i := range messages {
			messages[i] = models.Message{Content: strings.Repeat("a", 40)}
		}
		parts := SplitMessagesByTokenShare(messages, 3)
		if len(parts) != 3 {
			t.Fatalf("expected 3 parts, got %d", len(parts))
		}
		var total int
		for _, p := range parts {
			total += len(p)
		}
		if total != 10 {
			t.Errorf("expected all 10 messages preserved across parts, got %d", total)
		}
	})
}

func buildToolBlock(id string) []models.Message {
	return []models.Message{
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{ID: id, Name: "search"}}},
		{Role: models.RoleTool, ToolResults: []models.ToolResult{{ToolCallID: id, Content: "result for " + id}}},
	}
}

func TestSplitIntoBlocksKeepsToolExchangesTogether(t *testing.T) {
	var messages []models.Message
	messages = append(messages, models.Message{Role: models.RoleUser, Content: "hi"})
	messages = append(messages, buildToolBlock("1")...)
	messages = append(messages, models.Message{Role: models.RoleAssistant, Content: "done"})

	blocks := splitIntoBlocks(messages)
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks (user, tool-exchange, assistant), got %d", len(blocks))
	}
	if len(blocks[1]) != 2 {
		t.Fatalf("expected the tool-exchange block to keep its 2 messages together, got %d", len(blocks[1]))
	}
}

func TestChunkMessagesByMaxTokensNeverSplitsABlock(t *testing.T) {
	var messages []models.Message
	messages = append(messages, buildToolBlock("1")...)
	messages = append(messages, buildToolBlock("2")...)

	// A tight budget that would otherwise split a 2-message block in half.
	chunks := ChunkMessagesByMaxTokens(messages, 1)

	// Every tool-result message must share a chunk with its originating call.
	callChunk := map[string]int{}
	for ci, chunk := range chunks {
		for _, msg := range chunk {
			for _, tc := range msg.ToolCalls {
				callChunk[tc.ID] = ci
			}
			for _, tr := range msg.ToolResults {
				if callChunk[tr.ToolCallID] != ci {
					t.Errorf("tool result for %s split into a different chunk than its call", tr.ToolCallID)
				}
			}
		}
	}
}

func TestIsOversizedForSummary(t *testing.T) {
	big := models.Message{Content: strings.Repeat("x", 4000)}
	if !IsOversizedForSummary(big, 1000) {
		t.Error("expected a message over half the context window to be oversized")
	}
	small := models.Message{Content: "hi"}
	if IsOversizedForSummary(small, 1000) {
		t.Error("expected a small message not to be oversized")
	}
	if IsOversizedForSummary(big, 0) {
		t.Error("expected a zero context window to never report oversized")
	}
}

type stubSummarizer struct {
	calls int
	fn    func(messages []models.Message) (string, error)
}

func (s *stubSummarizer) GenerateSummary(ctx context.Context, messages []models.Message, config *SummarizationConfig) (string, error) {
	s.calls++
	if s.fn != nil {
		return s.fn(messages)
	}
	return fmt.Sprintf("summary of %d messages", len(messages)), nil
}

func TestSummarizeChunksSinglePass(t *testing.T) {
	messages := []models.Message{{Content: "a"}, {Content: "b"}}
	summarizer := &stubSummarizer{}
	summary, err := SummarizeChunks(context.Background(), messages, summarizer, DefaultSummarizationConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summarizer.calls != 1 {
		t.Errorf("expected a single summarization call for one chunk, got %d", summarizer.calls)
	}
	if summary == "" {
		t.Error("expected a non-empty summary")
	}
}

func TestSummarizeChunksNilSummarizer(t *testing.T) {
	if _, err := SummarizeChunks(context.Background(), []models.Message{{Content: "a"}}, nil, nil); err == nil {
		t.Fatal("expected an error for a nil summarizer")
	}
}

func TestSummarizeChunksEmptyMessages(t *testing.T) {
	summary, err := SummarizeChunks(context.Background(), nil, &stubSummarizer{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary != DefaultSummaryFallback {
		t.Errorf("expected fallback summary, got %q", summary)
	}
}

func TestSummarizeWithFallbackNotesOversizedMessages(t *testing.T) {
	cfg := &SummarizationConfig{ContextWindow: 100, MaxChunkTokens: 1000, Parts: 2, MinMessagesForSplit: 4}
	messages := []models.Message{
		{Role: models.RoleUser, Content: "short"},
		{Role: models.RoleUser, Content: strings.Repeat("x", 1000)},
	}
	summary, err := SummarizeWithFallback(context.Background(), messages, &stubSummarizer{}, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(summary, "Oversized") {
		t.Errorf("expected the oversized message to be noted, got %q", summary)
	}
}

func TestArchiveSplitRespectsBlockBoundary(t *testing.T) {
	var messages []models.Message
	messages = append(messages, models.Message{Role: models.RoleUser, Content: "hi"})
	messages = append(messages, buildToolBlock("1")...)
	messages = append(messages, models.Message{Role: models.RoleAssistant, Content: "bye"})

	// keepRecentCount=2 falls inside the tool-exchange block (between its
	// call and its result); ArchiveSplit must not split the block.
	archived, kept := ArchiveSplit(messages, 2)
	for _, msg := range kept {
		for _, tr := range msg.ToolResults {
			found := false
			for _, a := range archived {
				for _, tc := range a.ToolCalls {
					if tc.ID == tr.ToolCallID {
						found = true
					}
				}
			}
			if found {
				t.Errorf("tool result %s kept without its call, which was archived", tr.ToolCallID)
			}
		}
	}
}

func TestArchiveSplitKeepsEverythingWhenCountExceedsLength(t *testing.T) {
	messages := []models.Message{{Content: "a"}, {Content: "b"}}
	archived, kept := ArchiveSplit(messages, 10)
	if len(archived) != 0 || len(kept) != 2 {
		t.Errorf("expected nothing archived and everything kept, got archived=%d kept=%d", len(archived), len(kept))
	}
}

func TestCompactReplacesArchivedRegionWithSummary(t *testing.T) {
	messages := []models.Message{
		{Role: models.RoleUser, Content: "first"},
		{Role: models.RoleUser, Content: "second"},
		{Role: models.RoleUser, Content: "third"},
	}
	summaryMsg, kept, err := Compact(context.Background(), messages, &stubSummarizer{}, DefaultSummarizationConfig(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summaryMsg.Role != models.RoleSystem {
		t.Errorf("expected a system summary message, got role %s", summaryMsg.Role)
	}
	if len(kept) != 1 || kept[0].Content != "third" {
		t.Errorf("expected only the most recent message kept, got %+v", kept)
	}
}

func TestRollingDropDropsOldestRespectingBlocks(t *testing.T) {
	var messages []models.Message
	messages = append(messages, buildToolBlock("1")...)
	messages = append(messages, models.Message{Role: models.RoleUser, Content: "middle"})
	messages = append(messages, buildToolBlock("2")...)

	kept, dropped := RollingDrop(messages, 0.4)
	if len(dropped) == 0 {
		t.Fatal("expected some messages to be dropped")
	}
	// The first tool block (2 messages) must be dropped as a whole, not split.
	for _, msg := range dropped {
		for _, tc := range msg.ToolCalls {
			if tc.ID == "1" {
				return
			}
		}
	}
	for _, msg := range kept {
		for _, tr := range msg.ToolResults {
			if tr.ToolCallID == "1" {
				t.Error("expected tool result 1's call to have been dropped alongside it")
			}
		}
	}
}

func TestRollingDropZeroPercentageKeepsEverything(t *testing.T) {
	messages := []models.Message{{Content: "a"}, {Content: "b"}}
	kept, dropped := RollingDrop(messages, 0)
	if len(kept) != 2 || len(dropped) != 0 {
		t.Errorf("expected nothing dropped at 0%%, got kept=%d dropped=%d", len(kept), len(dropped))
	}
}

func TestShouldAutoCompact(t *testing.T) {
	tests := []struct {
		name      string
		tokens    int
		limit     int
		threshold float64
		enabled   bool
		want      bool
	}{
		{"under threshold", 50, 100, 0.8, true, false},
		{"over threshold", 90, 100, 0.8, true, true},
		{"disabled", 90, 100, 0.8, false, false},
		{"unresolved limit", 90, 0, 0.8, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldAutoCompact(tt.tokens, tt.limit, tt.threshold, tt.enabled); got != tt.want {
				t.Errorf("ShouldAutoCompact() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsOverWarnThreshold(t *testing.T) {
	if !IsOverWarnThreshold(90, 100, 0.8) {
		t.Error("expected 90/100 to exceed an 0.8 warn threshold")
	}
	if IsOverWarnThreshold(50, 100, 0.8) {
		t.Error("expected 50/100 not to exceed an 0.8 warn threshold")
	}
	if IsOverWarnThreshold(90, 0, 0.8) {
		t.Error("expected an unresolved context window to never warn")
	}
}

func TestResolveContextWindowTokens(t *testing.T) {
	if got := ResolveContextWindowTokens(5000, 1000); got != 5000 {
		t.Errorf("expected model window to win, got %d", got)
	}
	if got := ResolveContextWindowTokens(0, 1000); got != 1000 {
		t.Errorf("expected configured default, got %d", got)
	}
	if got := ResolveContextWindowTokens(0, 0); got != DefaultContextWindow {
		t.Errorf("expected package default, got %d", got)
	}
}

func TestFormatMessagesForSummaryIncludesToolData(t *testing.T) {
	messages := []models.Message{
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{ID: "1", Name: "search", Input: json.RawMessage(`{}`)}}},
	}
	formatted := FormatMessagesForSummary(messages)
	if !strings.Contains(formatted, "hi") {
		t.Error("expected formatted output to include message content")
	}
	if !strings.Contains(formatted, "Tool calls") {
		t.Error("expected formatted output to include tool call data")
	}
}
