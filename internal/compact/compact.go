// Package compact implements the in-memory window's compaction strategies
// (spec §4's compaction section): token-budget estimation, chunked LLM
// summarization with a rolling-drop fallback, and the auto-compaction
// trigger that fires before a request is built. Grounded on the teacher's
// internal/compaction package, retargeted from its local Message type
// onto pkg/models.Message and its tool-call/tool-result fields, and
// extended with the atomic tool-block-drop invariant spec §4 requires.
package compact

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chibi-ai/chibi/pkg/models"
)

const (
	// BaseChunkRatio is the default ratio of context window used per
	// summarization chunk.
	BaseChunkRatio = 0.4

	// MinChunkRatio is the floor ratio to prevent overly small chunks.
	MinChunkRatio = 0.15

	// SafetyMargin buffers token estimation inaccuracy.
	SafetyMargin = 1.2

	// DefaultSummaryFallback is returned when there is no history to summarize.
	DefaultSummaryFallback = "No prior history."

	// DefaultParts is the default fan-out for multi-stage summarization.
	DefaultParts = 2

	// OversizedThreshold is the context-window fraction above which a
	// single message is too large to summarize directly.
	OversizedThreshold = 0.5

	// CharsPerToken is the approximate character-to-token ratio used for
	// all estimation in this package.
	CharsPerToken = 4

	// DefaultContextWindow is the fallback context window size in tokens,
	// used when the model registry can't resolve one.
	DefaultContextWindow = 100000

	// DefaultMinMessagesForSplit is the minimum message count before
	// multi-stage summarization splits into parts.
	DefaultMinMessagesForSplit = 4
)

// EstimateTokens approximates the token cost of one message from its
// content plus serialized tool calls/results.
func EstimateTokens(msg models.Message) int {
	chars := len(msg.Content)
	for _, tc := range msg.ToolCalls {
		chars += len(tc.Name) + len(tc.Input)
	}
	for _, tr := range msg.ToolResults {
		chars += len(tr.Content)
	}
	return (chars + CharsPerToken - 1) / CharsPerToken
}

// EstimateMessagesTokens sums EstimateTokens across messages.
func EstimateMessagesTokens(messages []models.Message) int {
	total := 0
	for _, msg := range messages {
		total += EstimateTokens(msg)
	}
	return total
}

// block is a contiguous run of messages that must be kept or dropped
// together: an assistant message carrying tool calls plus the tool-result
// messages answering them. A message with no tool calls is its own block.
type block []models.Message

// splitIntoBlocks partitions messages along the atomic tool-exchange
// boundaries spec §4 names: "an assistant+tool_results block is kept or
// dropped together."
func splitIntoBlocks(messages []models.Message) []block {
	var blocks []block
	i := 0
	for i < len(messages) {
		msg := messages[i]
		if len(msg.ToolCalls) == 0 {
			blocks = append(blocks, block{msg})
			i++
			continue
		}
		b := block{msg}
		j := i + 1
		for j < len(messages) && len(messages[j].ToolResults) > 0 && len(messages[j].ToolCalls) == 0 {
			b = append(b, messages[j])
			j++
		}
		blocks = append(blocks, b)
		i = j
	}
	return blocks
}

func (b block) tokens() int {
	total := 0
	for _, msg := range b {
		total += EstimateTokens(msg)
	}
	return total
}

func (b block) messageCount() int {
	return len(b)
}

func flattenBlocks(blocks []block) []models.Message {
	var out []models.Message
	for _, b := range blocks {
		out = append(out, b...)
	}
	return out
}

// SplitMessagesByTokenShare splits messages into parts with roughly equal
// token counts, for parallel chunk summarization. Splits are not required
// to respect block boundaries here: this feeds SummarizeInStages, whose
// output (a summary string per part) has no further atomicity requirement.
func SplitMessagesByTokenShare(messages []models.Message, parts int) [][]models.Message {
	if len(messages) == 0 {
		return nil
	}
	if parts <= 0 {
		parts = DefaultParts
	}
	if parts == 1 || len(messages) < parts {
		return [][]models.Message{messages}
	}

	totalTokens := EstimateMessagesTokens(messages)
	targetPerPart := totalTokens / parts

	result := make([][]models.Message, 0, parts)
	current := make([]models.Message, 0)
	currentTokens := 0

	for i, msg := range messages {
		msgTokens := EstimateTokens(msg)
		current = append(current, msg)
		currentTokens += msgTokens

		remainingParts := parts - len(result) - 1
		isLast := i == len(messages)-1
		if !isLast && remainingParts > 0 && currentTokens >= targetPerPart {
			result = append(result, current)
			current = make([]models.Message, 0)
			currentTokens = 0
		}
	}
	if len(current) > 0 {
		result = append(result, current)
	}
	return result
}

// ChunkMessagesByMaxTokens splits messages into chunks that never exceed
// maxTokens, keeping each block intact even if that overruns the limit
// for an oversized single block.
func ChunkMessagesByMaxTokens(messages []models.Message, maxTokens int) [][]models.Message {
	if len(messages) == 0 {
		return nil
	}
	if maxTokens <= 0 {
		return [][]models.Message{messages}
	}

	blocks := splitIntoBlocks(messages)
	var result [][]models.Message
	current := make([]models.Message, 0)
	currentTokens := 0

	for _, b := range blocks {
		bTokens := b.tokens()
		if bTokens > maxTokens {
			if len(current) > 0 {
				result = append(result, current)
				current = make([]models.Message, 0)
				currentTokens = 0
			}
			result = append(result, []models.Message(b))
			continue
		}
		if currentTokens+bTokens > maxTokens && len(current) > 0 {
			result = append(result, current)
			current = make([]models.Message, 0)
			currentTokens = 0
		}
		current = append(current, b...)
		currentTokens += bTokens
	}
	if len(current) > 0 {
		result = append(result, current)
	}
	return result
}

// IsOversizedForSummary reports whether msg alone exceeds
// OversizedThreshold of contextWindow.
func IsOversizedForSummary(msg models.Message, contextWindow int) bool {
	if contextWindow <= 0 {
		return false
	}
	threshold := float64(contextWindow) * OversizedThreshold
	return float64(EstimateTokens(msg)) > threshold
}

// SummarizationConfig configures one compaction pass.
type SummarizationConfig struct {
	Model               string
	ReserveTokens       int
	MaxChunkTokens      int
	ContextWindow       int
	CustomInstructions  string
	PreviousSummary     string
	Parts               int
	MinMessagesForSplit int
}

// DefaultSummarizationConfig returns sensible defaults.
func DefaultSummarizationConfig() *SummarizationConfig {
	return &SummarizationConfig{
		ReserveTokens:       2000,
		MaxChunkTokens:      20000,
		ContextWindow:       DefaultContextWindow,
		Parts:               DefaultParts,
		MinMessagesForSplit: DefaultMinMessagesForSplit,
	}
}

// Summarizer generates a natural-language summary of a message run. The
// loop's gateway-backed implementation is driven from its auto-compaction
// step, which fires pre_compact/post_compact once around the whole pass.
type Summarizer interface {
	GenerateSummary(ctx context.Context, messages []models.Message, config *SummarizationConfig) (string, error)
}

// SummarizeChunks summarizes messages in chunks bounded by MaxChunkTokens,
// then merges the chunk summaries into one.
func SummarizeChunks(ctx context.Context, messages []models.Message, summarizer Summarizer, config *SummarizationConfig) (string, error) {
	if len(messages) == 0 {
		return DefaultSummaryFallback, nil
	}
	if summarizer == nil {
		return "", fmt.Errorf("compact: summarizer is nil")
	}
	if config == nil {
		config = DefaultSummarizationConfig()
	}

	maxChunkTokens := config.MaxChunkTokens
	if maxChunkTokens <= 0 {
		maxChunkTokens = int(float64(config.ContextWindow) * BaseChunkRatio)
	}

	chunks := ChunkMessagesByMaxTokens(messages, maxChunkTokens)
	if len(chunks) == 0 {
		return DefaultSummaryFallback, nil
	}
	if len(chunks) == 1 {
		return summarizer.GenerateSummary(ctx, chunks[0], config)
	}

	chunkSummaries := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		summary, err := summarizer.GenerateSummary(ctx, chunk, config)
		if err != nil {
			return "", fmt.Errorf("compact: summarizing chunk %d: %w", i, err)
		}
		chunkSummaries = append(chunkSummaries, summary)
	}
	return mergeSummaries(ctx, chunkSummaries, summarizer, config)
}

func mergeSummaries(ctx context.Context, summaries []string, summarizer Summarizer, config *SummarizationConfig) (string, error) {
	if len(summaries) == 0 {
		return DefaultSummaryFallback, nil
	}
	if len(summaries) == 1 {
		return summaries[0], nil
	}

	mergeMessages := make([]models.Message, len(summaries))
	for i, s := range summaries {
		mergeMessages[i] = models.Message{
			Role:    models.RoleSystem,
			Content: fmt.Sprintf("Chunk %d summary:\n%s", i+1, s),
		}
	}

	mergeConfig := *config
	mergeConfig.CustomInstructions = "Merge these chunk summaries into a single coherent summary. Preserve key details and maintain chronological order."
	if config.CustomInstructions != "" {
		mergeConfig.CustomInstructions = config.CustomInstructions + "\n\n" + mergeConfig.CustomInstructions
	}
	return summarizer.GenerateSummary(ctx, mergeMessages, &mergeConfig)
}

// SummarizeWithFallback summarizes messages, setting aside any message too
// large to include directly and noting it instead of failing outright.
func SummarizeWithFallback(ctx context.Context, messages []models.Message, summarizer Summarizer, config *SummarizationConfig) (string, error) {
	if len(messages) == 0 {
		return DefaultSummaryFallback, nil
	}
	if summarizer == nil {
		return "", fmt.Errorf("compact: summarizer is nil")
	}
	if config == nil {
		config = DefaultSummarizationConfig()
	}

	var normal []models.Message
	var oversizedNotes []string
	for _, msg := range messages {
		if IsOversizedForSummary(msg, config.ContextWindow) {
			oversizedNotes = append(oversizedNotes, fmt.Sprintf("[Oversized %s message with %d tokens - content omitted]", msg.Role, EstimateTokens(msg)))
		} else {
			normal = append(normal, msg)
		}
	}

	summary := DefaultSummaryFallback
	if len(normal) > 0 {
		var err error
		summary, err = SummarizeChunks(ctx, normal, summarizer, config)
		if err != nil {
			return "", fmt.Errorf("compact: summarizing normal messages: %w", err)
		}
	}
	if len(oversizedNotes) > 0 {
		summary = summary + "\n\n" + strings.Join(oversizedNotes, "\n")
	}
	return summary, nil
}

// SummarizeInStages splits messages into Parts, summarizes each in
// parallel-sized pieces, then merges. Falls back to a single-pass summary
// when there aren't enough messages to make splitting worthwhile.
func SummarizeInStages(ctx context.Context, messages []models.Message, summarizer Summarizer, config *SummarizationConfig) (string, error) {
	if len(messages) == 0 {
		return DefaultSummaryFallback, nil
	}
	if summarizer == nil {
		return "", fmt.Errorf("compact: summarizer is nil")
	}
	if config == nil {
		config = DefaultSummarizationConfig()
	}

	parts := config.Parts
	if parts <= 0 {
		parts = DefaultParts
	}
	minMessages := config.MinMessagesForSplit
	if minMessages <= 0 {
		minMessages = DefaultMinMessagesForSplit
	}
	if len(messages) < minMessages {
		return SummarizeWithFallback(ctx, messages, summarizer, config)
	}

	partitions := SplitMessagesByTokenShare(messages, parts)
	if len(partitions) <= 1 {
		return SummarizeWithFallback(ctx, messages, summarizer, config)
	}

	partSummaries := make([]string, 0, len(partitions))
	for i, partition := range partitions {
		summary, err := SummarizeWithFallback(ctx, partition, summarizer, config)
		if err != nil {
			return "", fmt.Errorf("compact: summarizing part %d: %w", i, err)
		}
		partSummaries = append(partSummaries, summary)
	}

	if config.PreviousSummary != "" && config.PreviousSummary != DefaultSummaryFallback {
		partSummaries = append([]string{config.PreviousSummary}, partSummaries...)
	}
	return mergeSummaries(ctx, partSummaries, summarizer, config)
}

// ArchiveSplit divides messages into an archived prefix and a kept suffix
// at the nearest block boundary at or before keepRecentCount messages
// from the end, so the atomic tool-block invariant holds even when the
// requested split point falls inside a block.
func ArchiveSplit(messages []models.Message, keepRecentCount int) (archived, kept []models.Message) {
	if keepRecentCount <= 0 {
		return messages, nil
	}
	if keepRecentCount >= len(messages) {
		return nil, messages
	}

	blocks := splitIntoBlocks(messages)
	keptCount := 0
	splitIdx := len(blocks)
	for i := len(blocks) - 1; i >= 0; i-- {
		if keptCount >= keepRecentCount {
			splitIdx = i + 1
			break
		}
		keptCount += blocks[i].messageCount()
		splitIdx = i
	}
	return flattenBlocks(blocks[:splitIdx]), flattenBlocks(blocks[splitIdx:])
}

// Compact runs the LLM-summarization strategy (spec §4: "LLM
// summarisation"): archives all but the most recent keepRecentCount
// messages, summarizes the archived region, and returns a single system
// message replacing it plus the untouched recent messages.
func Compact(ctx context.Context, messages []models.Message, summarizer Summarizer, config *SummarizationConfig, keepRecentCount int) (models.Message, []models.Message, error) {
	archived, kept := ArchiveSplit(messages, keepRecentCount)
	if len(archived) == 0 {
		return models.Message{Role: models.RoleSystem, Content: DefaultSummaryFallback}, kept, nil
	}

	summary, err := SummarizeInStages(ctx, archived, summarizer, config)
	if err != nil {
		return models.Message{}, nil, err
	}
	return models.Message{Role: models.RoleSystem, Content: summary}, kept, nil
}

// RollingDrop implements the rolling-drop fallback (spec §4: "drop the
// oldest rolling_compact_drop_percentage of messages", atomically per
// tool-exchange block). dropPercentage is clamped to [0, 1].
func RollingDrop(messages []models.Message, dropPercentage float64) (kept, dropped []models.Message) {
	if len(messages) == 0 {
		return nil, nil
	}
	if dropPercentage <= 0 {
		return messages, nil
	}
	if dropPercentage > 1 {
		dropPercentage = 1
	}

	target := int(float64(len(messages)) * dropPercentage)
	if target <= 0 {
		return messages, nil
	}

	blocks := splitIntoBlocks(messages)
	droppedCount := 0
	splitIdx := 0
	for splitIdx < len(blocks) && droppedCount < target {
		droppedCount += blocks[splitIdx].messageCount()
		splitIdx++
	}
	return flattenBlocks(blocks[splitIdx:]), flattenBlocks(blocks[:splitIdx])
}

// ResolveContextWindowTokens resolves a model's context window, falling
// back to a configured default and finally to DefaultContextWindow.
func ResolveContextWindowTokens(modelContextWindow, configuredDefault int) int {
	if modelContextWindow > 0 {
		return modelContextWindow
	}
	if configuredDefault > 0 {
		return configuredDefault
	}
	return DefaultContextWindow
}

// ShouldAutoCompact implements spec §4's auto-compaction trigger:
// tokens/context_window_limit > auto_compact_threshold, gated on
// auto_compact being enabled and the limit being resolved (nonzero).
func ShouldAutoCompact(tokens, contextWindowLimit int, threshold float64, autoCompactEnabled bool) bool {
	if !autoCompactEnabled || contextWindowLimit <= 0 {
		return false
	}
	return float64(tokens)/float64(contextWindowLimit) > threshold
}

// IsOverWarnThreshold reports whether tokens/context_window_limit exceeds
// warnThresholdPercent, used to emit a ContextWarning once per turn.
func IsOverWarnThreshold(tokens, contextWindowLimit int, warnThresholdPercent float64) bool {
	if contextWindowLimit <= 0 {
		return false
	}
	return float64(tokens)/float64(contextWindowLimit) > warnThresholdPercent
}

// FormatMessagesForSummary renders messages into the plain-text form fed
// to the summarization prompt.
func FormatMessagesForSummary(messages []models.Message) string {
	var sb strings.Builder
	for _, msg := range messages {
		sb.WriteString(fmt.Sprintf("[%s]: %s", msg.Role, msg.Content))
		if len(msg.ToolCalls) > 0 {
			if encoded, err := json.Marshal(msg.ToolCalls); err == nil {
				sb.WriteString(fmt.Sprintf("\n  [Tool calls: %s]", truncateString(string(encoded), 200)))
			}
		}
		if len(msg.ToolResults) > 0 {
			if encoded, err := json.Marshal(msg.ToolResults); err == nil {
				sb.WriteString(fmt.Sprintf("\n  [Tool results: %s]", truncateString(string(encoded), 200)))
			}
		}
		sb.WriteString("\n\n")
	}
	return sb.String()
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
