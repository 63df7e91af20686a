package loop

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/chibi-ai/chibi/internal/compact"
	"github.com/chibi-ai/chibi/internal/gateway"
	"github.com/chibi-ai/chibi/pkg/models"
)

// gatewaySummarizer implements compact.Summarizer over the loop's own
// gateway, by draining a non-streaming-shaped response the same way
// internal/subagent.Runner.Spawn does, scoped down to plain text (a
// summarization call never emits tool calls). It lives here rather than
// in internal/compact so that package stays free of a gateway
// dependency.
type gatewaySummarizer struct {
	gateway Streamer
	model   string
}

func (s *gatewaySummarizer) GenerateSummary(ctx context.Context, messages []models.Message, config *compact.SummarizationConfig) (string, error) {
	model := s.model
	if config != nil && config.Model != "" {
		model = config.Model
	}

	prompt := compact.FormatMessagesForSummary(messages)
	if config != nil && config.CustomInstructions != "" {
		prompt = config.CustomInstructions + "\n\n" + prompt
	}

	req := gateway.Request{
		Model:    model,
		Messages: []models.Message{{Role: models.RoleUser, Content: prompt}},
		API:      models.APIConfig{MaxTokens: 1024},
	}

	var text strings.Builder
	for evt := range s.gateway.Stream(ctx, req) {
		switch evt.Kind {
		case gateway.EventTextDelta:
			text.WriteString(evt.Text)
		case gateway.EventError:
			return "", evt.Err
		}
	}
	return text.String(), nil
}

// autoCompact runs the LLM-summarization strategy over window, falling
// back to a rolling drop when summarization itself fails (spec §4's
// compaction section names both strategies).
func (l *Loop) autoCompact(ctx context.Context, opts RunOptions, window []models.Message, out chan<- models.ResponseEvent) ([]models.Message, error) {
	payload, _ := json.Marshal(map[string]string{"context": opts.ContextName})

	decision, diags := l.cfg.Hooks.Dispatch(ctx, models.HookPreCompact, payload)
	for _, d := range diags {
		emitDiagnostic(out, string(models.HookPreCompact), d)
	}
	if !decision.Approved() {
		return window, nil
	}

	summarizer := &gatewaySummarizer{gateway: l.cfg.Gateway, model: opts.Config.Identity.Model}
	summary, kept, err := compact.Compact(ctx, window, summarizer, compact.DefaultSummarizationConfig(), defaultKeepRecentMessages)
	if err != nil {
		rollDecision, rollDiags := l.cfg.Hooks.Dispatch(ctx, models.HookPreRollingCompact, payload)
		for _, d := range rollDiags {
			emitDiagnostic(out, string(models.HookPreRollingCompact), d)
		}
		if !rollDecision.Approved() {
			return window, nil
		}
		rolledKept, _ := compact.RollingDrop(window, opts.Config.Behavior.RollingCompactDropPercentage)
		l.cfg.Hooks.Dispatch(ctx, models.HookPostRollingCompact, payload)
		return rolledKept, nil
	}

	entry := models.TranscriptEntry{Timestamp: time.Now(), EntryType: models.EntrySummary, Content: summary.Content}
	if err := l.cfg.Transcript.Append(opts.ContextName, entry); err != nil {
		return nil, err
	}
	l.cfg.Hooks.Dispatch(ctx, models.HookPostCompact, payload)

	return append([]models.Message{summary}, kept...), nil
}
