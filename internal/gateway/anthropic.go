// Package gateway adapts the core's ResolvedConfig/Message domain types
// onto the Anthropic SDK's streaming client (spec §4.11), converting the
// SDK's raw event stream into the typed TextDelta/Reasoning/ToolCallStart/
// ToolCallDelta/Done/Error stream the loop consumes. Grounded on the
// teacher's internal/agent/providers/anthropic.go, trimmed to a single
// provider (no multi-provider abstraction; spec names only one gateway)
// and retargeted from agent.CompletionRequest/Chunk onto
// models.ResolvedConfig/models.Message/models.ToolCall.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/chibi-ai/chibi/internal/backoff"
	"github.com/chibi-ai/chibi/internal/chibierr"
	"github.com/chibi-ai/chibi/internal/tools"
	"github.com/chibi-ai/chibi/pkg/models"
)

// reasoningBudgets maps a named effort level onto an extended-thinking
// token budget. Claude's API takes a token budget rather than a named
// level; spec §4.11 only names "medium" as the enabled-with-no-effort
// default, so low/high are this implementation's choice (recorded as an
// Open Question decision in DESIGN.md).
var reasoningBudgets = map[string]int64{
	"low":    4096,
	"medium": 10000,
	"high":   32000,
}

const defaultMaxTokens = 4096

// defaultMaxRetries bounds how many times Stream re-opens a fresh
// connection after a retryable transport failure that occurred before any
// content reached the caller. Grounded on the teacher's maxRetries/
// retryDelay fields, replacing its inline retryDelay*2^attempt math with
// internal/backoff's policy.
const defaultMaxRetries = 3

// Client wraps the Anthropic SDK client with the core's request/response
// shapes.
type Client struct {
	sdk anthropic.Client
}

// NewClient builds a Client from the resolved config's identity/API key.
func NewClient(apiKey string, baseURL string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, chibierr.New(chibierr.InvalidInput, "anthropic api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Client{sdk: anthropic.NewClient(opts...)}, nil
}

// Request bundles everything one turn's API call needs: messages, system
// prompt, available tools, and the resolved API parameters.
type Request struct {
	Model    string
	System   string
	Messages []models.Message
	Tools    []tools.Tool
	API      models.APIConfig
}

// StreamEventKind distinguishes the gateway's typed event stream entries.
type StreamEventKind string

const (
	EventTextDelta     StreamEventKind = "text_delta"
	EventReasoning     StreamEventKind = "reasoning"
	EventToolCallStart StreamEventKind = "tool_call_start"
	EventToolCallDelta StreamEventKind = "tool_call_delta"
	EventDone          StreamEventKind = "done"
	EventError         StreamEventKind = "error"
)

// StreamEvent is one entry of the gateway's raw event stream (spec §4.11).
// Exactly one payload field is meaningful per Kind.
type StreamEvent struct {
	Kind         StreamEventKind
	Text         string
	Reasoning    string
	ToolCallID   string
	ToolCallName string
	InputDelta   string
	InputTokens  int
	OutputTokens int
	Err          error
}

// Stream sends req and returns a channel of StreamEvents, closed when the
// response finishes or errors. Sending never blocks indefinitely on a
// cancelled ctx: the goroutine selects on ctx.Done().
func (c *Client) Stream(ctx context.Context, req Request) <-chan StreamEvent {
	out := make(chan StreamEvent)
	go func() {
		defer close(out)

		params, err := c.buildParams(req)
		if err != nil {
			emit(ctx, out, StreamEvent{Kind: EventError, Err: err})
			return
		}

		policy := backoff.DefaultPolicy()
		for attempt := 0; ; attempt++ {
			stream := c.sdk.Messages.NewStreaming(ctx, params)
			emittedContent, consumeErr := c.consume(ctx, stream, out)
			if consumeErr == nil {
				return
			}
			if emittedContent || attempt >= defaultMaxRetries || !isRetryableStreamError(consumeErr) {
				emit(ctx, out, StreamEvent{Kind: EventError, Err: consumeErr})
				return
			}
			if err := backoff.SleepWithContext(ctx, backoff.ComputeBackoff(policy, attempt)); err != nil {
				emit(ctx, out, StreamEvent{Kind: EventError, Err: consumeErr})
				return
			}
		}
	}()
	return out
}

// isRetryableStreamError reports whether err looks like a transient
// transport/rate-limit failure worth retrying, rather than a permanent
// request error. Grounded on the teacher's isRetryableError, trimmed to
// the cases observable from a bare error string since this package does
// not carry the teacher's ProviderError classification.
func isRetryableStreamError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"rate_limit", "429", "too many requests", "500", "502", "503", "504", "internal server error", "bad gateway", "service unavailable", "gateway timeout"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func emit(ctx context.Context, out chan<- StreamEvent, event StreamEvent) {
	select {
	case out <- event:
	case <-ctx.Done():
	}
}

func (c *Client) buildParams(req Request) (anthropic.MessageNewParams, error) {
	messages, err := convertMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, chibierr.Wrap(chibierr.InvalidInput, "convert messages", err)
	}

	maxTokens := int64(req.API.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: maxTokens,
	}

	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}

	if req.API.Temperature != nil {
		params.Temperature = anthropic.Float(*req.API.Temperature)
	}
	if req.API.TopP != nil {
		params.TopP = anthropic.Float(*req.API.TopP)
	}

	if len(req.Tools) > 0 {
		toolParams, err := convertTools(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Tools = toolParams
	}

	if req.API.Reasoning.Enabled {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(resolveReasoningBudget(req.API.Reasoning.Effort))
	}

	return params, nil
}

// resolveReasoningBudget implements spec §4.11's "enabled=true &&
// effort=None maps to medium" rule.
func resolveReasoningBudget(effort *string) int64 {
	if effort == nil || strings.TrimSpace(*effort) == "" {
		return reasoningBudgets["medium"]
	}
	if budget, ok := reasoningBudgets[strings.ToLower(*effort)]; ok {
		return budget
	}
	return reasoningBudgets["medium"]
}

func convertMessages(messages []models.Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			continue
		}

		var content []anthropic.ContentBlockParamUnion
		if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}
		for _, toolResult := range msg.ToolResults {
			content = append(content, anthropic.NewToolResultBlock(toolResult.ToolCallID, toolResult.Content, toolResult.IsError))
		}
		for _, toolCall := range msg.ToolCalls {
			var input map[string]interface{}
			if len(toolCall.Input) > 0 {
				if err := json.Unmarshal(toolCall.Input, &input); err != nil {
					return nil, fmt.Errorf("invalid tool call input for %s: %w", toolCall.Name, err)
				}
			}
			content = append(content, anthropic.NewToolUseBlock(toolCall.ID, input, toolCall.Name))
		}

		var message anthropic.MessageParam
		if msg.Role == models.RoleAssistant {
			message = anthropic.NewAssistantMessage(content...)
		} else {
			message = anthropic.NewUserMessage(content...)
		}
		result = append(result, message)
	}
	return result, nil
}

func convertTools(toolList []tools.Tool) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(toolList))
	for _, tool := range toolList {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.Schema(), &schema); err != nil {
			return nil, chibierr.Wrap(chibierr.InvalidInput, fmt.Sprintf("invalid tool schema for %s", tool.Name()), err)
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, tool.Name())
		if toolParam.OfTool == nil {
			return nil, chibierr.New(chibierr.InvalidInput, fmt.Sprintf("missing tool definition for %s", tool.Name()))
		}
		toolParam.OfTool.Description = anthropic.String(tool.Description())
		result = append(result, toolParam)
	}
	return result, nil
}

// maxEmptyStreamEvents bounds consecutive empty SSE events before the
// stream is treated as malformed, guarding against a flood of no-op
// events consuming CPU indefinitely.
const maxEmptyStreamEvents = 300

// consume drains stream, translating each SDK event into the gateway's
// typed stream. It returns emittedContent=true once any text/reasoning/
// tool-call event has reached the caller, after which Stream no longer
// retries on failure (the caller may already be holding partial output).
func (c *Client) consume(ctx context.Context, stream *ssestream.Stream[anthropic.MessageStreamEventUnion], out chan<- StreamEvent) (emittedContent bool, err error) {
	var currentToolCall *models.ToolCall
	var currentInput strings.Builder
	emptyEvents := 0
	var inputTokens, outputTokens int

	for stream.Next() {
		event := stream.Current()
		processed := false

		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			if ms.Message.Usage.InputTokens > 0 {
				inputTokens = int(ms.Message.Usage.InputTokens)
			}
			processed = true

		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			switch block.Type {
			case "tool_use":
				toolUse := block.AsToolUse()
				currentToolCall = &models.ToolCall{ID: toolUse.ID, Name: toolUse.Name}
				currentInput.Reset()
				emit(ctx, out, StreamEvent{Kind: EventToolCallStart, ToolCallID: toolUse.ID, ToolCallName: toolUse.Name})
				emittedContent = true
				processed = true
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					emit(ctx, out, StreamEvent{Kind: EventTextDelta, Text: delta.Text})
					emittedContent = true
					processed = true
				}
			case "thinking_delta":
				if delta.Thinking != "" {
					emit(ctx, out, StreamEvent{Kind: EventReasoning, Reasoning: delta.Thinking})
					emittedContent = true
					processed = true
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					currentInput.WriteString(delta.PartialJSON)
					if currentToolCall != nil {
						emit(ctx, out, StreamEvent{Kind: EventToolCallDelta, ToolCallID: currentToolCall.ID, InputDelta: delta.PartialJSON})
					}
					processed = true
				}
			}

		case "content_block_stop":
			if currentToolCall != nil {
				currentToolCall.Input = json.RawMessage(currentInput.String())
				currentToolCall = nil
				processed = true
			}

		case "message_delta":
			md := event.AsMessageDelta()
			if md.Usage.OutputTokens > 0 {
				outputTokens = int(md.Usage.OutputTokens)
			}
			processed = true

		case "message_stop":
			emit(ctx, out, StreamEvent{Kind: EventDone, InputTokens: inputTokens, OutputTokens: outputTokens})
			return emittedContent, nil

		case "error":
			return emittedContent, errors.New("anthropic stream error")
		}

		if processed {
			emptyEvents = 0
		} else {
			emptyEvents++
			if emptyEvents >= maxEmptyStreamEvents {
				return emittedContent, fmt.Errorf("stream appears malformed: %d consecutive empty events", emptyEvents)
			}
		}
	}

	if err := stream.Err(); err != nil {
		return emittedContent, err
	}
	return emittedContent, nil
}

// EstimateTokens gives a rough ~4-chars-per-token estimate of one request,
// used for pre-flight context-window checks before the request is sent.
func EstimateTokens(req Request) int {
	total := len(req.System) / 4
	for _, msg := range req.Messages {
		total += len(msg.Content) / 4
		for _, tc := range msg.ToolCalls {
			total += len(tc.Name) / 4
			total += len(tc.Input) / 4
		}
		for _, tr := range msg.ToolResults {
			total += len(tr.Content) / 4
		}
	}
	for _, tool := range req.Tools {
		total += len(tool.Name()) / 4
		total += len(tool.Description()) / 4
		total += len(tool.Schema()) / 4
	}
	return total
}
