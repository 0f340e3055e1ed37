// Package anthropic implements engine.Completer against the Anthropic
// Messages API, grounded on
// _examples/haasonsaas-nexus/internal/agent/providers/anthropic.go's
// AnthropicProvider: same SDK, same retry/backoff and SSE event switch,
// adapted to the Turn Engine's own Request/StreamEvent shapes instead of
// the teacher's agent.CompletionRequest/CompletionChunk.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/waveforge/wave/internal/engine"
	"github.com/waveforge/wave/pkg/block"
)

const (
	defaultMaxRetries = 3
	defaultRetryDelay = time.Second
	defaultModel      = "claude-sonnet-4-20250514"
	defaultMaxTokens  = 4096
)

// Config configures a Completer.
type Config struct {
	APIKey       string
	BaseURL      string
	MaxRetries   int
	RetryDelay   time.Duration
	DefaultModel string
}

// Completer is an engine.Completer backed by the Anthropic Messages API.
type Completer struct {
	client       anthropic.Client
	maxRetries   int
	retryDelay   time.Duration
	defaultModel string
}

// New builds a Completer. APIKey is required.
func New(cfg Config) (*Completer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: APIKey is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = defaultModel
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Completer{
		client:       anthropic.NewClient(opts...),
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		defaultModel: cfg.DefaultModel,
	}, nil
}

// Stream implements engine.Completer.
func (c *Completer) Stream(ctx context.Context, req engine.Request) (<-chan engine.StreamEvent, error) {
	messages, err := convertMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("anthropic: convert messages: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.modelOrDefault(req.Model)),
		Messages:  messages,
		MaxTokens: int64(maxTokensOrDefault(req.MaxTokens)),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if len(req.Tools) > 0 {
		tools, err := convertTools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("anthropic: convert tools: %w", err)
		}
		params.Tools = tools
	}

	var stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
	err = retry(ctx, c.maxRetries, c.retryDelay, isRetryableError, func() error {
		stream = c.client.Messages.NewStreaming(ctx, params)
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make(chan engine.StreamEvent)
	go processStream(stream, out)
	return out, nil
}

func (c *Completer) modelOrDefault(model string) string {
	if model == "" {
		return c.defaultModel
	}
	return model
}

func maxTokensOrDefault(n int) int {
	if n <= 0 {
		return defaultMaxTokens
	}
	return n
}

func processStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], out chan<- engine.StreamEvent) {
	defer close(out)

	var currentToolID, currentToolName string
	var toolInput strings.Builder
	inTool := false
	var inputTokens, outputTokens int64

	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			if ms.Message.Usage.InputTokens > 0 {
				inputTokens = ms.Message.Usage.InputTokens
			}

		case "content_block_start":
			cb := event.AsContentBlockStart().ContentBlock
			if cb.Type == "tool_use" {
				tu := cb.AsToolUse()
				currentToolID = tu.ID
				currentToolName = tu.Name
				toolInput.Reset()
				inTool = true
				out <- engine.StreamEvent{Kind: engine.EventToolCallStart, ToolCallID: currentToolID, ToolCallName: currentToolName}
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					out <- engine.StreamEvent{Kind: engine.EventText, TextDelta: delta.Text}
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					toolInput.WriteString(delta.PartialJSON)
					out <- engine.StreamEvent{Kind: engine.EventToolCallDelta, ToolCallID: currentToolID, ArgsDelta: delta.PartialJSON}
				}
			}

		case "content_block_stop":
			if inTool {
				out <- engine.StreamEvent{Kind: engine.EventToolCallEnd, ToolCallID: currentToolID, ToolCallName: currentToolName, ArgsDelta: toolInput.String()}
				inTool = false
			}

		case "message_delta":
			md := event.AsMessageDelta()
			if md.Usage.OutputTokens > 0 {
				outputTokens = md.Usage.OutputTokens
			}

		case "message_stop":
			out <- engine.StreamEvent{Kind: engine.EventUsage, Usage: &block.Usage{
				Model:        "",
				InputTokens:  int(inputTokens),
				OutputTokens: int(outputTokens),
			}}
			out <- engine.StreamEvent{Kind: engine.EventDone}
			return

		case "error":
			out <- engine.StreamEvent{Kind: engine.EventError, Err: errors.New("anthropic: stream error")}
			return
		}
	}
	if err := stream.Err(); err != nil {
		out <- engine.StreamEvent{Kind: engine.EventError, Err: fmt.Errorf("anthropic: %w", err)}
		return
	}
	out <- engine.StreamEvent{Kind: engine.EventDone}
}

func convertMessages(messages []engine.CompletionMessage) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	for _, msg := range messages {
		var content []anthropic.ContentBlockParamUnion
		if msg.Text != "" {
			content = append(content, anthropic.NewTextBlock(msg.Text))
		}
		for _, tr := range msg.ToolResults {
			content = append(content, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
		}
		for _, tc := range msg.ToolCalls {
			var input map[string]any
			if len(tc.Arguments) > 0 {
				if err := json.Unmarshal(tc.Arguments, &input); err != nil {
					return nil, fmt.Errorf("invalid tool call arguments for %s: %w", tc.Name, err)
				}
			}
			content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
		}
		if len(content) == 0 {
			continue
		}

		var message anthropic.MessageParam
		if msg.Role == engine.RoleAssistant {
			message = anthropic.NewAssistantMessage(content...)
		} else {
			message = anthropic.NewUserMessage(content...)
		}
		result = append(result, message)
	}
	return result, nil
}

func convertTools(tools []engine.ToolSchema) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if len(tool.Parameters) > 0 {
			if err := json.Unmarshal(tool.Parameters, &schema); err != nil {
				return nil, fmt.Errorf("invalid schema for tool %s: %w", tool.Name, err)
			}
		}
		param := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if param.OfTool != nil && tool.Description != "" {
			param.OfTool.Description = anthropic.String(tool.Description)
		}
		result = append(result, param)
	}
	return result, nil
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"rate_limit", "429", "overloaded", "timeout", "deadline exceeded", "connection reset", "connection refused", "no such host"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func retry(ctx context.Context, maxRetries int, baseDelay time.Duration, retryable func(error) bool, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) || attempt == maxRetries {
			return lastErr
		}
		delay := time.Duration(float64(baseDelay) * math.Pow(2, float64(attempt)))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
