// Package openai implements engine.Completer against the OpenAI chat
// completions API, grounded on
// _examples/haasonsaas-nexus/internal/agent/providers/openai.go's
// OpenAIProvider: same SDK, same streamed tool-call-by-index
// accumulation, adapted to the Turn Engine's own Request/StreamEvent
// shapes instead of the teacher's agent.CompletionRequest/CompletionChunk.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/waveforge/wave/internal/engine"
)

const (
	defaultMaxRetries = 3
	defaultRetryDelay = time.Second
)

// Completer is an engine.Completer backed by the OpenAI chat completions API.
type Completer struct {
	client     *openai.Client
	maxRetries int
	retryDelay time.Duration
}

// New builds a Completer. An empty apiKey is tolerated (matching the
// teacher's provider), but Stream then always fails with a clear error
// instead of panicking on a nil client.
func New(apiKey string) *Completer {
	c := &Completer{maxRetries: defaultMaxRetries, retryDelay: defaultRetryDelay}
	if apiKey != "" {
		c.client = openai.NewClient(apiKey)
	}
	return c
}

// Stream implements engine.Completer.
func (c *Completer) Stream(ctx context.Context, req engine.Request) (<-chan engine.StreamEvent, error) {
	if c.client == nil {
		return nil, errors.New("openai: API key not configured")
	}

	messages := convertMessages(req.Messages, req.System)
	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   true,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertTools(req.Tools)
	}

	var stream *openai.ChatCompletionStream
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(attempt)):
			}
		}
		stream, lastErr = c.client.CreateChatCompletionStream(ctx, chatReq)
		if lastErr == nil {
			break
		}
		if !isRetryableError(lastErr) {
			return nil, fmt.Errorf("openai: non-retryable error: %w", lastErr)
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("openai: max retries exceeded: %w", lastErr)
	}

	out := make(chan engine.StreamEvent)
	go processStream(ctx, stream, out)
	return out, nil
}

type pendingToolCall struct {
	id   string
	name string
	args strings.Builder
}

func processStream(ctx context.Context, stream *openai.ChatCompletionStream, out chan<- engine.StreamEvent) {
	defer close(out)
	defer stream.Close()

	toolCalls := make(map[int]*pendingToolCall)
	order := make([]int, 0, 4)

	flush := func() {
		for _, idx := range order {
			tc := toolCalls[idx]
			if tc == nil || tc.id == "" || tc.name == "" {
				continue
			}
			out <- engine.StreamEvent{Kind: engine.EventToolCallStart, ToolCallID: tc.id, ToolCallName: tc.name}
			out <- engine.StreamEvent{Kind: engine.EventToolCallEnd, ToolCallID: tc.id, ToolCallName: tc.name, ArgsDelta: tc.args.String()}
		}
		toolCalls = make(map[int]*pendingToolCall)
		order = order[:0]
	}

	for {
		select {
		case <-ctx.Done():
			out <- engine.StreamEvent{Kind: engine.EventError, Err: ctx.Err()}
			return
		default:
		}

		response, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				flush()
				out <- engine.StreamEvent{Kind: engine.EventDone}
				return
			}
			out <- engine.StreamEvent{Kind: engine.EventError, Err: err}
			return
		}

		if len(response.Choices) == 0 {
			continue
		}
		choice := response.Choices[0]
		delta := choice.Delta

		if delta.Content != "" {
			out <- engine.StreamEvent{Kind: engine.EventText, TextDelta: delta.Content}
		}

		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			if toolCalls[index] == nil {
				toolCalls[index] = &pendingToolCall{}
				order = append(order, index)
			}
			entry := toolCalls[index]
			if tc.ID != "" {
				entry.id = tc.ID
			}
			if tc.Function.Name != "" {
				entry.name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				entry.args.WriteString(tc.Function.Arguments)
				out <- engine.StreamEvent{Kind: engine.EventToolCallDelta, ToolCallID: entry.id, ArgsDelta: tc.Function.Arguments}
			}
		}

		if choice.FinishReason == openai.FinishReasonToolCalls {
			flush()
		}
	}
}

func convertMessages(messages []engine.CompletionMessage, system string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}

	for _, msg := range messages {
		if len(msg.ToolResults) > 0 {
			for _, tr := range msg.ToolResults {
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    tr.Content,
					ToolCallID: tr.ToolCallID,
				})
			}
			continue
		}

		oaiMsg := openai.ChatCompletionMessage{Content: msg.Text}
		switch msg.Role {
		case engine.RoleAssistant:
			oaiMsg.Role = openai.ChatMessageRoleAssistant
			if len(msg.ToolCalls) > 0 {
				oaiMsg.ToolCalls = make([]openai.ToolCall, len(msg.ToolCalls))
				for i, tc := range msg.ToolCalls {
					oaiMsg.ToolCalls[i] = openai.ToolCall{
						ID:   tc.ID,
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      tc.Name,
							Arguments: string(tc.Arguments),
						},
					}
				}
			}
		default:
			oaiMsg.Role = openai.ChatMessageRoleUser
			if len(msg.Images) > 0 {
				parts := make([]openai.ChatMessagePart, 0, len(msg.Images)+1)
				if msg.Text != "" {
					parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: msg.Text})
				}
				for _, img := range msg.Images {
					parts = append(parts, openai.ChatMessagePart{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    "data:" + img.MimeType + ";base64," + img.Data,
							Detail: openai.ImageURLDetailAuto,
						},
					})
				}
				oaiMsg.Content = ""
				oaiMsg.MultiContent = parts
			}
		}
		result = append(result, oaiMsg)
	}
	return result
}

func convertTools(tools []engine.ToolSchema) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		schemaMap := map[string]any{"type": "object", "properties": map[string]any{}}
		if len(tool.Parameters) > 0 {
			_ = json.Unmarshal(tool.Parameters, &schemaMap)
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schemaMap,
			},
		}
	}
	return result
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"rate limit", "429", "500", "502", "503", "504", "timeout", "deadline exceeded"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
