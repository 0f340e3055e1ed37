// Package bedrock implements engine.Completer against AWS Bedrock's
// Converse API, grounded on
// _examples/haasonsaas-nexus/internal/agent/providers/bedrock.go's
// BedrockProvider: same SDK and ConverseStream event switch, adapted to
// the Turn Engine's own Request/StreamEvent shapes instead of the
// teacher's agent.CompletionRequest/CompletionChunk. Image attachments
// and the beta computer-use tool path are out of scope here since the
// Turn Engine has no equivalent concept.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/waveforge/wave/internal/engine"
)

const (
	defaultRegion     = "us-east-1"
	defaultMaxRetries = 3
	defaultRetryDelay = time.Second
	defaultModel      = "anthropic.claude-3-sonnet-20240229-v1:0"
)

// Config configures a Completer.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	DefaultModel    string
	MaxRetries      int
	RetryDelay      time.Duration
}

// Completer is an engine.Completer backed by AWS Bedrock's Converse API.
type Completer struct {
	client       *bedrockruntime.Client
	defaultModel string
	maxRetries   int
	retryDelay   time.Duration
}

// New builds a Completer, loading AWS credentials from the given
// explicit values or, when absent, the default SDK credential chain.
func New(ctx context.Context, cfg Config) (*Completer, error) {
	if cfg.Region == "" {
		cfg.Region = defaultRegion
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

	var awsCfg aws.Config
	var err error
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken,
			)),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, fmt.Errorf("bedrock: load AWS config: %w", err)
	}

	return &Completer{
		client:       bedrockruntime.NewFromConfig(awsCfg),
		defaultModel: cfg.DefaultModel,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
	}, nil
}

// Stream implements engine.Completer.
func (c *Completer) Stream(ctx context.Context, req engine.Request) (<-chan engine.StreamEvent, error) {
	if c.client == nil {
		return nil, errors.New("bedrock: client not initialized")
	}

	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	messages, err := convertMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("bedrock: convert messages: %w", err)
	}

	converseReq := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(model),
		Messages: messages,
	}
	if req.System != "" {
		converseReq.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: req.System}}
	}
	if req.MaxTokens > 0 {
		maxTokens := req.MaxTokens
		if maxTokens > math.MaxInt32 {
			maxTokens = math.MaxInt32
		}
		converseReq.InferenceConfig = &types.InferenceConfiguration{MaxTokens: aws.Int32(int32(maxTokens))}
	}
	if len(req.Tools) > 0 {
		toolConfig, err := convertTools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("bedrock: convert tools: %w", err)
		}
		converseReq.ToolConfig = toolConfig
	}

	var stream *bedrockruntime.ConverseStreamOutput
	err = retry(ctx, c.maxRetries, c.retryDelay, isRetryableError, func() error {
		out, streamErr := c.client.ConverseStream(ctx, converseReq)
		if streamErr != nil {
			return streamErr
		}
		stream = out
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock: %w", err)
	}

	out := make(chan engine.StreamEvent)
	go processStream(ctx, stream, out)
	return out, nil
}

func processStream(ctx context.Context, stream *bedrockruntime.ConverseStreamOutput, out chan<- engine.StreamEvent) {
	defer close(out)

	eventStream := stream.GetStream()
	defer eventStream.Close()

	var currentToolID, currentToolName string
	var toolInput strings.Builder
	inTool := false

	eventChan := eventStream.Events()
	for {
		select {
		case <-ctx.Done():
			out <- engine.StreamEvent{Kind: engine.EventError, Err: ctx.Err()}
			return
		case event, ok := <-eventChan:
			if !ok {
				if inTool {
					out <- engine.StreamEvent{Kind: engine.EventToolCallEnd, ToolCallID: currentToolID, ToolCallName: currentToolName, ArgsDelta: toolInput.String()}
				}
				if err := eventStream.Err(); err != nil {
					out <- engine.StreamEvent{Kind: engine.EventError, Err: err}
				} else {
					out <- engine.StreamEvent{Kind: engine.EventDone}
				}
				return
			}

			switch ev := event.(type) {
			case *types.ConverseStreamOutputMemberContentBlockStart:
				if toolUse, ok := ev.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
					currentToolID = aws.ToString(toolUse.Value.ToolUseId)
					currentToolName = aws.ToString(toolUse.Value.Name)
					toolInput.Reset()
					inTool = true
					out <- engine.StreamEvent{Kind: engine.EventToolCallStart, ToolCallID: currentToolID, ToolCallName: currentToolName}
				}

			case *types.ConverseStreamOutputMemberContentBlockDelta:
				switch delta := ev.Value.Delta.(type) {
				case *types.ContentBlockDeltaMemberText:
					if delta.Value != "" {
						out <- engine.StreamEvent{Kind: engine.EventText, TextDelta: delta.Value}
					}
				case *types.ContentBlockDeltaMemberToolUse:
					if delta.Value.Input != nil {
						toolInput.WriteString(*delta.Value.Input)
						out <- engine.StreamEvent{Kind: engine.EventToolCallDelta, ToolCallID: currentToolID, ArgsDelta: *delta.Value.Input}
					}
				}

			case *types.ConverseStreamOutputMemberContentBlockStop:
				if inTool {
					out <- engine.StreamEvent{Kind: engine.EventToolCallEnd, ToolCallID: currentToolID, ToolCallName: currentToolName, ArgsDelta: toolInput.String()}
					inTool = false
					toolInput.Reset()
				}

			case *types.ConverseStreamOutputMemberMessageStop:
				out <- engine.StreamEvent{Kind: engine.EventDone}
				return
			}
		}
	}
}

func convertMessages(messages []engine.CompletionMessage) ([]types.Message, error) {
	result := make([]types.Message, 0, len(messages))
	for _, msg := range messages {
		var content []types.ContentBlock
		if msg.Text != "" {
			content = append(content, &types.ContentBlockMemberText{Value: msg.Text})
		}
		for _, tr := range msg.ToolResults {
			content = append(content, &types.ContentBlockMemberToolResult{
				Value: types.ToolResultBlock{
					ToolUseId: aws.String(tr.ToolCallID),
					Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: tr.Content}},
				},
			})
		}
		for _, tc := range msg.ToolCalls {
			var inputDoc any
			if len(tc.Arguments) > 0 {
				if err := json.Unmarshal(tc.Arguments, &inputDoc); err != nil {
					inputDoc = map[string]any{}
				}
			}
			content = append(content, &types.ContentBlockMemberToolUse{
				Value: types.ToolUseBlock{
					ToolUseId: aws.String(tc.ID),
					Name:      aws.String(tc.Name),
					Input:     document.NewLazyDocument(inputDoc),
				},
			})
		}
		if len(content) == 0 {
			continue
		}

		role := types.ConversationRoleUser
		if msg.Role == engine.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		result = append(result, types.Message{Role: role, Content: content})
	}
	return result, nil
}

func convertTools(tools []engine.ToolSchema) (*types.ToolConfiguration, error) {
	specs := make([]types.Tool, 0, len(tools))
	for _, tool := range tools {
		var schemaDoc any
		if len(tool.Parameters) > 0 {
			if err := json.Unmarshal(tool.Parameters, &schemaDoc); err != nil {
				return nil, fmt.Errorf("invalid schema for tool %s: %w", tool.Name, err)
			}
		} else {
			schemaDoc = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		specs = append(specs, &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(tool.Name),
				Description: aws.String(tool.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schemaDoc)},
			},
		})
	}
	return &types.ToolConfiguration{Tools: specs}, nil
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"throttlingexception", "toomanyrequestsexception", "serviceunavailableexception", "rate limit", "429", "500", "502", "503", "504", "timeout", "deadline exceeded"} {
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
