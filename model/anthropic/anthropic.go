// Package anthropic provides a model wrapper for the Anthropic Messages API
// with streaming and tool use.
package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"github.com/hupe1980/docsmesh/core"
	"github.com/hupe1980/docsmesh/model"
)

// Options configures the Anthropic model adapter (temperature, model id,
// max tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
	BaseURL     string
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	client *anthropic.Client
	opts   Options
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// NewModel creates a new Anthropic model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()

	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Model{
		client: &client,
		opts:   opts,
	}
}

// NewModelFromClient creates a new Anthropic model from an existing client.
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Model{
		client: client,
		opts:   opts,
	}
}

// Generate adapts the Messages API (with tool use) into model.Response events.
// In streaming mode text deltas are forwarded as partial responses while the
// full message is accumulated for the final response.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := m.buildParams(req)

		if !req.Stream {
			resp, err := m.client.Messages.New(ctx, params)
			if err != nil {
				errCh <- fmt.Errorf("anthropic api error: %w", err)
				return
			}
			send(ctx, out, finalResponse(resp))
			return
		}

		stream := m.client.Messages.NewStreaming(ctx, params)
		defer stream.Close()

		message := anthropic.Message{}
		for stream.Next() {
			event := stream.Current()
			if err := message.Accumulate(event); err != nil {
				errCh <- fmt.Errorf("anthropic stream accumulate: %w", err)
				return
			}

			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				switch delta := ev.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					if delta.Text == "" {
						continue
					}
					if !send(ctx, out, model.Response{
						Partial: true,
						Content: core.NewTextContent(core.RoleAssistant, delta.Text),
					}) {
						errCh <- ctx.Err()
						return
					}
				}
			}
		}

		if err := stream.Err(); err != nil {
			errCh <- fmt.Errorf("anthropic streaming error: %w", err)
			return
		}

		send(ctx, out, finalResponse(&message))
	}()

	return out, errCh
}

func send(ctx context.Context, out chan<- model.Response, r model.Response) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- r:
		return true
	}
}

// finalResponse converts an accumulated message into the final response.
func finalResponse(msg *anthropic.Message) model.Response {
	parts := make([]core.Part, 0, len(msg.Content))

	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				parts = append(parts, core.TextPart{Text: block.Text})
			}
		case "tool_use":
			call := model.ParseToolInput(block.ID, block.Name, block.Input)
			parts = append(parts, core.ToolCallPart{ToolCall: call})
		}
	}

	finishReason := "stop"
	if msg.StopReason != "" {
		finishReason = string(msg.StopReason)
	}

	in, outTokens := int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens)

	return model.Response{
		ID:           msg.ID,
		Partial:      false,
		Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
		FinishReason: finishReason,
		Usage:        &model.TokenUsage{PromptTokens: in, CompletionTokens: outTokens, TotalTokens: in + outTokens},
	}
}

func (m *Model) buildParams(req model.Request) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:       m.opts.Model,
		Messages:    buildMessages(req.Messages),
		MaxTokens:   m.opts.MaxTokens,
		Temperature: anthropic.Float(m.opts.Temperature),
	}

	if req.Instructions != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.Instructions}}
	}

	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	return params
}

// buildMessages converts the conversation into Anthropic messages. Tool
// results are user-side content: consecutive tool messages are folded into a
// single user message following the assistant turn that requested them.
func buildMessages(contents []core.Content) []anthropic.MessageParam {
	var messages []anthropic.MessageParam
	var results []anthropic.ContentBlockParamUnion

	flushResults := func() {
		if len(results) > 0 {
			messages = append(messages, anthropic.NewUserMessage(results...))
			results = nil
		}
	}

	for _, c := range contents {
		switch c.Role {
		case core.RoleTool:
			for _, r := range c.ToolResults() {
				results = append(results, anthropic.NewToolResultBlock(r.CallID, r.Output, r.IsError))
			}
		case core.RoleAssistant:
			flushResults()
			if blocks := buildAssistantContent(c.Parts); len(blocks) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(blocks...))
			}
		default:
			flushResults()
			if text := model.RenderUserText(c); text != "" {
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
			}
		}
	}
	flushResults()

	return messages
}

func buildAssistantContent(parts []core.Part) []anthropic.ContentBlockParamUnion {
	var content []anthropic.ContentBlockParamUnion

	for _, p := range parts {
		switch part := p.(type) {
		case core.TextPart:
			if part.Text != "" {
				content = append(content, anthropic.NewTextBlock(part.Text))
			}
		case core.ToolCallPart:
			var input any = part.ToolCall.Input
			if part.ToolCall.Input == nil {
				input = map[string]any{}
			}
			content = append(content, anthropic.NewToolUseBlock(part.ToolCall.ID, input, part.ToolCall.Name))
		}
	}

	return content
}

// buildTools converts tool definitions to Anthropic tool format.
func buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	anthropicTools := make([]anthropic.ToolUnionParam, len(tools))

	for i, tool := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}

		if params := tool.Parameters; params != nil {
			if properties, exists := params["properties"]; exists {
				inputSchema.Properties = properties
			}
			switch req := params["required"].(type) {
			case []string:
				inputSchema.Required = req
			case []any:
				for _, r := range req {
					if s, ok := r.(string); ok {
						inputSchema.Required = append(inputSchema.Required, s)
					}
				}
			}
		}

		anthropicTools[i] = anthropic.ToolUnionParamOfTool(inputSchema, tool.Name)
		if tool.Description != "" {
			anthropicTools[i].OfTool.Description = anthropic.String(tool.Description)
		}
	}

	return anthropicTools
}

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          string(m.opts.Model),
		Provider:      "anthropic",
		SupportsTools: true,
	}
}
