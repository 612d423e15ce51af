package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/LY-Tri/Spider2/pkg/bench"
)

// AnthropicProvider implements ModelProvider for the Anthropic messages API.
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Provider returns the provider name.
func (p *AnthropicProvider) Provider() string {
	return "anthropic"
}

// anthropicMessages replays the goal and transcript as a messages array.
func anthropicMessages(request ModelRequest) []anthropic.MessageParam {
	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(request.Goal)),
	}

	lastCallID := ""
	for i, turn := range request.Transcript {
		switch turn.Role {
		case bench.RoleModel:
			if turn.Invocation != nil {
				blocks := []anthropic.ContentBlockParamUnion{}
				if turn.Content != "" {
					blocks = append(blocks, anthropic.NewTextBlock(turn.Content))
				}
				lastCallID = callID(i)
				blocks = append(blocks, anthropic.NewToolUseBlock(lastCallID, turn.Invocation.Arguments, turn.Invocation.Name))
				messages = append(messages, anthropic.MessageParam{
					Role:    anthropic.MessageParamRoleAssistant,
					Content: blocks,
				})
			} else {
				// The API rejects empty text blocks, so an empty model turn
				// is replayed with a placeholder.
				content := turn.Content
				if content == "" {
					content = "(no content)"
				}
				messages = append(messages, anthropic.MessageParam{
					Role: anthropic.MessageParamRoleAssistant,
					Content: []anthropic.ContentBlockParamUnion{
						anthropic.NewTextBlock(content),
					},
				})
			}
		case bench.RoleTool:
			if turn.Observation == nil {
				continue
			}
			if lastCallID == "" {
				messages = append(messages, anthropic.NewUserMessage(
					anthropic.NewTextBlock(turn.Observation.Text),
				))
				continue
			}
			isError := turn.Observation.Status != bench.ObservationOK
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(lastCallID, turn.Observation.Text, isError),
			))
			lastCallID = ""
		}
	}
	return messages
}

// Call serializes the transcript and makes one messages request.
func (p *AnthropicProvider) Call(ctx context.Context, request ModelRequest) (*ModelResponse, error) {
	messages := anthropicMessages(request)

	maxTokens := request.Sampling.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	reqParams := anthropic.MessageNewParams{
		Model:     anthropic.Model(request.Sampling.Model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if request.SystemPrompt != "" {
		reqParams.System = []anthropic.TextBlockParam{{Text: request.SystemPrompt}}
	}
	if request.Sampling.Temperature > 0 {
		reqParams.Temperature = anthropic.Float(request.Sampling.Temperature)
	}
	if request.Sampling.TopP > 0 {
		reqParams.TopP = anthropic.Float(request.Sampling.TopP)
	}

	if len(request.Tools) > 0 {
		tools := []anthropic.ToolUnionParam{}
		for _, tool := range request.Tools {
			toolParam := anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: tool.InputSchema["properties"],
				},
			}
			if required, ok := tool.InputSchema["required"].([]string); ok {
				toolParam.InputSchema.Required = required
			}
			tools = append(tools, anthropic.ToolUnionParam{OfTool: &toolParam})
		}
		reqParams.Tools = tools
	}

	response, err := p.client.Messages.New(ctx, reqParams)
	if err != nil {
		return nil, err
	}

	out := &ModelResponse{}
	for _, block := range response.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			out.Content += b.Text
		case anthropic.ToolUseBlock:
			var args map[string]interface{}
			if err := json.Unmarshal([]byte(b.JSON.Input.Raw()), &args); err != nil {
				return nil, fmt.Errorf("failed to decode tool arguments for %s: %w", b.Name, err)
			}
			out.ToolCalls = append(out.ToolCalls, bench.ToolInvocation{
				Name:      b.Name,
				Arguments: args,
			})
		}
	}

	return out, nil
}
