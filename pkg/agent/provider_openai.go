package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/LY-Tri/Spider2/pkg/bench"
)

// OpenAIProvider implements ModelProvider for the OpenAI chat API.
type OpenAIProvider struct {
	client openai.Client
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Provider returns the provider name.
func (p *OpenAIProvider) Provider() string {
	return "openai"
}

// callID derives a stable tool-call identifier from a turn's position, so a
// replayed transcript pairs each assistant tool call with its result.
func callID(turnIndex int) string {
	return fmt.Sprintf("call_%04d", turnIndex)
}

// Call serializes the transcript and makes one chat completion request.
func (p *OpenAIProvider) Call(ctx context.Context, request ModelRequest) (*ModelResponse, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}

	if request.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(request.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(request.Goal))

	lastCallID := ""
	for i, turn := range request.Transcript {
		switch turn.Role {
		case bench.RoleModel:
			if turn.Invocation != nil {
				argsJSON, err := json.Marshal(turn.Invocation.Arguments)
				if err != nil {
					return nil, fmt.Errorf("failed to marshal tool arguments: %w", err)
				}
				lastCallID = callID(i)
				assistantMsg := openai.ChatCompletionMessage{
					Role:    "assistant",
					Content: turn.Content,
					ToolCalls: []openai.ChatCompletionMessageToolCall{{
						ID:   lastCallID,
						Type: "function",
						Function: openai.ChatCompletionMessageToolCallFunction{
							Name:      turn.Invocation.Name,
							Arguments: string(argsJSON),
						},
					}},
				}
				messages = append(messages, assistantMsg.ToParam())
			} else {
				messages = append(messages, openai.AssistantMessage(turn.Content))
			}
		case bench.RoleTool:
			if turn.Observation == nil {
				continue
			}
			if lastCallID == "" {
				// Corrective re-prompts arrive as tool turns with no
				// preceding call; replay them as user messages.
				messages = append(messages, openai.UserMessage(turn.Observation.Text))
				continue
			}
			messages = append(messages, openai.ToolMessage(lastCallID, turn.Observation.Text))
			lastCallID = ""
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(request.Sampling.Model),
		Messages: messages,
	}
	if request.Sampling.MaxOutputTokens > 0 {
		params.MaxTokens = openai.Int(int64(request.Sampling.MaxOutputTokens))
	}
	if request.Sampling.Temperature > 0 {
		params.Temperature = openai.Float(request.Sampling.Temperature)
	}
	if request.Sampling.TopP > 0 {
		params.TopP = openai.Float(request.Sampling.TopP)
	}

	if len(request.Tools) > 0 {
		tools := []openai.ChatCompletionToolParam{}
		for _, tool := range request.Tools {
			tools = append(tools, openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        tool.Name,
					Description: openai.String(tool.Description),
					Parameters:  openai.FunctionParameters(tool.InputSchema),
				},
			})
		}
		params.Tools = tools
	}

	response, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("empty response from OpenAI")
	}

	choice := response.Choices[0].Message
	out := &ModelResponse{Content: choice.Content}
	for _, tc := range choice.ToolCalls {
		args := map[string]interface{}{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("failed to decode tool arguments for %s: %w", tc.Function.Name, err)
			}
		}
		out.ToolCalls = append(out.ToolCalls, bench.ToolInvocation{
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	return out, nil
}
