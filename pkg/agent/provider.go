package agent

import (
	"context"
	"fmt"

	"github.com/LY-Tri/Spider2/pkg/bench"
)

// SamplingConfig carries the model sampling parameters for one session.
type SamplingConfig struct {
	Model           string  `json:"model"`
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"top_p"`
	MaxOutputTokens int     `json:"max_output_tokens"`
}

// ToolSpec advertises one tool to the model.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// ModelRequest serializes one full conversation into a provider call. The
// transcript is replayed verbatim; Goal becomes the opening user message.
type ModelRequest struct {
	SystemPrompt string
	Goal         string
	Transcript   bench.Transcript
	Tools        []ToolSpec
	Sampling     SamplingConfig
}

// ModelResponse is the parsed provider output: assistant text plus any tool
// calls the model emitted.
type ModelResponse struct {
	Content   string
	ToolCalls []bench.ToolInvocation
}

// ModelProvider is the model API boundary consumed by sessions.
type ModelProvider interface {
	Call(ctx context.Context, request ModelRequest) (*ModelResponse, error)
	Provider() string
}

// NewProvider creates a provider by name.
func NewProvider(name, apiKey string) (ModelProvider, error) {
	switch name {
	case "openai":
		return NewOpenAIProvider(apiKey), nil
	case "anthropic":
		return NewAnthropicProvider(apiKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
}
