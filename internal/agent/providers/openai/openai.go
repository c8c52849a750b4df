// Package openai is the reference agent.Provider binding for the
// OpenAI-compatible inference boundary, wrapping sashabaranov/go-openai.
package openai

import (
	"context"
	"encoding/json"
	"fmt"

	sdk "github.com/sashabaranov/go-openai"

	"github.com/omegaflow/agentcore/internal/agent"
	"github.com/omegaflow/agentcore/internal/models"
)

// Provider adapts the go-openai client to agent.Provider.
type Provider struct {
	client *sdk.Client
	name   string
}

// New builds a Provider pointed at baseURL (empty for the default OpenAI
// endpoint) authenticated with apiKey.
func New(apiKey, baseURL string) *Provider {
	cfg := sdk.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Provider{client: sdk.NewClientWithConfig(cfg), name: "openai"}
}

func (p *Provider) Name() string        { return p.name }
func (p *Provider) SupportsTools() bool { return true }

// Complete implements agent.Provider by translating to and from the
// OpenAI-compatible chat-completion wire shape.
func (p *Provider) Complete(ctx context.Context, req *agent.CompletionRequest) (*agent.CompletionResponse, error) {
	messages := make([]sdk.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, toSDKMessage(m))
	}

	var tools []sdk.Tool
	for _, t := range req.Tools {
		tools = append(tools, sdk.Tool{
			Type: sdk.ToolTypeFunction,
			Function: &sdk.FunctionDefinition{
				Name:        t.QualifiedName,
				Description: t.Description,
				Parameters:  json.RawMessage(t.ParametersSchema),
			},
		})
	}

	resp, err := p.client.CreateChatCompletion(ctx, sdk.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
		Tools:    tools,
	})
	if err != nil {
		return nil, fmt.Errorf("openai: completion request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty choices in completion response")
	}
	return &agent.CompletionResponse{Message: fromSDKMessage(resp.Choices[0].Message)}, nil
}

func toSDKMessage(m models.ChatMessage) sdk.ChatCompletionMessage {
	out := sdk.ChatCompletionMessage{
		Role:       string(m.Role),
		Content:    m.Content,
		Name:       m.Name,
		ToolCallID: m.ToolCallID,
	}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, sdk.ToolCall{
			ID:   tc.ID,
			Type: sdk.ToolTypeFunction,
			Function: sdk.FunctionCall{
				Name:      tc.Name,
				Arguments: tc.Arguments,
			},
		})
	}
	return out
}

func fromSDKMessage(m sdk.ChatCompletionMessage) models.ChatMessage {
	out := models.ChatMessage{
		Role:       models.Role(m.Role),
		Content:    m.Content,
		Name:       m.Name,
		ToolCallID: m.ToolCallID,
	}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, models.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out
}
