// Package agent implements the Agent Turn Engine: the bounded tool-calling
// loop (WaitingForModel/DispatchingTools/Finalizing) that drives one user
// turn to completion.
package agent

import (
	"context"

	"github.com/omegaflow/agentcore/internal/models"
)

// CompletionRequest is what the turn engine sends to an inference Provider.
type CompletionRequest struct {
	Model    string
	Messages []models.ChatMessage
	Tools    []models.ToolDescriptor
}

// CompletionResponse is a Provider's reply: either a plain assistant message
// or one carrying tool-calls to dispatch.
type CompletionResponse struct {
	Message models.ChatMessage
}

// Provider is the abstract inference-provider boundary; the engine never
// depends on a concrete SDK, only on this interface.
type Provider interface {
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
	Name() string
	SupportsTools() bool
}
