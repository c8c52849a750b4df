package gateway

import (
	"context"
	"fmt"

	"github.com/omegaflow/agentcore/internal/channels"
)

// registrySender adapts a channels.Registry to the narrower ReplySender
// contract the foreground dispatcher and fabric depend on, so neither needs
// to know about adapter registration or authorization checks.
type registrySender struct {
	registry *channels.Registry
}

// NewReplySender wraps registry as a ReplySender.
func NewReplySender(registry *channels.Registry) ReplySender {
	return &registrySender{registry: registry}
}

func (s *registrySender) Send(ctx context.Context, channelID, recipientID, content string) error {
	adapter, ok := s.registry.Get(channelID)
	if !ok {
		return fmt.Errorf("gateway: no adapter registered for channel %q", channelID)
	}
	return adapter.Send(ctx, recipientID, content)
}
