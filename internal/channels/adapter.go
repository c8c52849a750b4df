// Package channels defines the minimal transport-capability contract the
// dispatch fabric depends on. Concrete transports (Telegram, Discord,
// Slack wire protocols) are external collaborators built on top of this
// interface; only the contract and a registry keyed by channel-id are in
// scope here.
package channels

import "context"

// Adapter is the minimal capability set the dispatch fabric needs from any
// transport: a name, a way to send a reply, and the two authorization
// checks that gate control/slash commands.
type Adapter interface {
	Name() string
	Send(ctx context.Context, recipientID, content string) error
	IsAuthorizedForControl(senderID string) bool
	IsAuthorizedForSlash(senderID string, scope string) bool
}

// Registry holds the adapters the gateway has constructed for each
// configured channel, keyed by channel-id.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds a adapter under channelID.
func (r *Registry) Register(channelID string, a Adapter) {
	r.adapters[channelID] = a
}

// Get looks up the adapter for channelID.
func (r *Registry) Get(channelID string) (Adapter, bool) {
	a, ok := r.adapters[channelID]
	return a, ok
}
