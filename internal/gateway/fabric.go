package gateway

import (
	"context"
	"fmt"

	"github.com/omegaflow/agentcore/internal/logging"
	"github.com/omegaflow/agentcore/internal/models"
	"github.com/omegaflow/agentcore/internal/sessions"
)

// FabricConfig bounds the inbound queue shared by all channels.
type FabricConfig struct {
	InboundQueueSize int
}

// Fabric is the Dispatch Fabric: one shared inbound queue feeding a single
// router task that peels commands before handing plain turns to the
// Foreground dispatcher or the Job Manager.
type Fabric struct {
	cfg        FabricConfig
	acl        ACL
	foreground *Foreground
	jobs       *JobManager
	sessStore  *sessions.Store
	adapter    ReplySender
	log        *logging.Logger

	inbound chan models.ChannelMessage
	done    chan struct{}
}

// NewFabric wires a Fabric from its already-constructed subsystems.
func NewFabric(cfg FabricConfig, acl ACL, foreground *Foreground, jobs *JobManager, sessStore *sessions.Store, adapter ReplySender, log *logging.Logger) *Fabric {
	if cfg.InboundQueueSize <= 0 {
		cfg.InboundQueueSize = 256
	}
	return &Fabric{
		cfg: cfg, acl: acl, foreground: foreground, jobs: jobs, sessStore: sessStore, adapter: adapter, log: log,
		inbound: make(chan models.ChannelMessage, cfg.InboundQueueSize),
		done:    make(chan struct{}),
	}
}

// Ingest enqueues msg from a transport handler. It returns false when the
// bounded inbound queue is full.
func (f *Fabric) Ingest(msg models.ChannelMessage) bool {
	select {
	case f.inbound <- msg:
		return true
	default:
		return false
	}
}

// Run is the fabric's single router task; it exits once Shutdown closes the
// inbound queue and drains what remains.
func (f *Fabric) Run(ctx context.Context) {
	for msg := range f.inbound {
		f.route(ctx, msg)
	}
	close(f.done)
}

// Shutdown closes the inbound queue and waits for the router to drain.
func (f *Fabric) Shutdown() {
	close(f.inbound)
	<-f.done
}

func (f *Fabric) route(ctx context.Context, msg models.ChannelMessage) {
	parsed := PeelCommand(msg.Content)
	sessionID := sessions.SessionKey(msg.ChannelID, msg.SessionKey)

	switch parsed.Kind {
	case CommandControl:
		if f.acl != nil && !f.acl.AllowControl(msg.SenderID) {
			f.denyReply(ctx, msg)
			return
		}
		f.handleControl(sessionID, parsed)
	case CommandSlash:
		if f.acl != nil && !f.acl.AllowSlash(msg.SenderID, parsed.Scope) {
			f.denyReply(ctx, msg)
			return
		}
		_ = f.adapter.Send(ctx, msg.ChannelID, msg.SenderID, fmt.Sprintf("unrecognized slash command: %s", parsed.Name))
	case CommandBackgroundSubmit:
		if _, err := f.jobs.Submit(sessionID, msg.SenderID, parsed.Body); err != nil {
			_ = f.adapter.Send(ctx, msg.ChannelID, msg.SenderID, fmt.Sprintf("Error: %v", err))
		}
	default:
		if !f.foreground.Enqueue(msg) {
			_ = f.adapter.Send(ctx, msg.ChannelID, msg.SenderID, "Server busy, please try again shortly.")
		}
	}
}

func (f *Fabric) handleControl(sessionID string, parsed ParsedCommand) {
	switch parsed.Name {
	case "reset":
		f.sessStore.Reset(sessionID)
	case "resume":
		_ = f.sessStore.Resume(sessionID)
	}
}

func (f *Fabric) denyReply(ctx context.Context, msg models.ChannelMessage) {
	_ = f.adapter.Send(ctx, msg.ChannelID, msg.SenderID, "You are not authorized to do that.")
}
