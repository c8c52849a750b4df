package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/omegaflow/agentcore/internal/models"
	"github.com/omegaflow/agentcore/internal/sessions"
)

type stubACL struct {
	allowControl bool
	allowSlash   bool
}

func (a stubACL) AllowControl(senderID string) bool          { return a.allowControl }
func (a stubACL) AllowSlash(senderID, scope string) bool      { return a.allowSlash }

func newTestFabric(t *testing.T, acl ACL, sender ReplySender) (*Fabric, *Foreground, *JobManager) {
	t.Helper()
	sessStore := sessions.NewStore(sessions.WindowPolicy{High: 100, Low: 50}, nil)
	fg := NewForeground(ForegroundConfig{QueueSize: 1}, noopGate{}, fakeRunner{reply: "ack"}, sender, testLogger(), nil)
	jobs := NewJobManager(JobManagerConfig{QueueSize: 1}, NewMemoryJobStore(), fakeRunner{reply: "ack"}, testLogger(), nil)
	fabric := NewFabric(FabricConfig{}, acl, fg, jobs, sessStore, sender, testLogger())
	return fabric, fg, jobs
}

func TestFabricRouteDeniesControlWithoutACL(t *testing.T) {
	sender := &recordingSender{}
	fabric, _, _ := newTestFabric(t, stubACL{allowControl: false}, sender)
	fabric.route(context.Background(), models.ChannelMessage{ChannelID: "c", SenderID: "u", Content: "/reset"})
	if sender.last() != "You are not authorized to do that." {
		t.Fatalf("expected a denial reply, got %q", sender.last())
	}
}

func TestFabricRouteAllowsControlWithACL(t *testing.T) {
	sender := &recordingSender{}
	fabric, _, _ := newTestFabric(t, stubACL{allowControl: true}, sender)
	fabric.route(context.Background(), models.ChannelMessage{ChannelID: "c", SenderID: "u", SessionKey: "k", Content: "/reset"})
	if sender.last() != "" {
		t.Fatalf("expected no reply for an authorized reset, got %q", sender.last())
	}
}

func TestFabricRouteUnrecognizedSlashCommand(t *testing.T) {
	sender := &recordingSender{}
	fabric, _, _ := newTestFabric(t, stubACL{allowSlash: true}, sender)
	fabric.route(context.Background(), models.ChannelMessage{ChannelID: "c", SenderID: "u", Content: "/mode focus"})
	if sender.last() != "unrecognized slash command: mode" {
		t.Fatalf("unexpected reply: %q", sender.last())
	}
}

func TestFabricRouteBackgroundSubmitSuccess(t *testing.T) {
	sender := &recordingSender{}
	fabric, _, jobs := newTestFabric(t, nil, sender)
	jobs.Start(context.Background())
	fabric.route(context.Background(), models.ChannelMessage{ChannelID: "c", SenderID: "u", Content: "/bg do the thing"})
	select {
	case <-jobs.Completions():
	case <-time.After(2 * time.Second):
		t.Fatal("expected the background job to complete")
	}
	jobs.Shutdown()
	if sender.last() != "" {
		t.Fatalf("expected no synchronous reply for a successful submit, got %q", sender.last())
	}
}

func TestFabricRouteBackgroundSubmitFailureRepliesWithError(t *testing.T) {
	sender := &recordingSender{}
	fabric, _, jobs := newTestFabric(t, nil, sender)
	jobs.Start(context.Background())
	defer jobs.Shutdown()
	fabric.route(context.Background(), models.ChannelMessage{ChannelID: "c", SenderID: "u", Content: "/bg   "})
	if sender.last() == "" {
		t.Fatal("expected an error reply for an empty background prompt")
	}
}

func TestFabricRouteDefaultEnqueuesForeground(t *testing.T) {
	sender := &recordingSender{}
	fabric, fg, _ := newTestFabric(t, nil, sender)
	fabric.route(context.Background(), models.ChannelMessage{ChannelID: "c", SenderID: "u", Content: "plain message"})
	if sender.last() != "" {
		t.Fatalf("expected no synchronous reply from enqueueing, got %q", sender.last())
	}
	if fg.Enqueue(models.ChannelMessage{ChannelID: "c"}) {
		t.Fatal("expected the single-slot foreground queue to already be full")
	}
}

func TestFabricRouteRepliesBusyWhenForegroundQueueFull(t *testing.T) {
	sender := &recordingSender{}
	fabric, fg, _ := newTestFabric(t, nil, sender)
	// Fill the single-slot queue without starting workers to drain it.
	fg.Enqueue(models.ChannelMessage{ChannelID: "c", Content: "first"})
	fabric.route(context.Background(), models.ChannelMessage{ChannelID: "c", SenderID: "u", Content: "second"})
	if sender.last() != "Server busy, please try again shortly." {
		t.Fatalf("expected a busy reply, got %q", sender.last())
	}
}
