package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/omegaflow/agentcore/internal/logging"
	"github.com/omegaflow/agentcore/internal/models"
)

type noopGate struct{}

func (noopGate) Acquire(ctx context.Context, sessionID string) (func(), error) {
	return func() {}, nil
}

type failingGate struct{}

func (failingGate) Acquire(ctx context.Context, sessionID string) (func(), error) {
	return nil, context.DeadlineExceeded
}

type recordingSender struct {
	mu       sync.Mutex
	messages []string
}

func (s *recordingSender) Send(ctx context.Context, channelID, recipientID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, content)
	return nil
}

func (s *recordingSender) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return ""
	}
	return s.messages[len(s.messages)-1]
}

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Level: "error"})
}

func TestForegroundProcessSendsReplyOnSuccess(t *testing.T) {
	sender := &recordingSender{}
	fg := NewForeground(ForegroundConfig{}, noopGate{}, fakeRunner{reply: "hi back"}, sender, testLogger(), nil)
	fg.process(context.Background(), models.ChannelMessage{ChannelID: "c1", SenderID: "u1", Content: "hi"})
	if sender.last() != "hi back" {
		t.Fatalf("expected reply delivered, got %q", sender.last())
	}
}

func TestForegroundProcessReportsRunnerError(t *testing.T) {
	sender := &recordingSender{}
	fg := NewForeground(ForegroundConfig{}, noopGate{}, fakeRunner{err: context.Canceled}, sender, testLogger(), nil)
	fg.process(context.Background(), models.ChannelMessage{ChannelID: "c1", SenderID: "u1", Content: "hi"})
	if sender.last() == "" {
		t.Fatal("expected an error reply to be sent")
	}
}

func TestForegroundProcessSkipsWhenGateAcquireFails(t *testing.T) {
	sender := &recordingSender{}
	fg := NewForeground(ForegroundConfig{}, failingGate{}, fakeRunner{reply: "unreachable"}, sender, testLogger(), nil)
	fg.process(context.Background(), models.ChannelMessage{ChannelID: "c1", SenderID: "u1", Content: "hi"})
	if sender.last() != "" {
		t.Fatalf("expected no reply when the gate could not be acquired, got %q", sender.last())
	}
}

func TestForegroundProcessTimesOutSlowTurn(t *testing.T) {
	sender := &recordingSender{}
	fg := NewForeground(ForegroundConfig{Deadline: 10 * time.Millisecond}, noopGate{},
		fakeRunner{reply: "late", delay: 100 * time.Millisecond}, sender, testLogger(), nil)
	fg.process(context.Background(), models.ChannelMessage{ChannelID: "c1", SenderID: "u1", Content: "hi"})
	if sender.last() == "" {
		t.Fatal("expected a timeout reply")
	}
}

func TestForegroundEnqueueRejectsWhenQueueFull(t *testing.T) {
	fg := NewForeground(ForegroundConfig{QueueSize: 1}, noopGate{}, fakeRunner{reply: "ok"}, &recordingSender{}, testLogger(), nil)
	if !fg.Enqueue(models.ChannelMessage{ChannelID: "c1"}) {
		t.Fatal("expected first enqueue to succeed")
	}
	if fg.Enqueue(models.ChannelMessage{ChannelID: "c1"}) {
		t.Fatal("expected second enqueue to be rejected once the queue is full")
	}
}
