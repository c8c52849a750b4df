package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/omegaflow/agentcore/internal/logging"
	"github.com/omegaflow/agentcore/internal/metrics"
	"github.com/omegaflow/agentcore/internal/models"
	"github.com/omegaflow/agentcore/internal/sessions"
)

// ForegroundConfig bounds the foreground dispatcher's queue, concurrency,
// and per-turn deadline.
type ForegroundConfig struct {
	QueueSize int
	Workers   int
	Deadline  time.Duration
}

// Foreground is the session-serialized synchronous dispatcher: each work
// item acquires the Session Gate before running a turn, so turns within a
// session never overlap while cross-session turns run fully in parallel.
type Foreground struct {
	cfg     ForegroundConfig
	gate    sessions.Gate
	runner  TurnRunner
	adapter ReplySender
	log     *logging.Logger
	metrics *metrics.Registry

	queue chan models.ChannelMessage
	done  chan struct{}
}

// ReplySender is the narrow capability the foreground dispatcher needs to
// publish a reply back through a transport.
type ReplySender interface {
	Send(ctx context.Context, channelID, recipientID, content string) error
}

// NewForeground constructs a Foreground dispatcher.
func NewForeground(cfg ForegroundConfig, gate sessions.Gate, runner TurnRunner, adapter ReplySender, log *logging.Logger, reg *metrics.Registry) *Foreground {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = 120 * time.Second
	}
	return &Foreground{
		cfg: cfg, gate: gate, runner: runner, adapter: adapter, log: log, metrics: reg,
		queue: make(chan models.ChannelMessage, cfg.QueueSize),
		done:  make(chan struct{}),
	}
}

// Start launches the fixed worker pool.
func (f *Foreground) Start(ctx context.Context) {
	for i := 0; i < f.cfg.Workers; i++ {
		go f.worker(ctx)
	}
}

// Shutdown closes the queue; workers drain in-flight items before exiting.
func (f *Foreground) Shutdown() {
	close(f.queue)
	for i := 0; i < f.cfg.Workers; i++ {
		<-f.done
	}
}

// Enqueue submits msg for foreground processing, returning false if the
// bounded queue is full (callers should reply "server busy").
func (f *Foreground) Enqueue(msg models.ChannelMessage) bool {
	select {
	case f.queue <- msg:
		return true
	default:
		return false
	}
}

func (f *Foreground) worker(ctx context.Context) {
	for msg := range f.queue {
		f.process(ctx, msg)
	}
	f.done <- struct{}{}
}

func (f *Foreground) process(ctx context.Context, msg models.ChannelMessage) {
	sessionID := sessions.SessionKey(msg.ChannelID, msg.SessionKey)

	release, err := f.gate.Acquire(ctx, sessionID)
	if err != nil {
		f.log.WithComponent("foreground").Warn("gate acquire failed", "session", sessionID, "error", err.Error())
		return
	}
	defer release()
	if f.metrics != nil {
		f.metrics.SessionGateHeld.Inc()
		defer f.metrics.SessionGateHeld.Dec()
	}

	turnCtx, cancel := context.WithTimeout(ctx, f.cfg.Deadline)
	defer cancel()

	type result struct {
		reply string
		err   error
	}
	resCh := make(chan result, 1)
	go func() {
		reply, err := runWithSafetyBarrier(func() (string, error) {
			return f.runner.RunTurn(turnCtx, sessionID, msg.Content)
		})
		resCh <- result{reply: reply, err: err}
	}()

	select {
	case <-turnCtx.Done():
		_ = f.adapter.Send(ctx, msg.ChannelID, msg.SenderID, "Sorry, that took too long and was cancelled.")
	case res := <-resCh:
		if res.err != nil {
			_ = f.adapter.Send(ctx, msg.ChannelID, msg.SenderID, fmt.Sprintf("Error: %v", res.err))
			return
		}
		_ = f.adapter.Send(ctx, msg.ChannelID, msg.SenderID, res.reply)
	}
}
