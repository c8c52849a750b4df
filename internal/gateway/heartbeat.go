package gateway

import (
	"context"
	"time"
)

// HeartbeatStatus is the outcome of one heartbeat probe.
type HeartbeatStatus string

const (
	HeartbeatHealthy HeartbeatStatus = "healthy"
	HeartbeatTimeout HeartbeatStatus = "timeout"
)

// Probe wraps a no-op turn through runner with a timeout, classifying
// Ok->Healthy and Err->Timeout for the Job Manager's heartbeat check.
func Probe(ctx context.Context, runner TurnRunner, sessionID string, timeout time.Duration) HeartbeatStatus {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := runner.RunTurn(probeCtx, sessionID, "")
		done <- err
	}()

	select {
	case <-probeCtx.Done():
		return HeartbeatTimeout
	case err := <-done:
		if err != nil {
			return HeartbeatTimeout
		}
		return HeartbeatHealthy
	}
}
