// Package backoff computes capped-exponential retry delays with jitter.
package backoff

import (
	"math/rand"
	"time"
)

// Policy describes a capped-exponential backoff schedule with jitter.
type Policy struct {
	InitialMs int64
	MaxMs     int64
	Factor    float64
	Jitter    float64
}

// DefaultPolicy is the default schedule used for MCP connect attempts.
func DefaultPolicy() Policy {
	return Policy{InitialMs: 100, MaxMs: 30_000, Factor: 2, Jitter: 0.1}
}

// Compute returns the delay for the given zero-based attempt number using
// the package's shared random source.
func (p Policy) Compute(attempt int) time.Duration {
	return p.ComputeWithRand(attempt, rand.Float64)
}

// ComputeWithRand is Compute with an injectable source of randomness in
// [0,1) for deterministic tests.
func (p Policy) ComputeWithRand(attempt int, randFloat func() float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := float64(p.InitialMs)
	for i := 0; i < attempt; i++ {
		base *= p.Factor
		if base > float64(p.MaxMs) {
			base = float64(p.MaxMs)
			break
		}
	}
	if base > float64(p.MaxMs) {
		base = float64(p.MaxMs)
	}
	if p.Jitter > 0 {
		delta := base * p.Jitter
		base = base - delta + randFloat()*2*delta
	}
	if base < 0 {
		base = 0
	}
	return time.Duration(base) * time.Millisecond
}
