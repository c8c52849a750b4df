package sessions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrGateTimeout names a gate acquisition that did not succeed in time. The
// gates in this package do not return it: their Acquire methods return
// ctx.Err() when the context ends before the permit is held.
var ErrGateTimeout = errors.New("sessions: gate acquire timed out")

// Gate serializes turns within a session while allowing unbounded
// cross-session parallelism.
type Gate interface {
	// Acquire blocks until sessionID's exclusive permit is held or ctx is
	// done, returning a release function.
	Acquire(ctx context.Context, sessionID string) (release func(), err error)
}

// gateEntry is one session's exclusive permit, reference-counted so the map
// can evict entries once nobody references them.
type gateEntry struct {
	mu       sync.Mutex
	refCount int
}

// MemoryGate is an in-memory, reference-counted Session Gate: entries are
// created on first use and evicted once their reference count returns to
// zero.
type MemoryGate struct {
	mu      sync.Mutex
	entries map[string]*gateEntry
}

// NewMemoryGate constructs an empty MemoryGate.
func NewMemoryGate() *MemoryGate {
	return &MemoryGate{entries: make(map[string]*gateEntry)}
}

func (g *MemoryGate) ref(sessionID string) *gateEntry {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.entries[sessionID]
	if !ok {
		e = &gateEntry{}
		g.entries[sessionID] = e
	}
	e.refCount++
	return e
}

func (g *MemoryGate) unref(sessionID string, e *gateEntry) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e.refCount--
	if e.refCount <= 0 {
		delete(g.entries, sessionID)
	}
}

const gateLockPollInterval = 5 * time.Millisecond

// Acquire implements Gate, polling TryLock at a short interval so it can
// honor context cancellation without leaking the underlying mutex's hold,
// via a short polling loop.
func (g *MemoryGate) Acquire(ctx context.Context, sessionID string) (func(), error) {
	e := g.ref(sessionID)

	if e.mu.TryLock() {
		return func() {
			e.mu.Unlock()
			g.unref(sessionID, e)
		}, nil
	}

	ticker := time.NewTicker(gateLockPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			g.unref(sessionID, e)
			return nil, ctx.Err()
		case <-ticker.C:
			if e.mu.TryLock() {
				return func() {
					e.mu.Unlock()
					g.unref(sessionID, e)
				}, nil
			}
		}
	}
}

// DistributedGate acquires a lease in a remote store with a TTL, releasing
// it on worker exit and renewing it on an interval so a crashed holder's
// lease still expires. LeaseStore is implemented by the durable backend
// (e.g. the sqlite session backend) so the lease and the session snapshot
// can share one store.
type DistributedGate struct {
	store     LeaseStore
	ownerID   string
	ttl       time.Duration
	renewEvery time.Duration
}

// LeaseStore is the minimal CAS-lease contract a DistributedGate needs.
// TryAcquire must behave like "INSERT ... ON CONFLICT (session_id) DO
// UPDATE ... WHERE expires_at < now() OR owner_id = excluded.owner_id".
type LeaseStore interface {
	TryAcquire(ctx context.Context, sessionID, ownerID string, ttl time.Duration) (acquired bool, err error)
	Renew(ctx context.Context, sessionID, ownerID string, ttl time.Duration) error
	Release(ctx context.Context, sessionID, ownerID string) error
}

// NewDistributedGate builds a DistributedGate backed by store.
func NewDistributedGate(store LeaseStore, ownerID string, ttl time.Duration) *DistributedGate {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &DistributedGate{store: store, ownerID: ownerID, ttl: ttl, renewEvery: ttl / 2}
}

// Acquire polls TryAcquire until it succeeds or ctx is done, then starts a
// renewal goroutine that keeps the lease alive until release is called.
func (g *DistributedGate) Acquire(ctx context.Context, sessionID string) (func(), error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		ok, err := g.store.TryAcquire(ctx, sessionID, g.ownerID, g.ttl)
		if err != nil {
			return nil, fmt.Errorf("sessions: distributed gate acquire %s: %w", sessionID, err)
		}
		if ok {
			renewCtx, cancel := context.WithCancel(context.Background())
			go g.renewLoop(renewCtx, sessionID)
			return func() {
				cancel()
				_ = g.store.Release(context.Background(), sessionID, g.ownerID)
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (g *DistributedGate) renewLoop(ctx context.Context, sessionID string) {
	ticker := time.NewTicker(g.renewEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = g.store.Renew(ctx, sessionID, g.ownerID, g.ttl)
		}
	}
}
