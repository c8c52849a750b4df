// Package mcp implements the MCP Client Pool: per-server fixed-size
// connection pools, a read-through tools/list cache, and tool invocation
// with JSON-Schema argument validation.
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/omegaflow/agentcore/internal/logging"
	"github.com/omegaflow/agentcore/internal/metrics"
	"github.com/omegaflow/agentcore/internal/models"
	"github.com/omegaflow/agentcore/internal/retry"
)

// PoolConfig configures the connection pool and its cache.
type PoolConfig struct {
	ConnectionsPerServer int
	ConnectAttempts      int
	ListCacheTTL         time.Duration
	ListCacheCapacity    int
}

// connection is one pooled connection to a server.
type connection struct {
	transport Transport
	lastUsed  time.Time
	busy      bool
}

// server holds the pool of connections for one configured MCP server plus
// its cached schemas.
type server struct {
	spec  ServerSpec
	mu    sync.Mutex
	conns []*connection
	rrIdx int

	schemas map[string]*jsonschema.Schema
}

// Pool is the MCP Client Pool.
type Pool struct {
	cfg     PoolConfig
	log     *logging.Logger
	metrics *metrics.Registry
	cache   *listCache

	mu      sync.RWMutex
	servers map[string]*server
}

// NewPool constructs an empty Pool; servers are added via Start.
func NewPool(cfg PoolConfig, log *logging.Logger, reg *metrics.Registry) *Pool {
	if cfg.ConnectionsPerServer <= 0 {
		cfg.ConnectionsPerServer = 2
	}
	if cfg.ConnectAttempts <= 0 {
		cfg.ConnectAttempts = 5
	}
	return &Pool{
		cfg:     cfg,
		log:     log,
		metrics: reg,
		cache:   newListCache(cfg.ListCacheTTL, cfg.ListCacheCapacity),
		servers: make(map[string]*server),
	}
}

// Start dials ConnectionsPerServer connections to each spec, retrying each
// dial with capped exponential backoff up to ConnectAttempts times. A hard
// failure aborts startup with a classified connect error.
func (p *Pool) Start(ctx context.Context, specs []ServerSpec) error {
	for _, spec := range specs {
		srv := &server{spec: spec, schemas: make(map[string]*jsonschema.Schema)}
		for i := 0; i < p.cfg.ConnectionsPerServer; i++ {
			tr := NewTransport(spec)
			result := retry.Do(ctx, retry.Config{MaxAttempts: p.cfg.ConnectAttempts, Policy: retry.DefaultConfig().Policy}, func(ctx context.Context, attempt int) error {
				return tr.Connect(ctx)
			})
			if result.Err != nil {
				return connectFailedError(spec.ID, endpointOf(spec), p.cfg.ConnectAttempts, result.Err)
			}
			srv.conns = append(srv.conns, &connection{transport: tr})
		}
		p.mu.Lock()
		p.servers[spec.ID] = srv
		p.mu.Unlock()
		p.log.WithComponent("mcp").Info("mcp server connected", "server", spec.ID, "connections", len(srv.conns))
	}
	return nil
}

func endpointOf(spec ServerSpec) string {
	if spec.URL != "" {
		return spec.URL
	}
	return spec.Command
}

// Stop closes every pooled connection across all servers.
func (p *Pool) Stop() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, srv := range p.servers {
		srv.mu.Lock()
		for _, c := range srv.conns {
			_ = c.transport.Close()
		}
		srv.mu.Unlock()
	}
}

// acquire selects an idle connection by round-robin with least-recently-used
// tiebreak; it never blocks, returning the least-recently-used connection
// even if marked busy (server-side MCP calls are typically cheap enough
// that brief head-of-line queuing is acceptable ahead of hard failure).
func (s *server) acquire() *connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.conns) == 0 {
		return nil
	}
	// Prefer an idle connection starting at the round-robin cursor.
	n := len(s.conns)
	for i := 0; i < n; i++ {
		idx := (s.rrIdx + i) % n
		if !s.conns[idx].busy {
			s.rrIdx = (idx + 1) % n
			s.conns[idx].busy = true
			return s.conns[idx]
		}
	}
	// All busy: fall back to least-recently-used.
	oldest := s.conns[0]
	for _, c := range s.conns[1:] {
		if c.lastUsed.Before(oldest.lastUsed) {
			oldest = c
		}
	}
	oldest.busy = true
	return oldest
}

func (s *server) release(c *connection) {
	s.mu.Lock()
	c.busy = false
	c.lastUsed = time.Now()
	s.mu.Unlock()
}

func (p *Pool) server(id string) (*server, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	srv, ok := p.servers[id]
	if !ok {
		return nil, &RuntimeError{Kind: KindTransport, Server: id, Cause: fmt.Errorf("mcp: unknown server %q", id)}
	}
	return srv, nil
}

// ListTools returns the ordered tool descriptors for server, served from the
// read-through cache.
func (p *Pool) ListTools(ctx context.Context, serverID string) ([]models.ToolDescriptor, error) {
	srv, err := p.server(serverID)
	if err != nil {
		return nil, err
	}
	return p.cache.getOrFetch(ctx, serverID, func(ctx context.Context) ([]models.ToolDescriptor, error) {
		return p.fetchTools(ctx, srv)
	})
}

// AllTools returns the concatenation of every configured server's tool
// listing, each qualified with its server name.
func (p *Pool) AllTools(ctx context.Context) ([]models.ToolDescriptor, error) {
	p.mu.RLock()
	ids := make([]string, 0, len(p.servers))
	for id := range p.servers {
		ids = append(ids, id)
	}
	p.mu.RUnlock()

	var all []models.ToolDescriptor
	for _, id := range ids {
		tools, err := p.ListTools(ctx, id)
		if err != nil {
			return nil, err
		}
		all = append(all, tools...)
	}
	return all, nil
}

func (p *Pool) fetchTools(ctx context.Context, srv *server) ([]models.ToolDescriptor, error) {
	c := srv.acquire()
	if c == nil {
		return nil, NewRuntimeError("tools/list", srv.spec.ID, fmt.Errorf("no connections available"))
	}
	defer srv.release(c)

	raw, err := c.transport.Call(ctx, "tools/list", nil)
	if err != nil {
		return nil, NewRuntimeError("tools/list", srv.spec.ID, err)
	}
	var result toolsListResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, NewRuntimeError("tools/list", srv.spec.ID, fmt.Errorf("decode tools/list: %w", err))
	}

	descs := make([]models.ToolDescriptor, 0, len(result.Tools))
	srv.mu.Lock()
	for _, t := range result.Tools {
		qualified := models.QualifyTool(srv.spec.ID, t.Name)
		descs = append(descs, models.ToolDescriptor{
			QualifiedName:    qualified,
			Description:      t.Description,
			ParametersSchema: t.InputSchema,
		})
		if len(t.InputSchema) > 0 {
			if schema, err := compileSchema(t.InputSchema); err == nil {
				srv.schemas[t.Name] = schema
			}
		}
	}
	srv.mu.Unlock()
	return descs, nil
}

func compileSchema(raw json.RawMessage) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	const resource = "inline.json"
	if err := compiler.AddResource(resource, bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return compiler.Compile(resource)
}

// CallTool dispatches a call_tool invocation: the qualified name is split
// into (server, bare tool), arguments are validated against the tool's
// cached schema when present, and the selected connection's RPC is issued.
func (p *Pool) CallTool(ctx context.Context, qualifiedName string, argumentsJSON json.RawMessage) (models.ToolResult, error) {
	serverID, toolName, err := models.ParseQualifiedTool(qualifiedName)
	if err != nil {
		return models.ToolResult{}, validationError(err.Error())
	}
	srv, err := p.server(serverID)
	if err != nil {
		return models.ToolResult{}, err
	}

	srv.mu.Lock()
	schema := srv.schemas[toolName]
	srv.mu.Unlock()
	if schema != nil && len(argumentsJSON) > 0 {
		var v any
		if err := json.Unmarshal(argumentsJSON, &v); err != nil {
			return models.ToolResult{}, validationError("arguments are not valid JSON: " + err.Error())
		}
		if err := schema.Validate(v); err != nil {
			return models.ToolResult{}, validationError("arguments failed schema validation: " + err.Error())
		}
	}

	c := srv.acquire()
	if c == nil {
		return models.ToolResult{}, NewRuntimeError("tools/call", serverID, fmt.Errorf("no connections available"))
	}
	defer srv.release(c)

	params := map[string]any{"name": toolName}
	if len(argumentsJSON) > 0 {
		var args any
		if err := json.Unmarshal(argumentsJSON, &args); err == nil {
			params["arguments"] = args
		}
	}

	raw, err := c.transport.Call(ctx, "tools/call", params)
	if err != nil {
		return models.ToolResult{}, NewRuntimeError("tools/call", serverID, err)
	}
	var result callToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return models.ToolResult{}, NewRuntimeError("tools/call", serverID, fmt.Errorf("decode tools/call: %w", err))
	}
	return models.ToolResult{Text: flattenText(result.Content), IsError: result.IsError}, nil
}

// Stats is a point-in-time snapshot of pool observability counters.
type Stats struct {
	CacheHits   int64
	CacheMisses int64
}

// StatsSnapshot reports the pool's cache hit/miss counters.
func (p *Pool) StatsSnapshot() Stats {
	hits, misses := p.cache.stats()
	return Stats{CacheHits: hits, CacheMisses: misses}
}
