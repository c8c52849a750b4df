package mcp

import (
	"context"
	"encoding/json"
)

// Transport is the minimal wire abstraction a pooled Connection speaks.
// Concrete implementations cover Streamable-HTTP and stdio.
type Transport interface {
	Connect(ctx context.Context) error
	Close() error
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
	Notify(ctx context.Context, method string, params any) error
	Connected() bool
}

// TransportKind selects a concrete Transport.
type TransportKind string

const (
	TransportHTTP  TransportKind = "http"
	TransportStdio TransportKind = "stdio"
)

// ServerSpec is the resolved (secret-bearing) configuration for dialing one
// MCP server, built from config.ServerRef plus its environment indirection.
type ServerSpec struct {
	ID          string
	Transport   TransportKind
	URL         string
	BearerToken string
	Command     string
	Args        []string
}

// NewTransport builds the Transport named by spec.Transport.
func NewTransport(spec ServerSpec) Transport {
	switch spec.Transport {
	case TransportHTTP:
		return newHTTPTransport(spec)
	default:
		return newStdioTransport(spec)
	}
}
