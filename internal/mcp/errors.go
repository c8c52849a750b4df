package mcp

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a runtime failure by substring heuristics over the
// underlying error text.
type ErrorKind string

const (
	KindToolsList ErrorKind = "mcp_tools_list"
	KindToolsCall ErrorKind = "mcp_tools_call"
	KindTransport ErrorKind = "mcp_transport"
	KindConnect   ErrorKind = "mcp_connect"
	KindValidation ErrorKind = "validation"
	KindUnknown   ErrorKind = "unknown"
)

// RuntimeError is a classified failure raised by the MCP client pool.
type RuntimeError struct {
	Kind   ErrorKind
	Server string
	Cause  error
}

func (e *RuntimeError) Error() string {
	if e.Server != "" {
		return fmt.Sprintf("%s[%s]: %v", e.Kind, e.Server, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *RuntimeError) Unwrap() error { return e.Cause }

// NewRuntimeError wraps cause, inferring its Kind from op when the caller
// already knows which RPC failed, falling back to substring classification.
func NewRuntimeError(op, server string, cause error) *RuntimeError {
	kind := classify(op, cause)
	return &RuntimeError{Kind: kind, Server: server, Cause: cause}
}

func classify(op string, cause error) ErrorKind {
	switch op {
	case "tools/list":
		return KindToolsList
	case "tools/call":
		return KindToolsCall
	case "connect":
		return KindConnect
	}
	if cause == nil {
		return KindUnknown
	}
	errStr := strings.ToLower(cause.Error())
	switch {
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "deadline exceeded"):
		return KindTransport
	case strings.Contains(errStr, "connection"), strings.Contains(errStr, "refused"), strings.Contains(errStr, "broken pipe"):
		return KindTransport
	case strings.Contains(errStr, "eof"):
		return KindTransport
	default:
		return KindUnknown
	}
}

// connectFailedError builds the exact wording the dispatch fabric and tests
// expect on a hard MCP-connect failure.
func connectFailedError(server, endpoint string, attempts int, cause error) error {
	return &RuntimeError{
		Kind:   KindConnect,
		Server: server,
		Cause:  fmt.Errorf("MCP connect failed after %d attempts to %s: %w", attempts, endpoint, cause),
	}
}

var errValidation = errors.New("mcp: validation failed")

func validationError(msg string) error {
	return &RuntimeError{Kind: KindValidation, Cause: fmt.Errorf("%w: %s", errValidation, msg)}
}
