package agent

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for turn-engine failures.
var (
	ErrMaxToolRounds    = errors.New("agent: reached tool round limit")
	ErrContextCancelled = errors.New("agent: context cancelled")
	ErrNoProvider       = errors.New("agent: no provider configured")
	ErrEmptyResponse    = errors.New("empty response")
)

// ErrorKind classifies a turn failure by substring heuristics over the
// underlying error text.
type ErrorKind string

const (
	KindLLM        ErrorKind = "llm"
	KindMCPConnect ErrorKind = "mcp_connect"
	KindMCPList    ErrorKind = "mcp_tools_list"
	KindMCPCall    ErrorKind = "mcp_tools_call"
	KindMCPTransport ErrorKind = "mcp_transport"
	KindValidation ErrorKind = "validation"
	KindUnknown    ErrorKind = "unknown"
)

// TurnError is a classified failure surfaced to the dispatch fabric.
type TurnError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *TurnError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *TurnError) Unwrap() error { return e.Cause }

// NewTurnError classifies cause into a TurnError, preferring a pre-tagged
// mcp.RuntimeError's Kind (recognized by its error string prefix) and
// falling back to substring classification.
func NewTurnError(message string, cause error) *TurnError {
	return &TurnError{Kind: classify(cause), Message: message, Cause: cause}
}

func classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, ErrEmptyResponse) {
		return KindLLM
	}
	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "mcp_connect"):
		return KindMCPConnect
	case strings.Contains(errStr, "mcp_tools_list"):
		return KindMCPList
	case strings.Contains(errStr, "mcp_tools_call"):
		return KindMCPCall
	case strings.Contains(errStr, "mcp_transport"):
		return KindMCPTransport
	case strings.Contains(errStr, "validation"):
		return KindValidation
	case strings.Contains(errStr, "inference"), strings.Contains(errStr, "completion"), strings.Contains(errStr, "openai"):
		return KindLLM
	default:
		return KindUnknown
	}
}
