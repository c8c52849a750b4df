package mcp

import (
	"errors"
	"strings"
	"testing"
)

func TestClassifyByOperation(t *testing.T) {
	cases := map[string]ErrorKind{
		"tools/list": KindToolsList,
		"tools/call": KindToolsCall,
		"connect":    KindConnect,
	}
	for op, want := range cases {
		if got := classify(op, errors.New("boom")); got != want {
			t.Errorf("classify(%q, ...) = %v, want %v", op, got, want)
		}
	}
}

func TestClassifyFallsBackToErrorTextHeuristics(t *testing.T) {
	cases := map[string]ErrorKind{
		"dial tcp: connection refused": KindTransport,
		"context deadline exceeded":    KindTransport,
		"unexpected EOF":               KindTransport,
		"something else entirely":      KindUnknown,
	}
	for msg, want := range cases {
		if got := classify("", errors.New(msg)); got != want {
			t.Errorf("classify(\"\", %q) = %v, want %v", msg, got, want)
		}
	}
}

func TestConnectFailedErrorMessage(t *testing.T) {
	err := connectFailedError("search", "http://localhost:9000", 5, errors.New("refused"))
	msg := err.Error()
	if !strings.Contains(msg, "MCP connect failed after 5 attempts to http://localhost:9000") {
		t.Fatalf("unexpected connect-failed message: %q", msg)
	}
	var re *RuntimeError
	if !errors.As(err, &re) {
		t.Fatal("expected a *RuntimeError")
	}
	if re.Kind != KindConnect {
		t.Fatalf("expected KindConnect, got %v", re.Kind)
	}
}

func TestRuntimeErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewRuntimeError("tools/call", "search", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to find the wrapped cause")
	}
}
