package agent

import (
	"errors"
	"testing"
)

func TestClassifyBySubstring(t *testing.T) {
	cases := map[string]ErrorKind{
		"mcp_connect: dial failed":       KindMCPConnect,
		"mcp_tools_list: timeout":        KindMCPList,
		"mcp_tools_call: bad args":       KindMCPCall,
		"mcp_transport: broken pipe":     KindMCPTransport,
		"validation: tool_name required": KindValidation,
		"inference request failed":       KindLLM,
		"chat completion error":          KindLLM,
		"openai rate limited":            KindLLM,
		"something unrelated":            KindUnknown,
	}
	for msg, want := range cases {
		if got := classify(errors.New(msg)); got != want {
			t.Errorf("classify(%q) = %v, want %v", msg, got, want)
		}
	}
}

func TestClassifyNilErrorIsUnknown(t *testing.T) {
	if got := classify(nil); got != KindUnknown {
		t.Fatalf("classify(nil) = %v, want KindUnknown", got)
	}
}

func TestNewTurnErrorFormatsMessageAndCause(t *testing.T) {
	cause := errors.New("validation: tool_name is required")
	turnErr := NewTurnError("turn failed", cause)
	if turnErr.Kind != KindValidation {
		t.Fatalf("expected KindValidation, got %v", turnErr.Kind)
	}
	if !errors.Is(turnErr, cause) {
		t.Fatal("expected errors.Is to find the wrapped cause via Unwrap")
	}
	want := "validation: turn failed: validation: tool_name is required"
	if turnErr.Error() != want {
		t.Fatalf("Error() = %q, want %q", turnErr.Error(), want)
	}
}

func TestTurnErrorWithoutCauseOmitsTrailer(t *testing.T) {
	turnErr := &TurnError{Kind: KindUnknown, Message: "no cause here"}
	if turnErr.Error() != "unknown: no cause here" {
		t.Fatalf("unexpected Error(): %q", turnErr.Error())
	}
}
