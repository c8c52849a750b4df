package gateway

import "testing"

func TestPeelCommandPlainMessageIsNone(t *testing.T) {
	got := PeelCommand("hello there")
	if got.Kind != CommandNone || got.Body != "hello there" {
		t.Fatalf("unexpected parse for plain message: %+v", got)
	}
}

func TestPeelCommandControlTakesPriorityOverSlash(t *testing.T) {
	got := PeelCommand("/reset")
	if got.Kind != CommandControl || got.Name != "reset" {
		t.Fatalf("expected control command, got %+v", got)
	}
}

func TestPeelCommandBackgroundPrefixBeforeGenericSlash(t *testing.T) {
	got := PeelCommand("/research deep dive on rust borrow checker")
	if got.Kind != CommandBackgroundSubmit {
		t.Fatalf("expected background-submit command, got %+v", got)
	}
	if got.Body != "deep dive on rust borrow checker" {
		t.Fatalf("unexpected body: %q", got.Body)
	}
}

func TestPeelCommandBgPrefix(t *testing.T) {
	got := PeelCommand("/bg summarize the thread")
	if got.Kind != CommandBackgroundSubmit {
		t.Fatalf("expected background-submit command, got %+v", got)
	}
}

func TestPeelCommandFallsBackToSlash(t *testing.T) {
	got := PeelCommand("/mode focus")
	if got.Kind != CommandSlash || got.Name != "mode" || got.Scope != "mode" {
		t.Fatalf("unexpected parse for generic slash command: %+v", got)
	}
	if got.Body != "focus" {
		t.Fatalf("unexpected body: %q", got.Body)
	}
}

func TestPeelCommandIsCaseInsensitiveAndTrimsWhitespace(t *testing.T) {
	got := PeelCommand("  /RESET  ")
	if got.Kind != CommandControl || got.Name != "reset" {
		t.Fatalf("expected case-insensitive control command, got %+v", got)
	}
}
