package agent

import (
	"context"
	"testing"

	"github.com/omegaflow/agentcore/internal/logging"
	"github.com/omegaflow/agentcore/internal/models"
	"github.com/omegaflow/agentcore/internal/sessions"
)

type fakeProvider struct {
	responses []models.ChatMessage
	calls     int
}

func (p *fakeProvider) Name() string        { return "fake" }
func (p *fakeProvider) SupportsTools() bool { return true }

func (p *fakeProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	idx := p.calls
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	p.calls++
	return &CompletionResponse{Message: p.responses[idx]}, nil
}

func newTestEngine(provider Provider) *Engine {
	store := sessions.NewStore(sessions.WindowPolicy{High: 100, Low: 50}, nil)
	log := logging.New(logging.Config{Level: "error"})
	return NewEngine(Config{MaxToolRounds: 3, Model: "test-model"}, provider, nil, store, nil, nil, log)
}

func TestRunTurnReturnsPlainReplyWithoutToolCalls(t *testing.T) {
	provider := &fakeProvider{responses: []models.ChatMessage{
		{Role: models.RoleAssistant, Content: "hello there"},
	}}
	engine := newTestEngine(provider)

	out := engine.RunTurn(context.Background(), "s1", "hi")
	if out.Err != nil {
		t.Fatalf("RunTurn: %v", out.Err)
	}
	if out.Reply.Content != "hello there" {
		t.Fatalf("unexpected reply: %q", out.Reply.Content)
	}
	if out.Reflection.Outcome != models.OutcomeCompleted {
		t.Fatalf("expected completed outcome, got %v", out.Reflection.Outcome)
	}
}

func TestRunTurnNoProviderFails(t *testing.T) {
	engine := newTestEngine(nil)
	out := engine.RunTurn(context.Background(), "s1", "hi")
	if out.Err == nil {
		t.Fatal("expected an error with no provider configured")
	}
}

func TestToolLoopStopsAtMaxRounds(t *testing.T) {
	loopingResponse := models.ChatMessage{
		Role:      models.RoleAssistant,
		ToolCalls: []models.ToolCall{{ID: "1", Name: "execute_graph_bridge", Arguments: `{"tool_name":"x"}`}},
	}
	provider := &fakeProvider{responses: []models.ChatMessage{loopingResponse}}
	engine := newTestEngine(provider)

	msg, _, err := engine.toolLoop(context.Background(), "s1", nil, nil)
	if err != nil {
		t.Fatalf("toolLoop: %v", err)
	}
	if msg.Content != ErrMaxToolRounds.Error() {
		t.Fatalf("expected max-rounds message, got %q", msg.Content)
	}
}

func TestToolLoopCountsModelRoundsNotIterations(t *testing.T) {
	loopingResponse := models.ChatMessage{
		Role:      models.RoleAssistant,
		ToolCalls: []models.ToolCall{{ID: "1", Name: "execute_graph_bridge", Arguments: `{"tool_name":"x"}`}},
	}
	provider := &fakeProvider{responses: []models.ChatMessage{loopingResponse}}
	store := sessions.NewStore(sessions.WindowPolicy{High: 100, Low: 50}, nil)
	log := logging.New(logging.Config{Level: "error"})
	engine := NewEngine(Config{MaxToolRounds: 2, Model: "test-model"}, provider, nil, store, nil, nil, log)

	msg, toolCalls, err := engine.toolLoop(context.Background(), "s1", nil, nil)
	if err != nil {
		t.Fatalf("toolLoop: %v", err)
	}
	if msg.Content != ErrMaxToolRounds.Error() {
		t.Fatalf("expected max-rounds message, got %q", msg.Content)
	}
	if toolCalls != 2 {
		t.Fatalf("expected 2 tool dispatches with MaxToolRounds=2, got %d", toolCalls)
	}
}

func TestRunTurnEmptyResponseFailsWithLLMKind(t *testing.T) {
	provider := &fakeProvider{responses: []models.ChatMessage{
		{Role: models.RoleAssistant, Content: "  "},
	}}
	engine := newTestEngine(provider)

	out := engine.RunTurn(context.Background(), "s1", "hi")
	if out.Err == nil {
		t.Fatal("expected an error for empty inference response")
	}
	turnErr, ok := out.Err.(*TurnError)
	if !ok {
		t.Fatalf("expected *TurnError, got %T", out.Err)
	}
	if turnErr.Kind != KindLLM {
		t.Fatalf("expected KindLLM, got %v", turnErr.Kind)
	}
	if out.Reply.Content != "Error: empty response" {
		t.Fatalf("unexpected reply content: %q", out.Reply.Content)
	}
	if out.Reflection.Outcome != models.OutcomeError {
		t.Fatalf("expected error outcome, got %v", out.Reflection.Outcome)
	}
}

func TestDispatchGraphBridgeValidatesToolName(t *testing.T) {
	engine := newTestEngine(&fakeProvider{})
	call := models.ToolCall{ID: "1", Name: "execute_graph_bridge", Arguments: `{}`}
	result, err := engine.dispatchGraphBridge(context.Background(), call)
	if err == nil {
		t.Fatal("expected validation error for empty tool_name")
	}
	if !result.isError {
		t.Fatal("expected isError=true in the dispatch result")
	}
}

func TestDispatchGraphBridgeRejectsNonObjectArguments(t *testing.T) {
	engine := newTestEngine(&fakeProvider{})
	call := models.ToolCall{ID: "1", Name: "execute_graph_bridge", Arguments: `{"tool_name":"x","arguments":[1,2,3]}`}
	_, err := engine.dispatchGraphBridge(context.Background(), call)
	if err == nil {
		t.Fatal("expected validation error for non-object arguments")
	}
}

func TestDispatchGraphBridgeRejectsMalformedJSON(t *testing.T) {
	engine := newTestEngine(&fakeProvider{})
	call := models.ToolCall{ID: "1", Name: "execute_graph_bridge", Arguments: `not json`}
	_, err := engine.dispatchGraphBridge(context.Background(), call)
	if err == nil {
		t.Fatal("expected validation error for malformed JSON")
	}
}

func TestDispatchToolWithoutPoolReturnsErrorResult(t *testing.T) {
	engine := newTestEngine(&fakeProvider{})
	call := models.ToolCall{ID: "1", Name: "mcp__search__lookup"}
	result, err := engine.dispatchTool(context.Background(), call)
	if err != nil {
		t.Fatalf("dispatchTool should encode failure as a result, not an error: %v", err)
	}
	if !result.isError {
		t.Fatal("expected isError=true with no pool configured")
	}
}
