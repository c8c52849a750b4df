package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/omegaflow/agentcore/internal/logging"
	"github.com/omegaflow/agentcore/internal/mcp"
	"github.com/omegaflow/agentcore/internal/memory"
	"github.com/omegaflow/agentcore/internal/models"
	"github.com/omegaflow/agentcore/internal/omega"
	"github.com/omegaflow/agentcore/internal/sessions"
	"github.com/omegaflow/agentcore/internal/tracing"
)

// state is the turn engine's explicit bounded state machine:
//
//	WaitingForModel -> DispatchingTools -> WaitingForModel -> ... -> Finalizing
type state int

const (
	stateWaitingForModel state = iota
	stateDispatchingTools
	stateFinalizing
)

// Config bounds one turn's tool-calling loop.
type Config struct {
	MaxToolRounds int
	Model         string
}

// Embedder produces the intent embedding used for episodic recall and for
// storing a newly consolidated episode. The reference binding is supplied
// by whatever embedding provider the operator configures; the turn engine
// treats it as an opaque capability.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Engine runs individual turns against a Session Store, Episodic Memory,
// Omega Router, MCP pool, and inference Provider.
type Engine struct {
	cfg      Config
	provider Provider
	pool     *mcp.Pool
	sessions *sessions.Store
	episodes *memory.Store
	embedder Embedder
	log      *logging.Logger
}

// NewEngine constructs an Engine. embedder may be nil, in which case
// episodic recall and consolidation are skipped.
func NewEngine(cfg Config, provider Provider, pool *mcp.Pool, store *sessions.Store, episodes *memory.Store, embedder Embedder, log *logging.Logger) *Engine {
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = 8
	}
	return &Engine{cfg: cfg, provider: provider, pool: pool, sessions: store, episodes: episodes, embedder: embedder, log: log}
}

// Outcome is what RunTurn reports back to its caller (the dispatch fabric).
type Outcome struct {
	TurnID    string
	Reply     models.ChatMessage
	Reflection models.Reflection
	Err       error
}

// RunTurn executes one turn: append the user message (the session store
// rolls its window), assemble episodic-recall injections, run the bounded
// tool loop, and derive the next turn's policy hint. RunTurn does not read
// a pending policy hint for the session.
func (e *Engine) RunTurn(ctx context.Context, sessionID, userContent string) Outcome {
	turnID := uuid.NewString()
	if e.provider == nil {
		return Outcome{TurnID: turnID, Err: NewTurnError("no provider configured", ErrNoProvider)}
	}

	ctx, span := tracing.StartStage(ctx, "assemble")
	e.sessions.Append(sessionID, models.ChatMessage{Role: models.RoleUser, Content: userContent})

	injections := e.buildInjections(ctx, sessionID, userContent)
	messages := make([]models.ChatMessage, 0, len(injections)+8)
	for _, inj := range injections {
		messages = append(messages, models.ChatMessage{
			Role:    models.RoleSystem,
			Content: fmt.Sprintf("[%s] %s (%s)", inj.Category, inj.Payload, inj.Rationale),
		})
	}
	messages = append(messages, e.sessions.Load(sessionID)...)
	span.End()

	var tools []models.ToolDescriptor
	if e.pool != nil {
		if t, err := e.pool.AllTools(ctx); err == nil {
			tools = t
		}
	}

	finalMsg, toolCalls, err := e.toolLoop(ctx, sessionID, messages, tools)
	if err != nil {
		turnErr := NewTurnError("turn failed", err)
		if errors.Is(err, ErrEmptyResponse) {
			finalMsg = models.ChatMessage{Role: models.RoleAssistant, Content: "Error: empty response"}
		} else {
			finalMsg = models.ChatMessage{Role: models.RoleAssistant, Content: "Error: " + turnErr.Error()}
		}
		e.sessions.Append(sessionID, finalMsg)
		reflection := models.Reflection{TurnID: turnID, Outcome: models.OutcomeError, ToolCalls: toolCalls, Confidence: 0, Notes: turnErr.Error()}
		e.afterTurn(sessionID, turnID, userContent, finalMsg.Content, reflection)
		return Outcome{TurnID: turnID, Reply: finalMsg, Reflection: reflection, Err: turnErr}
	}

	e.sessions.Append(sessionID, finalMsg)
	reflection := models.Reflection{TurnID: turnID, Outcome: models.OutcomeCompleted, ToolCalls: toolCalls, Confidence: 0.8}
	e.afterTurn(sessionID, turnID, userContent, finalMsg.Content, reflection)
	return Outcome{TurnID: turnID, Reply: finalMsg, Reflection: reflection}
}

// buildInjections assembles the episodic-recall prompt blocks only. The
// session's pending policy hint is not read here or elsewhere in the engine,
// so it shapes neither the prompt nor the turn's route.
func (e *Engine) buildInjections(ctx context.Context, sessionID, userContent string) []models.RecallInjection {
	if e.episodes == nil || e.embedder == nil {
		return nil
	}
	embed, err := e.embedder.Embed(ctx, userContent)
	if err != nil {
		return nil
	}
	return e.episodes.Recall(embed)
}

// toolLoop runs the bounded WaitingForModel/DispatchingTools state machine.
// modelRound counts model round-trips (not state-machine iterations), since
// one logical tool round spans a WaitingForModel and a DispatchingTools
// visit; max_tool_rounds bounds that count.
func (e *Engine) toolLoop(ctx context.Context, sessionID string, messages []models.ChatMessage, tools []models.ToolDescriptor) (models.ChatMessage, int, error) {
	st := stateWaitingForModel
	toolCalls := 0
	modelRound := 0

	for {
		switch st {
		case stateWaitingForModel:
			if modelRound >= e.cfg.MaxToolRounds {
				return models.ChatMessage{Role: models.RoleAssistant, Content: ErrMaxToolRounds.Error()}, toolCalls, nil
			}
			modelRound++
			modelCtx, span := tracing.StartStage(ctx, "model")
			resp, err := e.provider.Complete(modelCtx, &CompletionRequest{Model: e.cfg.Model, Messages: messages, Tools: tools})
			span.End()
			if err != nil {
				return models.ChatMessage{}, toolCalls, fmt.Errorf("llm completion failed: %w", err)
			}
			messages = append(messages, resp.Message)
			if len(resp.Message.ToolCalls) == 0 {
				if strings.TrimSpace(resp.Message.Content) == "" {
					return models.ChatMessage{}, toolCalls, ErrEmptyResponse
				}
				return resp.Message, toolCalls, nil
			}
			st = stateDispatchingTools

		case stateDispatchingTools:
			lastAssistant := messages[len(messages)-1]
			for _, call := range lastAssistant.ToolCalls {
				toolCalls++
				toolCtx, span := tracing.StartStage(ctx, "tool:"+call.Name)
				result, err := e.dispatchTool(toolCtx, call)
				span.End()
				messages = append(messages, result.asMessage(call))
				_ = err // errors are surfaced to the model as is_error content, not returned
			}
			st = stateWaitingForModel

		case stateFinalizing:
			return models.ChatMessage{}, toolCalls, fmt.Errorf("agent: reached unreachable finalizing state")
		}
	}
}

type toolDispatchResult struct {
	text    string
	isError bool
}

func (r toolDispatchResult) asMessage(call models.ToolCall) models.ChatMessage {
	return models.ChatMessage{Role: models.RoleTool, Content: r.text, ToolCallID: call.ID, Name: call.Name}
}

// dispatchTool forwards one tool-call to the MCP pool (or the graph-bridge
// special-case), never returning an error upward: failures are encoded in
// the resulting tool message so the model can react to them.
func (e *Engine) dispatchTool(ctx context.Context, call models.ToolCall) (toolDispatchResult, error) {
	if call.Name == "execute_graph_bridge" {
		return e.dispatchGraphBridge(ctx, call)
	}
	if e.pool == nil {
		return toolDispatchResult{text: "mcp pool not configured", isError: true}, nil
	}
	result, err := e.pool.CallTool(ctx, call.Name, json.RawMessage(call.Arguments))
	if err != nil {
		return toolDispatchResult{text: err.Error(), isError: true}, err
	}
	return toolDispatchResult{text: result.Text, isError: result.IsError}, nil
}

type graphBridgeArgs struct {
	ToolName  string          `json:"tool_name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

func (e *Engine) dispatchGraphBridge(ctx context.Context, call models.ToolCall) (toolDispatchResult, error) {
	var args graphBridgeArgs
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return toolDispatchResult{text: "validation: arguments are not valid JSON", isError: true}, err
		}
	}
	if args.ToolName == "" {
		err := fmt.Errorf("validation: tool_name is required")
		return toolDispatchResult{text: err.Error(), isError: true}, err
	}
	if len(args.Arguments) > 0 {
		var v any
		if err := json.Unmarshal(args.Arguments, &v); err != nil {
			return toolDispatchResult{text: "validation: arguments must be a JSON object", isError: true}, err
		}
		if _, ok := v.(map[string]any); !ok {
			err := fmt.Errorf("validation: arguments must be a JSON object")
			return toolDispatchResult{text: err.Error(), isError: true}, err
		}
	}
	if e.pool == nil {
		return toolDispatchResult{text: "mcp pool not configured", isError: true}, nil
	}
	result, err := e.pool.CallTool(ctx, args.ToolName, args.Arguments)
	if err != nil {
		return toolDispatchResult{text: err.Error(), isError: true}, err
	}
	return toolDispatchResult{text: result.Text, isError: result.IsError}, nil
}

// afterTurn consolidates an episode (when an embedder is configured) and
// derives + installs the next turn's policy hint.
func (e *Engine) afterTurn(sessionID, turnID, userContent, reply string, reflection models.Reflection) {
	if e.episodes != nil && e.embedder != nil {
		if embed, err := e.embedder.Embed(context.Background(), userContent); err == nil {
			_ = e.episodes.Store(models.Episode{
				ID:             turnID,
				IntentText:     userContent,
				IntentEmbed:    embed,
				ExperienceText: reply,
				Outcome:        reflection.Outcome,
			})
		}
		e.episodes.MaybeDecay()
	}
	if hint := omega.DerivePolicyHint(turnID, reflection); hint != nil {
		e.sessions.SetHint(sessionID, hint)
	} else {
		e.sessions.SetHint(sessionID, nil)
	}
}
