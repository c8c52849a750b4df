package agent

import "context"

// Runner adapts Engine to the dispatch fabric's narrow TurnRunner
// contract (a reply string and an error), discarding the richer Outcome
// that direct Engine callers (the tests) use instead.
type Runner struct {
	Engine *Engine
}

// RunTurn implements gateway.TurnRunner.
func (r Runner) RunTurn(ctx context.Context, sessionID, content string) (string, error) {
	out := r.Engine.RunTurn(ctx, sessionID, content)
	if out.Err != nil {
		return "", out.Err
	}
	return out.Reply.Content, nil
}
