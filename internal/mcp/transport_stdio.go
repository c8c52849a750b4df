package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
)

// stdioTransport speaks MCP over a spawned subprocess's stdin/stdout, one
// newline-delimited JSON-RPC message per line.
type stdioTransport struct {
	spec ServerSpec

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	reader    *bufio.Reader
	nextID    int64
	connected atomic.Bool

	pending   map[int64]chan jsonrpcResponse
	pendingMu sync.Mutex
}

func newStdioTransport(spec ServerSpec) *stdioTransport {
	return &stdioTransport{spec: spec, pending: make(map[int64]chan jsonrpcResponse)}
}

func (t *stdioTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	cmd := exec.CommandContext(ctx, t.spec.Command, t.spec.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("mcp: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("mcp: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("mcp: start %s: %w", t.spec.Command, err)
	}

	t.cmd = cmd
	t.stdin = stdin
	t.reader = bufio.NewReader(stdout)
	t.connected.Store(true)
	go t.readLoop()
	return nil
}

func (t *stdioTransport) readLoop() {
	for {
		line, err := t.reader.ReadBytes('\n')
		if len(line) > 0 {
			var resp jsonrpcResponse
			if err := json.Unmarshal(line, &resp); err == nil {
				if id, ok := asInt64(resp.ID); ok {
					t.pendingMu.Lock()
					ch, found := t.pending[id]
					if found {
						delete(t.pending, id)
					}
					t.pendingMu.Unlock()
					if found {
						ch <- resp
					}
				}
			}
		}
		if err != nil {
			t.connected.Store(false)
			return
		}
	}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

func (t *stdioTransport) Close() error {
	t.connected.Store(false)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stdin != nil {
		t.stdin.Close()
	}
	if t.cmd != nil && t.cmd.Process != nil {
		return t.cmd.Process.Kill()
	}
	return nil
}

func (t *stdioTransport) Connected() bool { return t.connected.Load() }

func (t *stdioTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := atomic.AddInt64(&t.nextID, 1)
	paramsRaw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	req := jsonrpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: paramsRaw}
	line, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal request: %w", err)
	}

	ch := make(chan jsonrpcResponse, 1)
	t.pendingMu.Lock()
	t.pending[id] = ch
	t.pendingMu.Unlock()

	t.mu.Lock()
	_, writeErr := t.stdin.Write(append(line, '\n'))
	t.mu.Unlock()
	if writeErr != nil {
		t.pendingMu.Lock()
		delete(t.pending, id)
		t.pendingMu.Unlock()
		return nil, fmt.Errorf("mcp: stdio write: %w", writeErr)
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, fmt.Errorf("mcp: rpc error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	case <-ctx.Done():
		t.pendingMu.Lock()
		delete(t.pending, id)
		t.pendingMu.Unlock()
		return nil, ctx.Err()
	}
}

func (t *stdioTransport) Notify(ctx context.Context, method string, params any) error {
	paramsRaw, err := marshalParams(params)
	if err != nil {
		return err
	}
	notif := jsonrpcNotification{JSONRPC: "2.0", Method: method, Params: paramsRaw}
	line, err := json.Marshal(notif)
	if err != nil {
		return fmt.Errorf("mcp: marshal notification: %w", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err = t.stdin.Write(append(line, '\n'))
	return err
}
