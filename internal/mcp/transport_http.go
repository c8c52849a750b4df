package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// httpTransport speaks MCP's Streamable-HTTP binding: one POST per request,
// bearer-token auth from a resolved environment variable.
type httpTransport struct {
	spec      ServerSpec
	client    *http.Client
	nextID    int64
	connected atomic.Bool
}

func newHTTPTransport(spec ServerSpec) *httpTransport {
	return &httpTransport{
		spec:   spec,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (t *httpTransport) Connect(ctx context.Context) error {
	// Streamable-HTTP has no persistent connection; Connect only probes
	// reachability with a lightweight "ping" request. Neither Connect nor
	// the pool issues the MCP "initialize" RPC.
	if _, err := t.Call(ctx, "ping", nil); err != nil {
		return err
	}
	t.connected.Store(true)
	return nil
}

func (t *httpTransport) Close() error {
	t.connected.Store(false)
	return nil
}

func (t *httpTransport) Connected() bool { return t.connected.Load() }

func (t *httpTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := atomic.AddInt64(&t.nextID, 1)
	paramsRaw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	req := jsonrpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: paramsRaw}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.spec.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("mcp: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if t.spec.BearerToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+t.spec.BearerToken)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("mcp: http call %s: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("mcp: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("mcp: http %d calling %s: %s", resp.StatusCode, method, string(respBody))
	}

	var rpcResp jsonrpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("mcp: decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("mcp: rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}

func (t *httpTransport) Notify(ctx context.Context, method string, params any) error {
	paramsRaw, err := marshalParams(params)
	if err != nil {
		return err
	}
	notif := jsonrpcNotification{JSONRPC: "2.0", Method: method, Params: paramsRaw}
	body, err := json.Marshal(notif)
	if err != nil {
		return fmt.Errorf("mcp: marshal notification: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.spec.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("mcp: build notification: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if t.spec.BearerToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+t.spec.BearerToken)
	}
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("mcp: http notify %s: %w", method, err)
	}
	resp.Body.Close()
	return nil
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal params: %w", err)
	}
	return raw, nil
}
