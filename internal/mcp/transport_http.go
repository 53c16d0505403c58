package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"toolvet/internal/contract"
	"toolvet/internal/logging"
)

// HTTPTransport speaks JSON-RPC over a single HTTP endpoint.
type HTTPTransport struct {
	mu sync.Mutex

	baseURL   string
	client    *http.Client
	connected bool
	nextID    int
}

// NewHTTPTransport creates an HTTP transport. timeout bounds each request.
func NewHTTPTransport(baseURL string, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		nextID:  1,
	}
}

// Connect verifies the server with an initialize handshake.
func (t *HTTPTransport) Connect(ctx context.Context) error {
	if _, err := t.call(ctx, "initialize", initializeParams()); err != nil {
		return contract.TransportError(fmt.Sprintf("initialize %s", t.baseURL), err)
	}

	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()

	logging.MCP("HTTP transport connected to %s", t.baseURL)
	return nil
}

// ListTools retrieves the server's tool list.
func (t *HTTPTransport) ListTools(ctx context.Context) ([]contract.RawTool, error) {
	if !t.isConnected() {
		return nil, contract.TransportError("list tools", fmt.Errorf("not connected to %s", t.baseURL))
	}

	resp, err := t.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, contract.TransportError("list tools", err)
	}

	var result listToolsResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, contract.TransportError("parse tools/list response", err)
	}

	logging.MCPDebug("Server %s listed %d tools", t.baseURL, len(result.Tools))
	return result.Tools, nil
}

// Ping checks that the server is responsive.
func (t *HTTPTransport) Ping(ctx context.Context) error {
	if _, err := t.call(ctx, "ping", nil); err != nil {
		return contract.TransportError("ping", err)
	}
	return nil
}

// Close marks the transport disconnected. HTTP holds no persistent state.
func (t *HTTPTransport) Close() error {
	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()
	return nil
}

func (t *HTTPTransport) isConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// call posts one JSON-RPC request and decodes the response.
func (t *HTTPTransport) call(ctx context.Context, method string, params any) (*rpcResponse, error) {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.mu.Unlock()

	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return nil, fmt.Errorf("server returned status %d: %s", httpResp.StatusCode, string(snippet))
	}

	var resp rpcResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("rpc error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	return &resp, nil
}

var _ Transport = (*HTTPTransport)(nil)
