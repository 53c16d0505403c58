package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"toolvet/internal/contract"
	"toolvet/internal/logging"
)

// StdioTransport runs an MCP server as a subprocess and speaks
// line-delimited JSON-RPC over its stdin/stdout. A reader goroutine
// dispatches responses to per-request channels by ID.
type StdioTransport struct {
	mu sync.Mutex

	command string
	args    []string
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  io.ReadCloser
	stderr  io.ReadCloser

	connected bool
	nextID    int
	pending   map[int]chan *rpcResponse

	wg sync.WaitGroup
}

// NewStdioTransport creates a stdio transport from a command line.
func NewStdioTransport(command string) *StdioTransport {
	parts := strings.Fields(command)
	t := &StdioTransport{
		nextID:  1,
		pending: make(map[int]chan *rpcResponse),
	}
	if len(parts) > 0 {
		t.command = parts[0]
		t.args = parts[1:]
	}
	return t
}

// Connect starts the subprocess, wires the reader loops, and performs the
// initialize handshake followed by the initialized notification.
func (t *StdioTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.connected {
		t.mu.Unlock()
		return nil
	}
	if t.command == "" {
		t.mu.Unlock()
		return contract.TransportError("start server", fmt.Errorf("empty command"))
	}

	t.cmd = exec.Command(t.command, t.args...)
	var err error
	if t.stdin, err = t.cmd.StdinPipe(); err != nil {
		t.mu.Unlock()
		return contract.TransportError("stdin pipe", err)
	}
	if t.stdout, err = t.cmd.StdoutPipe(); err != nil {
		t.mu.Unlock()
		return contract.TransportError("stdout pipe", err)
	}
	if t.stderr, err = t.cmd.StderrPipe(); err != nil {
		t.mu.Unlock()
		return contract.TransportError("stderr pipe", err)
	}
	if err := t.cmd.Start(); err != nil {
		t.mu.Unlock()
		return contract.TransportError(fmt.Sprintf("start %s", t.command), err)
	}
	t.connected = true
	t.mu.Unlock()

	t.wg.Add(2)
	go t.readStdout()
	go t.readStderr()

	if _, err := t.call(ctx, "initialize", initializeParams()); err != nil {
		_ = t.Close()
		return contract.TransportError("initialize", err)
	}
	t.notify("notifications/initialized")

	logging.MCP("Stdio transport connected: %s", t.command)
	return nil
}

// ListTools retrieves the server's tool list.
func (t *StdioTransport) ListTools(ctx context.Context) ([]contract.RawTool, error) {
	resp, err := t.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, contract.TransportError("list tools", err)
	}

	var result listToolsResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, contract.TransportError("parse tools/list response", err)
	}

	logging.MCPDebug("Server %s listed %d tools", t.command, len(result.Tools))
	return result.Tools, nil
}

// Ping checks that the server is responsive.
func (t *StdioTransport) Ping(ctx context.Context) error {
	if _, err := t.call(ctx, "ping", nil); err != nil {
		return contract.TransportError("ping", err)
	}
	return nil
}

// Close kills the subprocess and drains the reader goroutines. Pending
// calls observe a closed channel and fail.
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil
	}
	t.connected = false

	if t.stdin != nil {
		_ = t.stdin.Close()
	}
	if t.cmd != nil && t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
	}
	for id, ch := range t.pending {
		close(ch)
		delete(t.pending, id)
	}
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		if t.cmd != nil {
			_ = t.cmd.Wait()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		logging.Get(logging.CategoryMCP).Warn("Timeout draining stdio transport for %s", t.command)
	}

	logging.MCP("Stdio transport closed: %s", t.command)
	return nil
}

// call sends one request and waits for its response or context expiry.
func (t *StdioTransport) call(ctx context.Context, method string, params any) (*rpcResponse, error) {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil, fmt.Errorf("not connected")
	}
	id := t.nextID
	t.nextID++
	ch := make(chan *rpcResponse, 1)
	t.pending[id] = ch

	data, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		delete(t.pending, id)
		t.mu.Unlock()
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		delete(t.pending, id)
		t.mu.Unlock()
		return nil, fmt.Errorf("write request: %w", err)
	}
	t.mu.Unlock()

	select {
	case resp, ok := <-ch:
		if !ok || resp == nil {
			return nil, fmt.Errorf("connection closed")
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("rpc error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp, nil
	case <-ctx.Done():
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
		return nil, ctx.Err()
	}
}

// notify writes a fire-and-forget notification.
func (t *StdioTransport) notify(method string) {
	data, err := json.Marshal(rpcNotification{JSONRPC: "2.0", Method: method})
	if err != nil {
		return
	}
	t.mu.Lock()
	if t.stdin != nil {
		_, _ = t.stdin.Write(append(data, '\n'))
	}
	t.mu.Unlock()
}

// readStdout dispatches JSON-RPC responses to their waiting callers.
// Server-initiated notifications are logged and dropped.
func (t *StdioTransport) readStdout() {
	defer t.wg.Done()
	scanner := bufio.NewScanner(t.stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			logging.MCPDebug("Unparseable line from server: %v", err)
			continue
		}
		if resp.ID == 0 && resp.Result == nil && resp.Error == nil {
			logging.MCPDebug("Server notification: %s", string(line))
			continue
		}

		t.mu.Lock()
		ch, ok := t.pending[resp.ID]
		if ok {
			delete(t.pending, resp.ID)
			ch <- &resp
		}
		t.mu.Unlock()
	}
}

// readStderr logs server diagnostics.
func (t *StdioTransport) readStderr() {
	defer t.wg.Done()
	scanner := bufio.NewScanner(t.stderr)
	for scanner.Scan() {
		logging.MCPDebug("[server stderr] %s", scanner.Text())
	}
}

var _ Transport = (*StdioTransport)(nil)
