// Package mcp loads tool contracts from MCP (Model Context Protocol)
// servers. It speaks just enough of the protocol for analysis: initialize,
// tools/list, ping. Transport failures surface as contract.ErrTransport so
// the caller can tell a broken server from a broken contract.
package mcp

import (
	"context"
	"encoding/json"

	"toolvet/internal/contract"
)

// Protocol selects the transport for a server connection.
type Protocol string

const (
	ProtocolHTTP  Protocol = "http"
	ProtocolStdio Protocol = "stdio"
)

// protocolVersion is the MCP revision sent in the initialize handshake.
const protocolVersion = "2024-11-05"

// clientName identifies this client in the handshake.
const clientName = "toolvet"

// ServerConfig describes how to reach one MCP server.
type ServerConfig struct {
	Protocol Protocol `json:"protocol" yaml:"protocol"`
	// BaseURL is the endpoint for the http protocol.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	// Command is the server command line for the stdio protocol.
	Command string `json:"command,omitempty" yaml:"command,omitempty"`
	// Timeout is a Go duration string; empty means 30s.
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Transport is the protocol-level connection to one MCP server.
type Transport interface {
	// Connect establishes the connection and performs the initialize
	// handshake.
	Connect(ctx context.Context) error

	// ListTools retrieves the server's tool list, order preserved.
	ListTools(ctx context.Context) ([]contract.RawTool, error)

	// Ping checks that the server is responsive.
	Ping(ctx context.Context) error

	// Close tears the connection down.
	Close() error
}

// =============================================================================
// JSON-RPC FRAMING
// =============================================================================

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// listToolsResult is the payload of a tools/list response.
type listToolsResult struct {
	Tools []contract.RawTool `json:"tools"`
}

// initializeParams builds the initialize handshake payload.
func initializeParams() map[string]any {
	return map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]string{
			"name":    clientName,
			"version": "1.0.0",
		},
	}
}
