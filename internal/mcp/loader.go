package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"toolvet/internal/contract"
	"toolvet/internal/logging"
)

const defaultTimeout = 30 * time.Second

// ServerLoader connects to a live MCP server and lists its tools. It owns
// the transport lifecycle; Close after use.
type ServerLoader struct {
	transport Transport
	connected bool
}

// NewServerLoader builds a loader from server config.
func NewServerLoader(cfg ServerConfig) (*ServerLoader, error) {
	timeout := defaultTimeout
	if cfg.Timeout != "" {
		if d, err := time.ParseDuration(cfg.Timeout); err == nil {
			timeout = d
		}
	}

	var transport Transport
	switch cfg.Protocol {
	case ProtocolHTTP:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("http protocol requires base_url")
		}
		transport = NewHTTPTransport(cfg.BaseURL, timeout)
	case ProtocolStdio:
		if cfg.Command == "" {
			return nil, fmt.Errorf("stdio protocol requires command")
		}
		transport = NewStdioTransport(cfg.Command)
	default:
		return nil, fmt.Errorf("unsupported protocol %q", cfg.Protocol)
	}

	return &ServerLoader{transport: transport}, nil
}

// ListTools connects on first use and lists the server's tools.
func (l *ServerLoader) ListTools(ctx context.Context) ([]contract.RawTool, error) {
	if !l.connected {
		if err := l.transport.Connect(ctx); err != nil {
			return nil, err
		}
		l.connected = true
	}
	return l.transport.ListTools(ctx)
}

// Close tears the transport down.
func (l *ServerLoader) Close() error {
	if !l.connected {
		return nil
	}
	l.connected = false
	return l.transport.Close()
}

// =============================================================================
// FILE LOADER
// =============================================================================

// FileLoader reads a tool contract dump from disk, for offline analysis.
// Accepted shapes: a bare JSON/YAML array of tools, or an object with a
// "tools" key (the tools/list response shape).
type FileLoader struct {
	Path string
}

// ListTools parses the file. Extension selects the decoder; .yaml and .yml
// go through YAML, everything else through JSON.
func (l *FileLoader) ListTools(_ context.Context) ([]contract.RawTool, error) {
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, contract.TransportError(fmt.Sprintf("read %s", l.Path), err)
	}

	ext := strings.ToLower(filepath.Ext(l.Path))
	if ext == ".yaml" || ext == ".yml" {
		data, err = yamlToJSON(data)
		if err != nil {
			return nil, contract.TransportError(fmt.Sprintf("parse %s", l.Path), err)
		}
	}

	var wrapped listToolsResult
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Tools != nil {
		logging.MCP("Loaded %d tools from %s", len(wrapped.Tools), l.Path)
		return wrapped.Tools, nil
	}

	var tools []contract.RawTool
	if err := json.Unmarshal(data, &tools); err != nil {
		return nil, contract.TransportError(fmt.Sprintf("parse %s", l.Path), err)
	}
	logging.MCP("Loaded %d tools from %s", len(tools), l.Path)
	return tools, nil
}

// yamlToJSON re-encodes YAML as JSON so both formats share one tool decoder.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(normalizeYAML(doc))
}

// normalizeYAML rewrites map[any]any keys to strings for JSON encoding.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeYAML(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprintf("%v", k)] = normalizeYAML(val)
		}
		return out
	case []any:
		for i := range t {
			t[i] = normalizeYAML(t[i])
		}
		return t
	default:
		return v
	}
}
