package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"toolvet/internal/mcp"
)

// clearEnv blanks the override variables so ambient shell state cannot
// leak into default-config assertions.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TOOLVET_STRICT", "TOOLVET_TIMEOUT", "TOOLVET_RULES",
		"TOOLVET_EMBEDDING_PROVIDER", "OLLAMA_HOST", "GEMINI_API_KEY",
		"TOOLVET_CACHE", "TOOLVET_DEBUG",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("missing file should yield defaults (-want +got):\n%s", diff)
	}
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
analysis:
  strict: true
  timeout: 45s
  rules: ["E100", "-W111"]
embedding:
  provider: ollama
  ollama_model: mxbai-embed-large
servers:
  weather:
    protocol: http
    base_url: http://localhost:8080/mcp
cache:
  enabled: false
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Analysis.Strict || cfg.Analysis.Timeout != "45s" {
		t.Errorf("analysis = %+v", cfg.Analysis)
	}
	if diff := cmp.Diff([]string{"E100", "-W111"}, cfg.Analysis.Rules); diff != "" {
		t.Errorf("rules mismatch:\n%s", diff)
	}
	if cfg.Embedding.Provider != "ollama" || cfg.Embedding.OllamaModel != "mxbai-embed-large" {
		t.Errorf("embedding = %+v", cfg.Embedding)
	}
	// Unset file fields keep their defaults.
	if cfg.Embedding.Dimensions != 384 {
		t.Errorf("dimensions = %d, want default 384", cfg.Embedding.Dimensions)
	}
	server, ok := cfg.Servers["weather"]
	if !ok || server.Protocol != mcp.ProtocolHTTP || server.BaseURL != "http://localhost:8080/mcp" {
		t.Errorf("servers = %+v", cfg.Servers)
	}
	if cfg.Cache.Enabled {
		t.Error("cache should be disabled by the file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TOOLVET_STRICT", "true")
	t.Setenv("TOOLVET_TIMEOUT", "90s")
	t.Setenv("TOOLVET_RULES", "E100, E101 ,,-W112")
	t.Setenv("TOOLVET_EMBEDDING_PROVIDER", "ollama")
	t.Setenv("OLLAMA_HOST", "http://10.0.0.5:11434")
	t.Setenv("TOOLVET_CACHE", "false")
	t.Setenv("TOOLVET_DEBUG", "1")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Analysis.Strict || cfg.Analysis.Timeout != "90s" {
		t.Errorf("analysis = %+v", cfg.Analysis)
	}
	if diff := cmp.Diff([]string{"E100", "E101", "-W112"}, cfg.Analysis.Rules); diff != "" {
		t.Errorf("rules mismatch:\n%s", diff)
	}
	if cfg.Embedding.Provider != "ollama" || cfg.Embedding.OllamaEndpoint != "http://10.0.0.5:11434" {
		t.Errorf("embedding = %+v", cfg.Embedding)
	}
	if cfg.Cache.Enabled {
		t.Error("TOOLVET_CACHE=false should disable the cache")
	}
	if !cfg.Logging.DebugMode {
		t.Error("TOOLVET_DEBUG=1 should enable debug mode")
	}
}

func TestGeminiKeyDoesNotOverrideFile(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-key")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("embedding:\n  genai_api_key: file-key\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Embedding.GenAIAPIKey != "file-key" {
		t.Errorf("key = %s, want the file value to win", cfg.Embedding.GenAIAPIKey)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "quantum" }, true},
		{"genai without key", func(c *Config) { c.Embedding.Provider = "genai" }, true},
		{"genai with key", func(c *Config) {
			c.Embedding.Provider = "genai"
			c.Embedding.GenAIAPIKey = "k"
		}, false},
		{"bad timeout", func(c *Config) { c.Analysis.Timeout = "soon" }, true},
		{"http server without url", func(c *Config) {
			c.Servers["s"] = mcp.ServerConfig{Protocol: mcp.ProtocolHTTP}
		}, true},
		{"stdio server without command", func(c *Config) {
			c.Servers["s"] = mcp.ServerConfig{Protocol: mcp.ProtocolStdio}
		}, true},
		{"unknown server protocol", func(c *Config) {
			c.Servers["s"] = mcp.ServerConfig{Protocol: "telepathy"}
		}, true},
		{"valid stdio server", func(c *Config) {
			c.Servers["s"] = mcp.ServerConfig{Protocol: mcp.ProtocolStdio, Command: "npx server"}
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAnalysisTimeout(t *testing.T) {
	cfg := DefaultConfig()
	d, err := cfg.AnalysisTimeout()
	if err != nil || d != 60*time.Second {
		t.Errorf("default timeout = %v, %v", d, err)
	}

	cfg.Analysis.Timeout = ""
	if d, err := cfg.AnalysisTimeout(); err != nil || d != 0 {
		t.Errorf("empty timeout = %v, %v; want 0 (analyzer default)", d, err)
	}
}

func TestEmbeddingOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Embedding.Provider = "ollama"
	cfg.Embedding.OllamaModel = "custom-model"
	cfg.Embedding.Dimensions = 256

	opts := cfg.EmbeddingOptions()
	if opts.Provider != "ollama" || opts.OllamaModel != "custom-model" || opts.LocalDimensions != 256 {
		t.Errorf("options = %+v", opts)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Analysis.Strict = true
	cfg.Servers["local"] = mcp.ServerConfig{Protocol: mcp.ProtocolStdio, Command: "node server.js"}
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("round trip mismatch (-saved +loaded):\n%s", diff)
	}
}
