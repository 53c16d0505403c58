// Package config loads toolvet configuration: analysis options, embedding
// provider selection, MCP server entries, and logging switches. Files are
// YAML; selected fields can be overridden from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"toolvet/internal/embedding"
	"toolvet/internal/mcp"
)

// DefaultPath is the per-project config location.
const DefaultPath = ".toolvet/config.yaml"

// Config holds all toolvet configuration.
type Config struct {
	Analysis  AnalysisConfig              `yaml:"analysis"`
	Embedding EmbeddingConfig             `yaml:"embedding"`
	Servers   map[string]mcp.ServerConfig `yaml:"servers"`
	Cache     CacheConfig                 `yaml:"cache"`
	Logging   LoggingConfig               `yaml:"logging"`
}

// AnalysisConfig configures the analyzer pipeline.
type AnalysisConfig struct {
	Strict bool `yaml:"strict"`
	// Timeout is a Go duration string bounding one analysis run.
	Timeout string `yaml:"timeout"`
	// Rules filters the catalog: plain codes allow, "-"-prefixed deny.
	Rules []string `yaml:"rules"`
	// ConcreteNouns overrides the noun list for the generic-description
	// check.
	ConcreteNouns []string `yaml:"concrete_nouns"`
}

// EmbeddingConfig selects and configures the embedding backend.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"` // local, ollama, genai
	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`
	GenAIAPIKey    string `yaml:"genai_api_key"`
	GenAIModel     string `yaml:"genai_model"`
	Dimensions     int    `yaml:"dimensions"`
}

// CacheConfig configures the persistent embedding cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig mirrors the category-gated debug logging switches.
type LoggingConfig struct {
	DebugMode  bool     `yaml:"debug_mode"`
	Categories []string `yaml:"categories"`
}

// DefaultConfig returns the built-in defaults: local embeddings, lenient
// verdicts, a 60s deadline, cache on.
func DefaultConfig() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			Timeout: "60s",
		},
		Embedding: EmbeddingConfig{
			Provider:       "local",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "nomic-embed-text",
			GenAIModel:     "gemini-embedding-001",
			Dimensions:     384,
		},
		Servers: map[string]mcp.ServerConfig{},
		Cache: CacheConfig{
			Enabled: true,
			Path:    filepath.Join(".toolvet", "embeddings.db"),
		},
	}
}

// Load reads the config file at path, falling back to defaults when the
// file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the config as YAML, creating the directory if needed.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config dir: %w", err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// applyEnvOverrides lets the environment win over the file for the fields
// operators commonly flip per-invocation.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TOOLVET_STRICT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Analysis.Strict = b
		}
	}
	if v := os.Getenv("TOOLVET_TIMEOUT"); v != "" {
		c.Analysis.Timeout = v
	}
	if v := os.Getenv("TOOLVET_RULES"); v != "" {
		c.Analysis.Rules = splitList(v)
	}
	if v := os.Getenv("TOOLVET_EMBEDDING_PROVIDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		c.Embedding.OllamaEndpoint = v
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && c.Embedding.GenAIAPIKey == "" {
		c.Embedding.GenAIAPIKey = key
	}
	if v := os.Getenv("TOOLVET_CACHE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Cache.Enabled = b
		}
	}
	if v := os.Getenv("TOOLVET_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Logging.DebugMode = b
		}
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "local", "ollama", "genai", "":
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Provider == "genai" && c.Embedding.GenAIAPIKey == "" {
		return fmt.Errorf("genai embedding provider requires an API key")
	}
	if _, err := c.AnalysisTimeout(); err != nil {
		return fmt.Errorf("invalid analysis timeout: %w", err)
	}
	for id, server := range c.Servers {
		switch server.Protocol {
		case mcp.ProtocolHTTP:
			if server.BaseURL == "" {
				return fmt.Errorf("server %q: http protocol requires base_url", id)
			}
		case mcp.ProtocolStdio:
			if server.Command == "" {
				return fmt.Errorf("server %q: stdio protocol requires command", id)
			}
		default:
			return fmt.Errorf("server %q: unsupported protocol %q", id, server.Protocol)
		}
	}
	return nil
}

// AnalysisTimeout parses the configured deadline. Zero value means the
// analyzer default.
func (c *Config) AnalysisTimeout() (time.Duration, error) {
	if c.Analysis.Timeout == "" {
		return 0, nil
	}
	return time.ParseDuration(c.Analysis.Timeout)
}

// EmbeddingOptions maps the config onto the embedding engine factory.
func (c *Config) EmbeddingOptions() embedding.Config {
	cfg := embedding.DefaultConfig()
	if c.Embedding.Provider != "" {
		cfg.Provider = c.Embedding.Provider
	}
	if c.Embedding.OllamaEndpoint != "" {
		cfg.OllamaEndpoint = c.Embedding.OllamaEndpoint
	}
	if c.Embedding.OllamaModel != "" {
		cfg.OllamaModel = c.Embedding.OllamaModel
	}
	cfg.GenAIAPIKey = c.Embedding.GenAIAPIKey
	if c.Embedding.GenAIModel != "" {
		cfg.GenAIModel = c.Embedding.GenAIModel
	}
	if c.Embedding.Dimensions > 0 {
		cfg.LocalDimensions = c.Embedding.Dimensions
	}
	return cfg
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
