// Package config loads and validates the Quarry engine configuration.
//
// Configuration comes from three layers, later layers winning:
// built-in defaults, the project .quarry.yaml file, and QUARRY_* environment
// variables. The engine consumes the result read-only.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the per-project configuration file.
const ConfigFileName = ".quarry.yaml"

// DataDirName is the per-project engine data directory.
const DataDirName = ".quarry"

// Backend kinds understood by the engine.
const (
	BackendEmbedded = "embedded"
	BackendQdrant   = "qdrant"
)

// Embedding providers understood by the engine.
const (
	ProviderOllama = "ollama"
	ProviderStatic = "static"
)

// Config is the complete engine configuration.
type Config struct {
	Version    int              `yaml:"version"`
	Indexing   IndexingConfig   `yaml:"indexing"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Backend    BackendConfig    `yaml:"backend"`
	Server     ServerConfig     `yaml:"server"`
}

// IndexingConfig controls what gets indexed and how aggressively.
type IndexingConfig struct {
	// Enabled turns background indexing on or off entirely.
	Enabled bool `yaml:"enabled"`

	// MaxFileSize is the size ceiling in bytes for indexable files.
	// Larger files are excluded before any hashing or read.
	MaxFileSize int64 `yaml:"max_file_size"`

	// Exclude lists path patterns excluded from indexing, in addition to
	// the built-in defaults (.git, node_modules, vendor, ...).
	Exclude []string `yaml:"exclude"`

	// DebounceWindow coalesces rapid successive writes to one re-index.
	DebounceWindow time.Duration `yaml:"debounce_window"`

	// Workers bounds concurrent per-file indexing operations.
	Workers int `yaml:"workers"`

	// ChunkMaxChars is the per-chunk character budget.
	ChunkMaxChars int `yaml:"chunk_max_chars"`

	// ChunkOverlapChars is carried between adjacent chunks of the same file.
	ChunkOverlapChars int `yaml:"chunk_overlap_chars"`

	// MaxRetries bounds per-file retry attempts before marking it Failed.
	MaxRetries int `yaml:"max_retries"`
}

// EmbeddingsConfig selects and configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "ollama" (remote API) or "static" (local deterministic).
	Provider string `yaml:"provider"`

	// Model is the embedding model reference for remote providers.
	Model string `yaml:"model"`

	// OllamaHost is the Ollama API endpoint.
	OllamaHost string `yaml:"ollama_host"`

	// Dimensions overrides auto-detected embedding dimensions when non-zero.
	Dimensions int `yaml:"dimensions"`

	// BatchSize caps texts per embedding request.
	BatchSize int `yaml:"batch_size"`

	// CacheSize is the LRU entry count for cached query embeddings.
	CacheSize int `yaml:"cache_size"`
}

// BackendConfig selects and configures the vector store backend.
type BackendConfig struct {
	// Kind is "embedded" (in-process HNSW) or "qdrant" (remote REST).
	Kind string `yaml:"kind"`

	// URL is the Qdrant endpoint, e.g. http://127.0.0.1:6333.
	URL string `yaml:"url"`

	// APIKey authenticates against a managed Qdrant instance.
	APIKey string `yaml:"api_key"`

	// Collection is the vector collection name.
	Collection string `yaml:"collection"`

	// Supervise launches a local qdrant process when the backend is
	// unreachable and no managed URL was configured.
	Supervise bool `yaml:"supervise"`

	// BinaryPath locates the qdrant binary for supervision. Empty means
	// look up "qdrant" on PATH.
	BinaryPath string `yaml:"binary_path"`
}

// ServerConfig configures the MCP query-side server.
type ServerConfig struct {
	Transport string `yaml:"transport"`
	LogLevel  string `yaml:"log_level"`
}

// defaultExcludePatterns are always excluded from indexing.
var defaultExcludePatterns = []string{
	".git",
	".quarry",
	"node_modules",
	"vendor",
	"__pycache__",
	"dist",
	"build",
	"target",
	".venv",
	".idea",
	".vscode",
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Indexing: IndexingConfig{
			Enabled:           true,
			MaxFileSize:       1 << 20, // 1 MiB
			DebounceWindow:    300 * time.Millisecond,
			Workers:           4,
			ChunkMaxChars:     2000,
			ChunkOverlapChars: 200,
			MaxRetries:        3,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   ProviderOllama,
			Model:      "nomic-embed-text",
			OllamaHost: "http://localhost:11434",
			BatchSize:  32,
			CacheSize:  1000,
		},
		Backend: BackendConfig{
			Kind:       BackendEmbedded,
			URL:        "http://127.0.0.1:6333",
			Collection: "quarry-code",
			Supervise:  false,
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

// Load reads configuration for the project rooted at root.
// A missing config file is not an error; defaults apply.
func Load(root string) (*Config, error) {
	cfg := NewConfig()

	path := filepath.Join(root, ConfigFileName)
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides selected fields from QUARRY_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("QUARRY_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("QUARRY_EMBED_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("QUARRY_QDRANT_URL"); v != "" {
		c.Backend.Kind = BackendQdrant
		c.Backend.URL = v
	}
	if v := os.Getenv("QUARRY_QDRANT_API_KEY"); v != "" {
		c.Backend.APIKey = v
	}
	if v := os.Getenv("QUARRY_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures.
func (c *Config) Validate() error {
	switch c.Backend.Kind {
	case BackendEmbedded, BackendQdrant:
	default:
		return fmt.Errorf("invalid backend kind %q (expected %q or %q)",
			c.Backend.Kind, BackendEmbedded, BackendQdrant)
	}

	switch c.Embeddings.Provider {
	case ProviderOllama, ProviderStatic:
	default:
		return fmt.Errorf("invalid embedding provider %q (expected %q or %q)",
			c.Embeddings.Provider, ProviderOllama, ProviderStatic)
	}

	if c.Indexing.MaxFileSize <= 0 {
		return fmt.Errorf("indexing.max_file_size must be positive, got %d", c.Indexing.MaxFileSize)
	}
	if c.Indexing.Workers <= 0 {
		return fmt.Errorf("indexing.workers must be positive, got %d", c.Indexing.Workers)
	}
	if c.Indexing.ChunkMaxChars <= 0 {
		return fmt.Errorf("indexing.chunk_max_chars must be positive, got %d", c.Indexing.ChunkMaxChars)
	}
	if c.Indexing.ChunkOverlapChars < 0 || c.Indexing.ChunkOverlapChars >= c.Indexing.ChunkMaxChars {
		return fmt.Errorf("indexing.chunk_overlap_chars must be in [0, chunk_max_chars), got %d",
			c.Indexing.ChunkOverlapChars)
	}
	if c.Backend.Kind == BackendQdrant && strings.TrimSpace(c.Backend.URL) == "" {
		return fmt.Errorf("backend.url is required for the qdrant backend")
	}
	if strings.TrimSpace(c.Backend.Collection) == "" {
		return fmt.Errorf("backend.collection must not be empty")
	}
	return nil
}

// ExcludePatterns returns built-in plus user-configured exclusions.
func (c *Config) ExcludePatterns() []string {
	out := make([]string, 0, len(defaultExcludePatterns)+len(c.Indexing.Exclude))
	out = append(out, defaultExcludePatterns...)
	out = append(out, c.Indexing.Exclude...)
	return out
}

// DataDir returns the engine data directory for the project rooted at root.
func DataDir(root string) string {
	return filepath.Join(root, DataDirName)
}

// Save writes the configuration to the project config file.
func (c *Config) Save(root string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(filepath.Join(root, ConfigFileName), data, 0o644)
}
