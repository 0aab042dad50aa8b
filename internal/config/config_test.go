package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenNoFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, BackendEmbedded, cfg.Backend.Kind)
	assert.Equal(t, ProviderOllama, cfg.Embeddings.Provider)
	assert.Equal(t, 300*time.Millisecond, cfg.Indexing.DebounceWindow)
	assert.Equal(t, int64(1<<20), cfg.Indexing.MaxFileSize)
	assert.Equal(t, "stdio", cfg.Server.Transport)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	root := t.TempDir()
	yaml := `version: 1
embeddings:
  provider: static
backend:
  kind: qdrant
  url: http://qdrant.local:6333
  collection: mycode
indexing:
  workers: 8
  exclude:
    - testdata
`
	require.NoError(t, os.WriteFile(filepath.Join(root, ConfigFileName), []byte(yaml), 0o644))

	cfg, err := Load(root)
	require.NoError(t, err)

	assert.Equal(t, ProviderStatic, cfg.Embeddings.Provider)
	assert.Equal(t, BackendQdrant, cfg.Backend.Kind)
	assert.Equal(t, "http://qdrant.local:6333", cfg.Backend.URL)
	assert.Equal(t, "mycode", cfg.Backend.Collection)
	assert.Equal(t, 8, cfg.Indexing.Workers)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Setenv("QUARRY_QDRANT_URL", "http://env.example:6333")
	t.Setenv("QUARRY_EMBED_PROVIDER", "static")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, BackendQdrant, cfg.Backend.Kind)
	assert.Equal(t, "http://env.example:6333", cfg.Backend.URL)
	assert.Equal(t, ProviderStatic, cfg.Embeddings.Provider)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ConfigFileName), []byte("version: [\n"), 0o644))

	_, err := Load(root)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		wantOK bool
	}{
		{"defaults", func(*Config) {}, true},
		{"bad backend kind", func(c *Config) { c.Backend.Kind = "redis" }, false},
		{"bad provider", func(c *Config) { c.Embeddings.Provider = "openai" }, false},
		{"zero max file size", func(c *Config) { c.Indexing.MaxFileSize = 0 }, false},
		{"zero workers", func(c *Config) { c.Indexing.Workers = 0 }, false},
		{"overlap at chunk size", func(c *Config) {
			c.Indexing.ChunkOverlapChars = c.Indexing.ChunkMaxChars
		}, false},
		{"qdrant without url", func(c *Config) {
			c.Backend.Kind = BackendQdrant
			c.Backend.URL = "  "
		}, false},
		{"empty collection", func(c *Config) { c.Backend.Collection = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantOK {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestExcludePatternsIncludeDefaults(t *testing.T) {
	cfg := NewConfig()
	cfg.Indexing.Exclude = []string{"testdata"}

	patterns := cfg.ExcludePatterns()
	assert.Contains(t, patterns, ".git")
	assert.Contains(t, patterns, "node_modules")
	assert.Contains(t, patterns, DataDirName)
	assert.Contains(t, patterns, "testdata")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	root := t.TempDir()

	cfg := NewConfig()
	cfg.Embeddings.Provider = ProviderStatic
	cfg.Indexing.Workers = 2
	require.NoError(t, cfg.Save(root))

	loaded, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, ProviderStatic, loaded.Embeddings.Provider)
	assert.Equal(t, 2, loaded.Indexing.Workers)
}
