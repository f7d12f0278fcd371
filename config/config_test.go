package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "memory-server", cfg.Server.Name)
	assert.Equal(t, ModeFull, cfg.Server.Mode)
	assert.Equal(t, 384, cfg.Embedding.Dimension)
	assert.Equal(t, float32(0.85), cfg.Deduplication.SimilarityThreshold)
	assert.Equal(t, float32(0.80), cfg.Deduplication.NearMissThreshold)
	assert.Equal(t, 3, cfg.ErrorHandling.RetryAttempts)
	assert.Equal(t, time.Second, cfg.ErrorHandling.BaseDelay)
	assert.Equal(t, 30*time.Second, cfg.ErrorHandling.MaxDelay)
	assert.Equal(t, 900, cfg.Chunking.Size)
	assert.Equal(t, 200, cfg.Chunking.Overlap)

	require.NoError(t, cfg.Validate())
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mnemon.yaml")
	data := `
server:
  name: team-memory
  mode: tools-only
qdrant:
  host: qdrant.internal
  port: 7000
embedding:
  model_name: all-MiniLM-L6-v2
  dimension: 512
deduplication:
  similarity_threshold: 0.9
  near_miss_threshold: 0.8
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "team-memory", cfg.Server.Name)
	assert.Equal(t, ModeToolsOnly, cfg.Server.Mode)
	assert.Equal(t, "qdrant.internal", cfg.Qdrant.Host)
	assert.Equal(t, 7000, cfg.Qdrant.Port)
	assert.Equal(t, 512, cfg.Embedding.Dimension)
	assert.Equal(t, float32(0.9), cfg.Deduplication.SimilarityThreshold)

	// Untouched sections keep defaults.
	assert.Equal(t, 3, cfg.ErrorHandling.RetryAttempts)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mnemon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("qdrant:\n  host: from-file\n  port: 6334\n"), 0o644))

	t.Setenv("QDRANT_HOST", "from-env")
	t.Setenv("QDRANT_PORT", "9999")
	t.Setenv("MCP_SERVER_MODE", "prompts-only")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Qdrant.Host)
	assert.Equal(t, 9999, cfg.Qdrant.Port)
	assert.Equal(t, ModePromptsOnly, cfg.Server.Mode)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	require.Error(t, err)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Server.Mode = "half" }},
		{"bad port", func(c *Config) { c.Qdrant.Port = 0 }},
		{"empty model", func(c *Config) { c.Embedding.ModelName = "" }},
		{"bad dimension", func(c *Config) { c.Embedding.Dimension = 0 }},
		{"threshold above one", func(c *Config) { c.Deduplication.SimilarityThreshold = 1.5 }},
		{"near-miss above threshold", func(c *Config) { c.Deduplication.NearMissThreshold = 0.9 }},
		{"zero retries", func(c *Config) { c.ErrorHandling.RetryAttempts = 0 }},
		{"tiny chunks", func(c *Config) { c.Chunking.Size = 10 }},
		{"overlap too big", func(c *Config) { c.Chunking.Overlap = 900 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
