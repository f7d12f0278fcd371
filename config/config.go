// Package config provides loading and validation of server configuration.
// Values come from defaults, then an optional YAML file, then environment
// variable overrides, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Mode selects which protocol surfaces the server exposes.
type Mode string

const (
	ModeFull        Mode = "full"
	ModeToolsOnly   Mode = "tools-only"
	ModePromptsOnly Mode = "prompts-only"
)

// ProtocolVersion is the MCP protocol revision this server negotiates.
const ProtocolVersion = "2024-11-05"

// Config is the complete server configuration. It is constructed explicitly
// at startup and passed to component constructors; there is no package-level
// singleton.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Qdrant        QdrantConfig        `yaml:"qdrant"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Deduplication DeduplicationConfig `yaml:"deduplication"`
	ErrorHandling ErrorHandlingConfig `yaml:"error_handling"`
	Chunking      ChunkingConfig      `yaml:"chunking"`
}

// ServerConfig holds server identity and mode.
type ServerConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Description string `yaml:"description"`
	Mode        Mode   `yaml:"mode"`
}

// QdrantConfig holds the vector store connection settings.
type QdrantConfig struct {
	Host    string        `yaml:"host"`
	Port    int           `yaml:"port"`
	APIKey  string        `yaml:"api_key"`
	UseTLS  bool          `yaml:"use_tls"`
	Timeout time.Duration `yaml:"timeout"`
}

// EmbeddingConfig holds the embedding model settings.
type EmbeddingConfig struct {
	ModelName string `yaml:"model_name"`
	Dimension int    `yaml:"dimension"`

	// ModelPath and TokenizerPath locate the local ONNX model files.
	ModelPath     string `yaml:"model_path"`
	TokenizerPath string `yaml:"tokenizer_path"`
	LibraryPath   string `yaml:"library_path"`

	// CacheEntries bounds the embedding cache; 0 disables caching.
	CacheEntries int64 `yaml:"cache_entries"`
}

// DeduplicationConfig holds the near-duplicate detection thresholds.
type DeduplicationConfig struct {
	SimilarityThreshold float32 `yaml:"similarity_threshold"`
	NearMissThreshold   float32 `yaml:"near_miss_threshold"`
	LoggingEnabled      bool    `yaml:"logging_enabled"`
}

// ErrorHandlingConfig holds retry policy parameters.
type ErrorHandlingConfig struct {
	RetryAttempts   int           `yaml:"retry_attempts"`
	BaseDelay       time.Duration `yaml:"base_delay"`
	MaxDelay        time.Duration `yaml:"max_delay"`
	ExponentialBase float64       `yaml:"exponential_base"`
	JitterEnabled   bool          `yaml:"jitter_enabled"`
}

// ChunkingConfig holds document chunking settings.
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Name:        "memory-server",
			Version:     "1.0.0",
			Description: "Memory management server for AI agents backed by a vector database",
			Mode:        ModeFull,
		},
		Qdrant: QdrantConfig{
			Host:    "localhost",
			Port:    6334,
			Timeout: 60 * time.Second,
		},
		Embedding: EmbeddingConfig{
			ModelName:    "all-MiniLM-L6-v2",
			Dimension:    384,
			CacheEntries: 10000,
		},
		Deduplication: DeduplicationConfig{
			SimilarityThreshold: 0.85,
			NearMissThreshold:   0.80,
			LoggingEnabled:      true,
		},
		ErrorHandling: ErrorHandlingConfig{
			RetryAttempts:   3,
			BaseDelay:       time.Second,
			MaxDelay:        30 * time.Second,
			ExponentialBase: 2.0,
			JitterEnabled:   true,
		},
		Chunking: ChunkingConfig{
			Size:    900,
			Overlap: 200,
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (if non-empty),
// and environment overrides, then validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays supported environment variables on the config.
func (c *Config) applyEnv() {
	if v := os.Getenv("MCP_SERVER_NAME"); v != "" {
		c.Server.Name = v
	}
	if v := os.Getenv("MCP_SERVER_MODE"); v != "" {
		c.Server.Mode = Mode(v)
	}
	if v := os.Getenv("QDRANT_HOST"); v != "" {
		c.Qdrant.Host = v
	}
	if v := os.Getenv("QDRANT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Qdrant.Port = port
		}
	}
	if v := os.Getenv("QDRANT_API_KEY"); v != "" {
		c.Qdrant.APIKey = v
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		c.Embedding.ModelName = v
	}
	if v := os.Getenv("EMBEDDING_DIMENSION"); v != "" {
		if dim, err := strconv.Atoi(v); err == nil {
			c.Embedding.Dimension = dim
		}
	}
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	var errs []string

	switch c.Server.Mode {
	case ModeFull, ModeToolsOnly, ModePromptsOnly:
	default:
		errs = append(errs, fmt.Sprintf("invalid server mode: %q", c.Server.Mode))
	}
	if c.Qdrant.Port < 1 || c.Qdrant.Port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid qdrant port: %d", c.Qdrant.Port))
	}
	if c.Embedding.ModelName == "" {
		errs = append(errs, "embedding model name cannot be empty")
	}
	if c.Embedding.Dimension < 1 {
		errs = append(errs, fmt.Sprintf("invalid embedding dimension: %d", c.Embedding.Dimension))
	}
	if c.Deduplication.SimilarityThreshold < 0 || c.Deduplication.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Sprintf("invalid similarity threshold: %g", c.Deduplication.SimilarityThreshold))
	}
	if c.Deduplication.NearMissThreshold < 0 || c.Deduplication.NearMissThreshold > c.Deduplication.SimilarityThreshold {
		errs = append(errs, fmt.Sprintf("near-miss threshold %g must be within [0, similarity threshold]", c.Deduplication.NearMissThreshold))
	}
	if c.ErrorHandling.RetryAttempts < 1 {
		errs = append(errs, fmt.Sprintf("invalid retry attempts: %d", c.ErrorHandling.RetryAttempts))
	}
	if c.Chunking.Size < 100 {
		errs = append(errs, fmt.Sprintf("chunk size too small: %d", c.Chunking.Size))
	}
	if c.Chunking.Overlap >= c.Chunking.Size {
		errs = append(errs, "chunk overlap must be smaller than chunk size")
	}

	if len(errs) > 0 {
		msg := "configuration validation failed:"
		for _, e := range errs {
			msg += "\n  - " + e
		}
		return fmt.Errorf("%s", msg)
	}
	return nil
}
