// Package config loads and validates the MemoryBank configuration from
// defaults, an optional JSON config file, and environment variables.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/localrivet/configurator"
)

// Config represents the MemoryBank configuration. Every field can be set in
// the config file, overridden by a command-line flag, and overridden again
// by a MEMORYBANK_* environment variable (environment takes precedence).
type Config struct {
	// Store contains storage-related configuration.
	Store struct {
		// Path is the SQLite database file holding the document index.
		Path string `json:"path" env:"STORE_PATH" validate:"required"`

		// CacheDir is where the embedder keeps downloaded model data.
		CacheDir string `json:"cache_dir" env:"CACHE_DIR"`
	} `json:"store"`

	// Search contains retrieval-related configuration.
	Search struct {
		// SimilarityThreshold is the default minimum similarity for
		// search results.
		SimilarityThreshold float64 `json:"similarity_threshold" env:"SIMILARITY_THRESHOLD"`

		// TemporalBoost nudges recently stored documents up the ranking.
		TemporalBoost bool `json:"temporal_boost" env:"TEMPORAL_BOOST"`
	} `json:"search"`

	// Index contains indexing-related configuration.
	Index struct {
		// AutoChunk embeds long texts in chunks and averages the vectors.
		AutoChunk bool `json:"auto_chunk" env:"AUTO_CHUNK"`

		// ChunkSize is the auto-chunk threshold in characters.
		ChunkSize int `json:"chunk_size" env:"CHUNK_SIZE"`

		// DedupeExact skips documents whose text already exists verbatim.
		DedupeExact bool `json:"dedupe_exact" env:"DEDUPE_EXACT"`

		// DedupeFuzzyThreshold skips documents whose similarity to an
		// existing document is at or above this value. Zero disables it.
		DedupeFuzzyThreshold float64 `json:"dedupe_fuzzy_threshold" env:"DEDUPE_FUZZY_THRESHOLD"`
	} `json:"index"`

	// Embedder contains embedding-related configuration.
	Embedder struct {
		// Provider selects the embedding backend ("mock", "openai").
		Provider string `json:"provider" env:"EMBEDDER_PROVIDER"`

		// Model is the embedding model identifier.
		Model string `json:"model" env:"EMBEDDER_MODEL"`

		// Dimensions is the number of dimensions for mock embeddings.
		Dimensions int `json:"dimensions" env:"EMBEDDER_DIMENSIONS" validate:"min:1"`

		// APIKey is the API key for hosted embedding providers.
		APIKey string `json:"api_key" env:"EMBEDDER_API_KEY"`
	} `json:"embedder"`

	// Logging contains logging-related configuration.
	Logging struct {
		// Level is the minimum log level ("debug", "info", "warn", "error").
		Level string `json:"level" env:"LOG_LEVEL" validate:"required"`

		// Format is the log format ("text", "json").
		Format string `json:"format" env:"LOG_FORMAT"`

		// Verbose forces debug-level logging regardless of Level.
		Verbose bool `json:"verbose" env:"VERBOSE"`
	} `json:"logging"`
}

// Default configuration values
const (
	DefaultConfigFilename      = ".memorybankconfig"
	DefaultStorePath           = ".memorybank.db"
	DefaultSimilarityThreshold = 0.3
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "text"
)

// NewConfig creates a Config instance with default values.
func NewConfig() *Config {
	cfg := &Config{}
	cfg.Store.Path = DefaultStorePath
	cfg.Search.SimilarityThreshold = DefaultSimilarityThreshold
	cfg.Index.DedupeExact = true
	cfg.Embedder.Provider = "mock"
	cfg.Embedder.Dimensions = 768 // Using a common embedding dimension
	cfg.Logging.Level = DefaultLogLevel
	cfg.Logging.Format = DefaultLogFormat
	return cfg
}

// LoadConfig loads the configuration from the default path.
func LoadConfig() (*Config, error) {
	return LoadConfigWithPath(DefaultConfigFilename)
}

// LoadConfigWithPath loads the configuration from a specific path. A missing
// file is not an error; defaults and environment variables still apply.
func LoadConfigWithPath(configPath string) (*Config, error) {
	stdLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg := NewConfig()

	if configPath == DefaultConfigFilename {
		foundPath, err := configurator.FindConfigFile(configPath)
		if err == nil {
			configPath = foundPath
			stdLogger.Debug("Found config file at " + foundPath)
		}
	}

	loader := configurator.New(stdLogger).
		WithProvider(configurator.NewDefaultProvider()).
		WithValidator(configurator.NewDefaultValidator())

	if _, err := os.Stat(configPath); err == nil {
		loader = loader.WithProvider(configurator.NewFileProvider(configPath))
	} else {
		stdLogger.Info("Config file not found, using defaults and environment", "path", configPath)
	}

	loader = loader.WithProvider(configurator.NewEnvProvider("MEMORYBANK"))

	if err := loader.Load(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// EnvIsSet reports whether the MEMORYBANK environment variable for the given
// suffix is present. Used by the CLI to keep environment precedence over
// flags.
func EnvIsSet(suffix string) bool {
	_, ok := os.LookupEnv("MEMORYBANK_" + suffix)
	return ok
}

// Echo returns the non-secret configuration for health and stats responses.
func (c *Config) Echo() map[string]any {
	return map[string]any{
		"store_path":             c.Store.Path,
		"cache_dir":              c.Store.CacheDir,
		"similarity_threshold":   c.Search.SimilarityThreshold,
		"temporal_boost":         c.Search.TemporalBoost,
		"auto_chunk":             c.Index.AutoChunk,
		"dedupe_exact":           c.Index.DedupeExact,
		"dedupe_fuzzy_threshold": c.Index.DedupeFuzzyThreshold,
		"embedder_provider":      c.Embedder.Provider,
		"embedder_model":         c.Embedder.Model,
	}
}
