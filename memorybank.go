// Package memorybank assembles the MemoryBank service: a persistent
// semantic document index exposed to MCP clients over stdio.
package memorybank

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/localforge/memorybank/internal/config"
	"github.com/localforge/memorybank/internal/engine"
	"github.com/localforge/memorybank/internal/errortypes"
	"github.com/localforge/memorybank/internal/opqueue"
	"github.com/localforge/memorybank/internal/retry"
	"github.com/localforge/memorybank/internal/server"
	"github.com/localforge/memorybank/internal/telemetry"
	"github.com/localforge/memorybank/internal/vector"
)

// Config represents the configuration for the MemoryBank service.
type Config = config.Config

// Server represents the MemoryBank service.
type Server struct {
	config     *config.Config
	eng        engine.Engine
	queue      *opqueue.Queue
	metrics    *telemetry.Metrics
	toolServer server.MemoryToolServer
	logger     *slog.Logger
}

// ServerOptions defines the options for creating a new Server.
type ServerOptions struct {
	Config     *Config      // Pre-filled config. If nil, ConfigPath is used.
	ConfigPath string       // Path to config file. Used if Config is nil. If both are empty, DefaultConfig() is used.
	Logger     *slog.Logger // External logger. If nil, slog.Default() is used.

	// Retry overrides the engine initialization retry policy. Zero value
	// means retry.DefaultPolicy().
	Retry retry.Policy
}

// NewServer creates a new MemoryBank Server with the given options. The
// engine is initialized here, under the retry policy; an error from NewServer
// after the retry budget is exhausted is fatal to the caller.
func NewServer(opts ServerOptions) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var cfg *Config
	var err error

	if opts.Config != nil {
		cfg = opts.Config
		logger.Info("Using provided Config object for server initialization")
	} else if opts.ConfigPath != "" {
		logger.Info("Loading configuration for server initialization", "path", opts.ConfigPath)
		cfg, err = config.LoadConfigWithPath(opts.ConfigPath)
		if err != nil {
			logger.Error("Failed to load configuration from path", "path", opts.ConfigPath, "error", err)
			return nil, errortypes.ConfigError(err, "Failed to load configuration from path: "+opts.ConfigPath)
		}
	} else {
		logger.Warn("No Config object or ConfigPath provided, using default configuration for server initialization")
		cfg = DefaultConfig()
	}

	eng, err := CreateEngine(cfg, logger)
	if err != nil {
		logger.Error("Failed to create search engine during server initialization", "error", err)
		return nil, err
	}

	policy := opts.Retry
	if policy.MaxAttempts == 0 && policy.Delay == 0 {
		policy = retry.DefaultPolicy()
	}

	logger.Info("Initializing search engine",
		"max_attempts", policy.MaxAttempts,
		"delay", policy.Delay)
	err = policy.Do(context.Background(), func() error {
		return eng.Initialize(context.Background())
	})
	if err != nil {
		eng.Close()
		logger.Error("Search engine initialization failed after all attempts", "error", err)
		return nil, errortypes.DatabaseError(err, "Failed to initialize search engine")
	}

	metrics := telemetry.NewMetrics()
	queue := opqueue.New(func(error) { metrics.RecordError() })

	logger.Info("Initializing memory tool server component")
	mcpServer := server.NewMemoryToolServer(eng, queue, metrics, cfg)
	err = mcpServer.Initialize()
	if err != nil {
		queue.Close()
		eng.Close()
		logger.Error("Failed to initialize MCP memory tool server component", "error", err)
		return nil, errortypes.ConfigError(err, "Failed to initialize MCP memory tool server component")
	}

	logger.Info("MemoryBank server successfully initialized")
	return &Server{
		config:     cfg,
		eng:        eng,
		queue:      queue,
		metrics:    metrics,
		toolServer: mcpServer,
		logger:     logger,
	}, nil
}

// DefaultConfig returns the default configuration for the MemoryBank service.
func DefaultConfig() *Config {
	return config.NewConfig()
}

// SaveConfig serializes the configuration for writing to a config file.
func SaveConfig(cfg *Config) ([]byte, error) {
	content, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, errortypes.ConfigError(err, "failed to marshal configuration")
	}
	return content, nil
}

// Start starts the MemoryBank service on the stdio transport. It blocks
// until the transport shuts down.
func (s *Server) Start() error {
	s.logger.Info("Starting MemoryBank service")
	return s.toolServer.Start()
}

// Stop stops the MemoryBank service. Queued operations run to settlement
// before the engine is closed.
func (s *Server) Stop() error {
	s.logger.Info("Stopping MemoryBank service")
	err := s.toolServer.Stop()
	if err != nil {
		s.logger.Error("Error stopping tool server", "error", err)
		return err
	}

	s.logger.Info("Draining operation queue")
	if err := s.queue.Close(); err != nil {
		s.logger.Error("Failed to close operation queue", "error", err)
		return err
	}

	s.logger.Info("Closing search engine")
	if err := s.eng.Close(); err != nil {
		s.logger.Error("Failed to close search engine", "error", err)
		return err
	}

	s.logger.Info("MemoryBank service stopped")
	return nil
}

// GetEngine returns the search engine instance used by the server.
func (s *Server) GetEngine() engine.Engine {
	return s.eng
}

// GetMetrics returns the metrics instance used by the server.
func (s *Server) GetMetrics() *telemetry.Metrics {
	return s.metrics
}

// GetQueue returns the operation queue used by the server.
func (s *Server) GetQueue() *opqueue.Queue {
	return s.queue
}

// CreateEngine builds the search engine from configuration without
// initializing it. Exposed for embedders of the library that drive
// initialization themselves.
func CreateEngine(cfg *Config, logger *slog.Logger) (engine.Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("Creating embedder", "provider", cfg.Embedder.Provider, "model", cfg.Embedder.Model)
	emb, err := createEmbedder(cfg, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("Creating SQLite search engine", "path", cfg.Store.Path)
	eng := engine.NewSQLiteEngine(engine.Options{
		StorePath:            cfg.Store.Path,
		SimilarityThreshold:  cfg.Search.SimilarityThreshold,
		AutoChunk:            cfg.Index.AutoChunk,
		ChunkSize:            cfg.Index.ChunkSize,
		DedupeExact:          cfg.Index.DedupeExact,
		DedupeFuzzyThreshold: cfg.Index.DedupeFuzzyThreshold,
		TemporalBoost:        cfg.Search.TemporalBoost,
	}, emb)

	return eng, nil
}

func createEmbedder(cfg *Config, logger *slog.Logger) (vector.Embedder, error) {
	dimensions := cfg.Embedder.Dimensions
	if dimensions <= 0 {
		dimensions = vector.DefaultEmbeddingDimensions
	}

	switch cfg.Embedder.Provider {
	case "openai":
		if cfg.Embedder.APIKey == "" {
			return nil, errortypes.ConfigError(
				errortypes.ErrMissingAPIKey, "openai embedder requires an API key")
		}
		return vector.NewOpenAIEmbedder(cfg.Embedder.APIKey, cfg.Embedder.Model), nil
	case "mock", "":
		return vector.NewMockEmbedder(dimensions), nil
	default:
		logger.Warn("Unknown embedder provider, using mock embedder", "provider", cfg.Embedder.Provider)
		return vector.NewMockEmbedder(dimensions), nil
	}
}
