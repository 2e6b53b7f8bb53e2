package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/localforge/memorybank"
	"github.com/localforge/memorybank/internal/config"
	"github.com/localforge/memorybank/internal/errortypes"
	"github.com/localforge/memorybank/internal/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	flags := parseFlags()

	cfg, err := config.LoadConfigWithPath(flags.configPath)
	if err != nil {
		errortypes.LogError(nil, err)
		return 1
	}
	applyFlags(cfg, flags)

	// The MCP transport owns stdout, so all logging goes to stderr.
	logger := logging.Setup(os.Stderr, cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Verbose)
	logger.Info("MemoryBank MCP Server - Starting...")

	srv, err := memorybank.NewServer(memorybank.ServerOptions{
		Config: cfg,
		Logger: logger,
	})
	if err != nil {
		errortypes.LogError(logger, err)
		logger.Error("Failed to initialize MemoryBank server")
		return 1
	}

	setupSignalHandler(srv, logger)

	logger.Info("Starting MCP server...")
	if err := srv.Start(); err != nil {
		errortypes.LogError(logger, errortypes.APIError(err, "MCP server failed"))
		return 1
	}

	if err := srv.Stop(); err != nil {
		errortypes.LogError(logger, err)
		return 1
	}
	return 0
}

// cliFlags holds the command-line overrides. Precedence is environment over
// flags over config file over defaults; applyFlags skips any flag whose
// MEMORYBANK_* environment variable is set.
type cliFlags struct {
	configPath string
	fs         *flag.FlagSet

	storePath            string
	cacheDir             string
	similarityThreshold  float64
	temporalBoost        bool
	autoChunk            bool
	chunkSize            int
	dedupeExact          bool
	dedupeFuzzyThreshold float64
	embedderProvider     string
	embedderModel        string
	embedderDimensions   int
	logLevel             string
	logFormat            string
	verbose              bool
}

func parseFlags() *cliFlags {
	f := &cliFlags{fs: flag.NewFlagSet("memorybank", flag.ExitOnError)}

	f.fs.StringVar(&f.configPath, "config", config.DefaultConfigFilename, "path to the JSON config file")
	f.fs.StringVar(&f.storePath, "store-path", config.DefaultStorePath, "SQLite database file for the document index")
	f.fs.StringVar(&f.cacheDir, "cache-dir", "", "directory for embedder model data")
	f.fs.Float64Var(&f.similarityThreshold, "similarity-threshold", config.DefaultSimilarityThreshold, "default minimum similarity for search results")
	f.fs.BoolVar(&f.temporalBoost, "temporal-boost", false, "boost recently stored documents in ranking")
	f.fs.BoolVar(&f.autoChunk, "auto-chunk", false, "chunk long texts before embedding")
	f.fs.IntVar(&f.chunkSize, "chunk-size", 0, "auto-chunk threshold in characters")
	f.fs.BoolVar(&f.dedupeExact, "dedupe-exact", true, "skip documents with identical existing text")
	f.fs.Float64Var(&f.dedupeFuzzyThreshold, "dedupe-fuzzy-threshold", 0, "skip documents above this similarity to an existing one (0 disables)")
	f.fs.StringVar(&f.embedderProvider, "embedder", "", "embedding backend (mock, openai)")
	f.fs.StringVar(&f.embedderModel, "embedder-model", "", "embedding model identifier")
	f.fs.IntVar(&f.embedderDimensions, "embedder-dimensions", 0, "dimensions for mock embeddings")
	f.fs.StringVar(&f.logLevel, "log-level", config.DefaultLogLevel, "minimum log level (debug, info, warn, error)")
	f.fs.StringVar(&f.logFormat, "log-format", config.DefaultLogFormat, "log format (text, json)")
	f.fs.BoolVar(&f.verbose, "verbose", false, "force debug-level logging")

	f.fs.Usage = func() {
		fmt.Fprintf(f.fs.Output(), "Usage: memorybank [flags]\n\n")
		fmt.Fprintf(f.fs.Output(), "Persistent semantic memory MCP server over stdio.\n\n")
		f.fs.PrintDefaults()
	}

	f.fs.Parse(os.Args[1:])
	return f
}

// applyFlags copies explicitly set flags onto the loaded configuration,
// unless the corresponding environment variable already claimed the field.
func applyFlags(cfg *config.Config, f *cliFlags) {
	set := map[string]func(){
		"store-path": func() {
			if !config.EnvIsSet("STORE_PATH") {
				cfg.Store.Path = f.storePath
			}
		},
		"cache-dir": func() {
			if !config.EnvIsSet("CACHE_DIR") {
				cfg.Store.CacheDir = f.cacheDir
			}
		},
		"similarity-threshold": func() {
			if !config.EnvIsSet("SIMILARITY_THRESHOLD") {
				cfg.Search.SimilarityThreshold = f.similarityThreshold
			}
		},
		"temporal-boost": func() {
			if !config.EnvIsSet("TEMPORAL_BOOST") {
				cfg.Search.TemporalBoost = f.temporalBoost
			}
		},
		"auto-chunk": func() {
			if !config.EnvIsSet("AUTO_CHUNK") {
				cfg.Index.AutoChunk = f.autoChunk
			}
		},
		"chunk-size": func() {
			if !config.EnvIsSet("CHUNK_SIZE") {
				cfg.Index.ChunkSize = f.chunkSize
			}
		},
		"dedupe-exact": func() {
			if !config.EnvIsSet("DEDUPE_EXACT") {
				cfg.Index.DedupeExact = f.dedupeExact
			}
		},
		"dedupe-fuzzy-threshold": func() {
			if !config.EnvIsSet("DEDUPE_FUZZY_THRESHOLD") {
				cfg.Index.DedupeFuzzyThreshold = f.dedupeFuzzyThreshold
			}
		},
		"embedder": func() {
			if !config.EnvIsSet("EMBEDDER_PROVIDER") {
				cfg.Embedder.Provider = f.embedderProvider
			}
		},
		"embedder-model": func() {
			if !config.EnvIsSet("EMBEDDER_MODEL") {
				cfg.Embedder.Model = f.embedderModel
			}
		},
		"embedder-dimensions": func() {
			if !config.EnvIsSet("EMBEDDER_DIMENSIONS") {
				cfg.Embedder.Dimensions = f.embedderDimensions
			}
		},
		"log-level": func() {
			if !config.EnvIsSet("LOG_LEVEL") {
				cfg.Logging.Level = f.logLevel
			}
		},
		"log-format": func() {
			if !config.EnvIsSet("LOG_FORMAT") {
				cfg.Logging.Format = f.logFormat
			}
		},
		"verbose": func() {
			if !config.EnvIsSet("VERBOSE") {
				cfg.Logging.Verbose = f.verbose
			}
		},
	}

	f.fs.Visit(func(fl *flag.Flag) {
		if apply, ok := set[fl.Name]; ok {
			apply()
		}
	})
}

// setupSignalHandler sets up a signal handler for graceful shutdown.
func setupSignalHandler(srv *memorybank.Server, logger *slog.Logger) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		logger.Info("Received shutdown signal, terminating gracefully...")

		if err := srv.Stop(); err != nil {
			errortypes.LogError(logger, err)
			os.Exit(1)
		}

		logger.Info("Shutdown complete")
		os.Exit(0)
	}()
}
