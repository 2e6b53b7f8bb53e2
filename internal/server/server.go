package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/localrivet/gomcp/server"

	"github.com/localforge/memorybank/internal/config"
	"github.com/localforge/memorybank/internal/engine"
	"github.com/localforge/memorybank/internal/errortypes"
	"github.com/localforge/memorybank/internal/memfilter"
	"github.com/localforge/memorybank/internal/opqueue"
	"github.com/localforge/memorybank/internal/telemetry"
	"github.com/localforge/memorybank/internal/tools"
	"github.com/localforge/memorybank/internal/util"
)

// Common server error types
var (
	ErrServerNotInitialized = errors.New("server not initialized")
	ErrMissingDependencies  = errors.New("one or more required dependencies are nil")
)

// healthProbeQuery is the query the health tool runs against the engine to
// verify it is responsive. It is a real search and is counted as one.
const healthProbeQuery = "memorybank health probe"

// MCPMemoryToolServer implements the MemoryToolServer interface for handling
// MCP tool calls against the document index. Every engine-touching call,
// including the health probe's verification search, goes through the
// operation queue; the engine is never invoked from handler code directly.
type MCPMemoryToolServer struct {
	eng       engine.Engine
	queue     *opqueue.Queue
	metrics   *telemetry.Metrics
	cfg       *config.Config
	mcpServer server.Server
}

// NewMemoryToolServer creates a new MCPMemoryToolServer instance.
func NewMemoryToolServer(eng engine.Engine, queue *opqueue.Queue, metrics *telemetry.Metrics, cfg *config.Config) *MCPMemoryToolServer {
	return &MCPMemoryToolServer{
		eng:     eng,
		queue:   queue,
		metrics: metrics,
		cfg:     cfg,
	}
}

// Initialize initializes the server with dependencies and configurations.
func (s *MCPMemoryToolServer) Initialize() error {
	slog.Info("Initializing MCP Memory Tool Server")

	if s.eng == nil || s.queue == nil || s.metrics == nil || s.cfg == nil {
		return errortypes.ConfigError(ErrMissingDependencies, "server initialization failed")
	}

	srv := server.NewServer("memorybank")

	srv = srv.Tool(tools.ToolHealth, "Report service health, metrics, and configuration",
		s.handleHealth)

	srv = srv.Tool(tools.ToolSearch, "Search stored memories by semantic similarity",
		s.handleSearch)

	srv = srv.Tool(tools.ToolIndexDocument, "Store one text memory in the persistent index",
		s.handleIndexDocument)

	srv = srv.Tool(tools.ToolIndexBatch, "Store multiple text memories in one operation",
		s.handleIndexBatch)

	srv = srv.Tool(tools.ToolRemove, "Remove a stored memory by id",
		s.handleRemove)

	srv = srv.Tool(tools.ToolStats, "Report index statistics and configuration",
		s.handleStats)

	srv = srv.Tool(tools.ToolClear, "Remove all stored memories (requires confirm=true)",
		s.handleClear)

	s.mcpServer = srv
	slog.Info("MCP Memory Tool Server initialized successfully", "tool_count", 7)
	return nil
}

// Start starts the MCP server on the stdio transport.
func (s *MCPMemoryToolServer) Start() error {
	if s.mcpServer == nil {
		return errortypes.ConfigError(ErrServerNotInitialized, "cannot start server")
	}

	slog.Info("Starting MCP Memory Tool Server")

	stdioServer := s.mcpServer.AsStdio()
	return stdioServer.Run()
}

// Stop gracefully shuts down the MCP server.
func (s *MCPMemoryToolServer) Stop() error {
	slog.Info("Stopping MCP Memory Tool Server")
	// The server exits when stdin is closed; the queue and engine are
	// closed by the owning facade.
	return nil
}

// handleHealth handles the health MCP tool call. The probe search verifies
// the engine answers queries; it runs through the queue like any other
// operation so it cannot interleave with a write.
func (s *MCPMemoryToolServer) handleHealth(ctx *server.Context, req tools.HealthRequest) (tools.HealthResponse, error) {
	slog.Debug("Processing health request")

	response := tools.HealthResponse{
		Status: "ok",
		Config: s.cfg.Echo(),
	}

	type probeResult struct {
		count int
	}

	result, err := opqueue.Do(context.Background(), s.queue, func(ctx context.Context) (probeResult, error) {
		if _, err := s.eng.Search(ctx, healthProbeQuery, engine.SearchOptions{Limit: 1}); err != nil {
			return probeResult{}, err
		}
		count, err := s.eng.Size(ctx)
		if err != nil {
			return probeResult{}, err
		}
		return probeResult{count: count}, nil
	})
	if err != nil {
		response.Status = "error"
		response.Error = describeFailure(tools.ToolHealth, err)
		response.Metrics = s.metrics.Snapshot()
		return response, nil
	}

	s.metrics.RecordSearch()
	response.DocumentCount = result.count
	response.Metrics = s.metrics.Snapshot()
	return response, nil
}

// handleSearch handles the search MCP tool call. Metadata filtering applies
// after the engine's own ranking and limit truncation, so a heavily filtered
// query can return fewer than limit results.
func (s *MCPMemoryToolServer) handleSearch(ctx *server.Context, req tools.SearchRequest) (tools.SearchResponse, error) {
	slog.Info("Processing search request", "query", req.Query, "limit", req.Limit)

	response := tools.SearchResponse{
		Status:  "success",
		Results: []engine.SearchResult{},
	}

	if req.Query == "" {
		response.Message = "A non-empty query is required."
		return response, nil
	}

	limit := req.Limit
	if limit <= 0 {
		limit = tools.DefaultSearchLimit
		slog.Debug("Using default limit for search", "limit", limit)
	}

	spec := memfilter.Spec{
		Kind: req.Kind,
		Tags: req.Tags,
	}
	if req.Since != "" {
		since, err := time.Parse(time.RFC3339, req.Since)
		if err != nil {
			response.Message = fmt.Sprintf("Invalid since value %q: expected an RFC 3339 timestamp.", req.Since)
			return response, nil
		}
		spec.Since = since
	}

	results, err := opqueue.Do(context.Background(), s.queue, func(ctx context.Context) ([]engine.SearchResult, error) {
		return s.eng.Search(ctx, req.Query, engine.SearchOptions{
			Limit:         limit,
			MinSimilarity: req.MinSimilarity,
		})
	})
	if err != nil {
		response.Status = "error"
		response.Error = describeFailure(tools.ToolSearch, err)
		return response, nil
	}

	s.metrics.RecordSearch()

	results = memfilter.Apply(spec, results, func(r engine.SearchResult) map[string]any {
		return r.Metadata
	})

	if len(results) == 0 {
		response.Message = "No matching memories found."
		slog.Info("Search returned no results", "query", req.Query)
		return response, nil
	}

	response.Results = results
	slog.Info("Search completed", "query", req.Query, "count", len(results))
	return response, nil
}

// handleIndexDocument handles the index_document MCP tool call.
func (s *MCPMemoryToolServer) handleIndexDocument(ctx *server.Context, req tools.IndexDocumentRequest) (tools.IndexDocumentResponse, error) {
	slog.Info("Processing index_document request", "id", req.ID, "text_length", len(req.Text))

	response := tools.IndexDocumentResponse{
		Status: "success",
	}

	if req.Text == "" {
		err := errortypes.ValidationError(errors.New("text cannot be empty"), "invalid index_document request")
		errortypes.LogError(nil, err)
		response.Status = "error"
		response.Error = err.Error()
		return response, nil
	}

	id := req.ID
	if id == "" {
		id = util.GenerateHash(req.Text, time.Now().UnixNano())
		slog.Debug("Generated id for document", "id", id)
	}

	doc := engine.Document{ID: id, Text: req.Text, Metadata: req.Metadata}

	total, err := opqueue.Do(context.Background(), s.queue, func(ctx context.Context) (int, error) {
		if err := s.eng.IndexDocument(ctx, doc); err != nil {
			return 0, err
		}
		return s.eng.Size(ctx)
	})
	if err != nil {
		response.Status = "error"
		response.Error = describeFailure(tools.ToolIndexDocument, err)
		return response, nil
	}

	s.metrics.RecordDocumentsAdded(1)
	response.ID = id
	response.TotalDocuments = total
	slog.Info("Successfully indexed document", "id", id, "total", total)
	return response, nil
}

// handleIndexBatch handles the index_batch MCP tool call. The whole batch is
// one queued operation; the added-documents counter advances by the batch
// size in a single step.
func (s *MCPMemoryToolServer) handleIndexBatch(ctx *server.Context, req tools.IndexBatchRequest) (tools.IndexBatchResponse, error) {
	slog.Info("Processing index_batch request", "count", len(req.Documents))

	response := tools.IndexBatchResponse{
		Status: "success",
	}

	if len(req.Documents) == 0 {
		err := errortypes.ValidationError(errors.New("documents cannot be empty"), "invalid index_batch request")
		errortypes.LogError(nil, err)
		response.Status = "error"
		response.Error = err.Error()
		return response, nil
	}

	docs := make([]engine.Document, len(req.Documents))
	for i, doc := range req.Documents {
		if doc.Text == "" {
			err := errortypes.ValidationError(
				fmt.Errorf("document %d has empty text", i), "invalid index_batch request")
			errortypes.LogError(nil, err)
			response.Status = "error"
			response.Error = err.Error()
			return response, nil
		}
		if doc.ID == "" {
			doc.ID = util.GenerateHash(doc.Text, time.Now().UnixNano())
		}
		docs[i] = doc
	}

	type batchResult struct {
		total   int
		elapsed time.Duration
	}

	result, err := opqueue.Do(context.Background(), s.queue, func(ctx context.Context) (batchResult, error) {
		start := time.Now()
		if err := s.eng.IndexBatch(ctx, docs); err != nil {
			return batchResult{}, err
		}
		total, err := s.eng.Size(ctx)
		if err != nil {
			return batchResult{}, err
		}
		return batchResult{total: total, elapsed: time.Since(start)}, nil
	})
	if err != nil {
		response.Status = "error"
		response.Error = describeFailure(tools.ToolIndexBatch, err)
		return response, nil
	}

	s.metrics.RecordDocumentsAdded(len(docs))

	response.Indexed = len(docs)
	response.TotalDocuments = result.total
	if result.elapsed > 0 {
		response.DocsPerSecond = float64(len(docs)) / result.elapsed.Seconds()
	}
	slog.Info("Successfully indexed batch", "count", len(docs), "total", result.total)
	return response, nil
}

// handleRemove handles the remove MCP tool call. Removing an unknown id is a
// normal response, not an error.
func (s *MCPMemoryToolServer) handleRemove(ctx *server.Context, req tools.RemoveRequest) (tools.RemoveResponse, error) {
	slog.Info("Processing remove request", "id", req.ID)

	response := tools.RemoveResponse{
		Status: "success",
	}

	if req.ID == "" {
		err := errortypes.ValidationError(errors.New("id cannot be empty"), "invalid remove request")
		errortypes.LogError(nil, err)
		response.Status = "error"
		response.Error = err.Error()
		return response, nil
	}

	removed, err := opqueue.Do(context.Background(), s.queue, func(ctx context.Context) (bool, error) {
		return s.eng.Remove(ctx, req.ID)
	})
	if err != nil {
		response.Status = "error"
		response.Error = describeFailure(tools.ToolRemove, err)
		return response, nil
	}

	response.Removed = removed
	if removed {
		s.metrics.RecordDocumentsRemoved(1)
		response.Message = "removed"
		slog.Info("Successfully removed document", "id", req.ID)
	} else {
		response.Message = "not found"
		slog.Info("Document not found for removal", "id", req.ID)
	}
	return response, nil
}

// handleStats handles the stats MCP tool call.
func (s *MCPMemoryToolServer) handleStats(ctx *server.Context, req tools.StatsRequest) (tools.StatsResponse, error) {
	slog.Debug("Processing stats request")

	response := tools.StatsResponse{
		Status: "success",
		Config: s.cfg.Echo(),
	}

	count, err := opqueue.Do(context.Background(), s.queue, func(ctx context.Context) (int, error) {
		return s.eng.Size(ctx)
	})
	if err != nil {
		response.Status = "error"
		response.Error = describeFailure(tools.ToolStats, err)
		response.Metrics = s.metrics.Snapshot()
		return response, nil
	}

	response.DocumentCount = count
	response.Metrics = s.metrics.Snapshot()
	return response, nil
}

// handleClear handles the clear MCP tool call. An unconfirmed clear is a
// no-op response explaining how to confirm, not an error.
func (s *MCPMemoryToolServer) handleClear(ctx *server.Context, req tools.ClearRequest) (tools.ClearResponse, error) {
	slog.Info("Processing clear request", "confirm", req.Confirm)

	response := tools.ClearResponse{
		Status: "success",
	}

	if !req.Confirm {
		response.Message = "Confirmation required. Set confirm to true to remove all stored memories."
		slog.Warn("Clear operation rejected: missing confirmation")
		return response, nil
	}

	cleared, err := opqueue.Do(context.Background(), s.queue, func(ctx context.Context) (int, error) {
		return s.eng.Clear(ctx)
	})
	if err != nil {
		response.Status = "error"
		response.Error = describeFailure(tools.ToolClear, err)
		return response, nil
	}

	s.metrics.RecordDocumentsRemoved(cleared)
	response.Cleared = cleared
	response.Message = fmt.Sprintf("Cleared %d documents.", cleared)
	slog.Info("Successfully cleared document index", "count", cleared)
	return response, nil
}
