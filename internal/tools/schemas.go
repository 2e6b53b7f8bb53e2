// Package tools defines the MCP tool names and request/response schemas
// for the MemoryBank service.
package tools

import (
	"github.com/localforge/memorybank/internal/engine"
	"github.com/localforge/memorybank/internal/telemetry"
)

const (
	// ToolHealth is the name of the health MCP tool
	ToolHealth = "health"

	// ToolSearch is the name of the search MCP tool
	ToolSearch = "search"

	// ToolIndexDocument is the name of the index_document MCP tool
	ToolIndexDocument = "index_document"

	// ToolIndexBatch is the name of the index_batch MCP tool
	ToolIndexBatch = "index_batch"

	// ToolRemove is the name of the remove MCP tool
	ToolRemove = "remove"

	// ToolStats is the name of the stats MCP tool
	ToolStats = "stats"

	// ToolClear is the name of the clear MCP tool
	ToolClear = "clear"

	// DefaultSearchLimit is the default number of results to return when no
	// limit is specified in a search request
	DefaultSearchLimit = 5
)

// HealthRequest defines the input schema for the health tool
type HealthRequest struct{}

// HealthResponse defines the output schema for the health tool
type HealthResponse struct {
	// Status indicates the result of the operation ("ok" or "error")
	Status string `json:"status"`

	// DocumentCount is the number of documents currently indexed
	DocumentCount int `json:"document_count"`

	// Metrics is the process-lifetime metrics snapshot
	Metrics telemetry.Snapshot `json:"metrics"`

	// Config echoes the non-secret service configuration
	Config map[string]any `json:"config"`

	// Error contains an error message if Status is "error"
	Error string `json:"error,omitempty"`
}

// SearchRequest defines the input schema for the search tool
type SearchRequest struct {
	// Query is the text to search for semantically
	Query string `json:"query"`

	// Limit is the maximum number of results to return.
	// If not specified, DefaultSearchLimit will be used
	Limit int `json:"limit,omitempty"`

	// MinSimilarity overrides the configured similarity threshold
	MinSimilarity float64 `json:"min_similarity,omitempty"`

	// Kind retains only results whose metadata kind equals this value
	Kind string `json:"kind,omitempty"`

	// Tags retains only results sharing at least one of these tags
	Tags []string `json:"tags,omitempty"`

	// Since retains only results stored at or after this RFC 3339 instant
	Since string `json:"since,omitempty"`
}

// SearchResponse defines the output schema for the search tool
type SearchResponse struct {
	// Status indicates the result of the operation ("success" or "error")
	Status string `json:"status"`

	// Results contains the matching documents, ranked by similarity
	Results []engine.SearchResult `json:"results"`

	// Message carries the explicit "no results" explanation
	Message string `json:"message,omitempty"`

	// Error contains an error message if Status is "error"
	Error string `json:"error,omitempty"`
}

// IndexDocumentRequest defines the input schema for the index_document tool
type IndexDocumentRequest struct {
	// ID is the unique caller-assigned identifier. If empty, a content
	// hash id is generated
	ID string `json:"id,omitempty"`

	// Text is the document body to index. Must be non-empty
	Text string `json:"text"`

	// Metadata is optional structured data stored with the document
	Metadata map[string]any `json:"metadata,omitempty"`
}

// IndexDocumentResponse defines the output schema for the index_document tool
type IndexDocumentResponse struct {
	// Status indicates the result of the operation ("success" or "error")
	Status string `json:"status"`

	// ID is the identifier the document was stored under
	ID string `json:"id,omitempty"`

	// TotalDocuments is the index size after the operation
	TotalDocuments int `json:"total_documents"`

	// Error contains an error message if Status is "error"
	Error string `json:"error,omitempty"`
}

// IndexBatchRequest defines the input schema for the index_batch tool
type IndexBatchRequest struct {
	// Documents are the documents to index in one operation
	Documents []engine.Document `json:"documents"`
}

// IndexBatchResponse defines the output schema for the index_batch tool
type IndexBatchResponse struct {
	// Status indicates the result of the operation ("success" or "error")
	Status string `json:"status"`

	// Indexed is the number of documents in the accepted batch
	Indexed int `json:"indexed"`

	// TotalDocuments is the index size after the operation
	TotalDocuments int `json:"total_documents"`

	// DocsPerSecond is the observed indexing throughput for this batch
	DocsPerSecond float64 `json:"docs_per_second"`

	// Error contains an error message if Status is "error"
	Error string `json:"error,omitempty"`
}

// RemoveRequest defines the input schema for the remove tool
type RemoveRequest struct {
	// ID is the unique identifier of the document to remove
	ID string `json:"id"`
}

// RemoveResponse defines the output schema for the remove tool
type RemoveResponse struct {
	// Status indicates the result of the operation ("success" or "error")
	Status string `json:"status"`

	// Removed reports whether a document with that id existed
	Removed bool `json:"removed"`

	// Message describes the outcome ("removed" or "not found")
	Message string `json:"message,omitempty"`

	// Error contains an error message if Status is "error"
	Error string `json:"error,omitempty"`
}

// StatsRequest defines the input schema for the stats tool
type StatsRequest struct{}

// StatsResponse defines the output schema for the stats tool
type StatsResponse struct {
	// Status indicates the result of the operation ("success" or "error")
	Status string `json:"status"`

	// DocumentCount is the number of documents currently indexed
	DocumentCount int `json:"document_count"`

	// Metrics is the process-lifetime metrics snapshot
	Metrics telemetry.Snapshot `json:"metrics"`

	// Config echoes the non-secret service configuration
	Config map[string]any `json:"config"`

	// Error contains an error message if Status is "error"
	Error string `json:"error,omitempty"`
}

// ClearRequest defines the input schema for the clear tool
type ClearRequest struct {
	// Confirm must be true to actually clear the index. This prevents
	// accidental destruction of all stored memories
	Confirm bool `json:"confirm"`
}

// ClearResponse defines the output schema for the clear tool
type ClearResponse struct {
	// Status indicates the result of the operation ("success" or "error")
	Status string `json:"status"`

	// Cleared is the number of documents removed
	Cleared int `json:"cleared"`

	// Message describes the outcome, including how to confirm when the
	// request was not confirmed
	Message string `json:"message,omitempty"`

	// Error contains an error message if Status is "error"
	Error string `json:"error,omitempty"`
}
