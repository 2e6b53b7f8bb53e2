// Package engine provides the embedding and similarity-search engine that
// owns the MemoryBank document index.
package engine

import (
	"context"
)

// Document is one indexed unit of text plus optional structured metadata.
// The id is caller-assigned and unique; indexing the same id again replaces
// the previous document.
type Document struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SearchResult is one ranked candidate produced per query. Similarity is in
// [0,1], higher is more relevant.
type SearchResult struct {
	Text       string         `json:"text"`
	Similarity float64        `json:"similarity"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// SearchOptions bound one query. A zero MinSimilarity falls back to the
// engine's configured threshold.
type SearchOptions struct {
	Limit         int
	MinSimilarity float64
}

// Engine is the capability contract for the document index. Implementations
// are not safe for concurrent use; callers serialize access through the
// operation queue.
type Engine interface {
	// Initialize brings the engine from uninitialized to ready. It may be
	// slow (first-run model download) and must be called before any other
	// operation. Idempotent on success.
	Initialize(ctx context.Context) error

	// Search returns candidates ranked by descending similarity, already
	// truncated to opts.Limit.
	Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error)

	// IndexDocument persists and indexes one document.
	IndexDocument(ctx context.Context, doc Document) error

	// IndexBatch persists and indexes documents in one operation. It is at
	// least as efficient as repeated IndexDocument calls.
	IndexBatch(ctx context.Context, docs []Document) error

	// Remove deletes a document by id, reporting whether it existed.
	Remove(ctx context.Context, id string) (bool, error)

	// Size reports the number of indexed documents.
	Size(ctx context.Context) (int, error)

	// Clear removes all documents irreversibly, reporting how many.
	Clear(ctx context.Context) (int, error)

	// Close releases the engine's resources.
	Close() error
}
