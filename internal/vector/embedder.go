// Package vector provides interfaces and utilities for vector operations
// and text embedding within the MemoryBank service.
package vector

const (
	// DefaultEmbeddingDimensions defines the standard size of embedding vectors.
	// 1536 matches the output of common hosted embedding models.
	DefaultEmbeddingDimensions = 1536

	// DefaultEmbeddingModel is the model identifier used when the
	// configuration does not name one.
	DefaultEmbeddingModel = "text-embedding-3-small"
)

// Embedder defines the interface for creating vector embeddings from text.
type Embedder interface {
	// CreateEmbedding converts text into a vector representation.
	CreateEmbedding(text string) ([]float32, error)

	// Initialize sets up the embedder with any required configuration.
	// It may be slow on first run (model download, remote validation) and
	// must be called before CreateEmbedding.
	Initialize() error
}
