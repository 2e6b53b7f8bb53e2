package vector

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder implements the Embedder interface against the OpenAI
// embeddings API. Initialize validates the configuration with a probe
// request, which makes first startup dependent on network reachability.
type OpenAIEmbedder struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// DefaultEmbedderTimeout bounds a single embedding API call.
const DefaultEmbedderTimeout = 30 * time.Second

// NewOpenAIEmbedder creates an embedder for the given API key and model
// identifier. An empty model falls back to DefaultEmbeddingModel.
func NewOpenAIEmbedder(apiKey, model string) *OpenAIEmbedder {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &OpenAIEmbedder{
		client:  openai.NewClient(apiKey),
		model:   model,
		timeout: DefaultEmbedderTimeout,
	}
}

// Initialize verifies the embedder can reach the API and that the configured
// model produces embeddings. Idempotent on success.
func (e *OpenAIEmbedder) Initialize() error {
	if e.client == nil {
		return errors.New("openai embedder has no client")
	}

	_, err := e.CreateEmbedding("memorybank startup probe")
	if err != nil {
		return fmt.Errorf("embedding model %q unavailable: %w", e.model, err)
	}
	return nil
}

// CreateEmbedding converts text into a vector representation using the
// configured model.
func (e *OpenAIEmbedder) CreateEmbedding(text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embedding response contained no data")
	}

	return resp.Data[0].Embedding, nil
}
