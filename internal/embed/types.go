// Package embed provides text embedding for semantic search.
package embed

import "context"

// DefaultBatchSize is the default number of texts per embedding request.
const DefaultBatchSize = 64

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier, used for cache keys and
	// index compatibility checks.
	ModelName() string
}
