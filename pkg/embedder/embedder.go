// Package embedder converts text into vectors for the associative memory
// bank. The OpenAI-compatible provider covers any /v1/embeddings endpoint;
// the hash provider is a deterministic offline fallback.
package embedder

import "context"

// Embedder turns text into fixed-dimension vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Model() string
	Close() error
}
