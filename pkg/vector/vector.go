// Package vector abstracts the embedded vector store behind a small provider
// interface. Embeddings are always pre-computed by the caller; providers only
// index and search them.
package vector

import "context"

// Result is a single similarity search hit.
type Result struct {
	ID       string
	Score    float32
	Content  string
	Metadata map[string]any
}

// Provider stores and searches pre-computed vectors grouped into named
// collections.
type Provider interface {
	Upsert(ctx context.Context, collection, id string, vector []float32, metadata map[string]any) error
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error)
	SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]Result, error)
	Delete(ctx context.Context, collection, id string) error
	DeleteCollection(ctx context.Context, collection string) error
	Count(ctx context.Context, collection string) (int, error)
	Name() string
	Close() error
}
