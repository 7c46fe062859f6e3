package embedder

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
)

// HashEmbedder produces deterministic pseudo-random unit vectors seeded from
// the text's hash. It carries no semantics, so retrieval degrades to exact
// duplicate matching, but it lets the memory system run offline and keeps
// tests deterministic.
type HashEmbedder struct {
	dimension int
}

// NewHashEmbedder creates a hash embedder with the given dimension
// (defaults to 384).
func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = 384
	}
	return &HashEmbedder{dimension: dimension}
}

// Embed returns the unit vector deterministically derived from the text.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	vec := make([]float32, e.dimension)
	var norm float64
	for i := range vec {
		v := rng.NormFloat64()
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] /= float32(norm)
		}
	}
	return vec, nil
}

// EmbedBatch embeds each text independently.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (e *HashEmbedder) Dimension() int { return e.dimension }
func (e *HashEmbedder) Model() string  { return "hash" }
func (e *HashEmbedder) Close() error   { return nil }

var _ Embedder = (*HashEmbedder)(nil)
