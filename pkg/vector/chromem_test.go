package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoscrai/universalis/pkg/embedder"
)

func newTestProvider(t *testing.T) *ChromemProvider {
	t.Helper()
	p, err := NewChromemProvider(ChromemConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestUpsertAndSearch(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()
	emb := embedder.NewHashEmbedder(64)

	texts := map[string]string{
		"m1": "convoy moving north",
		"m2": "storm over the ridge",
		"m3": "convoy moving north", // same text as m1
	}
	for id, text := range texts {
		vec, err := emb.Embed(ctx, text)
		require.NoError(t, err)
		require.NoError(t, p.Upsert(ctx, "memories", id, vec, map[string]any{
			"content": text,
			"owner":   id,
		}))
	}

	query, err := emb.Embed(ctx, "convoy moving north")
	require.NoError(t, err)

	results, err := p.Search(ctx, "memories", query, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-5, "exact duplicate scores highest")
	assert.Equal(t, "convoy moving north", results[0].Content)
}

func TestSearchWithFilter(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()
	emb := embedder.NewHashEmbedder(64)

	for _, doc := range []struct{ id, text, scope string }{
		{"a", "alpha event", "public"},
		{"b", "bravo event", "private"},
	} {
		vec, err := emb.Embed(ctx, doc.text)
		require.NoError(t, err)
		require.NoError(t, p.Upsert(ctx, "c", doc.id, vec, map[string]any{
			"content": doc.text,
			"scope":   doc.scope,
		}))
	}

	query, err := emb.Embed(ctx, "alpha event")
	require.NoError(t, err)

	results, err := p.SearchWithFilter(ctx, "c", query, 10, map[string]any{"scope": "private"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)
}

func TestSearchEmptyCollection(t *testing.T) {
	p := newTestProvider(t)
	results, err := p.Search(context.Background(), "empty", []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDeleteAndCount(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	require.NoError(t, p.Upsert(ctx, "c", "x", []float32{1, 0}, map[string]any{"content": "x"}))
	require.NoError(t, p.Upsert(ctx, "c", "y", []float32{0, 1}, map[string]any{"content": "y"}))

	count, err := p.Count(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, p.Delete(ctx, "c", "x"))
	count, err = p.Count(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
