package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedEmbedder_HitsLocalCache(t *testing.T) {
	provider := newFakeProvider(4)
	gen, _ := newTestGenerator(provider, 4)
	cached := NewCachedEmbedder(gen, NewEmbeddingCache(nil, "", 0, nil))
	ctx := context.Background()

	first, err := cached.Embed(ctx, "what is rag")
	require.NoError(t, err)
	second, err := cached.Embed(ctx, "what is rag")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, provider.callCount())
	assert.Equal(t, 4, cached.Dimensions())
	assert.Equal(t, "fake-embedding", cached.Model())
}

func TestEmbeddingCache_ReturnsCopies(t *testing.T) {
	cache := NewEmbeddingCache(nil, "", 0, nil)
	ctx := context.Background()

	src := []float32{1, 2, 3}
	require.NoError(t, cache.Set(ctx, "q", "m", src))
	src[0] = 100

	got, ok := cache.Get(ctx, "q", "m")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2, 3}, got)

	got[1] = -1
	again, ok := cache.Get(ctx, "q", "m")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2, 3}, again)
}

func TestCachedEmbedder_BatchOnlyEmbedsMisses(t *testing.T) {
	provider := newFakeProvider(4)
	gen, _ := newTestGenerator(provider, 4)
	cached := NewCachedEmbedder(gen, NewEmbeddingCache(nil, "test:", 0, nil))
	ctx := context.Background()

	_, err := cached.Embed(ctx, "b")
	require.NoError(t, err)

	vectors, err := cached.EmbedBatch(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, textVector("a", 4), vectors[0])
	assert.Equal(t, textVector("b", 4), vectors[1])
	assert.Equal(t, textVector("c", 4), vectors[2])

	require.Len(t, provider.batches, 2)
	assert.Equal(t, []string{"a", "c"}, provider.batches[1])
}

func TestEmbeddingCache_EvictsWhenFull(t *testing.T) {
	cache := NewEmbeddingCache(nil, "", 0, nil)
	cache.maxLocalSize = 4
	ctx := context.Background()

	for _, s := range []string{"1", "2", "3", "4", "5"} {
		require.NoError(t, cache.Set(ctx, s, "m", []float32{1}))
	}
	assert.LessOrEqual(t, len(cache.local), 4)

	_, ok := cache.Get(ctx, "5", "m")
	assert.True(t, ok)
	_, ok = cache.Get(ctx, "5", "other-model")
	assert.False(t, ok)
}
