package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder produces deterministic vectors and counts calls.
type countingEmbedder struct {
	calls int
}

func (f *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *countingEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		vecs[i] = []float32{float32(len(t)), 1}
	}
	return vecs, nil
}

func (f *countingEmbedder) Dimensions() int    { return 2 }
func (f *countingEmbedder) ModelName() string { return "counting" }

func TestCachedEmbedder_RepeatedQueryHitsCache(t *testing.T) {
	inner := &countingEmbedder{}
	cached := NewCachedEmbedder(inner, 10)

	first, err := cached.Embed(context.Background(), "tri fusion")
	require.NoError(t, err)
	second, err := cached.Embed(context.Background(), "tri fusion")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedEmbedder_BatchOnlyEmbedsMisses(t *testing.T) {
	inner := &countingEmbedder{}
	cached := NewCachedEmbedder(inner, 10)

	_, err := cached.Embed(context.Background(), "aa")
	require.NoError(t, err)

	vecs, err := cached.EmbedBatch(context.Background(), []string{"aa", "bbb", "cccc"})
	require.NoError(t, err)

	require.Len(t, vecs, 3)
	assert.Equal(t, []float32{2, 1}, vecs[0])
	assert.Equal(t, []float32{3, 1}, vecs[1])
	assert.Equal(t, []float32{4, 1}, vecs[2])
	// One call for the initial embed, one for the two misses.
	assert.Equal(t, 2, inner.calls)
}

func TestCachedEmbedder_EmptyBatch(t *testing.T) {
	cached := NewCachedEmbedder(&countingEmbedder{}, 10)

	vecs, err := cached.EmbedBatch(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestCachedEmbedder_PassesThroughMetadata(t *testing.T) {
	cached := NewCachedEmbedder(&countingEmbedder{}, 0)

	assert.Equal(t, 2, cached.Dimensions())
	assert.Equal(t, "counting", cached.ModelName())
}
