package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tieubaoca/rag-be/cache"
	"github.com/tieubaoca/rag-be/logger"
	"github.com/tieubaoca/rag-be/types"
)

// indexEmbedder encodes the numeric suffix of "t<N>" into the first component.
type indexEmbedder struct {
	topicEmbedder
	dim int
}

func (e *indexEmbedder) Dimension() int { return e.dim }

func (e *indexEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if _, err := e.topicEmbedder.EmbedTexts(ctx, texts); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		var n int
		_, _ = fmt.Sscanf(t, "t%d", &n)
		out[i] = make([]float32, e.dim)
		out[i][0] = float32(n)
	}
	return out, nil
}

func TestEmbedBatch_PreservesOrderAcrossSubBatches(t *testing.T) {
	e := &indexEmbedder{topicEmbedder: topicEmbedder{maxBatch: 2}, dim: 4}
	svc, err := NewEmbeddingService(e, nil, EmbeddingOptions{Dimension: 4, Concurrency: 3}, logger.Nop())
	require.NoError(t, err)

	texts := make([]string, 7)
	for i := range texts {
		texts[i] = fmt.Sprintf("t%d", i)
	}
	vectors, err := svc.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, 7)
	for i, v := range vectors {
		assert.Equal(t, float32(i), v[0], "vector %d", i)
	}

	assert.Equal(t, 4, e.calls())
	for _, b := range e.batches {
		assert.LessOrEqual(t, len(b), 2)
	}
	assert.LessOrEqual(t, e.maxFlight.Load(), int32(3))
}

func TestEmbedBatch_SubBatchFailureAbortsCall(t *testing.T) {
	e := newTopicEmbedder("a")
	e.maxBatch = 1
	e.fail = errors.New("quota exceeded")
	svc := newTestEmbeddingService(e, 0, 2)

	vectors, err := svc.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	assert.Nil(t, vectors)
	var embErr *types.EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.Equal(t, "fake-topic", embErr.Model)
}

type shortEmbedder struct{ topicEmbedder }

func (e *shortEmbedder) Dimension() int { return 3 }

func (e *shortEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 2}
	}
	return out, nil
}

func TestEmbedBatch_DimensionMismatch(t *testing.T) {
	e := &shortEmbedder{topicEmbedder{maxBatch: 10}}
	svc, err := NewEmbeddingService(e, nil, EmbeddingOptions{Dimension: 3}, logger.Nop())
	require.NoError(t, err)

	_, err = svc.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, types.ErrDimensionMismatch)
}

func TestNewEmbeddingService_RejectsDeclaredDimension(t *testing.T) {
	e := newTopicEmbedder("a", "b")
	_, err := NewEmbeddingService(e, nil, EmbeddingOptions{Dimension: 768}, logger.Nop())

	var cfgErr *types.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "embedding.dimension", cfgErr.Key)
	assert.ErrorIs(t, err, types.ErrDimensionMismatch)
}

func TestEmbedBatch_BatchSizeClampedToProvider(t *testing.T) {
	e := newTopicEmbedder("a")
	e.maxBatch = 2
	svc := newTestEmbeddingService(e, 50, 1)

	_, err := svc.EmbedBatch(context.Background(), []string{"1", "2", "3"})
	require.NoError(t, err)
	assert.Equal(t, 2, e.calls())
}

func TestEmbedBatch_CacheServesRepeats(t *testing.T) {
	e := newTopicEmbedder("apple", "pear")
	mem, err := cache.NewMemoryCache(100, 0)
	require.NoError(t, err)
	svc, err := NewEmbeddingService(e, mem, EmbeddingOptions{Dimension: e.Dimension()}, logger.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	first, err := svc.EmbedBatch(ctx, []string{"apple pie", "pear tart"})
	require.NoError(t, err)
	assert.Equal(t, 1, e.calls())

	second, err := svc.EmbedBatch(ctx, []string{"pear tart", "plain bread", "apple pie"})
	require.NoError(t, err)
	require.Equal(t, 2, e.calls())
	assert.Equal(t, []string{"plain bread"}, e.batches[1])
	assert.Equal(t, first[1], second[0])
	assert.Equal(t, first[0], second[2])
	assert.Equal(t, 3, mem.Len())
}

func TestEmbedBatch_Empty(t *testing.T) {
	e := newTopicEmbedder("a")
	svc := newTestEmbeddingService(e, 0, 1)

	vectors, err := svc.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
	assert.Zero(t, e.calls())
}
