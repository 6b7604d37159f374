package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/tieubaoca/rag-be/logger"
	"github.com/tieubaoca/rag-be/metrics"
	"github.com/tieubaoca/rag-be/types"
	"golang.org/x/sync/errgroup"
)

// Embedder is an embedding provider. EmbedTexts must return one vector per
// input, in input order, and may be given at most MaxBatchSize texts.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
	Dimension() int
	MaxBatchSize() int
}

// EmbeddingCache stores vectors by key. Implementations must be safe for concurrent use.
type EmbeddingCache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, value []float32)
	Name() string
}

type EmbeddingOptions struct {
	Dimension   int
	BatchSize   int
	Concurrency int
	// Timeout bounds each provider call; zero means no extra bound.
	Timeout time.Duration
}

type EmbeddingService struct {
	provider    Embedder
	cache       EmbeddingCache
	dimension   int
	batchSize   int
	concurrency int
	timeout     time.Duration
	log         *logger.Logger
}

// NewEmbeddingService fails with a ConfigError when the provider's declared
// dimension differs from the configured one.
func NewEmbeddingService(provider Embedder, cache EmbeddingCache, opts EmbeddingOptions, log *logger.Logger) (*EmbeddingService, error) {
	if provider.Dimension() != opts.Dimension {
		return nil, &types.ConfigError{
			Key:    "embedding.dimension",
			Reason: fmt.Sprintf("model %s produces %d dimensions, configured %d", provider.Model(), provider.Dimension(), opts.Dimension),
			Err:    types.ErrDimensionMismatch,
		}
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 || batchSize > provider.MaxBatchSize() {
		batchSize = provider.MaxBatchSize()
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &EmbeddingService{
		provider:    provider,
		cache:       cache,
		dimension:   opts.Dimension,
		batchSize:   batchSize,
		concurrency: concurrency,
		timeout:     opts.Timeout,
		log:         log,
	}, nil
}

func (s *EmbeddingService) Model() string  { return s.provider.Model() }
func (s *EmbeddingService) Dimension() int { return s.dimension }

func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in input order. Texts missing from the cache are
// sent to the provider in sub-batches of at most batchSize, with up to
// concurrency sub-batches in flight. Any failure fails the whole call.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	pending := make([]int, 0, len(texts))
	for i, text := range texts {
		keys[i] = s.cacheKey(text)
		if s.cache != nil {
			if vec, ok := s.cache.Get(ctx, keys[i]); ok && len(vec) == s.dimension {
				out[i] = vec
				continue
			}
		}
		pending = append(pending, i)
	}
	if s.cache != nil {
		metrics.RecordCacheHit(s.cache.Name(), len(texts)-len(pending))
		metrics.RecordCacheMiss(s.cache.Name(), len(pending))
	}
	if len(pending) == 0 {
		return out, nil
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for lo := 0; lo < len(pending); lo += s.batchSize {
		idx := pending[lo:min(lo+s.batchSize, len(pending))]
		g.Go(func() error {
			batch := make([]string, len(idx))
			for j, i := range idx {
				batch[j] = texts[i]
			}
			callCtx := gctx
			if s.timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(gctx, s.timeout)
				defer cancel()
			}
			vectors, err := s.provider.EmbedTexts(callCtx, batch)
			if err != nil {
				return err
			}
			if len(vectors) != len(batch) {
				return fmt.Errorf("provider returned %d vectors for %d texts", len(vectors), len(batch))
			}
			for j, i := range idx {
				if len(vectors[j]) != s.dimension {
					return fmt.Errorf("%w: got %d, want %d", types.ErrDimensionMismatch, len(vectors[j]), s.dimension)
				}
				out[i] = vectors[j]
			}
			return nil
		})
	}
	err := g.Wait()
	metrics.RecordEmbedding(time.Since(start).Seconds())
	if err != nil {
		s.log.Error("embedding failed", "model", s.provider.Model(), "texts", len(pending), "error", err)
		return nil, &types.EmbeddingError{Model: s.provider.Model(), Err: err}
	}

	if s.cache != nil {
		for _, i := range pending {
			s.cache.Set(ctx, keys[i], out[i])
		}
	}
	return out, nil
}

func (s *EmbeddingService) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(s.provider.Model() + "\x00" + text))
	return hex.EncodeToString(sum[:])
}
