package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tieubaoca/rag-be/database"
	"github.com/tieubaoca/rag-be/logger"
	"github.com/tieubaoca/rag-be/types"
)

// topicEmbedder maps text to one axis per topic keyword found in it, so
// similarity between two texts is driven by shared topics.
type topicEmbedder struct {
	topics   []string
	maxBatch int
	fail     error

	mu        sync.Mutex
	batches   [][]string
	inFlight  atomic.Int32
	maxFlight atomic.Int32
}

func newTopicEmbedder(topics ...string) *topicEmbedder {
	return &topicEmbedder{topics: topics, maxBatch: 100}
}

func (e *topicEmbedder) Model() string     { return "fake-topic" }
func (e *topicEmbedder) Dimension() int    { return len(e.topics) + 1 }
func (e *topicEmbedder) MaxBatchSize() int { return e.maxBatch }

func (e *topicEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	n := e.inFlight.Add(1)
	defer e.inFlight.Add(-1)
	for {
		cur := e.maxFlight.Load()
		if n <= cur || e.maxFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	e.mu.Lock()
	e.batches = append(e.batches, append([]string(nil), texts...))
	e.mu.Unlock()

	if e.fail != nil {
		return nil, e.fail
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *topicEmbedder) vector(text string) []float32 {
	v := make([]float32, e.Dimension())
	lower := strings.ToLower(text)
	hit := false
	for i, topic := range e.topics {
		if c := strings.Count(lower, topic); c > 0 {
			v[i] = float32(c)
			hit = true
		}
	}
	if !hit {
		v[len(e.topics)] = 1
	}
	return v
}

func (e *topicEmbedder) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.batches)
}

// fakeAI records every prompt and returns a fixed answer.
type fakeAI struct {
	answer  string
	err     error
	prompts []string
}

func (f *fakeAI) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

// flakyStore fails InsertChunksBatch on the n-th call (1-based).
type flakyStore struct {
	*database.MemoryStore
	failOnBatch int
	batchCalls  int
}

func (s *flakyStore) InsertChunksBatch(ctx context.Context, chunks []types.Chunk) error {
	s.batchCalls++
	if s.batchCalls == s.failOnBatch {
		return types.NewStoreError("insert chunks", errors.New("connection reset"))
	}
	return s.MemoryStore.InsertChunksBatch(ctx, chunks)
}

func newTestEmbeddingService(e *topicEmbedder, batchSize, concurrency int) *EmbeddingService {
	svc, err := NewEmbeddingService(e, nil, EmbeddingOptions{
		Dimension:   e.Dimension(),
		BatchSize:   batchSize,
		Concurrency: concurrency,
	}, logger.Nop())
	if err != nil {
		panic(err)
	}
	return svc
}
