package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tieubaoca/rag-be/database"
	"github.com/tieubaoca/rag-be/logger"
	"github.com/tieubaoca/rag-be/types"
)

// recordingStore remembers the last vector query it was given.
type recordingStore struct {
	*database.MemoryStore
	last types.VectorQuery
}

func (s *recordingStore) SimilaritySearch(ctx context.Context, q types.VectorQuery) ([]types.SearchResult, error) {
	s.last = q
	return s.MemoryStore.SimilaritySearch(ctx, q)
}

func TestRetrievalSearchParams(t *testing.T) {
	tests := []struct {
		name          string
		matchCount    int
		threshold     float64
		wantCount     int
		wantThreshold float64
	}{
		{"defaults", 0, -1, DefaultMatchCount, DefaultSimilarityThreshold},
		{"explicit", 3, 0.7, 3, 0.7},
		{"zero threshold kept", 5, 0, 5, 0},
		{"capped", 1_000_000_000_000, 0.4, MaxMatchCount, 0.4},
		{"at cap", MaxMatchCount, 0.4, MaxMatchCount, 0.4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &recordingStore{MemoryStore: database.NewMemoryStore()}
			svc := NewRetrievalService(store, newTestEmbeddingService(newTopicEmbedder("go"), 10, 1), logger.Nop())

			_, err := svc.Search(context.Background(), types.SearchParams{
				Query:               "go channels",
				UserID:              "u1",
				MatchCount:          tt.matchCount,
				SimilarityThreshold: tt.threshold,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantCount, store.last.MatchCount)
			assert.InDelta(t, tt.wantThreshold, store.last.SimilarityThreshold, 1e-9)
			assert.Equal(t, "u1", store.last.UserID)
		})
	}
}

func TestRetrievalSearchValidation(t *testing.T) {
	store := &recordingStore{MemoryStore: database.NewMemoryStore()}
	svc := NewRetrievalService(store, newTestEmbeddingService(newTopicEmbedder("go"), 10, 1), logger.Nop())

	_, err := svc.Search(context.Background(), types.SearchParams{Query: "  ", UserID: "u1"})
	var vErr *types.ValidationError
	require.ErrorAs(t, err, &vErr)

	_, err = svc.Search(context.Background(), types.SearchParams{Query: "go", UserID: ""})
	require.ErrorAs(t, err, &vErr)
	assert.Zero(t, store.last.MatchCount)
}
