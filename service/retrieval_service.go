package service

import (
	"context"
	"strings"
	"time"

	"github.com/tieubaoca/rag-be/database"
	"github.com/tieubaoca/rag-be/logger"
	"github.com/tieubaoca/rag-be/metrics"
	"github.com/tieubaoca/rag-be/types"
)

const (
	DefaultMatchCount          = 8
	MaxMatchCount              = 50
	DefaultSimilarityThreshold = 0.4
)

type RetrievalService struct {
	store    database.DocumentStore
	embedder *EmbeddingService
	log      *logger.Logger
}

func NewRetrievalService(store database.DocumentStore, embedder *EmbeddingService, log *logger.Logger) *RetrievalService {
	if log == nil {
		log = logger.Nop()
	}
	return &RetrievalService{store: store, embedder: embedder, log: log}
}

// Search embeds the query and returns the user's most similar chunks. A
// zero MatchCount means DefaultMatchCount and larger values are capped at
// MaxMatchCount; a negative SimilarityThreshold means DefaultSimilarityThreshold.
func (s *RetrievalService) Search(ctx context.Context, params types.SearchParams) ([]types.SearchResult, error) {
	if strings.TrimSpace(params.Query) == "" {
		return nil, types.NewValidationError("query", "must not be empty")
	}
	if strings.TrimSpace(params.UserID) == "" {
		return nil, types.NewValidationError("user_id", "must not be empty")
	}
	if params.MatchCount <= 0 {
		params.MatchCount = DefaultMatchCount
	}
	if params.MatchCount > MaxMatchCount {
		params.MatchCount = MaxMatchCount
	}
	if params.SimilarityThreshold < 0 {
		params.SimilarityThreshold = DefaultSimilarityThreshold
	}

	vector, err := s.embedder.Embed(ctx, params.Query)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	results, err := s.store.SimilaritySearch(ctx, types.VectorQuery{
		Embedding:           vector,
		UserID:              params.UserID,
		DocumentIDs:         params.DocumentIDs,
		MatchCount:          params.MatchCount,
		SimilarityThreshold: params.SimilarityThreshold,
	})
	metrics.RecordVectorSearch(time.Since(start).Seconds())
	if err != nil {
		s.log.Error("Vector search failed", "user_id", params.UserID, "error", err)
		return nil, &types.RetrievalError{Err: err}
	}
	s.log.Debug("Vector search", "user_id", params.UserID, "results", len(results))
	return results, nil
}
