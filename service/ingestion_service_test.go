package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tieubaoca/rag-be/database"
	"github.com/tieubaoca/rag-be/logger"
	"github.com/tieubaoca/rag-be/types"
)

func threeParagraphDoc() string {
	return strings.Repeat("a", 998) + "\n\n" + strings.Repeat("b", 998) + "\n\n" + strings.Repeat("c", 1000)
}

func TestIngest_ThreeThousandCharDocument(t *testing.T) {
	store := database.NewMemoryStore()
	svc := NewIngestionService(store, newTestEmbeddingService(newTopicEmbedder("a"), 0, 2),
		IngestionOptions{ChunkSize: 1000, ChunkOverlap: 200}, logger.Nop())

	res, err := svc.Ingest(context.Background(), types.IngestRequest{
		UserID: "u1", Filename: "big.txt", Content: threeParagraphDoc(), FileType: types.FileTypeText,
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.ChunkCount, 3)
	assert.LessOrEqual(t, res.ChunkCount, 4)

	chunks := store.ChunksForDocument(res.DocumentID)
	require.Len(t, chunks, res.ChunkCount)
	total := 0
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, "u1", c.UserID)
		assert.Len(t, c.Embedding, 2)
		total += c.TokenCount
	}
	assert.Equal(t, total, res.TotalTokens)
}

func TestIngest_ValidationHappensBeforeWrites(t *testing.T) {
	tests := []struct {
		name string
		req  types.IngestRequest
	}{
		{"empty content", types.IngestRequest{UserID: "u1", Filename: "a.txt", Content: " \n\t", FileType: types.FileTypeText}},
		{"missing user", types.IngestRequest{Filename: "a.txt", Content: "hi", FileType: types.FileTypeText}},
		{"unsupported type", types.IngestRequest{UserID: "u1", Filename: "a.exe", Content: "hi", FileType: "exe"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := database.NewMemoryStore()
			e := newTopicEmbedder("a")
			svc := NewIngestionService(store, newTestEmbeddingService(e, 0, 1), IngestionOptions{}, logger.Nop())

			_, err := svc.Ingest(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, types.IsValidation(err))
			var ingErr *types.IngestionError
			require.ErrorAs(t, err, &ingErr)
			assert.Equal(t, tt.req.Filename, ingErr.Filename)

			docs, chunks := store.Counts()
			assert.Zero(t, docs)
			assert.Zero(t, chunks)
			assert.Zero(t, e.calls())
		})
	}
}

func TestIngest_EmbeddingFailureLeavesNothing(t *testing.T) {
	store := database.NewMemoryStore()
	e := newTopicEmbedder("a")
	e.fail = errors.New("provider unavailable")
	svc := NewIngestionService(store, newTestEmbeddingService(e, 0, 1), IngestionOptions{}, logger.Nop())

	_, err := svc.Ingest(context.Background(), types.IngestRequest{
		UserID: "u1", Filename: "a.txt", Content: "some text", FileType: types.FileTypeText,
	})
	var embErr *types.EmbeddingError
	require.ErrorAs(t, err, &embErr)

	docs, chunks := store.Counts()
	assert.Zero(t, docs)
	assert.Zero(t, chunks)
}

func TestIngest_SecondBatchFailureRollsBackFirst(t *testing.T) {
	store := &flakyStore{MemoryStore: database.NewMemoryStore(), failOnBatch: 2}
	svc := NewIngestionService(store, newTestEmbeddingService(newTopicEmbedder("a"), 0, 1),
		IngestionOptions{ChunkSize: 100, ChunkOverlap: 0, InsertBatchSize: 2}, logger.Nop())

	paras := make([]string, 6)
	for i := range paras {
		paras[i] = strings.Repeat(string(rune('a'+i)), 90)
	}
	_, err := svc.Ingest(context.Background(), types.IngestRequest{
		UserID: "u1", Filename: "six.md", Content: strings.Join(paras, "\n\n"), FileType: types.FileTypeMarkdown,
	})
	var storeErr *types.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, 2, store.batchCalls)

	docs, chunks := store.Counts()
	assert.Zero(t, docs)
	assert.Zero(t, chunks)
}

func TestIngest_RollbackSurvivesCancelledContext(t *testing.T) {
	store := database.NewMemoryStore()
	svc := NewIngestionService(store, newTestEmbeddingService(newTopicEmbedder("a"), 0, 1), IngestionOptions{}, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Ingest(ctx, types.IngestRequest{
		UserID: "u1", Filename: "a.txt", Content: "text", FileType: types.FileTypeText,
	})
	require.ErrorIs(t, err, context.Canceled)

	docs, _ := store.Counts()
	assert.Zero(t, docs)
}
