package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tieubaoca/rag-be/types"
	"github.com/weaviate/weaviate/entities/models"
)

type fakeDocumentRepo struct {
	docs map[string]types.Document
}

func (r *fakeDocumentRepo) CreateDocument(_ context.Context, doc *types.Document) error {
	r.docs[doc.ID] = *doc
	return nil
}

func (r *fakeDocumentRepo) GetDocument(_ context.Context, id, userID string) (*types.Document, error) {
	d, ok := r.docs[id]
	if !ok || d.UserID != userID {
		return nil, types.ErrNotFound
	}
	return &d, nil
}

func (r *fakeDocumentRepo) ListDocuments(context.Context, string) ([]types.Document, error) {
	return nil, nil
}

func (r *fakeDocumentRepo) DeleteDocument(_ context.Context, id, userID string) (bool, error) {
	d, ok := r.docs[id]
	if !ok || (userID != "" && d.UserID != userID) {
		return false, nil
	}
	delete(r.docs, id)
	return true, nil
}

type fakeConversationRepo struct {
	unpinned []string
}

func (r *fakeConversationRepo) CreateConversation(context.Context, *types.Conversation) error {
	return nil
}

func (r *fakeConversationRepo) GetConversation(context.Context, string, string) (*types.Conversation, error) {
	return nil, types.ErrNotFound
}

func (r *fakeConversationRepo) ListConversations(context.Context, string) ([]types.Conversation, error) {
	return nil, nil
}

func (r *fakeConversationRepo) Touch(context.Context, string, time.Time) error { return nil }

func (r *fakeConversationRepo) UnpinDocument(_ context.Context, documentID string) error {
	r.unpinned = append(r.unpinned, documentID)
	return nil
}

type fakeChunkIndex struct {
	inserted  []types.Chunk
	filename  string
	deleted   []string
	hits      []ChunkHit
	insertErr error
}

func (f *fakeChunkIndex) InsertChunks(_ context.Context, chunks []types.Chunk, filename string) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, chunks...)
	f.filename = filename
	return nil
}

func (f *fakeChunkIndex) DeleteByDocument(_ context.Context, documentID string) error {
	f.deleted = append(f.deleted, documentID)
	return nil
}

func (f *fakeChunkIndex) Search(context.Context, types.VectorQuery) ([]ChunkHit, error) {
	return f.hits, nil
}

func newTestMongoStore() (*MongoStore, *fakeDocumentRepo, *fakeConversationRepo, *fakeChunkIndex) {
	docs := &fakeDocumentRepo{docs: map[string]types.Document{}}
	convs := &fakeConversationRepo{}
	idx := &fakeChunkIndex{}
	return &MongoStore{documents: docs, conversations: convs, chunks: idx}, docs, convs, idx
}

func TestMongoStore_InsertChunksUsesDocumentFilename(t *testing.T) {
	s, _, _, idx := newTestMongoStore()
	ctx := context.Background()
	id, err := s.InsertDocument(ctx, &types.Document{UserID: "u1", Filename: "report.pdf"})
	require.NoError(t, err)

	err = s.InsertChunksBatch(ctx, []types.Chunk{{DocumentID: id, UserID: "u1", Embedding: []float32{1}}})
	require.NoError(t, err)
	require.Len(t, idx.inserted, 1)
	assert.NotEmpty(t, idx.inserted[0].ID)
	assert.Equal(t, "report.pdf", idx.filename)
}

func TestMongoStore_InsertChunksWrapsIndexFailure(t *testing.T) {
	s, _, _, idx := newTestMongoStore()
	ctx := context.Background()
	id, err := s.InsertDocument(ctx, &types.Document{UserID: "u1", Filename: "a.txt"})
	require.NoError(t, err)
	idx.insertErr = errors.New("weaviate down")

	err = s.InsertChunksBatch(ctx, []types.Chunk{{DocumentID: id, UserID: "u1"}})
	var storeErr *types.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "insert chunks", storeErr.Op)
}

func TestMongoStore_SearchDropsOrphanedChunks(t *testing.T) {
	s, _, _, idx := newTestMongoStore()
	ctx := context.Background()
	id, err := s.InsertDocument(ctx, &types.Document{UserID: "u1", Filename: "a.txt", Metadata: map[string]any{"k": "v"}})
	require.NoError(t, err)
	idx.hits = []ChunkHit{
		{ChunkID: "c1", DocumentID: id, Filename: "a.txt", Similarity: 0.9},
		{ChunkID: "c2", DocumentID: "gone", Filename: "b.txt", Similarity: 0.8},
	}

	results, err := s.SimilaritySearch(ctx, types.VectorQuery{UserID: "u1", MatchCount: 5})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].ChunkID)
	assert.Equal(t, "v", results[0].DocumentMetadata["k"])
}

func TestMongoStore_SearchHonoursDocumentFilter(t *testing.T) {
	s, _, _, idx := newTestMongoStore()
	ctx := context.Background()
	doc1, err := s.InsertDocument(ctx, &types.Document{UserID: "u1", Filename: "a.txt"})
	require.NoError(t, err)
	doc2, err := s.InsertDocument(ctx, &types.Document{UserID: "u1", Filename: "b.txt"})
	require.NoError(t, err)
	foreign, err := s.InsertDocument(ctx, &types.Document{UserID: "u2", Filename: "c.txt"})
	require.NoError(t, err)
	idx.hits = []ChunkHit{
		{ChunkID: "c1", DocumentID: doc2, Filename: "b.txt", Similarity: 0.95},
		{ChunkID: "c2", DocumentID: foreign, Filename: "c.txt", Similarity: 0.9},
		{ChunkID: "c3", DocumentID: doc1, Filename: "a.txt", Similarity: 0.8},
	}

	results, err := s.SimilaritySearch(ctx, types.VectorQuery{UserID: "u1", DocumentIDs: []string{doc1}, MatchCount: 5})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c3", results[0].ChunkID)

	results, err = s.SimilaritySearch(ctx, types.VectorQuery{UserID: "u1", MatchCount: 5})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "c1", results[0].ChunkID)
	assert.Equal(t, "c3", results[1].ChunkID)
}

func TestChunkClassMatchesIdsWhole(t *testing.T) {
	class := chunkClass(DefaultChunkClass)
	tokenization := map[string]string{}
	for _, p := range class.Properties {
		tokenization[p.Name] = p.Tokenization
	}
	assert.Equal(t, models.PropertyTokenizationField, tokenization["documentId"])
	assert.Equal(t, models.PropertyTokenizationField, tokenization["userId"])
}

func TestMongoStore_DeleteDocumentCascade(t *testing.T) {
	s, _, convs, idx := newTestMongoStore()
	ctx := context.Background()
	id, err := s.InsertDocument(ctx, &types.Document{UserID: "u1", Filename: "a.txt"})
	require.NoError(t, err)

	deleted, err := s.DeleteDocumentCascade(ctx, id, "intruder")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Empty(t, idx.deleted)

	deleted, err = s.DeleteDocumentCascade(ctx, id, "u1")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, []string{id}, idx.deleted)
	assert.Equal(t, []string{id}, convs.unpinned)
}

func TestBatchErrorsAndScalars(t *testing.T) {
	assert.Equal(t, 3, asInt(float64(3)))
	assert.Equal(t, 0, asInt("x"))
	assert.Equal(t, "", asString(nil))
	assert.NoError(t, batchErrors(nil))
}
