package database

import (
	"context"
	"math"

	"github.com/tieubaoca/rag-be/types"
)

// DocumentStore persists documents, embedded chunks, conversations and
// messages, and ranks chunks by cosine similarity.
type DocumentStore interface {
	InsertDocument(ctx context.Context, doc *types.Document) (string, error)
	// DeleteDocument removes a document and its chunks.
	DeleteDocument(ctx context.Context, id string) error
	// InsertChunksBatch is atomic per call.
	InsertChunksBatch(ctx context.Context, chunks []types.Chunk) error
	DeleteChunksForDocument(ctx context.Context, documentID string) error
	// SimilaritySearch returns chunks owned by q.UserID (and in q.DocumentIDs
	// when non-empty) with similarity >= q.SimilarityThreshold, most similar
	// first, at most q.MatchCount of them.
	SimilaritySearch(ctx context.Context, q types.VectorQuery) ([]types.SearchResult, error)

	InsertConversation(ctx context.Context, conv *types.Conversation) (string, error)
	// GetConversation returns types.ErrNotFound when the conversation does
	// not exist or belongs to another user.
	GetConversation(ctx context.Context, id, userID string) (*types.Conversation, error)
	InsertMessage(ctx context.Context, msg *types.Message) (string, error)
	UpdateConversationTimestamp(ctx context.Context, id string) error

	// ListDocuments is newest first and leaves Content empty.
	ListDocuments(ctx context.Context, userID string) ([]types.Document, error)
	// ListConversations is most recently updated first.
	ListConversations(ctx context.Context, userID string) ([]types.Conversation, error)
	// ListMessages is oldest first.
	ListMessages(ctx context.Context, conversationID, userID string) ([]types.Message, error)
	// DeleteDocumentCascade removes the document, its chunks and its id from
	// conversation pin lists. It reports false when no document owned by
	// userID matched.
	DeleteDocumentCascade(ctx context.Context, documentID, userID string) (bool, error)
}

// CosineSimilarity returns 0 for mismatched or zero vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
