package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tieubaoca/rag-be/repository"
	"github.com/tieubaoca/rag-be/types"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// ChunkIndex is the vector side of MongoStore.
type ChunkIndex interface {
	InsertChunks(ctx context.Context, chunks []types.Chunk, filename string) error
	DeleteByDocument(ctx context.Context, documentID string) error
	Search(ctx context.Context, q types.VectorQuery) ([]ChunkHit, error)
}

// MongoStore keeps documents, conversations and messages in MongoDB and
// chunk vectors in a ChunkIndex. Deletes across the two are not atomic.
type MongoStore struct {
	documents     repository.DocumentRepo
	conversations repository.ConversationRepo
	messages      repository.MessageRepo
	chunks        ChunkIndex
}

func NewMongoStore(ctx context.Context, db *mongo.Database, chunks ChunkIndex) (*MongoStore, error) {
	documents, err := repository.NewDocumentRepo(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("init document repo: %w", err)
	}
	conversations, err := repository.NewConversationRepo(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("init conversation repo: %w", err)
	}
	messages, err := repository.NewMessageRepo(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("init message repo: %w", err)
	}
	return &MongoStore{
		documents:     documents,
		conversations: conversations,
		messages:      messages,
		chunks:        chunks,
	}, nil
}

func (s *MongoStore) InsertDocument(ctx context.Context, doc *types.Document) (string, error) {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]any{}
	}
	if err := s.documents.CreateDocument(ctx, doc); err != nil {
		return "", types.NewStoreError("insert document", err)
	}
	return doc.ID, nil
}

func (s *MongoStore) DeleteDocument(ctx context.Context, id string) error {
	if err := s.chunks.DeleteByDocument(ctx, id); err != nil {
		return types.NewStoreError("delete chunks", err)
	}
	if _, err := s.documents.DeleteDocument(ctx, id, ""); err != nil {
		return types.NewStoreError("delete document", err)
	}
	return nil
}

func (s *MongoStore) InsertChunksBatch(ctx context.Context, chunks []types.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	doc, err := s.documents.GetDocument(ctx, chunks[0].DocumentID, chunks[0].UserID)
	if err != nil {
		return types.NewStoreError("insert chunks", err)
	}
	now := time.Now()
	for i := range chunks {
		if chunks[i].ID == "" {
			chunks[i].ID = uuid.New().String()
		}
		if chunks[i].CreatedAt.IsZero() {
			chunks[i].CreatedAt = now
		}
	}
	if err := s.chunks.InsertChunks(ctx, chunks, doc.Filename); err != nil {
		return types.NewStoreError("insert chunks", err)
	}
	return nil
}

func (s *MongoStore) DeleteChunksForDocument(ctx context.Context, documentID string) error {
	if err := s.chunks.DeleteByDocument(ctx, documentID); err != nil {
		return types.NewStoreError("delete chunks", err)
	}
	return nil
}

func (s *MongoStore) SimilaritySearch(ctx context.Context, q types.VectorQuery) ([]types.SearchResult, error) {
	hits, err := s.chunks.Search(ctx, q)
	if err != nil {
		return nil, types.NewStoreError("similarity search", err)
	}

	var allowed map[string]bool
	if len(q.DocumentIDs) > 0 {
		allowed = make(map[string]bool, len(q.DocumentIDs))
		for _, id := range q.DocumentIDs {
			allowed[id] = true
		}
	}

	docMeta := make(map[string]map[string]any)
	missing := make(map[string]bool)
	results := make([]types.SearchResult, 0, len(hits))
	for _, h := range hits {
		if missing[h.DocumentID] || (allowed != nil && !allowed[h.DocumentID]) {
			continue
		}
		meta, ok := docMeta[h.DocumentID]
		if !ok {
			doc, err := s.documents.GetDocument(ctx, h.DocumentID, q.UserID)
			if errors.Is(err, types.ErrNotFound) {
				// Chunk outlived its document.
				missing[h.DocumentID] = true
				continue
			}
			if err != nil {
				return nil, types.NewStoreError("similarity search", err)
			}
			meta = doc.Metadata
			docMeta[h.DocumentID] = meta
		}
		results = append(results, types.SearchResult{
			ChunkID:          h.ChunkID,
			DocumentID:       h.DocumentID,
			Filename:         h.Filename,
			Content:          h.Content,
			ChunkIndex:       h.ChunkIndex,
			Similarity:       h.Similarity,
			DocumentMetadata: meta,
			ChunkMetadata:    h.Metadata,
		})
	}
	return results, nil
}

func (s *MongoStore) InsertConversation(ctx context.Context, conv *types.Conversation) (string, error) {
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now()
	}
	conv.UpdatedAt = conv.CreatedAt
	if conv.DocumentIDs == nil {
		conv.DocumentIDs = []string{}
	}
	if err := s.conversations.CreateConversation(ctx, conv); err != nil {
		return "", types.NewStoreError("insert conversation", err)
	}
	return conv.ID, nil
}

func (s *MongoStore) GetConversation(ctx context.Context, id, userID string) (*types.Conversation, error) {
	conv, err := s.conversations.GetConversation(ctx, id, userID)
	if errors.Is(err, types.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, types.NewStoreError("get conversation", err)
	}
	return conv, nil
}

func (s *MongoStore) InsertMessage(ctx context.Context, msg *types.Message) (string, error) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if err := s.messages.CreateMessage(ctx, msg); err != nil {
		return "", types.NewStoreError("insert message", err)
	}
	return msg.ID, nil
}

func (s *MongoStore) UpdateConversationTimestamp(ctx context.Context, id string) error {
	err := s.conversations.Touch(ctx, id, time.Now())
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return types.NewStoreError("touch conversation", err)
	}
	return err
}

func (s *MongoStore) ListDocuments(ctx context.Context, userID string) ([]types.Document, error) {
	docs, err := s.documents.ListDocuments(ctx, userID)
	if err != nil {
		return nil, types.NewStoreError("list documents", err)
	}
	return docs, nil
}

func (s *MongoStore) ListConversations(ctx context.Context, userID string) ([]types.Conversation, error) {
	convs, err := s.conversations.ListConversations(ctx, userID)
	if err != nil {
		return nil, types.NewStoreError("list conversations", err)
	}
	return convs, nil
}

func (s *MongoStore) ListMessages(ctx context.Context, conversationID, userID string) ([]types.Message, error) {
	msgs, err := s.messages.ListMessages(ctx, conversationID, userID)
	if err != nil {
		return nil, types.NewStoreError("list messages", err)
	}
	return msgs, nil
}

// DeleteDocumentCascade removes the document record first, then its chunk
// vectors, then unpins it from conversations.
func (s *MongoStore) DeleteDocumentCascade(ctx context.Context, documentID, userID string) (bool, error) {
	deleted, err := s.documents.DeleteDocument(ctx, documentID, userID)
	if err != nil {
		return false, types.NewStoreError("delete document", err)
	}
	if !deleted {
		return false, nil
	}
	if err := s.chunks.DeleteByDocument(ctx, documentID); err != nil {
		return true, types.NewStoreError("delete chunks", err)
	}
	if err := s.conversations.UnpinDocument(ctx, documentID); err != nil {
		return true, types.NewStoreError("unpin document", err)
	}
	return true, nil
}
