package database

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tieubaoca/rag-be/types"
)

// MemoryStore keeps everything in process and searches by brute force.
type MemoryStore struct {
	mu            sync.RWMutex
	documents     map[string]types.Document
	chunks        map[string]types.Chunk
	conversations map[string]types.Conversation
	messages      []types.Message
	now           func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents:     make(map[string]types.Document),
		chunks:        make(map[string]types.Chunk),
		conversations: make(map[string]types.Conversation),
		now:           time.Now,
	}
}

func (s *MemoryStore) InsertDocument(_ context.Context, doc *types.Document) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if _, exists := s.documents[doc.ID]; exists {
		return "", fmt.Errorf("document %s already exists", doc.ID)
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = s.now()
	}
	s.documents[doc.ID] = *doc
	return doc.ID, nil
}

func (s *MemoryStore) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.documents, id)
	s.deleteChunksLocked(id)
	return nil
}

func (s *MemoryStore) InsertChunksBatch(_ context.Context, chunks []types.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range chunks {
		if _, ok := s.documents[c.DocumentID]; !ok {
			return fmt.Errorf("chunk %d references unknown document %s", c.ChunkIndex, c.DocumentID)
		}
		if len(c.Embedding) == 0 {
			return fmt.Errorf("chunk %d has no embedding", c.ChunkIndex)
		}
	}
	for _, c := range chunks {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = s.now()
		}
		c.Embedding = slices.Clone(c.Embedding)
		s.chunks[c.ID] = c
	}
	return nil
}

func (s *MemoryStore) DeleteChunksForDocument(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteChunksLocked(documentID)
	return nil
}

func (s *MemoryStore) deleteChunksLocked(documentID string) {
	for id, c := range s.chunks {
		if c.DocumentID == documentID {
			delete(s.chunks, id)
		}
	}
}

func (s *MemoryStore) SimilaritySearch(_ context.Context, q types.VectorQuery) ([]types.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []types.SearchResult
	for _, c := range s.chunks {
		if c.UserID != q.UserID {
			continue
		}
		if len(q.DocumentIDs) > 0 && !slices.Contains(q.DocumentIDs, c.DocumentID) {
			continue
		}
		sim := CosineSimilarity(q.Embedding, c.Embedding)
		if sim < q.SimilarityThreshold {
			continue
		}
		doc := s.documents[c.DocumentID]
		results = append(results, types.SearchResult{
			ChunkID:          c.ID,
			DocumentID:       c.DocumentID,
			Filename:         doc.Filename,
			Content:          c.Content,
			ChunkIndex:       c.ChunkIndex,
			Similarity:       sim,
			DocumentMetadata: doc.Metadata,
			ChunkMetadata:    c.Metadata,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	if q.MatchCount > 0 && len(results) > q.MatchCount {
		results = results[:q.MatchCount]
	}
	return results, nil
}

func (s *MemoryStore) InsertConversation(_ context.Context, conv *types.Conversation) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	now := s.now()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = conv.CreatedAt
	if conv.DocumentIDs == nil {
		conv.DocumentIDs = []string{}
	}
	stored := *conv
	stored.DocumentIDs = slices.Clone(conv.DocumentIDs)
	s.conversations[conv.ID] = stored
	return conv.ID, nil
}

func (s *MemoryStore) GetConversation(_ context.Context, id, userID string) (*types.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok || conv.UserID != userID {
		return nil, types.ErrNotFound
	}
	conv.DocumentIDs = slices.Clone(conv.DocumentIDs)
	return &conv, nil
}

func (s *MemoryStore) InsertMessage(_ context.Context, msg *types.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[msg.ConversationID]; !ok {
		return "", fmt.Errorf("conversation %s: %w", msg.ConversationID, types.ErrNotFound)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	stored := *msg
	stored.Sources = slices.Clone(msg.Sources)
	s.messages = append(s.messages, stored)
	return msg.ID, nil
}

func (s *MemoryStore) UpdateConversationTimestamp(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return types.ErrNotFound
	}
	conv.UpdatedAt = s.now()
	s.conversations[id] = conv
	return nil
}

func (s *MemoryStore) ListDocuments(_ context.Context, userID string) ([]types.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]types.Document, 0)
	for _, d := range s.documents {
		if d.UserID == userID {
			d.Content = ""
			docs = append(docs, d)
		}
	}
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].CreatedAt.After(docs[j].CreatedAt) })
	return docs, nil
}

func (s *MemoryStore) ListConversations(_ context.Context, userID string) ([]types.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	convs := make([]types.Conversation, 0)
	for _, c := range s.conversations {
		if c.UserID == userID {
			c.DocumentIDs = slices.Clone(c.DocumentIDs)
			convs = append(convs, c)
		}
	}
	sort.SliceStable(convs, func(i, j int) bool { return convs[i].UpdatedAt.After(convs[j].UpdatedAt) })
	return convs, nil
}

func (s *MemoryStore) ListMessages(_ context.Context, conversationID, userID string) ([]types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := make([]types.Message, 0)
	for _, m := range s.messages {
		if m.ConversationID == conversationID && m.UserID == userID {
			msgs = append(msgs, m)
		}
	}
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })
	return msgs, nil
}

func (s *MemoryStore) DeleteDocumentCascade(_ context.Context, documentID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[documentID]
	if !ok || doc.UserID != userID {
		return false, nil
	}
	delete(s.documents, documentID)
	s.deleteChunksLocked(documentID)
	for id, c := range s.conversations {
		if i := slices.Index(c.DocumentIDs, documentID); i >= 0 {
			c.DocumentIDs = slices.Delete(slices.Clone(c.DocumentIDs), i, i+1)
			s.conversations[id] = c
		}
	}
	return true, nil
}

// ChunksForDocument returns the stored chunks of a document ordered by index.
func (s *MemoryStore) ChunksForDocument(documentID string) []types.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.Chunk
	for _, c := range s.chunks {
		if c.DocumentID == documentID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out
}

// Counts reports how many documents and chunks are stored.
func (s *MemoryStore) Counts() (documents, chunks int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.documents), len(s.chunks)
}
