package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tieubaoca/rag-be/database"
	"github.com/tieubaoca/rag-be/logger"
	"github.com/tieubaoca/rag-be/metrics"
	"github.com/tieubaoca/rag-be/types"
)

const (
	titleMaxRunes        = 100
	snippetMaxRunes      = 200
	responseSnippetRunes = 300
	contextSeparator     = "\n\n---\n\n"
)

// RAGService answers questions from a user's documents and records the
// exchange in a conversation.
type RAGService struct {
	store     database.DocumentStore
	retriever *RetrievalService
	ai        AIService
	threshold float64
	log       *logger.Logger
}

func NewRAGService(store database.DocumentStore, retriever *RetrievalService, ai AIService, log *logger.Logger) *RAGService {
	if log == nil {
		log = logger.Nop()
	}
	return &RAGService{store: store, retriever: retriever, ai: ai, threshold: DefaultSimilarityThreshold, log: log}
}

// WithSimilarityThreshold sets the minimum similarity of retrieved context.
func (s *RAGService) WithSimilarityThreshold(threshold float64) *RAGService {
	if threshold > 0 {
		s.threshold = threshold
	}
	return s
}

func (s *RAGService) Query(ctx context.Context, req types.QueryRequest) (*types.QueryResult, error) {
	result, err := s.query(ctx, req)
	if err != nil {
		metrics.RecordQuery("error")
		return nil, err
	}
	if len(result.Sources) == 0 {
		metrics.RecordQuery("no_context")
	} else {
		metrics.RecordQuery("success")
	}
	return result, nil
}

func (s *RAGService) query(ctx context.Context, req types.QueryRequest) (*types.QueryResult, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, types.NewValidationError("question", "must not be empty")
	}
	if strings.TrimSpace(req.UserID) == "" {
		return nil, types.NewValidationError("user_id", "must not be empty")
	}

	var conv *types.Conversation
	if req.ConversationID != "" {
		var err error
		conv, err = s.store.GetConversation(ctx, req.ConversationID, req.UserID)
		if err != nil {
			if errors.Is(err, types.ErrNotFound) {
				return nil, fmt.Errorf("conversation %s: %w", req.ConversationID, types.ErrNotFound)
			}
			return nil, err
		}
	}

	documentIDs := req.DocumentIDs
	if len(documentIDs) == 0 && conv != nil {
		documentIDs = conv.DocumentIDs
	}

	results, err := s.retriever.Search(ctx, types.SearchParams{
		Query:               req.Question,
		UserID:              req.UserID,
		DocumentIDs:         documentIDs,
		MatchCount:          req.MatchCount,
		SimilarityThreshold: s.threshold,
	})
	if err != nil {
		return nil, err
	}

	var prompt string
	if len(results) == 0 {
		prompt = NoContextPrompt(req.Question)
	} else {
		prompt = GroundedPrompt(req.Question, BuildContext(results))
	}

	start := time.Now()
	answer, err := s.ai.Complete(ctx, prompt)
	metrics.RecordGeneration(time.Since(start).Seconds())
	if err != nil {
		s.log.Error("Answer generation failed", "user_id", req.UserID, "error", err)
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	if conv == nil {
		conv = &types.Conversation{
			UserID:      req.UserID,
			Title:       truncateRunes(req.Question, titleMaxRunes),
			DocumentIDs: req.DocumentIDs,
		}
		if conv.DocumentIDs == nil {
			conv.DocumentIDs = []string{}
		}
		if _, err := s.store.InsertConversation(ctx, conv); err != nil {
			return nil, err
		}
	}

	// Stores keep millisecond timestamps; the reply must sort after the question.
	askedAt := time.Now().UTC().Truncate(time.Millisecond)
	if _, err := s.store.InsertMessage(ctx, &types.Message{
		ConversationID: conv.ID,
		UserID:         req.UserID,
		Role:           types.RoleUser,
		Content:        req.Question,
		TokenCount:     EstimateTokenCount(req.Question),
		CreatedAt:      askedAt,
	}); err != nil {
		return nil, err
	}

	assistant := &types.Message{
		ConversationID: conv.ID,
		UserID:         req.UserID,
		Role:           types.RoleAssistant,
		Content:        answer,
		Sources:        messageSources(results),
		TokenCount:     EstimateTokenCount(answer),
		CreatedAt:      askedAt.Add(time.Millisecond),
	}
	messageID, err := s.store.InsertMessage(ctx, assistant)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateConversationTimestamp(ctx, conv.ID); err != nil {
		return nil, err
	}

	s.log.Info("Answered query", "user_id", req.UserID, "conversation_id", conv.ID, "sources", len(results))
	return &types.QueryResult{
		Answer:         answer,
		Sources:        results,
		ConversationID: conv.ID,
		MessageID:      messageID,
	}, nil
}

func (s *RAGService) ListDocuments(ctx context.Context, userID string) ([]types.Document, error) {
	return s.store.ListDocuments(ctx, userID)
}

func (s *RAGService) DeleteDocument(ctx context.Context, documentID, userID string) (bool, error) {
	deleted, err := s.store.DeleteDocumentCascade(ctx, documentID, userID)
	if err != nil {
		s.log.Error("Failed to delete document", "document_id", documentID, "error", err)
		return false, err
	}
	if deleted {
		s.log.Info("Deleted document", "document_id", documentID, "user_id", userID)
	}
	return deleted, nil
}

func (s *RAGService) ListConversations(ctx context.Context, userID string) ([]types.Conversation, error) {
	return s.store.ListConversations(ctx, userID)
}

func (s *RAGService) ListMessages(ctx context.Context, conversationID, userID string) ([]types.Message, error) {
	return s.store.ListMessages(ctx, conversationID, userID)
}

// BuildContext renders ranked results as numbered source sections.
func BuildContext(results []types.SearchResult) string {
	sections := make([]string, len(results))
	for i, r := range results {
		sections[i] = fmt.Sprintf("[Source %d: %s (chunk %d, relevance: %.1f%%)]\n%s",
			i+1, r.Filename, r.ChunkIndex+1, r.Similarity*100, r.Content)
	}
	return strings.Join(sections, contextSeparator)
}

func NoContextPrompt(question string) string {
	return "The user asked a question but no relevant documents were found in their uploaded documents.\n\n" +
		"Question: " + question + "\n\n" +
		"Please respond by letting the user know that you couldn't find relevant information in their uploaded documents to answer this question. " +
		"Suggest they upload relevant documents first, or rephrase their question."
}

func GroundedPrompt(question, contextBlock string) string {
	var b strings.Builder
	b.WriteString("You are a helpful document analysis assistant. Answer the user's question based ONLY on the provided document context below. ")
	b.WriteString("If the context doesn't contain enough information to fully answer the question, say so clearly.\n\n")
	b.WriteString("When citing information, reference the source document by name.\n\n")
	b.WriteString("## Retrieved Document Context\n\n")
	b.WriteString(contextBlock)
	b.WriteString("\n\n## User Question\n\n")
	b.WriteString(question)
	b.WriteString("\n\n## Instructions\n")
	b.WriteString("- Answer based ONLY on the information found in the document context above\n")
	b.WriteString("- If multiple documents are relevant, synthesize information across them\n")
	b.WriteString("- Cite which document(s) your answer comes from using [Source N] references\n")
	b.WriteString("- If the context doesn't contain the answer, clearly state that\n")
	b.WriteString("- Be concise but thorough\n")
	b.WriteString("- Use markdown formatting for readability")
	return b.String()
}

// ToQueryResponse shapes a query result for API callers.
func ToQueryResponse(res *types.QueryResult) types.QueryResponse {
	sources := make([]types.QuerySource, len(res.Sources))
	for i, r := range res.Sources {
		sources[i] = types.QuerySource{
			DocumentID: r.DocumentID,
			Filename:   r.Filename,
			ChunkIndex: r.ChunkIndex,
			Similarity: r.Similarity,
			Snippet:    truncateRunes(r.Content, responseSnippetRunes),
		}
	}
	return types.QueryResponse{
		Answer:         res.Answer,
		Sources:        sources,
		ConversationID: res.ConversationID,
		MessageID:      res.MessageID,
	}
}

func messageSources(results []types.SearchResult) []types.Source {
	sources := make([]types.Source, len(results))
	for i, r := range results {
		sources[i] = types.Source{
			DocumentID: r.DocumentID,
			ChunkID:    r.ChunkID,
			Filename:   r.Filename,
			Snippet:    truncateRunes(r.Content, snippetMaxRunes),
			Similarity: r.Similarity,
		}
	}
	return sources
}

// truncateRunes returns at most n runes of s.
func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
