package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tieubaoca/rag-be/database"
	"github.com/tieubaoca/rag-be/logger"
	"github.com/tieubaoca/rag-be/types"
)

type ragFixture struct {
	store  *database.MemoryStore
	ingest *IngestionService
	search *RetrievalService
	ai     *fakeAI
	rag    *RAGService
}

func newRAGFixture() *ragFixture {
	store := database.NewMemoryStore()
	emb := newTestEmbeddingService(newTopicEmbedder("revenue", "vacation", "security"), 0, 2)
	ai := &fakeAI{answer: "generated answer"}
	search := NewRetrievalService(store, emb, logger.Nop())
	return &ragFixture{
		store:  store,
		ingest: NewIngestionService(store, emb, IngestionOptions{}, logger.Nop()),
		search: search,
		ai:     ai,
		rag:    NewRAGService(store, search, ai, logger.Nop()),
	}
}

func (f *ragFixture) mustIngest(t *testing.T, userID, filename, content string) string {
	t.Helper()
	res, err := f.ingest.Ingest(context.Background(), types.IngestRequest{
		UserID: userID, Filename: filename, Content: content, FileType: types.FileTypeText,
	})
	require.NoError(t, err)
	return res.DocumentID
}

func TestSearch_Validation(t *testing.T) {
	f := newRAGFixture()
	_, err := f.search.Search(context.Background(), types.SearchParams{Query: " ", UserID: "u1"})
	assert.True(t, types.IsValidation(err))
	_, err = f.search.Search(context.Background(), types.SearchParams{Query: "revenue"})
	assert.True(t, types.IsValidation(err))
}

func TestSearch_ScopedToUser(t *testing.T) {
	f := newRAGFixture()
	f.mustIngest(t, "alice", "a.txt", "revenue grew")
	f.mustIngest(t, "bob", "b.txt", "revenue fell")

	results, err := f.search.Search(context.Background(), types.SearchParams{Query: "revenue", UserID: "alice", SimilarityThreshold: -1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a.txt", results[0].Filename)
}

func TestQuery_UnrelatedQuestionUsesNoContextPrompt(t *testing.T) {
	f := newRAGFixture()
	f.mustIngest(t, "u1", "policy.txt", "vacation days accrue monthly")

	res, err := f.rag.Query(context.Background(), types.QueryRequest{Question: "unrelated question", UserID: "u1"})
	require.NoError(t, err)
	assert.Empty(t, res.Sources)
	assert.Equal(t, "generated answer", res.Answer)
	require.Len(t, f.ai.prompts, 1)
	assert.Equal(t, NoContextPrompt("unrelated question"), f.ai.prompts[0])
	assert.NotContains(t, f.ai.prompts[0], "[Source")
}

func TestQuery_DocumentFilterWinsOverSimilarity(t *testing.T) {
	f := newRAGFixture()
	doc1 := f.mustIngest(t, "u1", "one.txt", "revenue summary with vacation and vacation notes")
	f.mustIngest(t, "u1", "two.txt", "revenue revenue revenue")

	res, err := f.rag.Query(context.Background(), types.QueryRequest{
		Question: "revenue", UserID: "u1", DocumentIDs: []string{doc1},
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Sources)
	for _, s := range res.Sources {
		assert.Equal(t, doc1, s.DocumentID)
	}
	assert.Contains(t, f.ai.prompts[0], "[Source 1: one.txt (chunk 1, relevance: ")
}

func TestQuery_PersistsConversationAndMessages(t *testing.T) {
	f := newRAGFixture()
	docID := f.mustIngest(t, "u1", "sec.txt", "security review "+strings.Repeat("x", 300))
	question := strings.Repeat("é", 150) + " security"
	ctx := context.Background()

	res, err := f.rag.Query(ctx, types.QueryRequest{Question: question, UserID: "u1", DocumentIDs: []string{docID}})
	require.NoError(t, err)
	require.NotEmpty(t, res.ConversationID)
	require.NotEmpty(t, res.MessageID)

	conv, err := f.store.GetConversation(ctx, res.ConversationID, "u1")
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("é", 100), conv.Title)
	assert.Equal(t, []string{docID}, conv.DocumentIDs)

	msgs, err := f.store.ListMessages(ctx, res.ConversationID, "u1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, types.RoleUser, msgs[0].Role)
	assert.Equal(t, question, msgs[0].Content)
	assert.Equal(t, types.RoleAssistant, msgs[1].Role)
	assert.Equal(t, res.MessageID, msgs[1].ID)
	require.Len(t, msgs[1].Sources, 1)
	assert.Len(t, []rune(msgs[1].Sources[0].Snippet), 200)
	assert.True(t, msgs[1].CreatedAt.After(msgs[0].CreatedAt), "reply must sort after the question")
	assert.Equal(t, msgs[0].CreatedAt, msgs[0].CreatedAt.Truncate(time.Millisecond))

	resp := ToQueryResponse(res)
	assert.Equal(t, res.ConversationID, resp.ConversationID)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, docID, resp.Sources[0].DocumentID)
	assert.Len(t, []rune(resp.Sources[0].Snippet), 300)
}

func TestQuery_ReusesConversationPinSet(t *testing.T) {
	f := newRAGFixture()
	ctx := context.Background()
	pinned := f.mustIngest(t, "u1", "pinned.txt", "revenue and vacation and security")
	f.mustIngest(t, "u1", "other.txt", "revenue")

	first, err := f.rag.Query(ctx, types.QueryRequest{Question: "security", UserID: "u1", DocumentIDs: []string{pinned}})
	require.NoError(t, err)

	second, err := f.rag.Query(ctx, types.QueryRequest{Question: "revenue", UserID: "u1", ConversationID: first.ConversationID})
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, second.ConversationID)
	for _, s := range second.Sources {
		assert.Equal(t, pinned, s.DocumentID)
	}

	msgs, err := f.store.ListMessages(ctx, first.ConversationID, "u1")
	require.NoError(t, err)
	assert.Len(t, msgs, 4)
}

func TestQuery_ForeignConversationIsNotFound(t *testing.T) {
	f := newRAGFixture()
	ctx := context.Background()
	res, err := f.rag.Query(ctx, types.QueryRequest{Question: "hello", UserID: "u1"})
	require.NoError(t, err)

	_, err = f.rag.Query(ctx, types.QueryRequest{Question: "hello", UserID: "u2", ConversationID: res.ConversationID})
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.Len(t, f.ai.prompts, 1)
}

func TestQuery_GenerationFailureWritesNothing(t *testing.T) {
	f := newRAGFixture()
	f.ai.err = errors.New("model overloaded")

	_, err := f.rag.Query(context.Background(), types.QueryRequest{Question: "hello", UserID: "u1"})
	require.Error(t, err)

	convs, err := f.store.ListConversations(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestBuildContextAndPrompt(t *testing.T) {
	results := []types.SearchResult{
		{Filename: "a.pdf", ChunkIndex: 0, Similarity: 0.912, Content: "alpha"},
		{Filename: "b.md", ChunkIndex: 4, Similarity: 0.5, Content: "beta"},
	}
	ctxBlock := BuildContext(results)
	assert.Equal(t,
		"[Source 1: a.pdf (chunk 1, relevance: 91.2%)]\nalpha\n\n---\n\n[Source 2: b.md (chunk 5, relevance: 50.0%)]\nbeta",
		ctxBlock)

	prompt := GroundedPrompt("what?", ctxBlock)
	assert.True(t, strings.HasPrefix(prompt, "You are a helpful document analysis assistant."))
	assert.Contains(t, prompt, "## Retrieved Document Context\n\n"+ctxBlock+"\n\n## User Question\n\nwhat?\n\n## Instructions\n")
	assert.Contains(t, prompt, "[Source N] references")
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "héll", truncateRunes("héllo", 4))
	assert.Equal(t, "hi", truncateRunes("hi", 10))
	assert.Equal(t, "", truncateRunes("abc", 0))
}

type slowAI struct{}

func (slowAI) Complete(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestWithTimeout(t *testing.T) {
	ai := WithTimeout(slowAI{}, 10*time.Millisecond)
	_, err := ai.Complete(context.Background(), "p")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	same := &fakeAI{}
	assert.Same(t, same, WithTimeout(same, 0))
}
