package types

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation is a thread of RAG questions, optionally pinned to a set of documents.
type Conversation struct {
	ID          string    `json:"id" bson:"_id"`
	UserID      string    `json:"user_id" bson:"user_id"`
	Title       string    `json:"title" bson:"title"`
	DocumentIDs []string  `json:"document_ids" bson:"document_ids"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updated_at"`
}

// Source is a citation attached to an assistant message.
type Source struct {
	DocumentID string  `json:"document_id" bson:"document_id"`
	ChunkID    string  `json:"chunk_id" bson:"chunk_id"`
	Filename   string  `json:"filename" bson:"filename"`
	Snippet    string  `json:"snippet" bson:"snippet"`
	Similarity float64 `json:"similarity" bson:"similarity"`
}

type Message struct {
	ID             string    `json:"id" bson:"_id"`
	ConversationID string    `json:"conversation_id" bson:"conversation_id"`
	UserID         string    `json:"user_id" bson:"user_id"`
	Role           string    `json:"role" bson:"role"`
	Content        string    `json:"content" bson:"content"`
	Sources        []Source  `json:"sources,omitempty" bson:"sources,omitempty"`
	TokenCount     int       `json:"token_count" bson:"token_count"`
	CreatedAt      time.Time `json:"created_at" bson:"created_at"`
}

type QueryRequest struct {
	Question       string
	UserID         string
	ConversationID string
	DocumentIDs    []string
	MatchCount     int
}

type QueryResult struct {
	Answer         string         `json:"answer"`
	Sources        []SearchResult `json:"sources"`
	ConversationID string         `json:"conversation_id"`
	MessageID      string         `json:"message_id"`
}
