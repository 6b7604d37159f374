package types

import "time"

type DataResponse struct {
	Status  bool        `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type IngestResponse struct {
	Documents     []FileIngestResult `json:"documents"`
	TotalIngested int                `json:"total_ingested"`
}

type SearchHit struct {
	DocumentID string        `json:"document_id"`
	Filename   string        `json:"filename"`
	ChunkIndex int           `json:"chunk_index"`
	Content    string        `json:"content"`
	Similarity float64       `json:"similarity"`
	Metadata   ChunkMetadata `json:"metadata"`
}

type SearchResponse struct {
	Results []SearchHit `json:"results"`
	Total   int         `json:"total"`
}

type QuerySource struct {
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	ChunkIndex int     `json:"chunk_index"`
	Similarity float64 `json:"similarity"`
	Snippet    string  `json:"snippet"`
}

type QueryResponse struct {
	Answer         string        `json:"answer"`
	Sources        []QuerySource `json:"sources"`
	ConversationID string        `json:"conversation_id"`
	MessageID      string        `json:"message_id"`
}

// DocumentSummary is a library entry; the raw content is left out.
type DocumentSummary struct {
	ID        string         `json:"id"`
	Filename  string         `json:"filename"`
	FileType  string         `json:"file_type"`
	FileSize  *int64         `json:"file_size"`
	PageCount *int           `json:"page_count"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

type DocumentsResponse struct {
	Documents []DocumentSummary `json:"documents"`
}

type ConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
}

type MessagesResponse struct {
	Messages []Message `json:"messages"`
}
