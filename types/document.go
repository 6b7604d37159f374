package types

import "time"

const (
	FileTypePDF      = "pdf"
	FileTypeMarkdown = "markdown"
	FileTypeText     = "text"
	FileTypeDocx     = "docx"
)

// Document is one ingested source file.
type Document struct {
	ID        string         `json:"id" bson:"_id"`
	UserID    string         `json:"user_id" bson:"user_id"`
	Filename  string         `json:"filename" bson:"filename"`
	FileType  string         `json:"file_type" bson:"file_type"`
	FileSize  *int64         `json:"file_size,omitempty" bson:"file_size,omitempty"`
	PageCount *int           `json:"page_count,omitempty" bson:"page_count,omitempty"`
	Content   string         `json:"content,omitempty" bson:"content"`
	Metadata  map[string]any `json:"metadata" bson:"metadata"`
	CreatedAt time.Time      `json:"created_at" bson:"created_at"`
}

// ChunkMetadata holds the character offsets of a chunk within its document.
type ChunkMetadata struct {
	CharStart int `json:"char_start" bson:"char_start"`
	CharEnd   int `json:"char_end" bson:"char_end"`
}

// TextChunk is the output of the chunker, before it is embedded.
type TextChunk struct {
	Content  string
	Index    int
	Metadata ChunkMetadata
}

// Chunk is a persisted, embedded slice of a document.
type Chunk struct {
	ID         string        `json:"id" bson:"_id"`
	DocumentID string        `json:"document_id" bson:"document_id"`
	UserID     string        `json:"user_id" bson:"user_id"`
	ChunkIndex int           `json:"chunk_index" bson:"chunk_index"`
	Content    string        `json:"content" bson:"content"`
	TokenCount int           `json:"token_count" bson:"token_count"`
	Embedding  []float32     `json:"-" bson:"-"`
	Metadata   ChunkMetadata `json:"metadata" bson:"metadata"`
	CreatedAt  time.Time     `json:"created_at" bson:"created_at"`
}

// IngestRequest is the input of a single-document ingestion.
type IngestRequest struct {
	UserID    string
	Filename  string
	Content   string
	FileType  string
	FileSize  *int64
	PageCount *int
	Metadata  map[string]any
}

type IngestResult struct {
	DocumentID  string `json:"document_id"`
	Filename    string `json:"filename"`
	ChunkCount  int    `json:"chunk_count"`
	TotalTokens int    `json:"total_tokens"`
}

// FileIngestResult reports the outcome of one file in a multi-file upload.
// DocumentID is nil and Error is set when the file failed.
type FileIngestResult struct {
	DocumentID  *string `json:"document_id"`
	Filename    string  `json:"filename"`
	ChunkCount  int     `json:"chunk_count"`
	TotalTokens int     `json:"total_tokens"`
	Error       string  `json:"error,omitempty"`
}

// ExtractedText is the plain text pulled out of an uploaded file.
type ExtractedText struct {
	Text      string
	FileType  string
	PageCount *int
}
