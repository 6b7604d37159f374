package service

import (
	"context"
	"errors"
	"strings"

	"github.com/tieubaoca/rag-be/database"
	"github.com/tieubaoca/rag-be/logger"
	"github.com/tieubaoca/rag-be/metrics"
	"github.com/tieubaoca/rag-be/types"
)

const DefaultInsertBatchSize = 50

type IngestionOptions struct {
	ChunkSize       int
	ChunkOverlap    int
	InsertBatchSize int
}

// IngestionService turns raw document text into stored, embedded chunks.
// A failed ingestion leaves no document or chunk rows behind.
type IngestionService struct {
	store     database.DocumentStore
	embedder  *EmbeddingService
	chunkSize int
	overlap   int
	batchSize int
	log       *logger.Logger
}

func NewIngestionService(store database.DocumentStore, embedder *EmbeddingService, opts IngestionOptions, log *logger.Logger) *IngestionService {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = 0
	}
	if opts.InsertBatchSize <= 0 {
		opts.InsertBatchSize = DefaultInsertBatchSize
	}
	if log == nil {
		log = logger.Nop()
	}
	return &IngestionService{
		store:     store,
		embedder:  embedder,
		chunkSize: opts.ChunkSize,
		overlap:   opts.ChunkOverlap,
		batchSize: opts.InsertBatchSize,
		log:       log,
	}
}

func isSupportedFileType(fileType string) bool {
	switch fileType {
	case types.FileTypePDF, types.FileTypeMarkdown, types.FileTypeText, types.FileTypeDocx:
		return true
	}
	return false
}

func (s *IngestionService) Ingest(ctx context.Context, req types.IngestRequest) (*types.IngestResult, error) {
	result, err := s.ingest(ctx, req)
	if err != nil {
		metrics.RecordIngest("error", 0)
		return nil, err
	}
	metrics.RecordIngest("success", result.ChunkCount)
	return result, nil
}

func (s *IngestionService) ingest(ctx context.Context, req types.IngestRequest) (*types.IngestResult, error) {
	fail := func(reason string, err error) error {
		return &types.IngestionError{Filename: req.Filename, Reason: reason, Err: err}
	}

	if strings.TrimSpace(req.UserID) == "" {
		return nil, fail("user id is required", types.NewValidationError("user_id", "must not be empty"))
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, fail("document content is empty", types.NewValidationError("content", "must not be empty"))
	}
	if !isSupportedFileType(req.FileType) {
		return nil, fail("unsupported file type", types.NewValidationError("file_type", "unsupported file type "+req.FileType))
	}

	log := s.log.With("user_id", req.UserID, "filename", req.Filename)

	doc := &types.Document{
		UserID:    req.UserID,
		Filename:  req.Filename,
		FileType:  req.FileType,
		FileSize:  req.FileSize,
		PageCount: req.PageCount,
		Content:   req.Content,
		Metadata:  req.Metadata,
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]any{}
	}
	docID, err := s.store.InsertDocument(ctx, doc)
	if err != nil {
		log.Error("Failed to insert document", "error", err)
		return nil, err
	}

	textChunks := ChunkText(req.Content, s.chunkSize, s.overlap)
	if len(textChunks) == 0 {
		s.rollback(ctx, docID, false)
		return nil, fail(types.ErrNoChunks.Error(), types.ErrNoChunks)
	}

	texts := make([]string, len(textChunks))
	for i, c := range textChunks {
		texts[i] = c.Content
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		log.Error("Failed to embed chunks", "chunks", len(texts), "error", err)
		s.rollback(ctx, docID, false)
		return nil, fail("failed to generate embeddings", err)
	}

	chunks := make([]types.Chunk, len(textChunks))
	totalTokens := 0
	for i, c := range textChunks {
		tokens := EstimateTokenCount(c.Content)
		totalTokens += tokens
		chunks[i] = types.Chunk{
			DocumentID: docID,
			UserID:     req.UserID,
			ChunkIndex: c.Index,
			Content:    c.Content,
			TokenCount: tokens,
			Embedding:  vectors[i],
			Metadata:   c.Metadata,
		}
	}

	for lo := 0; lo < len(chunks); lo += s.batchSize {
		hi := min(lo+s.batchSize, len(chunks))
		if err := s.store.InsertChunksBatch(ctx, chunks[lo:hi]); err != nil {
			log.Error("Failed to insert chunk batch", "from", lo, "to", hi, "error", err)
			s.rollback(ctx, docID, true)
			return nil, fail("failed to store chunks", err)
		}
	}

	log.Info("Ingested document", "document_id", docID, "chunks", len(chunks), "tokens", totalTokens)
	return &types.IngestResult{
		DocumentID:  docID,
		Filename:    req.Filename,
		ChunkCount:  len(chunks),
		TotalTokens: totalTokens,
	}, nil
}

// rollback runs detached from ctx so a cancelled request still cleans up.
func (s *IngestionService) rollback(ctx context.Context, docID string, chunks bool) {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	if chunks {
		if err := s.store.DeleteChunksForDocument(ctx, docID); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.store.DeleteDocument(ctx, docID); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		s.log.Error("Rollback of failed ingestion incomplete", "document_id", docID, "error", err)
	}
}
