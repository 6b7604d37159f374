package service

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"sort"

	"github.com/tieubaoca/rag-be/logger"
	"github.com/tieubaoca/rag-be/types"
	"github.com/tieubaoca/rag-be/utils"
)

const DefaultMaxUploadBytes = 10 << 20

// FileService extracts and ingests uploaded files one at a time. A failing
// file never affects the others.
type FileService struct {
	uploadDir string
	maxBytes  int64
	extractor *Extractor
	ingestion *IngestionService
	log       *logger.Logger
}

func NewFileService(uploadDir string, maxBytes int64, extractor *Extractor, ingestion *IngestionService, log *logger.Logger) *FileService {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if log == nil {
		log = logger.Nop()
	}
	return &FileService{
		uploadDir: uploadDir,
		maxBytes:  maxBytes,
		extractor: extractor,
		ingestion: ingestion,
		log:       log,
	}
}

func (s *FileService) IngestFiles(ctx context.Context, userID string, files []*multipart.FileHeader) []types.FileIngestResult {
	results := make([]types.FileIngestResult, 0, len(files))
	for _, fh := range files {
		data, err := s.readUpload(fh)
		if err != nil {
			results = append(results, failedFile(fh.Filename, err))
			continue
		}
		results = append(results, s.ingestBytes(ctx, userID, fh.Filename, fh.Header.Get("Content-Type"), data))
	}
	return results
}

func (s *FileService) readUpload(fh *multipart.FileHeader) ([]byte, error) {
	if fh.Size > s.maxBytes {
		return nil, types.NewValidationError("files", fmt.Sprintf("file exceeds %d bytes", s.maxBytes))
	}
	src, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return io.ReadAll(io.LimitReader(src, s.maxBytes))
}

// IngestPath ingests a single file, or every regular file directly inside a
// directory, in name order.
func (s *FileService) IngestPath(ctx context.Context, userID, path string) ([]types.FileIngestResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	paths := []string{path}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		paths = paths[:0]
		for _, e := range entries {
			if e.Type().IsRegular() {
				paths = append(paths, filepath.Join(path, e.Name()))
			}
		}
		sort.Strings(paths)
	}

	results := make([]types.FileIngestResult, 0, len(paths))
	for _, p := range paths {
		name := filepath.Base(p)
		fi, err := os.Stat(p)
		if err != nil {
			results = append(results, failedFile(name, err))
			continue
		}
		if fi.Size() > s.maxBytes {
			results = append(results, failedFile(name, types.NewValidationError("file", fmt.Sprintf("file exceeds %d bytes", s.maxBytes))))
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			results = append(results, failedFile(name, err))
			continue
		}
		results = append(results, s.ingestBytes(ctx, userID, name, "", data))
	}
	return results, nil
}

func (s *FileService) ingestBytes(ctx context.Context, userID, filename, mimeType string, data []byte) types.FileIngestResult {
	extracted, err := s.extractor.Extract(ctx, filename, mimeType, data)
	if err != nil {
		s.log.Warn("Extraction failed", "user_id", userID, "filename", filename, "error", err)
		return failedFile(filename, err)
	}

	if s.uploadDir != "" {
		if _, err := utils.SaveWithTimestamp(filepath.Join(s.uploadDir, utils.SanitizeFilename(userID)), filename, data); err != nil {
			s.log.Warn("Failed to keep original upload", "filename", filename, "error", err)
		}
	}

	size := int64(len(data))
	metadata := map[string]any{}
	if mimeType != "" {
		metadata["mime_type"] = mimeType
	}
	res, err := s.ingestion.Ingest(ctx, types.IngestRequest{
		UserID:    userID,
		Filename:  filename,
		Content:   extracted.Text,
		FileType:  extracted.FileType,
		FileSize:  &size,
		PageCount: extracted.PageCount,
		Metadata:  metadata,
	})
	if err != nil {
		return failedFile(filename, err)
	}
	return types.FileIngestResult{
		DocumentID:  &res.DocumentID,
		Filename:    res.Filename,
		ChunkCount:  res.ChunkCount,
		TotalTokens: res.TotalTokens,
	}
}

func failedFile(filename string, err error) types.FileIngestResult {
	return types.FileIngestResult{Filename: filename, Error: err.Error()}
}
