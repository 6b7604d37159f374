package service

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tieubaoca/rag-be/database"
	"github.com/tieubaoca/rag-be/logger"
)

func newTestFileService(t *testing.T, store *database.MemoryStore, maxBytes int64) *FileService {
	t.Helper()
	emb := newTestEmbeddingService(newTopicEmbedder("alpha"), 0, 1)
	ingest := NewIngestionService(store, emb, IngestionOptions{}, logger.Nop())
	return NewFileService(t.TempDir(), maxBytes, NewExtractor("", false, logger.Nop()), ingest, logger.Nop())
}

func TestIngestPath_IsolatesFailures(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("alpha text"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.png"), []byte("\x89PNG"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.md"), []byte("   "), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "d.md"), []byte("# alpha\n\nbody"), 0644))

	store := database.NewMemoryStore()
	results, err := newTestFileService(t, store, 0).IngestPath(context.Background(), "u1", dir)
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.NotNil(t, results[0].DocumentID)
	assert.Equal(t, 1, results[0].ChunkCount)
	assert.Nil(t, results[1].DocumentID)
	assert.Contains(t, results[1].Error, "unsupported file type")
	assert.Nil(t, results[2].DocumentID)
	assert.Contains(t, results[2].Error, "No text content")
	assert.Zero(t, results[2].ChunkCount)
	assert.NotNil(t, results[3].DocumentID)

	docs, _ := store.Counts()
	assert.Equal(t, 2, docs)
}

func TestIngestFiles_Multipart(t *testing.T) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, content := range map[string]string{"one.txt": "alpha one", "big.txt": "alpha alpha alpha alpha"} {
		w, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))
	files := req.MultipartForm.File["files"]
	require.Len(t, files, 2)

	store := database.NewMemoryStore()
	results := newTestFileService(t, store, 12).IngestFiles(context.Background(), "u1", files)
	require.Len(t, results, 2)
	for _, r := range results {
		if r.Filename == "big.txt" {
			assert.Nil(t, r.DocumentID)
			assert.Contains(t, r.Error, "exceeds")
		} else {
			assert.NotNil(t, r.DocumentID)
		}
	}
}

func TestIngestPath_ReportsEmbeddingCause(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("alpha text"), 0644))

	embedder := newTopicEmbedder("alpha")
	embedder.fail = errors.New("quota exceeded for key")
	store := database.NewMemoryStore()
	ingest := NewIngestionService(store, newTestEmbeddingService(embedder, 0, 1), IngestionOptions{}, logger.Nop())
	files := NewFileService(t.TempDir(), 0, NewExtractor("", false, logger.Nop()), ingest, logger.Nop())

	results, err := files.IngestPath(context.Background(), "u1", path)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Nil(t, results[0].DocumentID)
	assert.Contains(t, results[0].Error, `"a.txt"`)
	assert.Contains(t, results[0].Error, "failed to generate embeddings")
	assert.Contains(t, results[0].Error, "quota exceeded for key")

	docs, chunks := store.Counts()
	assert.Zero(t, docs)
	assert.Zero(t, chunks)
}
