package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/tieubaoca/rag-be/logger"
	"github.com/tieubaoca/rag-be/types"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

const (
	DefaultChunkClass = "DocumentChunk"
	weaviateBatchSize = 200
)

// WeaviateChunkIndex stores chunk vectors in a Weaviate class that carries
// its own vectors (no vectorizer module).
type WeaviateChunkIndex struct {
	client    *weaviate.Client
	className string
	log       *logger.Logger
}

// ChunkHit is a chunk returned by a near-vector query.
type ChunkHit struct {
	ChunkID    string
	DocumentID string
	Filename   string
	Content    string
	ChunkIndex int
	Metadata   types.ChunkMetadata
	Similarity float64
}

func chunkClass(name string) *models.Class {
	return &models.Class{
		Class:      name,
		Vectorizer: "none",
		Properties: []*models.Property{
			// Ids are matched whole, not word by word.
			{Name: "documentId", DataType: []string{"text"}, Tokenization: models.PropertyTokenizationField},
			{Name: "userId", DataType: []string{"text"}, Tokenization: models.PropertyTokenizationField},
			{Name: "filename", DataType: []string{"text"}},
			{Name: "content", DataType: []string{"text"}},
			{Name: "chunkIndex", DataType: []string{"int"}},
			{Name: "tokenCount", DataType: []string{"int"}},
			{Name: "charStart", DataType: []string{"int"}},
			{Name: "charEnd", DataType: []string{"int"}},
			{Name: "createdAt", DataType: []string{"int"}},
		},
		VectorIndexType: "hnsw",
		VectorIndexConfig: map[string]interface{}{
			"distance": "cosine",
		},
	}
}

func NewWeaviateChunkIndex(ctx context.Context, host, apiKey, className string, log *logger.Logger) (*WeaviateChunkIndex, error) {
	var scheme string
	if strings.Contains(host, "https") {
		scheme = "https"
	} else {
		scheme = "http"
	}
	host = strings.TrimPrefix(host, scheme+"://")
	cfg := weaviate.Config{
		Host:   host,
		Scheme: scheme,
	}
	if apiKey != "" {
		cfg.AuthConfig = auth.ApiKey{Value: apiKey}
		cfg.Headers = map[string]string{
			"X-Weaviate-Api-Key":     apiKey,
			"X-Weaviate-Cluster-Url": fmt.Sprintf("%s://%s", scheme, host),
		}
	}
	if className == "" {
		className = DefaultChunkClass
	}
	if log == nil {
		log = logger.Nop()
	}

	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %w", err)
	}
	idx := &WeaviateChunkIndex{client: client, className: className, log: log}
	if err := idx.ensureClass(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (w *WeaviateChunkIndex) ensureClass(ctx context.Context) error {
	schema, err := w.client.Schema().Getter().Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to get schema: %w", err)
	}
	for _, class := range schema.Classes {
		if class.Class == w.className {
			return nil
		}
	}
	if err := w.client.Schema().ClassCreator().WithClass(chunkClass(w.className)).Do(ctx); err != nil {
		return fmt.Errorf("failed to create %s class: %w", w.className, err)
	}
	w.log.Info("Created weaviate class", "class", w.className)
	return nil
}

// InsertChunks writes chunks in batches. When any object fails, the objects
// already written by this call are removed before returning the error.
func (w *WeaviateChunkIndex) InsertChunks(ctx context.Context, chunks []types.Chunk, filename string) error {
	var written []string
	for i := 0; i < len(chunks); i += weaviateBatchSize {
		end := min(i+weaviateBatchSize, len(chunks))
		batcher := w.client.Batch().ObjectsBatcher()
		for _, c := range chunks[i:end] {
			batcher = batcher.WithObjects(&models.Object{
				Class: w.className,
				ID:    strfmt.UUID(c.ID),
				Properties: map[string]interface{}{
					"documentId": c.DocumentID,
					"userId":     c.UserID,
					"filename":   filename,
					"content":    c.Content,
					"chunkIndex": c.ChunkIndex,
					"tokenCount": c.TokenCount,
					"charStart":  c.Metadata.CharStart,
					"charEnd":    c.Metadata.CharEnd,
					"createdAt":  c.CreatedAt.Unix(),
				},
				Vector: c.Embedding,
			})
		}

		res, err := batcher.Do(ctx)
		if err == nil {
			err = batchErrors(res)
		}
		for _, c := range chunks[i:end] {
			written = append(written, c.ID)
		}
		if err != nil {
			w.removeObjects(context.WithoutCancel(ctx), written)
			return fmt.Errorf("failed to insert chunks %d-%d: %w", i, end, err)
		}
		w.log.Debug("Inserted chunk batch", "from", i, "to", end, "total", len(chunks))
	}
	return nil
}

func batchErrors(res []models.ObjectsGetResponse) error {
	var msgs []string
	for _, obj := range res {
		if obj.Result == nil || obj.Result.Errors == nil {
			continue
		}
		for _, e := range obj.Result.Errors.Error {
			msgs = append(msgs, e.Message)
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return errors.New(strings.Join(msgs, "; "))
}

func (w *WeaviateChunkIndex) removeObjects(ctx context.Context, ids []string) {
	for _, id := range ids {
		err := w.client.Data().Deleter().
			WithClassName(w.className).
			WithID(id).
			Do(ctx)
		if err != nil {
			w.log.Warn("Failed to remove chunk during rollback", "chunk_id", id, "error", err)
		}
	}
}

func (w *WeaviateChunkIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	where := filters.Where().
		WithPath([]string{"documentId"}).
		WithOperator(filters.Equal).
		WithValueText(documentID)
	_, err := w.client.Batch().ObjectsBatchDeleter().
		WithClassName(w.className).
		WithWhere(where).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete chunks of %s: %w", documentID, err)
	}
	return nil
}

// Search returns the chunks of q.UserID nearest to q.Embedding whose cosine
// similarity is at least q.SimilarityThreshold.
func (w *WeaviateChunkIndex) Search(ctx context.Context, q types.VectorQuery) ([]ChunkHit, error) {
	fields := []graphql.Field{
		{Name: "documentId"},
		{Name: "filename"},
		{Name: "content"},
		{Name: "chunkIndex"},
		{Name: "charStart"},
		{Name: "charEnd"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}, {Name: "id"}}},
	}
	nearVector := w.client.GraphQL().NearVectorArgBuilder().
		WithVector(q.Embedding).
		WithDistance(float32(1 - q.SimilarityThreshold))

	where := filters.Where().
		WithPath([]string{"userId"}).
		WithOperator(filters.Equal).
		WithValueText(q.UserID)
	if len(q.DocumentIDs) > 0 {
		docFilter := filters.Where().
			WithPath([]string{"documentId"}).
			WithOperator(filters.ContainsAny).
			WithValueText(q.DocumentIDs...)
		where = filters.Where().
			WithOperator(filters.And).
			WithOperands([]*filters.WhereBuilder{where, docFilter})
	}

	result, err := w.client.GraphQL().Get().
		WithClassName(w.className).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithWhere(where).
		WithLimit(q.MatchCount).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("search failed: %v", result.Errors[0].Message)
	}

	var hits []ChunkHit
	get, _ := result.Data["Get"].(map[string]interface{})
	items, _ := get[w.className].([]interface{})
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		hit := ChunkHit{
			DocumentID: asString(obj["documentId"]),
			Filename:   asString(obj["filename"]),
			Content:    asString(obj["content"]),
			ChunkIndex: asInt(obj["chunkIndex"]),
			Metadata: types.ChunkMetadata{
				CharStart: asInt(obj["charStart"]),
				CharEnd:   asInt(obj["charEnd"]),
			},
		}
		if additional, ok := obj["_additional"].(map[string]interface{}); ok {
			hit.ChunkID = asString(additional["id"])
			if d, ok := additional["distance"].(float64); ok {
				hit.Similarity = 1 - d
			}
		}
		if hit.Similarity < q.SimilarityThreshold {
			continue
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

// asInt accepts the float64 that JSON decoding produces for GraphQL ints.
func asInt(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	}
	return 0
}
