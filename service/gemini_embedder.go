package service

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
)

const (
	GeminiEmbeddingModel     = "text-embedding-004"
	GeminiEmbeddingDimension = 768
	geminiMaxBatchSize       = 100
)

// GeminiEmbedder embeds text with the Gemini batch embedding API.
type GeminiEmbedder struct {
	client    *geminiClient
	model     string
	dimension int
}

func NewGeminiEmbedder(ctx context.Context, apiKeys []string, model string, dimension int) (*GeminiEmbedder, error) {
	if model == "" {
		model = GeminiEmbeddingModel
	}
	if dimension <= 0 {
		dimension = GeminiEmbeddingDimension
	}
	client, err := newGeminiClient(ctx, apiKeys)
	if err != nil {
		return nil, err
	}
	return &GeminiEmbedder{client: client, model: model, dimension: dimension}, nil
}

func (e *GeminiEmbedder) Model() string     { return e.model }
func (e *GeminiEmbedder) Dimension() int    { return e.dimension }
func (e *GeminiEmbedder) MaxBatchSize() int { return geminiMaxBatchSize }

func (e *GeminiEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	client := e.client.get()
	res, err := e.batchEmbed(ctx, client, texts)
	if err != nil {
		if rerr := e.client.rotate(ctx, client); rerr != nil {
			return nil, rerr
		}
		res, err = e.batchEmbed(ctx, e.client.get(), texts)
		if err != nil {
			return nil, err
		}
	}

	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(res.Embeddings))
	}
	vectors := make([][]float32, len(texts))
	for i, emb := range res.Embeddings {
		if emb == nil {
			return nil, fmt.Errorf("missing embedding at position %d", i)
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}

func (e *GeminiEmbedder) batchEmbed(ctx context.Context, client *genai.Client, texts []string) (*genai.BatchEmbedContentsResponse, error) {
	em := client.EmbeddingModel(e.model)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}
	return em.BatchEmbedContents(ctx, batch)
}

func (e *GeminiEmbedder) Close() error {
	return e.client.Close()
}
