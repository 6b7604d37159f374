package cmd

import (
	"context"
	"fmt"

	"github.com/tieubaoca/rag-be/cache"
	"github.com/tieubaoca/rag-be/config"
	"github.com/tieubaoca/rag-be/database"
	"github.com/tieubaoca/rag-be/logger"
	"github.com/tieubaoca/rag-be/service"
)

// app holds the wired services of one process.
type app struct {
	cfg       *config.Config
	log       *logger.Logger
	store     database.DocumentStore
	embedding *service.EmbeddingService
	ingestion *service.IngestionService
	retrieval *service.RetrievalService
	rag       *service.RAGService
	files     *service.FileService
	ws        *service.WebSocketService
	closers   []func()
}

func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.Mode)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log}
	if err := a.init(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	cfg := a.cfg

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	a.store = store

	provider, err := a.newEmbedder(ctx)
	if err != nil {
		return err
	}
	embCache, err := a.newCache(ctx)
	if err != nil {
		return err
	}
	a.embedding, err = service.NewEmbeddingService(provider, embCache, service.EmbeddingOptions{
		Dimension:   cfg.Embedding.Dimension,
		BatchSize:   cfg.Embedding.BatchSize,
		Concurrency: cfg.Embedding.Concurrency,
		Timeout:     cfg.Embedding.Timeout,
	}, a.log)
	if err != nil {
		return err
	}

	ai, err := a.newGenerator(ctx)
	if err != nil {
		return err
	}

	a.ingestion = service.NewIngestionService(store, a.embedding, service.IngestionOptions{
		ChunkSize:       cfg.RAG.ChunkSize,
		ChunkOverlap:    cfg.RAG.ChunkOverlap,
		InsertBatchSize: cfg.RAG.InsertBatchSize,
	}, a.log)
	a.retrieval = service.NewRetrievalService(store, a.embedding, a.log)
	a.rag = service.NewRAGService(store, a.retrieval, service.WithTimeout(ai, cfg.Generation.Timeout), a.log).
		WithSimilarityThreshold(cfg.RAG.SimilarityThreshold)
	a.files = service.NewFileService(cfg.UploadDir, cfg.RAG.MaxUploadBytes, service.NewExtractor("", cfg.Extraction.OCR, a.log), a.ingestion, a.log)
	a.ws = service.NewWebSocketService(a.rag, a.log)
	return nil
}

func (a *app) openStore(ctx context.Context) (database.DocumentStore, error) {
	cfg := a.cfg
	switch cfg.Store.Driver {
	case "postgres":
		pg, err := database.NewPostgresStore(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, a.log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pg.Close)
		return pg, nil
	case "mongo":
		client, err := database.NewMongoClient(ctx, cfg.Mongo.URI)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = client.Disconnect(context.Background()) })
		index, err := database.NewWeaviateChunkIndex(ctx, cfg.Weaviate.Host, cfg.Weaviate.APIKey, cfg.Weaviate.Class, a.log)
		if err != nil {
			return nil, err
		}
		return database.NewMongoStore(ctx, client.Database(cfg.Mongo.Database), index)
	default:
		a.log.Warn("Using in-memory store, data is lost on exit")
		return database.NewMemoryStore(), nil
	}
}

func (a *app) newEmbedder(ctx context.Context) (service.Embedder, error) {
	cfg := a.cfg.Embedding
	switch cfg.Provider {
	case "openai":
		return service.NewOpenAIEmbedder(cfg.BaseURL, cfg.APIKeys[0], cfg.Model, cfg.Dimension)
	default:
		e, err := service.NewGeminiEmbedder(ctx, cfg.APIKeys, cfg.Model, cfg.Dimension)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = e.Close() })
		return e, nil
	}
}

func (a *app) newCache(ctx context.Context) (service.EmbeddingCache, error) {
	cfg := a.cfg.Cache
	switch cfg.Type {
	case "redis":
		rc, err := cache.NewRedisCache(ctx, cfg.RedisURL, cfg.KeyPrefix, cfg.TTL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = rc.Close() })
		return rc, nil
	case "noop":
		return cache.NoopCache{}, nil
	default:
		return cache.NewMemoryCache(cfg.MaxSize, cfg.TTL)
	}
}

func (a *app) newGenerator(ctx context.Context) (service.AIService, error) {
	cfg := a.cfg.Generation
	switch cfg.Provider {
	case "openai":
		return service.NewOpenAIService(cfg.BaseURL, cfg.APIKeys[0], cfg.Model)
	default:
		g, err := service.NewGeminiService(ctx, cfg.APIKeys, cfg.Model)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = g.Close() })
		return g, nil
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	if a.log != nil {
		a.log.Sync()
	}
}
