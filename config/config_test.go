package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tieubaoca/rag-be/types"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "k1, k2")
	t.Setenv("JWT_SECRET_USER", "s")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 1000, cfg.RAG.ChunkSize)
	assert.Equal(t, 200, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 50, cfg.RAG.InsertBatchSize)
	assert.Equal(t, 8, cfg.RAG.MatchCount)
	assert.Equal(t, 10, cfg.RAG.SearchMatchCount)
	assert.InDelta(t, 0.4, cfg.RAG.SimilarityThreshold, 1e-9)
	assert.Equal(t, 768, cfg.Embedding.Dimension)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Embedding.APIKeys)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Generation.APIKeys)
	assert.Equal(t, "s", cfg.JWTSecret)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Empty(t, cfg.AllowedOrigins)
	assert.False(t, cfg.Extraction.OCR)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: memory\nrag:\n  chunk_size: 500\nallowed_origins:\n  - https://app.example.com\ntoken_ttl: 2h\nextraction:\n  ocr: true\n"), 0o644))
	t.Setenv("RAG_CHUNK_OVERLAP", "50")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 500, cfg.RAG.ChunkSize)
	assert.Equal(t, 50, cfg.RAG.ChunkOverlap)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, 2*time.Hour, cfg.TokenTTL)
	assert.True(t, cfg.Extraction.OCR)
}

func validConfig() *Config {
	return &Config{
		JWTSecret:  "s",
		Store:      StoreConfig{Driver: "memory"},
		Embedding:  EmbeddingConfig{Provider: "gemini", Dimension: 768, APIKeys: []string{"k"}},
		Generation: GenerationConfig{Provider: "openai", APIKeys: []string{"k"}},
		Cache:      CacheConfig{Type: "memory"},
		RAG:        RAGConfig{ChunkSize: 1000, ChunkOverlap: 200, InsertBatchSize: 50},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		key    string
	}{
		{"valid", func(c *Config) {}, ""},
		{"postgres without dsn", func(c *Config) { c.Store.Driver = "postgres" }, "postgres.dsn"},
		{"mongo without weaviate", func(c *Config) { c.Store.Driver = "mongo"; c.Mongo.URI = "mongodb://x" }, "weaviate.host"},
		{"unknown driver", func(c *Config) { c.Store.Driver = "sqlite" }, "store.driver"},
		{"missing embedding key", func(c *Config) { c.Embedding.APIKeys = nil }, "embedding.api_keys"},
		{"unknown generation provider", func(c *Config) { c.Generation.Provider = "x" }, "generation.provider"},
		{"redis without url", func(c *Config) { c.Cache.Type = "redis" }, "cache.redis_url"},
		{"overlap too large", func(c *Config) { c.RAG.ChunkOverlap = 1000 }, "rag.chunk_overlap"},
		{"zero dimension", func(c *Config) { c.Embedding.Dimension = 0 }, "embedding.dimension"},
		{"missing jwt secret", func(c *Config) { c.JWTSecret = "" }, "jwt_secret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.key == "" {
				assert.NoError(t, err)
				return
			}
			var cfgErr *types.ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.key, cfgErr.Key)
		})
	}
}
