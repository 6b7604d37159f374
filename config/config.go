package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/tieubaoca/rag-be/types"
)

type Config struct {
	Port      string `mapstructure:"port"`
	Mode      string `mapstructure:"mode"`
	UploadDir string `mapstructure:"upload_dir"`
	JWTSecret string `mapstructure:"jwt_secret"`
	// AllowedOrigins is the CORS allow list; empty allows any origin.
	AllowedOrigins []string         `mapstructure:"allowed_origins"`
	TokenTTL       time.Duration    `mapstructure:"token_ttl"`
	Store          StoreConfig      `mapstructure:"store"`
	Postgres       PostgresConfig   `mapstructure:"postgres"`
	Mongo          MongoConfig      `mapstructure:"mongo"`
	Weaviate       WeaviateConfig   `mapstructure:"weaviate"`
	Embedding      EmbeddingConfig  `mapstructure:"embedding"`
	Generation     GenerationConfig `mapstructure:"generation"`
	Cache          CacheConfig      `mapstructure:"cache"`
	RAG            RAGConfig        `mapstructure:"rag"`
	Extraction     ExtractionConfig `mapstructure:"extraction"`
}

type StoreConfig struct {
	// Driver is one of postgres, mongo or memory.
	Driver string `mapstructure:"driver"`
}

type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type WeaviateConfig struct {
	Host   string `mapstructure:"host"`
	APIKey string `mapstructure:"api_key"`
	Class  string `mapstructure:"class"`
}

type EmbeddingConfig struct {
	Provider    string        `mapstructure:"provider"`
	Model       string        `mapstructure:"model"`
	Dimension   int           `mapstructure:"dimension"`
	BatchSize   int           `mapstructure:"batch_size"`
	Concurrency int           `mapstructure:"concurrency"`
	Timeout     time.Duration `mapstructure:"timeout"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKeys     []string      `mapstructure:"api_keys"`
}

type GenerationConfig struct {
	Provider string        `mapstructure:"provider"`
	Model    string        `mapstructure:"model"`
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	APIKeys  []string      `mapstructure:"api_keys"`
}

type CacheConfig struct {
	// Type is one of memory, redis or noop.
	Type      string        `mapstructure:"type"`
	RedisURL  string        `mapstructure:"redis_url"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	MaxSize   int           `mapstructure:"max_size"`
	TTL       time.Duration `mapstructure:"ttl"`
}

type ExtractionConfig struct {
	// OCR runs pdftoppm and tesseract on PDFs without a text layer.
	OCR bool `mapstructure:"ocr"`
}

type RAGConfig struct {
	ChunkSize           int     `mapstructure:"chunk_size"`
	ChunkOverlap        int     `mapstructure:"chunk_overlap"`
	InsertBatchSize     int     `mapstructure:"insert_batch_size"`
	MatchCount          int     `mapstructure:"match_count"`
	SearchMatchCount    int     `mapstructure:"search_match_count"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	MaxUploadBytes      int64   `mapstructure:"max_upload_bytes"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("mode", "development")
	v.SetDefault("upload_dir", "uploads")
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("mongo.database", "rag")
	v.SetDefault("weaviate.class", "DocumentChunk")
	v.SetDefault("token_ttl", 24*time.Hour)

	v.SetDefault("embedding.provider", "gemini")
	v.SetDefault("embedding.model", "text-embedding-004")
	v.SetDefault("embedding.dimension", 768)
	v.SetDefault("embedding.batch_size", 100)
	v.SetDefault("embedding.concurrency", 4)
	v.SetDefault("embedding.timeout", 60*time.Second)

	v.SetDefault("generation.provider", "gemini")
	v.SetDefault("generation.model", "gemini-1.5-flash")
	v.SetDefault("generation.timeout", 120*time.Second)

	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.key_prefix", "rag:emb:")
	v.SetDefault("cache.max_size", 10000)
	v.SetDefault("cache.ttl", 24*time.Hour)

	v.SetDefault("rag.chunk_size", 1000)
	v.SetDefault("rag.chunk_overlap", 200)
	v.SetDefault("rag.insert_batch_size", 50)
	v.SetDefault("rag.match_count", 8)
	v.SetDefault("rag.search_match_count", 10)
	v.SetDefault("rag.similarity_threshold", 0.4)
	v.SetDefault("rag.max_upload_bytes", 10<<20)
	v.SetDefault("extraction.ocr", false)
}

// LoadConfig reads configPath (if it exists) and overlays environment variables.
// Nested keys map to env vars with "." replaced by "_", e.g. STORE_DRIVER.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.BindEnv("jwt_secret", "JWT_SECRET_USER")
	v.BindEnv("postgres.dsn", "DATABASE_URL")
	v.BindEnv("mongo.uri", "MONGODB_URI")
	v.BindEnv("weaviate.api_key", "WEAVIATE_APIKEY")
	v.BindEnv("cache.redis_url", "REDIS_URL")

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// API keys come as comma separated lists so several keys can be rotated.
	if len(config.Embedding.APIKeys) == 0 {
		config.Embedding.APIKeys = apiKeysFromEnv(v, config.Embedding.Provider)
	}
	if len(config.Generation.APIKeys) == 0 {
		config.Generation.APIKeys = apiKeysFromEnv(v, config.Generation.Provider)
	}

	return &config, nil
}

func apiKeysFromEnv(v *viper.Viper, provider string) []string {
	var raw string
	switch provider {
	case "gemini":
		v.BindEnv("gemini_api_key", "GEMINI_API_KEY")
		raw = v.GetString("gemini_api_key")
	case "openai":
		v.BindEnv("openai_api_key", "OPENAI_API_KEY")
		raw = v.GetString("openai_api_key")
	}
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// Validate checks the settings the selected drivers and providers need.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "postgres":
		if c.Postgres.DSN == "" {
			return &types.ConfigError{Key: "postgres.dsn", Reason: "required for the postgres store"}
		}
	case "mongo":
		if c.Mongo.URI == "" {
			return &types.ConfigError{Key: "mongo.uri", Reason: "required for the mongo store"}
		}
		if c.Weaviate.Host == "" {
			return &types.ConfigError{Key: "weaviate.host", Reason: "required for the mongo store"}
		}
	case "memory":
	default:
		return &types.ConfigError{Key: "store.driver", Reason: fmt.Sprintf("unknown driver %q", c.Store.Driver)}
	}

	if err := validateProvider("embedding", c.Embedding.Provider, c.Embedding.APIKeys); err != nil {
		return err
	}
	if err := validateProvider("generation", c.Generation.Provider, c.Generation.APIKeys); err != nil {
		return err
	}
	if c.Embedding.Dimension <= 0 {
		return &types.ConfigError{Key: "embedding.dimension", Reason: "must be positive"}
	}

	switch c.Cache.Type {
	case "memory", "noop", "":
	case "redis":
		if c.Cache.RedisURL == "" {
			return &types.ConfigError{Key: "cache.redis_url", Reason: "required for the redis cache"}
		}
	default:
		return &types.ConfigError{Key: "cache.type", Reason: fmt.Sprintf("unknown cache %q", c.Cache.Type)}
	}

	if c.RAG.ChunkSize <= 0 || c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return &types.ConfigError{Key: "rag.chunk_overlap", Reason: "must be in [0, chunk_size)"}
	}
	if c.RAG.InsertBatchSize <= 0 {
		return &types.ConfigError{Key: "rag.insert_batch_size", Reason: "must be positive"}
	}
	if c.JWTSecret == "" {
		return &types.ConfigError{Key: "jwt_secret", Reason: "required"}
	}
	return nil
}

func validateProvider(section, provider string, keys []string) error {
	switch provider {
	case "gemini", "openai":
	default:
		return &types.ConfigError{Key: section + ".provider", Reason: fmt.Sprintf("unknown provider %q", provider)}
	}
	if len(keys) == 0 {
		return &types.ConfigError{Key: section + ".api_keys", Reason: "at least one API key is required"}
	}
	return nil
}
