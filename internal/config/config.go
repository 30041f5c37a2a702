package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalid         = errors.New("invalid configuration")
)

const (
	ProviderHashing = "hashing"
	ProviderGemini  = "gemini"
	ProviderOpenAI  = "openai"
)

type Config struct {
	// Generation
	GeminiAPIKey             string  `envconfig:"GEMINI_API_KEY"`
	GenerationModel          string  `envconfig:"GENERATION_MODEL" default:"gemini-2.5-flash-lite"`
	GenerationMaxTokens      int32   `envconfig:"GENERATION_MAX_TOKENS" default:"150"`
	GenerationTemperature    float32 `envconfig:"GENERATION_TEMPERATURE" default:"0.3"`
	GenerationTimeoutSeconds int     `envconfig:"GENERATION_TIMEOUT_SECONDS" default:"30"`
	FallbackTopicsFile       string  `envconfig:"FALLBACK_TOPICS_FILE"`

	// Embedding
	EmbeddingProvider  string `envconfig:"EMBEDDING_PROVIDER" default:"hashing"`
	EmbeddingModel     string `envconfig:"EMBEDDING_MODEL"`
	EmbeddingDimension int    `envconfig:"EMBEDDING_DIMENSION" default:"384"`
	OpenAIAPIKey       string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL      string `envconfig:"OPENAI_BASE_URL"`
	EmbedBatchSize     int    `envconfig:"EMBED_BATCH_SIZE" default:"100"`
	EmbedConcurrency   int    `envconfig:"EMBED_CONCURRENCY" default:"4"`

	// Corpus and index
	CorpusDir    string `envconfig:"CORPUS_DIR" default:"data"`
	IndexDir     string `envconfig:"INDEX_DIR" default:"vector_store"`
	ChunkSize    int    `envconfig:"CHUNK_SIZE" default:"200"`
	ChunkOverlap int    `envconfig:"CHUNK_OVERLAP" default:"50"`
	TopK         int    `envconfig:"TOP_K" default:"3"`

	// Messaging; an empty NSQD_HOST disables NSQ
	NSQDHost       string `envconfig:"NSQD_HOST"`
	NSQLookupd     string `envconfig:"NSQ_LOOKUPD"`
	NSQMaxAttempts uint16 `envconfig:"NSQ_MAX_ATTEMPTS" default:"5"`

	// Server
	ServerPort   int    `envconfig:"SERVER_PORT" default:"8081"`
	QueryLogPath string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`

	// Observability
	LogLevel          string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat         string `envconfig:"LOG_FORMAT" default:"json"`
	SentryDSN         string `envconfig:"SENTRY_DSN"`
	SentryEnvironment string `envconfig:"SENTRY_ENVIRONMENT" default:"development"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Ignore errors, as env vars might be set in the shell
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	_ = godotenv.Load(filepath.Join(cwd, "../../.env"))

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.EmbeddingProvider {
	case ProviderHashing:
		if c.EmbeddingDimension <= 0 {
			return fmt.Errorf("%w: EMBEDDING_DIMENSION must be positive", ErrInvalid)
		}
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY", ErrMissingRequired)
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY", ErrMissingRequired)
		}
	default:
		return fmt.Errorf("%w: unknown EMBEDDING_PROVIDER %q", ErrInvalid, c.EmbeddingProvider)
	}

	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: CHUNK_OVERLAP (%d) must be in [0, CHUNK_SIZE (%d))", ErrInvalid, c.ChunkOverlap, c.ChunkSize)
	}
	if c.TopK < 1 {
		return fmt.Errorf("%w: TOP_K must be at least 1", ErrInvalid)
	}
	if c.GenerationTemperature < 0 {
		return fmt.Errorf("%w: GENERATION_TEMPERATURE must not be negative", ErrInvalid)
	}
	if c.CorpusDir == "" {
		return fmt.Errorf("%w: CORPUS_DIR", ErrMissingRequired)
	}
	if c.IndexDir == "" {
		return fmt.Errorf("%w: INDEX_DIR", ErrMissingRequired)
	}
	return nil
}

func (c *Config) GenerationTimeout() time.Duration {
	return time.Duration(c.GenerationTimeoutSeconds) * time.Second
}

// MessagingEnabled reports whether NSQ is configured.
func (c *Config) MessagingEnabled() bool {
	return c.NSQDHost != ""
}
