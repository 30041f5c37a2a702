package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/nsqio/go-nsq"

	"medrag/internal/adapter/gemini"
	"medrag/internal/adapter/openai"
	"medrag/internal/config"
	"medrag/internal/embedding"
	"medrag/internal/loader"
	"medrag/internal/pipeline"
	"medrag/internal/retrieval"
	"medrag/internal/synthesis"
	"medrag/internal/text"
	"medrag/internal/vector"
	"medrag/internal/worker"
)

// Dependencies is everything a command needs to run the pipeline.
// Producer and Notifier are nil when messaging is disabled.
type Dependencies struct {
	Config   *config.Config
	Pipeline *pipeline.Pipeline
	Loader   *loader.Loader
	Producer *nsq.Producer
	Notifier *worker.Notifier

	closers []io.Closer
}

func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	deps := &Dependencies{Config: cfg, Loader: loader.New()}

	chunker, err := text.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	provider, err := NewEmbeddingProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("embedding provider error: %w", err)
	}
	if c, ok := provider.(io.Closer); ok {
		deps.closers = append(deps.closers, c)
	}
	encoder := embedding.NewBatchEncoder(provider, cfg.EmbedBatchSize, cfg.EmbedConcurrency)

	gen, err := NewGenerator(ctx, cfg)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("generator error: %w", err)
	}
	if c, ok := gen.(io.Closer); ok {
		deps.closers = append(deps.closers, c)
	}

	topics, err := synthesis.LoadTopics(cfg.FallbackTopicsFile)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("fallback topics error: %w", err)
	}
	synth := synthesis.New(gen, synthesis.Options{
		MaxTokens:   cfg.GenerationMaxTokens,
		Temperature: cfg.GenerationTemperature,
		Timeout:     cfg.GenerationTimeout(),
		Topics:      topics,
	})

	opts := pipeline.Options{
		DefaultTopK: cfg.TopK,
		QueryLogger: newQueryLogger(cfg.QueryLogPath),
	}

	if cfg.MessagingEnabled() {
		producer, err := ConnectProducer(ctx, cfg)
		if err != nil {
			deps.Close()
			return nil, err
		}
		deps.Producer = producer
		deps.Notifier = worker.NewNotifier(producer)
		opts.Notifier = deps.Notifier
	}

	deps.Pipeline = pipeline.New(chunker, encoder, synth, vector.NewStore(cfg.IndexDir), opts)

	slog.InfoContext(ctx, "pipeline ready",
		"embedding_model", encoder.ModelID(),
		"generation", gen != nil,
		"messaging", cfg.MessagingEnabled(),
	)
	return deps, nil
}

func (d *Dependencies) Close() {
	if d.Producer != nil {
		d.Producer.Stop()
	}
	for _, c := range d.closers {
		if err := c.Close(); err != nil {
			slog.Warn("failed to close dependency", "error", err)
		}
	}
}

// NewEmbeddingProvider picks the provider named by EMBEDDING_PROVIDER.
func NewEmbeddingProvider(ctx context.Context, cfg *config.Config) (embedding.Provider, error) {
	switch cfg.EmbeddingProvider {
	case config.ProviderHashing:
		return embedding.NewHashingProvider(cfg.EmbeddingDimension), nil
	case config.ProviderGemini:
		return gemini.NewEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel)
	case config.ProviderOpenAI:
		return openai.NewEmbedder(openai.Config{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.EmbeddingModel,
			BaseURL: cfg.OpenAIBaseURL,
		})
	default:
		return nil, fmt.Errorf("%w: unknown EMBEDDING_PROVIDER %q", config.ErrInvalid, cfg.EmbeddingProvider)
	}
}

// NewGenerator returns nil without a Gemini key; every answer then comes
// from the fallback path.
func NewGenerator(ctx context.Context, cfg *config.Config) (synthesis.Generator, error) {
	if cfg.GeminiAPIKey == "" {
		slog.WarnContext(ctx, "GEMINI_API_KEY not set, answers will use the fallback path")
		return nil, nil
	}
	g, err := gemini.NewGenerator(ctx, cfg.GeminiAPIKey, cfg.GenerationModel)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// newQueryLogger mirrors to stderr so stdout stays free for command output.
func newQueryLogger(path string) *retrieval.QueryLogger {
	if path == "" {
		return retrieval.NewQueryLogger(os.Stderr)
	}
	ql, err := retrieval.NewFileQueryLogger(path, os.Stderr)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stderr", "error", err)
		return retrieval.NewQueryLogger(os.Stderr)
	}
	return ql
}

// NSQConfig is the shared go-nsq configuration for producers and consumers.
func NSQConfig(cfg *config.Config) *nsq.Config {
	nsqCfg := nsq.NewConfig()
	if cfg.NSQMaxAttempts > 0 {
		nsqCfg.MaxAttempts = cfg.NSQMaxAttempts
	}
	return nsqCfg
}

func ConnectProducer(ctx context.Context, cfg *config.Config) (*nsq.Producer, error) {
	producer, err := nsq.NewProducer(cfg.NSQDHost, NSQConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("nsq producer error: %w", err)
	}
	delay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
	if err := PingWithRetry(ctx, producer.Ping, cfg.BootstrapRetryAttempts, delay); err != nil {
		producer.Stop()
		return nil, fmt.Errorf("failed to ping nsqd: %w", err)
	}
	return producer, nil
}

// PingWithRetry calls ping until it succeeds, attempts run out or ctx is
// done.
func PingWithRetry(ctx context.Context, ping func() error, attempts int, delay time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = ping(); err == nil {
			return nil
		}
		slog.WarnContext(ctx, "dependency not ready, retrying...", "attempt", i+1, "error", err)
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return err
}
