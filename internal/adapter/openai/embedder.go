package openai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const DefaultEmbeddingModel = openai.SmallEmbedding3

var (
	// ErrNoAPIKey is returned when no OpenAI API key is configured.
	ErrNoAPIKey = errors.New("openai api key not configured")
	// ErrWrongDimensions is returned when the API returns vectors of an unexpected size.
	ErrWrongDimensions = errors.New("embedding has wrong dimensions")
)

// EmbeddingAPI is the subset of the OpenAI client used here.
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

type Config struct {
	APIKey     string
	Model      string
	Dimensions int
	BaseURL    string
}

// Embedder implements embedding.Provider on the OpenAI embeddings endpoint.
type Embedder struct {
	api        EmbeddingAPI
	model      openai.EmbeddingModel
	dimensions int
}

func NewEmbedder(cfg Config) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return NewEmbedderWithAPI(openai.NewClientWithConfig(clientCfg), cfg.Model, cfg.Dimensions), nil
}

func NewEmbedderWithAPI(api EmbeddingAPI, model string, dimensions int) *Embedder {
	m := openai.EmbeddingModel(model)
	if m == "" {
		m = DefaultEmbeddingModel
	}
	return &Embedder{api: api, model: m, dimensions: dimensions}
}

func (e *Embedder) ModelID() string {
	return "openai:" + string(e.model)
}

func (e *Embedder) Encode(ctx context.Context, batch []string) ([][]float32, error) {
	if len(batch) == 0 {
		return [][]float32{}, nil
	}

	resp, err := e.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      batch,
		Model:      e.model,
		Dimensions: e.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(resp.Data) != len(batch) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d texts", len(resp.Data), len(batch))
	}

	// Data carries its own index; do not trust response order.
	out := make([][]float32, len(batch))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("openai returned out of range index %d", d.Index)
		}
		if e.dimensions > 0 && len(d.Embedding) != e.dimensions {
			return nil, fmt.Errorf("%w: got %d, expected %d", ErrWrongDimensions, len(d.Embedding), e.dimensions)
		}
		out[d.Index] = d.Embedding
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("openai returned no embedding for position %d", i)
		}
	}
	return out, nil
}
