package gemini

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const DefaultEmbeddingModel = "gemini-embedding-001"

type Embedder struct {
	client *genai.Client
	model  string
}

func NewEmbedder(ctx context.Context, apiKey, model string, opts ...option.ClientOption) (*Embedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key not configured")
	}
	if model == "" {
		model = DefaultEmbeddingModel
	}
	opts = append(opts, option.WithAPIKey(apiKey))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Embedder{client: client, model: model}, nil
}

func (e *Embedder) ModelID() string {
	return "gemini:" + e.model
}

// Encode embeds the batch in one BatchEmbedContents call. Gemini caps a
// request at 100 texts, which is the default micro-batch size.
func (e *Embedder) Encode(ctx context.Context, batch []string) ([][]float32, error) {
	if len(batch) == 0 {
		return [][]float32{}, nil
	}
	slog.DebugContext(ctx, "embedding content", "model", e.model, "count", len(batch))

	em := e.client.EmbeddingModel(e.model)
	b := em.NewBatch()
	for _, text := range batch {
		b.AddContent(genai.Text(text))
	}

	res, err := em.BatchEmbedContents(ctx, b)
	if err != nil {
		slog.ErrorContext(ctx, "embedding failed", "error", err)
		return nil, err
	}
	if len(res.Embeddings) != len(batch) {
		return nil, fmt.Errorf("gemini returned %d embeddings for %d texts", len(res.Embeddings), len(batch))
	}

	out := make([][]float32, len(res.Embeddings))
	for i, emb := range res.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("empty embedding received at position %d", i)
		}
		out[i] = emb.Values
	}
	return out, nil
}

func (e *Embedder) Close() error {
	return e.client.Close()
}
