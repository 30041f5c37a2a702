package embedding

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Provider maps a batch of texts to fixed-dimension vectors, one per input
// and in input order. Encoding is deterministic for a given ModelID.
type Provider interface {
	Encode(ctx context.Context, batch []string) ([][]float32, error)
	ModelID() string
}

// BatchEncoder splits large inputs into micro-batches and encodes them
// concurrently. Output order always matches input order.
type BatchEncoder struct {
	provider    Provider
	batchSize   int
	concurrency int
}

func NewBatchEncoder(p Provider, batchSize, concurrency int) *BatchEncoder {
	if batchSize <= 0 {
		batchSize = 100
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &BatchEncoder{provider: p, batchSize: batchSize, concurrency: concurrency}
}

func (b *BatchEncoder) ModelID() string {
	return b.provider.ModelID()
}

func (b *BatchEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, len(texts))
	batches := (len(texts) + b.batchSize - 1) / b.batchSize

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	for n := 0; n < batches; n++ {
		start := n * b.batchSize
		end := min(start+b.batchSize, len(texts))
		g.Go(func() error {
			slog.DebugContext(gctx, "embedding batch", "batch", n+1, "of", batches, "size", end-start, "model", b.provider.ModelID())
			vecs, err := b.provider.Encode(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embedding batch %d/%d: %w", n+1, batches, err)
			}
			if len(vecs) != end-start {
				return fmt.Errorf("embedding batch %d/%d: got %d vectors for %d texts", n+1, batches, len(vecs), end-start)
			}
			// each goroutine owns a disjoint range of out
			copy(out[start:end], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	dim := len(out[0])
	for i, v := range out {
		if len(v) != dim {
			return nil, fmt.Errorf("embedding %d has dimension %d, expected %d", i, len(v), dim)
		}
	}
	return out, nil
}
