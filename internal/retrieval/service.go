package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"medrag/internal/domain"
	"medrag/internal/middleware"
	"medrag/internal/vector"
)

// Embedder must be the same provider configuration the index was built with.
type Embedder interface {
	Encode(ctx context.Context, batch []string) ([][]float32, error)
}

// Index is a searchable snapshot: search hits address Chunks by position.
type Index interface {
	Search(query []float32, k int) ([]vector.Hit, error)
	Len() int
}

// Snapshot is an Index together with its positional chunk metadata.
type Snapshot interface {
	Index
	ChunkAt(pos int) (domain.Chunk, bool)
}

type Service struct {
	embedder Embedder
	logger   *QueryLogger
}

func NewService(e Embedder, l *QueryLogger) *Service {
	return &Service{embedder: e, logger: l}
}

// Retrieve embeds question and returns up to topK passages from snap by
// ascending distance. Hits that do not map to a chunk are dropped; an empty
// result is not an error.
func (s *Service) Retrieve(ctx context.Context, snap Snapshot, question string, topK int) ([]domain.Passage, error) {
	start := time.Now()
	var passages []domain.Passage
	var err error

	defer func() {
		if s.logger != nil && err == nil {
			s.logger.Log(QueryLogEntry{
				Query:         question,
				TopK:          topK,
				NumResults:    len(passages),
				Duration:      time.Since(start),
				CorrelationID: middleware.GetCorrelationID(ctx),
			})
		}
	}()

	if topK < 1 {
		err = domain.InvalidConfiguration("top_k must be at least 1, got %d", topK)
		return nil, err
	}

	passages = []domain.Passage{}
	if snap.Len() == 0 {
		return passages, nil
	}

	// 1. Embed query
	vecs, err := s.embedder.Encode(ctx, []string{question})
	if err != nil {
		err = fmt.Errorf("failed to embed question: %w", err)
		return nil, err
	}
	if len(vecs) != 1 {
		err = fmt.Errorf("embedder returned %d vectors for one question", len(vecs))
		return nil, err
	}

	// 2. Exact nearest-neighbor search
	hits, err := snap.Search(vecs[0], topK)
	if err != nil {
		return nil, err
	}

	// 3. Map positions back to chunks
	for _, h := range hits {
		c, ok := snap.ChunkAt(h.Position)
		if !ok {
			slog.WarnContext(ctx, "dropping search hit outside chunk metadata", "position", h.Position, "chunks", snap.Len())
			continue
		}
		passages = append(passages, domain.Passage{Chunk: c, Distance: h.Distance})
	}
	return passages, nil
}

// Texts returns the chunk texts of passages in order.
func Texts(passages []domain.Passage) []string {
	out := make([]string, len(passages))
	for i, p := range passages {
		out[i] = p.Text
	}
	return out
}
