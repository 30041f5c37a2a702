package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"medrag/internal/domain"
	"medrag/internal/retrieval"
	"medrag/internal/text"
	"medrag/internal/vector"
)

const DefaultTopK = 3

// Encoder embeds texts. The same Encoder serves indexing and querying, so
// both always share one embedding space.
type Encoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	ModelID() string
}

type Synthesizer interface {
	Synthesize(ctx context.Context, contexts []string, question string) (string, domain.AnswerMode)
}

// Notifier is told about every successfully persisted snapshot.
type Notifier interface {
	IndexBuilt(ctx context.Context, stats BuildStats) error
}

type BuildStats struct {
	Documents  int           `json:"documents"`
	Chunks     int           `json:"chunks"`
	Dimension  int           `json:"dimension"`
	Model      string        `json:"model"`
	Generation string        `json:"generation"`
	Duration   time.Duration `json:"-"`
}

type IndexStats struct {
	Chunks     int    `json:"chunks"`
	Sources    int    `json:"sources"`
	Dimension  int    `json:"dimension"`
	Model      string `json:"model"`
	Generation string `json:"generation"`
}

type Options struct {
	DefaultTopK int
	QueryLogger *retrieval.QueryLogger
	Notifier    Notifier
}

// Pipeline owns the index snapshot lifecycle: BuildIndex is the only writer,
// Answer and Search read whatever snapshot is current.
type Pipeline struct {
	chunker   *text.Chunker
	encoder   Encoder
	retriever *retrieval.Service
	synth     Synthesizer
	holder    *vector.Holder
	notifier  Notifier
	topK      int

	buildMu sync.Mutex
}

func New(chunker *text.Chunker, encoder Encoder, synth Synthesizer, store *vector.Store, opts Options) *Pipeline {
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = DefaultTopK
	}
	return &Pipeline{
		chunker:   chunker,
		encoder:   encoder,
		retriever: retrieval.NewService(encoder, opts.QueryLogger),
		synth:     synth,
		holder:    vector.NewHolder(store, encoder.ModelID()),
		notifier:  opts.Notifier,
		topK:      opts.DefaultTopK,
	}
}

// SetNotifier replaces the build notifier. It must be called before the
// pipeline is shared.
func (p *Pipeline) SetNotifier(n Notifier) { p.notifier = n }

func (p *Pipeline) DefaultTopK() int { return p.topK }

// BuildIndex normalizes, chunks and embeds docs and replaces the current
// snapshot. Concurrent builds are serialized.
func (p *Pipeline) BuildIndex(ctx context.Context, docs []domain.Document) (*BuildStats, error) {
	p.buildMu.Lock()
	defer p.buildMu.Unlock()

	start := time.Now()
	normalized := make([]domain.Document, len(docs))
	for i, d := range docs {
		normalized[i] = domain.Document{Source: d.Source, Content: text.Normalize(d.Content)}
	}

	chunks := p.chunker.ChunkDocuments(normalized)
	slog.InfoContext(ctx, "chunked corpus", "documents", len(docs), "chunks", len(chunks),
		"chunk_size", p.chunker.Size(), "overlap", p.chunker.Overlap())

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := p.encoder.Encode(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vecs) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vecs), len(chunks))
	}

	idx, err := vector.Build(vecs)
	if err != nil {
		return nil, err
	}
	snap := &vector.Snapshot{Index: idx, Chunks: chunks, ModelID: p.encoder.ModelID()}
	gen, err := p.holder.Store().Persist(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to persist index: %w", err)
	}
	p.holder.Set(snap)

	stats := BuildStats{
		Documents:  len(docs),
		Chunks:     len(chunks),
		Dimension:  idx.Dimension(),
		Model:      snap.ModelID,
		Generation: gen,
		Duration:   time.Since(start),
	}
	slog.InfoContext(ctx, "index built", "chunks", stats.Chunks, "dimension", stats.Dimension,
		"model", stats.Model, "generation", gen, "duration", stats.Duration)

	if p.notifier != nil {
		if err := p.notifier.IndexBuilt(ctx, stats); err != nil {
			slog.WarnContext(ctx, "failed to announce index build", "error", err)
		}
	}
	return &stats, nil
}

// Answer retrieves up to topK contexts for question and synthesizes an
// answer. topK 0 means the default. It fails with domain.ErrIndexMissing
// when no index has been built; it never builds one itself.
func (p *Pipeline) Answer(ctx context.Context, question string, topK int) (*domain.AnswerRecord, error) {
	passages, err := p.Search(ctx, question, topK)
	if err != nil {
		return nil, err
	}
	if len(passages) == 0 {
		return domain.NoAnswer(), nil
	}

	contexts := retrieval.Texts(passages)
	answer, mode := p.synth.Synthesize(ctx, contexts, question)
	return &domain.AnswerRecord{Answer: answer, Contexts: contexts, Mode: mode}, nil
}

// Search returns the retrieved passages without synthesis.
func (p *Pipeline) Search(ctx context.Context, question string, topK int) ([]domain.Passage, error) {
	if topK == 0 {
		topK = p.topK
	}
	snap, err := p.holder.Get(ctx)
	if err != nil {
		return nil, err
	}
	return p.retriever.Retrieve(ctx, snap, question, topK)
}

// Reload drops the cached snapshot and loads the current one from disk.
func (p *Pipeline) Reload(ctx context.Context) error {
	p.holder.Invalidate()
	snap, err := p.holder.Get(ctx)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "index reloaded", "generation", snap.Generation, "chunks", snap.Len())
	return nil
}

func (p *Pipeline) Stats(ctx context.Context) (*IndexStats, error) {
	snap, err := p.holder.Get(ctx)
	if err != nil {
		return nil, err
	}
	sources := make(map[string]struct{})
	for _, c := range snap.Chunks {
		sources[c.Source] = struct{}{}
	}
	return &IndexStats{
		Chunks:     snap.Len(),
		Sources:    len(sources),
		Dimension:  snap.Index.Dimension(),
		Model:      snap.ModelID,
		Generation: snap.Generation,
	}, nil
}
