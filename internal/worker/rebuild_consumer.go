package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"medrag/internal/domain"
	"medrag/internal/middleware"
	"medrag/internal/telemetry"
)

const defaultRebuildTimeout = 30 * time.Minute

// RebuildConsumer handles index.rebuild messages. It must run with
// MaxInFlight 1 so that builds never overlap.
type RebuildConsumer struct {
	loader    DocumentLoader
	builder   IndexBuilder
	corpusDir string
	timeout   time.Duration
}

func NewRebuildConsumer(l DocumentLoader, b IndexBuilder, corpusDir string) *RebuildConsumer {
	return &RebuildConsumer{
		loader:    l,
		builder:   b,
		corpusDir: corpusDir,
		timeout:   defaultRebuildTimeout,
	}
}

func (h *RebuildConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload IndexRebuildPayload
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		// Poison Pill: Invalid JSON, don't retry
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}

	correlationID := payload.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	slog.InfoContext(ctx, "index rebuild requested", "corpus_dir", h.corpusDir, "requested_at", payload.RequestedAt)

	docs, err := h.loader.Load(ctx, h.corpusDir)
	if err != nil {
		// Missing or unreadable corpus dir will not fix itself on retry
		slog.ErrorContext(ctx, "failed to load corpus", "error", err)
		telemetry.CaptureError(ctx, err)
		return nil
	}

	stats, err := h.builder.BuildIndex(ctx, docs)
	if err != nil {
		telemetry.CaptureError(ctx, err)
		if domain.Code(err) != "" {
			slog.ErrorContext(ctx, "index rebuild failed permanently", "error", err)
			return nil
		}
		slog.ErrorContext(ctx, "index rebuild failed, will retry", "error", err, "attempts", m.Attempts)
		return err // Retry
	}

	slog.InfoContext(ctx, "index rebuild complete", "chunks", stats.Chunks, "generation", stats.Generation)
	return nil
}
