package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/nsqio/go-nsq"

	"medrag/internal/domain"
	"medrag/internal/middleware"
)

// ReloadConsumer handles index.built messages by reloading the serving
// pipeline's snapshot.
type ReloadConsumer struct {
	reloader IndexReloader
}

func NewReloadConsumer(r IndexReloader) *ReloadConsumer {
	return &ReloadConsumer{reloader: r}
}

func (h *ReloadConsumer) HandleMessage(m *nsq.Message) error {
	var payload IndexBuiltPayload
	if len(m.Body) > 0 {
		if err := json.Unmarshal(m.Body, &payload); err != nil {
			// A malformed announcement still means something was built
			slog.Warn("invalid index.built payload, reloading anyway", "error", err)
		}
	}

	ctx := context.Background()
	if payload.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, payload.CorrelationID)
	}

	if err := h.reloader.Reload(ctx); err != nil {
		if errors.Is(err, domain.ErrIndexMissing) || errors.Is(err, domain.ErrIndexCorrupt) {
			slog.ErrorContext(ctx, "announced index could not be loaded", "error", err, "generation", payload.Generation)
			return nil
		}
		return err // Retry
	}
	slog.InfoContext(ctx, "serving new index", "generation", payload.Generation, "chunks", payload.Chunks)
	return nil
}
