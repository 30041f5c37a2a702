package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"medrag/internal/config"
	"medrag/internal/middleware"
	"medrag/internal/pipeline"
)

// Notifier publishes pipeline events to NSQ. It implements pipeline.Notifier.
type Notifier struct {
	publisher TaskPublisher
}

func NewNotifier(p TaskPublisher) *Notifier {
	return &Notifier{publisher: p}
}

func (n *Notifier) IndexBuilt(ctx context.Context, stats pipeline.BuildStats) error {
	body, err := json.Marshal(IndexBuiltPayload{
		CorrelationID: correlationID(ctx),
		Chunks:        stats.Chunks,
		Dimension:     stats.Dimension,
		Model:         stats.Model,
		Generation:    stats.Generation,
	})
	if err != nil {
		return err
	}
	if err := n.publisher.Publish(config.TopicIndexBuilt, body); err != nil {
		return fmt.Errorf("failed to publish %s: %w", config.TopicIndexBuilt, err)
	}
	return nil
}

// RequestRebuild enqueues an index rebuild and returns its correlation id.
func (n *Notifier) RequestRebuild(ctx context.Context) (string, error) {
	id := correlationID(ctx)
	body, err := json.Marshal(IndexRebuildPayload{CorrelationID: id, RequestedAt: time.Now().UTC()})
	if err != nil {
		return "", err
	}
	if err := n.publisher.Publish(config.TopicIndexRebuild, body); err != nil {
		return "", fmt.Errorf("failed to publish %s: %w", config.TopicIndexRebuild, err)
	}
	return id, nil
}

func correlationID(ctx context.Context) string {
	if id := middleware.GetCorrelationID(ctx); id != "unknown" {
		return id
	}
	return uuid.New().String()
}
