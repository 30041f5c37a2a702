package worker

import (
	"context"

	"medrag/internal/domain"
	"medrag/internal/pipeline"
)

type DocumentLoader interface {
	Load(ctx context.Context, dir string) ([]domain.Document, error)
}

type IndexBuilder interface {
	BuildIndex(ctx context.Context, docs []domain.Document) (*pipeline.BuildStats, error)
}

type IndexReloader interface {
	Reload(ctx context.Context) error
}

// TaskPublisher is satisfied by *nsq.Producer.
type TaskPublisher interface {
	Publish(topic string, body []byte) error
}
