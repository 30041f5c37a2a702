package app

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"medrag/internal/config"
	"medrag/internal/worker"
)

// StartRebuildConsumer consumes index.rebuild one message at a time, so a
// single worker process is the only index writer.
func (d *Dependencies) StartRebuildConsumer() (*nsq.Consumer, error) {
	nsqCfg := NSQConfig(d.Config)
	nsqCfg.MaxInFlight = 1

	consumer, err := nsq.NewConsumer(config.TopicIndexRebuild, config.ChannelIndexBuilder, nsqCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create rebuild consumer: %w", err)
	}
	consumer.AddHandler(worker.NewRebuildConsumer(d.Loader, d.Pipeline, d.Config.CorpusDir))

	if err := connect(consumer, d.Config); err != nil {
		consumer.Stop()
		return nil, err
	}
	slog.Info("NSQ rebuild consumer connected", "topic", config.TopicIndexRebuild, "channel", config.ChannelIndexBuilder)
	return consumer, nil
}

// StartReloadConsumer subscribes this process to index.built on its own
// ephemeral channel, so every serving process reloads.
func (d *Dependencies) StartReloadConsumer() (*nsq.Consumer, error) {
	channel := "serve-" + uuid.New().String()[:8] + "#ephemeral"

	consumer, err := nsq.NewConsumer(config.TopicIndexBuilt, channel, NSQConfig(d.Config))
	if err != nil {
		return nil, fmt.Errorf("failed to create reload consumer: %w", err)
	}
	consumer.AddHandler(worker.NewReloadConsumer(d.Pipeline))

	if err := connect(consumer, d.Config); err != nil {
		consumer.Stop()
		return nil, err
	}
	slog.Info("NSQ reload consumer connected", "topic", config.TopicIndexBuilt, "channel", channel)
	return consumer, nil
}

func connect(c *nsq.Consumer, cfg *config.Config) error {
	if cfg.NSQLookupd != "" {
		if err := c.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
			return fmt.Errorf("failed to connect to NSQLookupd: %w", err)
		}
		return nil
	}
	if err := c.ConnectToNSQD(cfg.NSQDHost); err != nil {
		return fmt.Errorf("failed to connect to nsqd: %w", err)
	}
	return nil
}
