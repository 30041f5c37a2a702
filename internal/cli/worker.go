package cli

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"
)

func WorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume index.rebuild requests from NSQ",
		Long:  "Rebuilds the index from CORPUS_DIR for every index.rebuild message and announces the result on index.built. Requires NSQD_HOST.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := start(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if !s.cfg.MessagingEnabled() {
				return errors.New("worker requires NSQD_HOST")
			}

			consumer, err := s.deps.StartRebuildConsumer()
			if err != nil {
				return err
			}

			<-cmd.Context().Done()
			slog.Info("stopping worker...")
			consumer.Stop()
			<-consumer.StopChan
			return nil
		},
	}
}
