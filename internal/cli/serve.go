package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"medrag/internal/app"
)

func ServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP and MCP API",
		Long: `Serves POST /ask, POST /index, GET /stats, GET /health and the MCP endpoints
on SERVER_PORT. With NSQD_HOST set, POST /index enqueues a rebuild for the
worker and the server reloads whenever index.built is announced.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := start(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if s.cfg.MessagingEnabled() {
				consumer, err := s.deps.StartReloadConsumer()
				if err != nil {
					return err
				}
				defer func() {
					consumer.Stop()
					<-consumer.StopChan
				}()
			}

			if err := s.deps.Pipeline.Reload(cmd.Context()); err != nil {
				slog.Warn("no index loaded at startup", "error", err)
			}

			return app.FromDependencies(s.deps).Run(cmd.Context())
		},
	}
}
