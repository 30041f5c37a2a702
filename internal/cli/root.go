package cli

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"medrag/internal/app"
	"medrag/internal/config"
	"medrag/internal/logger"
	"medrag/internal/middleware"
	"medrag/internal/telemetry"
)

// NewRootCmd builds the medrag command tree.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "medrag",
		Short: "Educational healthcare question answering over a local corpus",
		Long: `medrag indexes a directory of .txt and .pdf files and answers questions
from it with retrieval-augmented generation.

Configuration is read from the environment (and .env):
  CORPUS_DIR          corpus directory (default: data)
  INDEX_DIR           snapshot directory (default: vector_store)
  EMBEDDING_PROVIDER  hashing | gemini | openai (default: hashing)
  GEMINI_API_KEY      enables generated answers; without it answers use the fallback
  NSQD_HOST           enables index.rebuild / index.built messaging`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(IndexCmd())
	rootCmd.AddCommand(AskCmd())
	rootCmd.AddCommand(ServeCmd())
	rootCmd.AddCommand(WorkerCmd())
	return rootCmd
}

// session holds what every command sets up before doing its work.
type session struct {
	cfg   *config.Config
	deps  *app.Dependencies
	flush func()
}

func start(cmd *cobra.Command) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetDefault(cmd.ErrOrStderr(), cfg.LogFormat, cfg.LogLevel)

	flush, err := telemetry.Init(telemetry.Config{DSN: cfg.SentryDSN, Environment: cfg.SentryEnvironment})
	if err != nil {
		return nil, err
	}

	deps, err := app.Bootstrap(cmd.Context(), cfg)
	if err != nil {
		flush()
		return nil, err
	}
	return &session{cfg: cfg, deps: deps, flush: flush}, nil
}

func (s *session) Close() {
	s.deps.Close()
	s.flush()
}

// commandContext tags one-shot commands with a correlation id so their
// logs and query log entries can be grouped.
func commandContext(cmd *cobra.Command) context.Context {
	return middleware.WithCorrelationID(cmd.Context(), uuid.New().String())
}
