package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"medrag/internal/telemetry"
)

func IndexCmd() *cobra.Command {
	var outputJSON bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build the index from CORPUS_DIR",
		Long:  "Loads every .txt and .pdf file in CORPUS_DIR, chunks and embeds it, and atomically replaces the snapshot in INDEX_DIR.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := start(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := commandContext(cmd)
			docs, err := s.deps.Loader.Load(ctx, s.cfg.CorpusDir)
			if err != nil {
				return fmt.Errorf("failed to load corpus: %w", err)
			}

			stats, err := s.deps.Pipeline.BuildIndex(ctx, docs)
			if err != nil {
				telemetry.CaptureError(ctx, err)
				return fmt.Errorf("index build failed: %w", err)
			}
			slog.InfoContext(ctx, "index written", "dir", s.cfg.IndexDir, "generation", stats.Generation)

			out := cmd.OutOrStdout()
			if outputJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}
			fmt.Fprintf(out, "Indexed %d documents into %d chunks (dimension %d, model %s) in %s\n",
				stats.Documents, stats.Chunks, stats.Dimension, stats.Model, stats.Duration.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().BoolVar(&outputJSON, "json", false, "Output build statistics as JSON")
	return cmd
}
