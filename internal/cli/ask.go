package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"medrag/internal/domain"
)

func AskCmd() *cobra.Command {
	var (
		topK       int
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the index",
		Long:  "Retrieves the closest passages and summarizes them. Run 'medrag index' first.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return errors.New("question is required")
			}
			if topK < 0 {
				return fmt.Errorf("--top-k must be positive, got %d", topK)
			}

			s, err := start(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			rec, err := s.deps.Pipeline.Answer(commandContext(cmd), question, topK)
			if err != nil {
				if errors.Is(err, domain.ErrIndexMissing) {
					return fmt.Errorf("%w (run 'medrag index' first)", err)
				}
				return err
			}

			out := cmd.OutOrStdout()
			if outputJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rec)
			}

			fmt.Fprintf(out, "%s\n", rec.Answer)
			if len(rec.Contexts) > 0 {
				fmt.Fprintf(out, "\nContexts (%s):\n", rec.Mode)
				for i, c := range rec.Contexts {
					fmt.Fprintf(out, "  [%d] %s\n", i+1, c)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of passages to retrieve (default TOP_K)")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "Output the answer record as JSON")
	return cmd
}
