package commands

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/coderag-go/internal/answer"
	"github.com/54b3r/coderag-go/internal/logging"
	"github.com/54b3r/coderag-go/internal/repo"
)

// NewSummarizeCmd constructs the `coderag summarize` command, which asks the
// model for an HTML overview of a local checkout.
func NewSummarizeCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Summarize a repository checkout from its README and file tree",
		Long: `Scan a local checkout, then send its README and a shallow file tree to the
answer model and print the HTML overview it writes.

Examples:
  coderag summarize
  coderag summarize --dir ~/src/widgets`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			if dir == "" {
				dir = settings.Repo.Dir
			}

			details, err := repo.Scan(dir, repo.Options{})
			if err != nil {
				return fmt.Errorf("summarize: %w", err)
			}
			readme, err := repo.ReadREADME(dir)
			if err != nil {
				log.Warn("summarize: README unreadable", slog.Any("error", err))
			}
			if strings.TrimSpace(readme) == "" {
				readme = "No README found."
			}

			p, err := buildPipeline(settings, log, prometheus.NewRegistry())
			if err != nil {
				return fmt.Errorf("summarize: %w", err)
			}
			defer p.close()

			orch, err := p.orchestrator(ctx, settings)
			if err != nil {
				return fmt.Errorf("summarize: %w", err)
			}

			summary := orch.Summarize(ctx, readme, details.Tree)
			fmt.Println(summary)
			if strings.HasPrefix(summary, answer.SummaryErrorPrefix) {
				return fmt.Errorf("summarize: model call failed")
			}

			fmt.Printf("\n%d files", details.TotalFiles)
			for _, e := range details.TopExtensions(5) {
				fmt.Printf(", %s: %d", e.Extension, e.Files)
			}
			fmt.Println()
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Repository checkout to summarize (default: CODERAG_REPO_DIR)")

	return cmd
}
