package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/coderag-go/internal/logging"
	"github.com/54b3r/coderag-go/internal/rag"
)

// NewSearchCmd constructs the `coderag search` command, which prints the
// merged retrieval context for a query without calling the answer model.
func NewSearchCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Show the code chunks retrieved for a query",
		Long: `Run hybrid retrieval for a query and print the merged context exactly as
the answer model would see it. No model is called.

Examples:
  coderag search "connection pool"
  coderag search --json "retry policy" | jq '.[].filename'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			p, err := buildPipeline(settings, log, prometheus.NewRegistry())
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			defer p.close()

			bundle := p.retriever.Retrieve(ctx, strings.Join(args, " "))

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				snippets := rag.Parse(bundle.Text())
				if snippets == nil {
					snippets = []rag.Snippet{}
				}
				return enc.Encode(snippets)
			}

			if bundle.Len() == 0 {
				fmt.Fprintln(os.Stderr, "no matching code found")
				return nil
			}
			fmt.Print(bundle.Text())
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the parsed snippets as JSON")

	return cmd
}
