package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/coderag-go/internal/answer"
	"github.com/54b3r/coderag-go/internal/logging"
)

// NewAskCmd constructs the `coderag ask` command, which answers a single
// question and prints the answer with its sources to stdout.
func NewAskCmd() *cobra.Command {
	var followUp string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a single question about the indexed repository",
		Long: `Ask a natural language question about the indexed repository.

The question is answered from the chunks that semantic and keyword search
retrieve. When nothing relevant is indexed the model is not called.

Examples:
  coderag ask "where is the HTTP router configured?"
  coderag ask "how are database migrations applied?"
  coderag ask --follow-up "Security Check"`,
		Args: func(cmd *cobra.Command, args []string) error {
			if followUp == "" && len(args) == 0 {
				return fmt.Errorf("ask: a question or --follow-up is required")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			question := strings.Join(args, " ")
			if followUp != "" {
				q, ok := answer.FollowUpQuery(followUp)
				if !ok {
					return fmt.Errorf("ask: unknown follow-up %q", followUp)
				}
				question = q
			}

			p, err := buildPipeline(settings, log, prometheus.NewRegistry())
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer p.close()

			orch, err := p.orchestrator(ctx, settings)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			res := orch.Answer(ctx, question, nil)
			printAnswer(os.Stdout, res, linker(settings))
			if res.Outcome == answer.OutcomeFailed || res.Outcome == answer.OutcomeQuotaExhausted {
				return fmt.Errorf("ask: %s", res.Outcome)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&followUp, "follow-up", "", `Run a canned follow-up instead of a question ("Explain Concepts", "Generate Test", "Security Check")`)

	return cmd
}
