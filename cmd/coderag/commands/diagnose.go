package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/coderag-go/internal/logging"
	"github.com/54b3r/coderag-go/internal/server"
)

// NewDiagnoseCmd constructs the `coderag diagnose` command, which runs the
// same dependency probes as GET /api/ready and prints the results.
func NewDiagnoseCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Check that the chunk store, index, embedder and history are reachable",
		Long: `Probe every configured dependency and report its status and latency.
The checks match the HTTP readiness probe. The answer model is not called.

Exits non-zero when any probe fails.

Examples:
  coderag diagnose
  STORE_BACKEND=sqlite coderag diagnose --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			p, err := buildPipeline(settings, log, prometheus.NewRegistry())
			if err != nil {
				return fmt.Errorf("diagnose: %w", err)
			}
			defer p.close()

			history, closeHistory := buildHistory(settings, log)
			defer closeHistory()

			checks, ok := server.Probe(ctx, buildPingers(settings, p, history))

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(checks); err != nil {
					return fmt.Errorf("diagnose: %w", err)
				}
			} else {
				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "DEPENDENCY\tSTATUS\tLATENCY\tERROR")
				for _, c := range checks {
					status := "ok"
					if !c.OK {
						status = "FAIL"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.Name, status, c.Latency.Round(time.Millisecond), c.Error)
				}
				_ = tw.Flush()
			}

			if !ok {
				return fmt.Errorf("diagnose: one or more dependencies are not ready")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the probe results as JSON")

	return cmd
}
