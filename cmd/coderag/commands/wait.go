package commands

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/coderag-go/internal/logging"
	"github.com/54b3r/coderag-go/internal/rag"
)

// NewWaitCmd constructs the `coderag wait` command, which blocks until the
// indexer has written at least one chunk.
func NewWaitCmd() *cobra.Command {
	var attempts int
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "wait",
		Short: "Wait until the chunk store holds indexed code",
		Long: `Poll the chunk store until it holds at least one chunk, then exit 0.
Exits non-zero once every attempt is used. Useful as a container start
dependency while the external indexer runs.

Examples:
  coderag wait
  coderag wait --attempts 120 --interval 2s && coderag serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			cfg := settings.Wait
			if cmd.Flags().Changed("attempts") {
				cfg.Attempts = attempts
			}
			if cmd.Flags().Changed("interval") {
				cfg.Interval = interval
			}

			st, err := buildStore(settings)
			if err != nil {
				return fmt.Errorf("wait: %w", err)
			}
			defer func() { _ = st.Close() }()

			n, err := rag.WaitForIndex(ctx, st, cfg)
			if err != nil {
				return fmt.Errorf("wait: %w", err)
			}
			log.Info("wait: index ready", slog.Int64("chunks", n))
			fmt.Printf("index ready: %d chunks\n", n)
			return nil
		},
	}

	cmd.Flags().IntVar(&attempts, "attempts", 30, "Number of polls before giving up (overrides WAIT_ATTEMPTS)")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Delay between polls (overrides WAIT_INTERVAL)")

	return cmd
}
