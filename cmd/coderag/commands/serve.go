package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/coderag-go/internal/logging"
	"github.com/54b3r/coderag-go/internal/server"
	"github.com/54b3r/coderag-go/internal/tracing"
)

// NewServeCmd constructs the `coderag serve` command, which starts the HTTP
// API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the coderag HTTP API",
		Long: `Start the coderag HTTP API.

The server exposes chat (JSON or SSE), search, repository overview and session
endpoints under /api, liveness and readiness probes, and Prometheus metrics
on /metrics. Set CODERAG_API_KEY to require a bearer token on /api routes.

Examples:
  coderag serve
  coderag serve --port 9090
  STORE_BACKEND=qdrant coderag serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.FromContext(ctx)

			log.Info("serve starting",
				slog.String("store", settings.StoreBackend),
				slog.String("provider", string(settings.Provider.Backend)),
			)

			// Langfuse tracing is opt-in and a no-op if keys are absent.
			flush, ok := tracing.Setup(settings.Tracing)
			defer flush()
			if ok {
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY or LANGFUSE_SECRET_KEY not set"))
			}

			p, err := buildPipeline(settings, log, prometheus.DefaultRegisterer)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer p.close()

			orch, err := p.orchestrator(ctx, settings)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			history, closeHistory := buildHistory(settings, log)
			defer closeHistory()

			if cmd.Flags().Changed("host") {
				settings.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				settings.Server.Port = port
			}

			srv, err := server.New(orch, p.retriever, history, &server.Config{
				Host:      settings.Server.Host,
				Port:      settings.Server.Port,
				Logger:    log,
				Pingers:   buildPingers(settings, p, history),
				RateLimit: settings.Server.RateLimit,
				RateBurst: settings.Server.RateBurst,
				APIKey:    settings.Server.APIKey,
				Linker:    linker(settings),
				RepoDir:   settings.Repo.Dir,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (overrides CODERAG_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on (overrides CODERAG_PORT)")

	return cmd
}
