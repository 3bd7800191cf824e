package commands

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/coderag-go/internal/logging"
	"github.com/54b3r/coderag-go/internal/mcp"
	"github.com/54b3r/coderag-go/internal/tracing"
	"github.com/54b3r/coderag-go/internal/version"
)

// NewMCPCmd constructs the `coderag mcp` command, which serves the
// repository as Model Context Protocol tools over stdio.
func NewMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve search and question-answering as MCP tools over stdio",
		Long: `Run a Model Context Protocol server on stdin/stdout so editors and agents
can query the indexed repository. Logs go to stderr.

Tools:
  search_codebase       hybrid retrieval, no model call
  ask_codebase          answer a question, optionally within a session
  summarize_repository  HTML overview of CODERAG_REPO_DIR

Example client entry:
  {"command": "coderag", "args": ["mcp"]}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			flush, _ := tracing.Setup(settings.Tracing)
			defer flush()

			p, err := buildPipeline(settings, log, prometheus.NewRegistry())
			if err != nil {
				return fmt.Errorf("mcp: %w", err)
			}
			defer p.close()

			orch, err := p.orchestrator(ctx, settings)
			if err != nil {
				return fmt.Errorf("mcp: %w", err)
			}

			history, closeHistory := buildHistory(settings, log)
			defer closeHistory()

			srv, err := mcp.NewServer(orch, p.retriever, history, mcp.Config{
				Version: version.Version,
				Linker:  linker(settings),
				RepoDir: settings.Repo.Dir,
			})
			if err != nil {
				return fmt.Errorf("mcp: %w", err)
			}

			log.Info("mcp: serving on stdio", slog.String("store", settings.StoreBackend))
			return srv.Serve()
		},
	}

	return cmd
}
