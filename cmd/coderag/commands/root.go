// Package commands defines all Cobra CLI commands for the coderag binary.
package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/coderag-go/internal/audit"
	"github.com/54b3r/coderag-go/internal/config"
	"github.com/54b3r/coderag-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// envFile holds the --env-file flag value.
var envFile string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// settings is resolved once by the root PersistentPreRunE and read by every
// subcommand.
var settings *config.Settings

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "coderag",
		Short: "coderag: ask questions about an indexed code repository",
		Long: `coderag answers natural language questions about a code repository whose
chunks and embeddings were written to a vector store by an external indexer.

Each question runs a semantic search and a keyword search side by side, merges
the hits into a labelled context and asks a chat model to answer from it.

The store backend is selected with STORE_BACKEND (postgres, qdrant, sqlite)
and the answer model with MODEL_PROVIDER, either as environment variables, in
a .env file or in a YAML config file (~/.coderag/config.yaml).
See 'coderag --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			bootLog := logging.New("info", "json")

			// Neither layer overwrites a variable that is already set, so
			// applying YAML before .env gives env > YAML > .env.
			path, err := config.Load(configPath, bootLog)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			var files []string
			if envFile != "" {
				files = append(files, envFile)
			}
			if err := config.LoadDotEnv(bootLog, files...); err != nil {
				return err
			}

			s, err := config.FromEnv()
			if err != nil {
				return err
			}
			settings = s

			log := logging.New(s.LogLevel, s.LogFormat)
			slog.SetDefault(log)
			cmd.SetContext(logging.WithLogger(cmd.Context(), log))

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.coderag/config.yaml)")
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to a dotenv file (default: ./.env)")

	root.AddCommand(
		NewAskCmd(),
		NewChatCmd(),
		NewSearchCmd(),
		NewSummarizeCmd(),
		NewServeCmd(),
		NewMCPCmd(),
		NewWaitCmd(),
		NewDiagnoseCmd(),
		NewVersionCmd(),
	)

	return root
}
