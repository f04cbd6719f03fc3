// Package commands defines all Cobra CLI commands for the reqpilot binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/reqpilot-go/internal/audit"
	"github.com/54b3r/reqpilot-go/internal/config"
	"github.com/54b3r/reqpilot-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "reqpilot",
		Short: "ReqPilot — requirement analysis powered by LLMs and your delivery history",
		Long: `ReqPilot turns a free-text requirement into an engineering analysis:
impacted modules, an effort estimate, a design document, and user stories.

Each analysis is grounded in your own delivery history — similar past work
items are retrieved from a Qdrant knowledge base by fusing embedding
similarity with keyword overlap, and injected into every generation step.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.reqpilot/config.yaml).
See 'reqpilot --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.reqpilot/config.yaml)")

	root.AddCommand(
		NewAnalyzeCmd(),
		NewSearchCmd(),
		NewIngestCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
