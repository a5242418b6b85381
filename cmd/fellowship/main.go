// Command fellowship runs the church membership API and its maintenance
// tasks.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fellowship/internal/adapters/logging"
	"fellowship/internal/config"
)

const programName = "fellowship"

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

type rootOptions struct {
	configFile string
	debug      bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newRootCommand builds the command tree. Running it without a subcommand
// serves the API.
func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Church membership API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveRun(cmd)
		},
	}
	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "path to a YAML config file (or set "+config.EnvConfigFile+")")
	rootCmd.PersistentFlags().BoolVarP(&opts.debug, "debug", "D", false, "enable debug logging")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		cfg, err := config.Load(opts.configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if opts.debug {
			cfg.LogLevel = "debug"
		}
		cmd.SetContext(config.WithContext(cmd.Context(), cfg))
		return nil
	}

	rootCmd.AddCommand(
		serveCommand(),
		migrateCommand(),
		seedAdminCommand(),
		reportCommand(),
		versionCommand(),
	)
	return rootCmd
}

// setup returns the loaded config and a logger built from it.
func setup(cmd *cobra.Command) (*config.Config, *zap.SugaredLogger, error) {
	cfg := config.FromContext(cmd.Context())
	if cfg == nil {
		return nil, nil, fmt.Errorf("no config found in context")
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), programName, version)
		},
	}
}
