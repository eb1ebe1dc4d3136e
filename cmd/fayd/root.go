package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soullink/fay-gateway/internal/config"
	"github.com/soullink/fay-gateway/internal/version"
)

type globalFlags struct {
	root     string
	logLevel string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	cmd := &cobra.Command{
		Use:   "fayd",
		Short: "Digital human conversation service",
		Long: `fayd serves the OpenAI compatible chat endpoints used by the
digital human frontends, plus persona management and the message log.

Running fayd without a subcommand starts the server.`,
		Version:       version.Info(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), flags)
		},
	}
	cmd.SetVersionTemplate(fmt.Sprintf("fayd %s\n", version.FullInfo()))
	cmd.PersistentFlags().StringVar(&flags.root, "root", ".", "Directory holding .env and config/")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Override log level (debug|info|warn|error)")

	cmd.AddCommand(newServeCmd(flags))
	cmd.AddCommand(newModelsCmd(flags))
	cmd.AddCommand(newHistoryCmd(flags))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func (f *globalFlags) load() (config.Config, error) {
	cfg, err := config.Load(f.root)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.FullInfo())
		},
	}
}
