package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/lishuo8109/weibopilot/internal/config"
	"github.com/lishuo8109/weibopilot/internal/observability"
)

var (
	cfgFile string
	cfg     *config.Config
)

// NewRootCommand builds a fresh command tree. Configuration and logging are
// initialized before any subcommand runs.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "weibopilot",
		Short:         "Session orchestration engine for automated social accounts",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			loaded, err := config.Load(cfgFile)
			if err != nil {
				// Initialize a fallback logger so the failure is still visible.
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "weibopilot"})
				return err
			}
			cfg = loaded
			observability.InitializeLogger(cfg.Logger)
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (defaults plus WEIBOPILOT_* env when omitted)")
	root.AddCommand(newServeCommand())
	return root
}

// Execute runs the command tree under the given context.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}
