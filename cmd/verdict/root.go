package main

import (
	"github.com/spf13/cobra"

	"github.com/23skdu/longbow-verdict/internal/config"
	"github.com/23skdu/longbow-verdict/internal/logger"
)

var (
	cfgFile   string
	activeCfg config.Config

	// exitCode is the process status after a successful command.
	exitCode int
)

func NewRootCmd() *cobra.Command {
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:           "verdict",
		Short:         "Validate tensor contraction kernels against a host reference",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(config.LoadOptions{
				Cmd:        cmd,
				ConfigFile: cfgFile,
				Defaults:   defaults,
			})
			if err != nil {
				return err
			}
			activeCfg = loaded
			logger.Setup(loaded.Report.LogLevel, loaded.Report.LogFormat)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Optional config file (yaml|toml|json)")
	config.RegisterFlags(cmd.PersistentFlags(), defaults)

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newTypesCmd())

	return cmd
}
