package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"imagehoster/internal/config"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:           "imagehoster",
		Short:         "Image hosting and resizing proxy",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			warning, err := configureLoggerForCLI(logLevel, cfg.LogLevel, cfg.LogOutput)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, warning)
			}
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newServeCmd(cfg),
		newConfigCmd(cfg),
		newUploadCmd(cfg),
		newDownloadCmd(cfg),
		newHealthCmd(cfg),
	)

	return cmd
}
