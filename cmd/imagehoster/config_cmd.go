package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"imagehoster/internal/config"
	"imagehoster/internal/format"
)

func newConfigCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show, get or set configuration",
	}

	cmd.AddCommand(newConfigShowCmd(cfg))
	cmd.AddCommand(newConfigGetCmd(cfg))
	cmd.AddCommand(newConfigSetCmd())
	return cmd
}

func newConfigShowCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			shown := *cfg
			if shown.S3.SecretKey != "" {
				shown.S3.SecretKey = config.MaskedSecret
			}
			return format.TOMLFormatter{}.Write(os.Stdout, shown)
		},
	}
}

func newConfigGetCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a config value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if !config.IsAllowedKey(key) {
				return fmt.Errorf("unknown key: %s (allowed: %v)", key, config.AllowedKeys())
			}
			value, err := cfg.Get(key)
			if err != nil {
				return err
			}
			return writePlain("%s\n", value)
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a config value in the config file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := file
			if path == "" {
				var err error
				if path, err = config.Path(); err != nil {
					return err
				}
			}
			return config.SetKey(path, args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "config file to write (default $IMAGEHOSTER_CONFIG or ./imagehoster.toml)")
	return cmd
}
