package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"imagehoster/internal/api"
	"imagehoster/internal/chain"
	"imagehoster/internal/config"
	"imagehoster/internal/contentkey"
)

const uploadKeyEnvKey = "IMAGEHOSTER_UPLOAD_KEY"

func addServerFlag(cmd *cobra.Command, cfg *config.Config, target *string) {
	cmd.Flags().StringVar(target, "server", cfg.ServiceURL, "imagehoster base URL")
}

func newUploadCmd(cfg *config.Config) *cobra.Command {
	var (
		serverURL string
		account   string
		name      string
	)

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Sign and upload an image",
		Long:  "Sign and upload an image. The posting key (WIF or hex) is read from " + uploadKeyEnvKey + ".",
		Args:  requireExactlyArgs(1, "file is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(account) == "" {
				return fmt.Errorf("--account is required")
			}
			key, err := chain.ParsePrivateKey(os.Getenv(uploadKeyEnvKey))
			if err != nil {
				return fmt.Errorf("%s: %w", uploadKeyEnvKey, err)
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if name == "" {
				name = filepath.Base(args[0])
			}

			signature := chain.SignCompact(key, contentkey.Challenge(data))
			resp, err := api.NewClient(serverURL).Upload(cmd.Context(), account, signature.String(), name, data)
			if err != nil {
				return err
			}
			return writePlain("%s\n", resp.URL)
		},
	}

	addServerFlag(cmd, cfg, &serverURL)
	cmd.Flags().StringVar(&account, "account", "", "uploading account name")
	cmd.Flags().StringVar(&name, "name", "", "filename in the returned URL (default: base name of file)")
	return cmd
}

func newDownloadCmd(cfg *config.Config) *cobra.Command {
	var (
		serverURL string
		output    string
	)

	cmd := &cobra.Command{
		Use:   "download <path>",
		Short: "Fetch an upload or proxied image",
		Args:  requireExactlyArgs(1, "path is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			var w io.Writer = os.Stdout
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			contentType, err := api.NewClient(serverURL).Download(cmd.Context(), args[0], w)
			if err != nil {
				return err
			}
			if output != "" && output != "-" {
				fmt.Fprintf(os.Stderr, "%s (%s)\n", output, contentType)
			}
			return nil
		},
	}

	addServerFlag(cmd, cfg, &serverURL)
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func newHealthCmd(cfg *config.Config) *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query a server's health check",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := api.NewClient(serverURL).Health(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(resp)
		},
	}

	addServerFlag(cmd, cfg, &serverURL)
	return cmd
}

func requireExactlyArgs(count int, message string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != count {
			return fmt.Errorf("%s", message)
		}
		return nil
	}
}
