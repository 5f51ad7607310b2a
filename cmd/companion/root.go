package main

import (
	"os"

	"github.com/spf13/cobra"
)

type globalFlags struct {
	addr  string
	token string
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "companion",
		Short:         "Jellyfin admin companion",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&flags.addr, "addr", envOr("COMPANION_ADDR", "http://localhost:8080"), "Base URL of a running companion server")
	rootCmd.PersistentFlags().StringVar(&flags.token, "token", os.Getenv("ADMIN_API_TOKEN"), "Admin API bearer token")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newCachesCommand(flags))
	rootCmd.AddCommand(newInvalidateCommand(flags))
	rootCmd.AddCommand(newClearCommand(flags))
	rootCmd.AddCommand(newJobsCommand(flags))

	return rootCmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
