package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	var opts globalOptions
	rootCmd := &cobra.Command{
		Use:           "nexus",
		Short:         "Nexus - project, task and defect hub across tracking tools",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ~/.config/nexus/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level")

	rootCmd.AddCommand(serveCmd(&opts))
	rootCmd.AddCommand(connectionCmd(&opts))
	rootCmd.AddCommand(discoverCmd(&opts))
	rootCmd.AddCommand(admitCmd(&opts))
	rootCmd.AddCommand(syncCmd(&opts))
	rootCmd.AddCommand(authCmd(&opts))
	rootCmd.AddCommand(configCmd(&opts))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
