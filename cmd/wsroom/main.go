package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "wsroom",
		Short: "Real-time room client and development room server",
		Long: `wsroom connects to a room server, joins rooms and prints the
control events it receives. It reconnects on its own and re-joins
every room after each reconnect.

It also ships a small room server for local development.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")

	load := func() (*config, error) {
		return readConfig(configPath)
	}

	cmd.AddCommand(
		listenCmd(load),
		serveCmd(load),
		versionCmd(),
	)
	return cmd
}
