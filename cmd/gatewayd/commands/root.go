// Package commands implements the gatewayd CLI: a cobra root command
// with a serve subcommand (runs the HTTP gateway) and a keys subcommand
// (mints a signing key without starting a server).
package commands

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "gatewayd",
	Short:         "Fastly pub/sub gateway: MQTT-over-HTTP, SSE, and retained-message storage",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the gateway's YAML config file (defaults built in if omitted)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(keysCmd)
}
