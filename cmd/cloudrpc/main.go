package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const Version = "0.1.0"

var (
	rootCmd = &cobra.Command{
		Use:   "cloudrpc",
		Short: "Call procedures on a compute server",
		Long: fmt.Sprintf(`cloudrpc (v%s)

Calls procedures on a compute server over a persistent
WebSocket connection, one call at a time.`, Version),
		SilenceUsage: true,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of cloudrpc",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cloudrpc v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("codec", "json", "Message codec (json, msgpack)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
