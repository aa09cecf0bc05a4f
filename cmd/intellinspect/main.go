// cmd/intellinspect/main.go
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "intellinspect",
		Short: "Replay manufacturing datasets against a quality model",
		Long: `Ingests timestamped sensor datasets, validates training/testing/simulation
partitions and replays the simulation window row by row against the ML service,
tracking predictions, alerts and a running quality score.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (YAML)")

	serve := serveCmd()
	rootCmd.AddCommand(serve)
	rootCmd.AddCommand(profileCmd())
	rootCmd.AddCommand(partitionCmd())

	// serve is the default
	rootCmd.RunE = serve.RunE

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
