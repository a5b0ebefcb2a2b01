package main

import (
	"fmt"
	"os"

	"github.com/aretw0/wmbridge/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "wmbridge",
	Short: "wmbridge keeps a symbolic working memory in sync with a robot's world model",
	Long: `wmbridge mirrors what a robot perceives into the input link of a symbolic
working memory and turns commands on the output link into robot actions.

The CLI drives a simulated robot described in the configuration file.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultPath, "Configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().String("log-level", "", "Override the configured log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "Override the configured log format (text, json)")
}
