package main

import (
	"fmt"

	"github.com/aretw0/wmbridge/pkg/runner"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [script...]",
	Short: "Check the configuration and scripts for consistency",
	Long: `Loads the configuration file and every given script (plus the configured one)
and reports unknown verbs, units, policies and out-of-order cycles.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := runValidate(cmd, args); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid ✅")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	scripts := args
	if cfg.Script != "" {
		scripts = append([]string{cfg.Script}, scripts...)
	}
	for _, path := range scripts {
		if _, err := runner.LoadScript(path); err != nil {
			return err
		}
	}
	return nil
}

