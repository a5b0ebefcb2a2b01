package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/wmbridge"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of wmbridge",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "wmbridge version %s\n", strings.TrimSpace(wmbridge.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
