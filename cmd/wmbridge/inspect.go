package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/aretw0/wmbridge/internal/presentation/graph"
	"github.com/aretw0/wmbridge/internal/presentation/tui"
	"github.com/aretw0/wmbridge/pkg/domain"
	"github.com/aretw0/wmbridge/pkg/runner"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print the input link of the simulated robot",
	Long: `Runs a few input phases against the simulated robot and prints the resulting
input link. With --stored, prints the snapshot persisted for the agent instead.

Formats: tree (default), json, flat, mermaid.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		cycles, _ := cmd.Flags().GetUint64("cycles")
		format, _ := cmd.Flags().GetString("format")
		stored, _ := cmd.Flags().GetBool("stored")
		highlight, _ := cmd.Flags().GetStringSlice("highlight")

		var snap *domain.Snapshot
		if stored {
			snap, err = a.store.Load(cmd.Context(), a.bridge.Agent())
			if err != nil {
				return fmt.Errorf("load snapshot of %q: %w", a.bridge.Agent(), err)
			}
		} else {
			r := runner.NewRunner(a.bridge, idleEngine{},
				runner.WithMaxCycles(cycles),
				runner.WithLogger(a.logger),
			)
			if _, err := r.Run(cmd.Context()); err != nil {
				return err
			}
			snap = a.bridge.Snapshot()
		}

		if err := printSnapshot(cmd.OutOrStdout(), snap, format, highlight); err != nil {
			return err
		}
		return a.bridge.Close(context.WithoutCancel(cmd.Context()))
	},
}

func printSnapshot(w io.Writer, snap *domain.Snapshot, format string, highlight []string) error {
	switch format {
	case "tree":
		tui.NewTreePrinter(w).Print(snap)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	case "flat":
		flat := snap.Flatten()
		paths := make([]string, 0, len(flat))
		for p := range flat {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, p := range paths {
			fmt.Fprintf(w, "%s = %s\n", p, flat[p])
		}
	case "mermaid":
		var overlay *graph.Overlay
		if len(highlight) > 0 {
			overlay = &graph.Overlay{Highlight: highlight}
		}
		fmt.Fprint(w, graph.GenerateMermaid(snap, overlay))
	default:
		return fmt.Errorf("unknown format %q (tree, json, flat, mermaid)", format)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().Uint64("cycles", 1, "Input phases to run before printing")
	inspectCmd.Flags().StringP("format", "f", "tree", "Output format: tree, json, flat or mermaid")
	inspectCmd.Flags().Bool("stored", false, "Print the persisted snapshot of the configured agent")
	inspectCmd.Flags().StringSlice("highlight", nil, "Attribute paths to highlight (mermaid only)")
}
