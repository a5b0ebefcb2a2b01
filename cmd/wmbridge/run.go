package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aretw0/wmbridge/internal/presentation/tui"
	"github.com/aretw0/wmbridge/pkg/domain"
	"github.com/aretw0/wmbridge/pkg/runner"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run decision cycles against the simulated robot",
	Long: `Runs the bridge loop (input phase, reasoning step, output phase) over the
simulated robot described in the configuration file.

With --script, commands are placed on the output link by a scripted reasoning
engine; without it the engine stays idle and only perception is mirrored.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		scriptPath, _ := cmd.Flags().GetString("script")
		if scriptPath == "" {
			scriptPath = a.cfg.Script
		}
		cycles, _ := cmd.Flags().GetUint64("cycles")
		period, _ := cmd.Flags().GetDuration("period")
		if !cmd.Flags().Changed("period") {
			period = a.cfg.CycleDuration()
		}
		httpAddr, _ := cmd.Flags().GetString("http")
		trace, _ := cmd.Flags().GetBool("trace")
		jsonMode, _ := cmd.Flags().GetBool("json")

		engine, err := a.engine(scriptPath)
		if err != nil {
			return err
		}
		if scriptPath == "" && cycles == 0 && httpAddr == "" {
			return fmt.Errorf("nothing to do: pass --script, --cycles or --http")
		}

		interactive := !jsonMode && term.IsTerminal(int(os.Stdout.Fd()))
		if interactive {
			tui.PrintBanner(os.Stdout)
		}
		printer := tui.NewTreePrinter(os.Stdout)

		opts := []runner.Option{
			runner.WithPeriod(period),
			runner.WithMaxCycles(cycles),
			runner.WithLogger(a.logger),
		}
		if trace && !jsonMode {
			opts = append(opts, runner.WithOnCycle(func(_ context.Context, _ uint64, snap *domain.Snapshot) {
				printer.Print(snap)
			}))
		}
		r := runner.NewRunner(a.bridge, engine, opts...)

		signals := runner.NewSignalManager(cmd.Context())
		defer signals.Stop()

		loopCtx, cancel := context.WithCancel(signals.Context())
		defer cancel()

		var ran uint64
		g, ctx := errgroup.WithContext(loopCtx)
		g.Go(func() error { return a.forward(ctx) })
		if httpAddr != "" {
			g.Go(func() error { return a.serveHTTP(ctx, httpAddr) })
		}
		g.Go(func() error {
			// With an HTTP server attached, serving continues until a signal.
			defer func() {
				if httpAddr == "" {
					cancel()
				}
			}()
			var err error
			ran, err = r.Run(ctx)
			return err
		})
		if err := g.Wait(); err != nil {
			return err
		}

		snap := a.bridge.Snapshot()
		stats := a.bridge.Stats()
		a.logger.Info("run finished", "cycles", ran, "objects", stats.Objects, "faces", stats.Faces, "writes", stats.Writes)

		if jsonMode {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(snap); err != nil {
				return err
			}
		} else if !trace {
			printer.Print(snap)
		}

		closeCtx, cancelClose := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelClose()
		return a.bridge.Close(closeCtx)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("script", "s", "", "Scripted reasoning engine (YAML). Defaults to the configured script")
	runCmd.Flags().Uint64("cycles", 0, "Stop after this many cycles (0 = until the script is done or a signal)")
	runCmd.Flags().Duration("period", 0, "Minimum cycle duration (defaults to the configured cycle)")
	runCmd.Flags().String("http", "", "Also serve the introspection API on this address")
	runCmd.Flags().Bool("trace", false, "Print the input link after every cycle")
	runCmd.Flags().Bool("json", false, "Print the final input link as JSON")
}
