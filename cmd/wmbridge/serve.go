package main

import (
	"context"
	"time"

	"github.com/aretw0/wmbridge/pkg/runner"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the introspection HTTP server",
	Long: `Keeps the input link of the simulated robot in sync and exposes it over HTTP:
snapshots, tracked entities, entity linking, emergency stop, an SSE event
stream and Prometheus metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		addr, _ := cmd.Flags().GetString("addr")
		if !cmd.Flags().Changed("addr") {
			addr = a.cfg.HTTP.Addr
		}
		scriptPath, _ := cmd.Flags().GetString("script")

		engine, err := a.engine(scriptPath)
		if err != nil {
			return err
		}
		r := runner.NewRunner(a.bridge, engine,
			runner.WithPeriod(a.cfg.CycleDuration()),
			runner.WithLogger(a.logger),
		)

		signals := runner.NewSignalManager(cmd.Context())
		defer signals.Stop()

		g, ctx := errgroup.WithContext(signals.Context())
		g.Go(func() error { return a.forward(ctx) })
		g.Go(func() error { return a.serveHTTP(ctx, addr) })
		g.Go(func() error {
			n, err := r.Run(ctx)
			a.logger.Info("bridge loop finished", "cycles", n)
			return err
		})
		if err := g.Wait(); err != nil {
			return err
		}

		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.bridge.Close(closeCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Address to listen on (defaults to the configured http.addr)")
	serveCmd.Flags().StringP("script", "s", "", "Scripted reasoning engine (YAML)")
}
