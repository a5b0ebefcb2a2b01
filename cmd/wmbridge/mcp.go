package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/aretw0/wmbridge/pkg/adapters/mcp"
	"github.com/aretw0/wmbridge/pkg/runner"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes the working memory of the simulated robot as MCP tools and resources,
so AI agents can inspect the input link, list and link entities, and stop
running actions.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		transport, _ := cmd.Flags().GetString("transport")
		addr, _ := cmd.Flags().GetString("addr")
		baseURL, _ := cmd.Flags().GetString("base-url")
		if transport != "stdio" && transport != "sse" {
			return fmt.Errorf("unknown transport: %s. Supported: stdio, sse", transport)
		}

		srv := mcp.NewServer(a.bridge,
			mcp.WithSnapshotStore(a.store),
			mcp.WithLogger(a.logger),
		)
		r := runner.NewRunner(a.bridge, idleEngine{},
			runner.WithPeriod(a.cfg.CycleDuration()),
			runner.WithLogger(a.logger),
		)

		signals := runner.NewSignalManager(cmd.Context())
		defer signals.Stop()

		loopCtx, cancel := context.WithCancel(signals.Context())
		defer cancel()

		g, ctx := errgroup.WithContext(loopCtx)
		g.Go(func() error { return a.forward(ctx) })
		g.Go(func() error {
			_, err := r.Run(ctx)
			return err
		})

		switch transport {
		case "stdio":
			// Ensure logs don't corrupt JSON-RPC on Stdout
			log.SetOutput(os.Stderr)
			a.logger.Info("Starting wmbridge MCP Server (Stdio)")
			g.Go(func() error {
				defer cancel()
				return srv.ServeStdio()
			})
		default:
			a.logger.Info("Starting wmbridge MCP Server (SSE)", "address", addr)
			g.Go(func() error {
				if err := srv.ServeSSE(ctx, addr, baseURL); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return err
		}
		a.logger.Info("MCP Server stopped gracefully")

		closeCtx, cancelClose := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelClose()
		return a.bridge.Close(closeCtx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().String("addr", ":8081", "Address to listen on (only for SSE)")
	mcpCmd.Flags().String("base-url", "", "Public base URL advertised to SSE clients")
}
