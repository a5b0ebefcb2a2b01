package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aretw0/wmbridge"
	"github.com/aretw0/wmbridge/internal/config"
	"github.com/aretw0/wmbridge/internal/logging"
	"github.com/aretw0/wmbridge/pkg/adapters/file"
	httpAdapter "github.com/aretw0/wmbridge/pkg/adapters/http"
	"github.com/aretw0/wmbridge/pkg/adapters/memory"
	"github.com/aretw0/wmbridge/pkg/adapters/redis"
	"github.com/aretw0/wmbridge/pkg/adapters/sim"
	"github.com/aretw0/wmbridge/pkg/observability"
	"github.com/aretw0/wmbridge/pkg/persistence/middleware"
	"github.com/aretw0/wmbridge/pkg/ports"
	"github.com/aretw0/wmbridge/pkg/runner"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

// app holds everything a command needs to drive a bridge over the simulated robot.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	mem      *memory.Memory
	world    *sim.World
	store    ports.SnapshotStore
	bridge   *wmbridge.Bridge
	registry *prometheus.Registry
	streams  *httpAdapter.StreamManager
	closers  []func() error
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		cfg.LogFormat = format
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg *config.Config) *slog.Logger {
	level, _ := logging.ParseLevel(cfg.LogLevel)
	return logging.NewWithFormat(os.Stderr, level, cfg.LogFormat)
}

// newStore returns the redis store and locker when redis is configured, a
// file store when store.dir is set, and an in-memory store otherwise. The
// configured redaction and encryption wrap whichever is chosen.
func newStore(cfg *config.Config) (ports.SnapshotStore, ports.DistributedLocker, func() error, error) {
	mws, err := cfg.Store.Middlewares()
	if err != nil {
		return nil, nil, nil, err
	}

	var (
		store  ports.SnapshotStore
		locker ports.DistributedLocker
		closer = func() error { return nil }
	)
	switch {
	case cfg.Redis.Enabled():
		rs := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			redis.WithPrefix(cfg.Redis.Prefix),
			redis.WithTTL(time.Duration(cfg.Redis.TTL)),
		)
		store, locker, closer = rs, redis.NewLocker(rs.Client(), cfg.Redis.Prefix), rs.Close
	case cfg.Store.Dir != "":
		store = file.New(cfg.Store.Dir)
	default:
		store = memory.NewStore()
	}
	return middleware.Chain(store, mws...), locker, closer, nil
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   newLogger(cfg),
		mem:      memory.New(),
		world:    sim.NewWorld(cfg.Sim),
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	store, locker, closeStore, err := newStore(cfg)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, closeStore)

	metrics := observability.NewMetrics()
	a.streams = httpAdapter.NewStreamManager(64, a.logger)

	opts := append(cfg.Options(),
		wmbridge.WithLogger(a.logger),
		wmbridge.WithSnapshotStore(store),
		wmbridge.WithLifecycleHooks(observability.ChainHooks(
			metrics.Hooks(),
			a.streams.Hooks(),
			observability.LogHooks(a.logger),
		)),
	)
	if locker != nil {
		opts = append(opts, wmbridge.WithDistributedLocker(locker, time.Duration(cfg.Redis.LockTTL)))
	}

	a.bridge, err = wmbridge.New(a.mem, a.world, a.world, opts...)
	if err != nil {
		a.close()
		return nil, err
	}
	if err := metrics.Register(a.registry, a.bridge); err != nil {
		a.close()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return a, nil
}

// engine returns the scripted reasoning engine for path, or an idle one.
func (a *app) engine(path string) (ports.ReasoningEngine, error) {
	if path == "" {
		return idleEngine{}, nil
	}
	script, err := runner.LoadScript(path)
	if err != nil {
		return nil, err
	}
	a.logger.Info("script loaded", "path", path, "steps", len(script.Steps), "last_cycle", script.LastCycle())
	return runner.NewScriptedEngine(script, a.place), nil
}

func (a *app) place(verb string, params map[string]any) (ports.CommandNode, error) {
	cmd, err := a.mem.PlaceCommand(verb, params)
	if err != nil {
		return nil, err
	}
	return cmd, nil
}

// forward pumps sim appearance events into the bridge until ctx is done.
func (a *app) forward(ctx context.Context) error {
	dropped, err := a.world.Forward(ctx, a.bridge)
	if dropped > 0 {
		a.logger.Warn("perception events dropped", "count", dropped)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *app) handler() http.Handler {
	return httpAdapter.NewHandler(a.bridge,
		httpAdapter.WithStreams(a.streams),
		httpAdapter.WithSnapshotStore(a.store),
		httpAdapter.WithMetrics(a.registry),
		httpAdapter.WithLogger(a.logger),
	)
}

// serveHTTP runs the introspection server until ctx is done.
func (a *app) serveHTTP(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server listening", "address", addr)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("graceful shutdown did not complete", "error", err)
			return srv.Close()
		}
		a.logger.Info("HTTP server stopped")
		return nil
	}
}

func (a *app) close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}

// idleEngine never places commands.
type idleEngine struct{}

func (idleEngine) Step(context.Context, uint64) ([]ports.CommandNode, error) { return nil, nil }
