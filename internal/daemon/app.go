// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon wires the media operation service together and runs it
// until its context ends.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/mediaops/internal/api"
	"github.com/ManuGH/mediaops/internal/config"
	"github.com/ManuGH/mediaops/internal/engine"
	"github.com/ManuGH/mediaops/internal/health"
	"github.com/ManuGH/mediaops/internal/jobs"
	"github.com/ManuGH/mediaops/internal/log"
	"github.com/ManuGH/mediaops/internal/media/asset"
	"github.com/ManuGH/mediaops/internal/media/ffmpeg"
	"github.com/ManuGH/mediaops/internal/media/scratch"
	"github.com/ManuGH/mediaops/internal/service"
	"github.com/ManuGH/mediaops/internal/telemetry"
	"github.com/ManuGH/mediaops/internal/version"
)

const (
	serviceName     = "mediaops"
	shutdownTimeout = 30 * time.Second
	pruneInterval   = time.Minute
	readinessProbe  = 2 * time.Second
)

// ShutdownHook performs cleanup during graceful shutdown. Hooks run in
// reverse registration order.
type ShutdownHook func(ctx context.Context) error

type namedHook struct {
	name string
	hook ShutdownHook
}

// App owns every long-lived component of the daemon.
type App struct {
	holder   *config.Holder
	executor *engine.Executor
	registry *jobs.Registry
	service  *service.Service
	scratch  *scratch.Manager
	tools    *ffmpeg.Toolchain
	health   *health.Manager
	handler  http.Handler

	logger zerolog.Logger

	mu      sync.Mutex
	started bool
	addr    net.Addr
	hooks   []namedHook
}

// New builds the component graph from the holder's current configuration.
// Nothing is started; external services are contacted only to prepare the
// optional mirror bucket.
func New(ctx context.Context, holder *config.Holder) (*App, error) {
	if holder == nil {
		return nil, ErrMissingHolder
	}
	cfg := holder.Get()
	a := &App{holder: holder, logger: log.WithComponent("daemon")}

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: version.Version,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	a.RegisterShutdownHook("telemetry", tp.Shutdown)

	a.scratch, err = scratch.NewManager(cfg.Engine.ScratchDir)
	if err != nil {
		return nil, fmt.Errorf("init scratch: %w", err)
	}
	if n, err := a.scratch.Sweep(); err != nil {
		a.logger.Warn().Err(err).Str(log.FieldScratchDir, a.scratch.Root()).Msg("failed to sweep stale scratch areas")
	} else if n > 0 {
		a.logger.Info().Str(log.FieldEvent, "scratch.swept").Int("count", n).Msg("removed stale scratch areas")
	}

	deps := engine.Deps{Store: asset.NewLocal(), Scratch: a.scratch}
	if m := cfg.Storage.Mirror; m.Enabled {
		mirror, err := asset.NewMirror(asset.MirrorConfig{
			Endpoint:  m.Endpoint,
			AccessKey: m.AccessKey,
			SecretKey: m.SecretKey,
			Bucket:    m.Bucket,
			UseSSL:    m.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("init mirror: %w", err)
		}
		if err := mirror.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("init mirror: %w", err)
		}
		deps.Mirror = mirror
		a.logger.Info().Str(log.FieldEvent, "mirror.enabled").Str("bucket", m.Bucket).Msg("mirroring outputs to object storage")
	}

	a.tools = ffmpeg.New(cfg.FFmpeg.Bin, cfg.FFmpeg.FFprobeBin, cfg.Engine.KillGrace)
	deps.Tools = a.tools
	a.executor, err = engine.NewExecutor(deps, engine.OptionsFromConfig(cfg.Engine))
	if err != nil {
		return nil, fmt.Errorf("init engine: %w", err)
	}

	a.registry = jobs.NewRegistry()
	a.service = service.New(a.executor, a.registry)
	a.RegisterShutdownHook("service", a.service.Close)

	a.health = health.NewManager(version.Version)
	a.health.RegisterChecker(health.NewFuncChecker("ffmpeg", health.StatusUnhealthy, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, readinessProbe)
		defer cancel()
		return a.tools.Check(ctx)
	}))
	a.health.RegisterChecker(health.NewDirChecker("scratch", a.scratch.Root()))

	a.handler = api.New(a.service, a.health, api.Config{
		RateLimitRPM:   cfg.API.RateLimitRPM,
		TracingService: serviceName,
	}).Handler()
	return a, nil
}

// Service exposes the inbound contract for embedding callers.
func (a *App) Service() *service.Service { return a.service }

// Handler is the HTTP handler served by Run.
func (a *App) Handler() http.Handler { return a.handler }

// Addr is the bound listen address once Run is serving, or nil.
func (a *App) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr
}

// RegisterShutdownHook registers a cleanup function to be called during shutdown.
func (a *App) RegisterShutdownHook(name string, hook ShutdownHook) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hooks = append(a.hooks, namedHook{name: name, hook: hook})
}

// Run serves HTTP, watches the configuration and prunes finished jobs
// until ctx ends or a component fails, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return ErrAlreadyStarted
	}
	a.started = true
	a.mu.Unlock()

	cfg := a.holder.Get()
	ln, err := net.Listen("tcp", cfg.API.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.API.ListenAddr, err)
	}
	a.mu.Lock()
	a.addr = ln.Addr()
	a.mu.Unlock()

	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	updates := make(chan config.Config, 1)
	a.holder.RegisterListener(updates)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info().Str(log.FieldEvent, "api.listening").Str("addr", ln.Addr().String()).Msg("API server listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return a.holder.Watch(gctx) })
	g.Go(func() error { return a.reloadOnSignal(gctx) })
	g.Go(func() error { return a.applyUpdates(gctx, updates) })
	g.Go(func() error { return a.pruneLoop(gctx) })

	err = g.Wait()
	if err != nil {
		a.logger.Error().Err(err).Str(log.FieldEvent, "daemon.failed").Msg("component failed, shutting down")
	} else {
		a.logger.Info().Str(log.FieldEvent, "daemon.stopping").Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return errors.Join(err, a.shutdown(shutdownCtx))
}

func (a *App) reloadOnSignal(ctx context.Context) error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP)
	defer signal.Stop(sig)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sig:
			_ = a.holder.Reload(ctx)
		}
	}
}

func (a *App) applyUpdates(ctx context.Context, updates <-chan config.Config) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cfg := <-updates:
			a.apply(cfg)
		}
	}
}

// apply pushes live-reloadable settings into running components. Listen
// address, scratch root, toolchain paths and the mirror need a restart.
func (a *App) apply(cfg config.Config) {
	log.Configure(log.Config{Level: cfg.Log.Level, Service: serviceName, Version: version.Version})
	a.executor.Update(engine.OptionsFromConfig(cfg.Engine))
	a.logger.Info().
		Str(log.FieldEvent, "config.applied").
		Dur("operation_timeout", cfg.Engine.OperationTimeout).
		Int("batch_concurrency", cfg.Engine.BatchConcurrency).
		Int("max_concurrency", cfg.Engine.MaxConcurrency).
		Msg("applied reloaded configuration")
}

func (a *App) pruneLoop(ctx context.Context) error {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if retention := a.holder.Get().Jobs.Retention; retention > 0 {
				a.registry.Prune(retention)
			}
		}
	}
}

func (a *App) shutdown(ctx context.Context) error {
	a.mu.Lock()
	hooks := append([]namedHook(nil), a.hooks...)
	a.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		start := time.Now()
		if err := h.hook(ctx); err != nil {
			a.logger.Error().Err(err).Str("hook", h.name).Dur(log.FieldDuration, time.Since(start)).Msg("shutdown hook failed")
			errs = append(errs, fmt.Errorf("hook %s: %w", h.name, err))
			continue
		}
		a.logger.Debug().Str("hook", h.name).Dur(log.FieldDuration, time.Since(start)).Msg("shutdown hook completed")
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	a.logger.Info().Str(log.FieldEvent, "daemon.stopped").Msg("daemon stopped cleanly")
	return nil
}
