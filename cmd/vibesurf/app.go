package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/agent"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/browser"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/checkpoint"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/config"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/eventlog"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/llm/openai"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/llm/tokenizer"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/logging"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/orchestrator"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/server"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/session"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/telemetry"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/watchdog"
)

const shutdownTimeout = 30 * time.Second

// app is one fully wired vibesurf process.
type app struct {
	cfg    *config.Config
	logger *logging.Logger

	orch   *orchestrator.Orchestrator
	events *eventlog.Broadcaster

	// closers run in reverse order on shutdown.
	closers []func(context.Context) error
	cancel  context.CancelFunc
}

func setupLogging(cfg *config.Config) *logging.Logger {
	logging.Setup(logging.Options{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		Dir:     cfg.Logging.Dir,
	})
	return logging.MustLogger("vibesurf")
}

// buildSink assembles the event sinks selected by cfg around the live
// broadcaster. The returned close function closes the JSONL file.
func buildSink(cfg config.EventsConfig, b *eventlog.Broadcaster, logger *logging.Logger) (eventlog.Sink, func() error, error) {
	sinks := eventlog.Multi{b}
	closeFn := func() error { return nil }

	if cfg.JSONLPath != "" {
		jsonl, err := eventlog.OpenJSONL(cfg.JSONLPath, logger)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, jsonl)
		closeFn = jsonl.Close
	}
	if cfg.Log {
		sinks = append(sinks, eventlog.NewLogSink(logger))
	}
	return sinks, closeFn, nil
}

// newApp starts telemetry, the checkpoint store, the browser pool with its
// watchdog, the agent worker, the orchestrator and the optional health
// server.
func newApp(ctx context.Context, cfg *config.Config) (a *app, err error) {
	logger := setupLogging(cfg)
	runCtx, cancel := context.WithCancel(ctx)
	a = &app{cfg: cfg, logger: logger, cancel: cancel}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	tp, shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, logging.MustLogger("telemetry"))
	if err != nil {
		return a, err
	}
	a.onClose(func(ctx context.Context) error { return shutdownTracing(ctx) })

	store, err := checkpoint.Open(ctx, cfg.Store)
	if err != nil {
		return a, fmt.Errorf("open checkpoint store: %w", err)
	}
	a.onClose(func(context.Context) error { return store.Close() })

	a.events = eventlog.NewBroadcaster()
	a.onClose(func(context.Context) error { a.events.Close(); return nil })
	sink, closeSink, err := buildSink(cfg.Events, a.events, logging.MustLogger("events"))
	if err != nil {
		return a, err
	}
	a.onClose(func(context.Context) error { return closeSink() })

	launcher := browser.NewLauncher(browser.Options{
		ProfileRoot: cfg.Pool.ProfileDir,
		Headless:    cfg.Pool.Headless,
		Install:     cfg.Pool.InstallBrowsers,
		Viewport:    browser.Viewport{Width: cfg.Pool.ViewportWidth, Height: cfg.Pool.ViewportHeight},
		Timeout:     cfg.Pool.ActionTimeout.D(),
	}, logging.MustLogger("browser"))
	if err := launcher.Initialize(); err != nil {
		return a, fmt.Errorf("start browser driver: %w", err)
	}
	a.onClose(func(context.Context) error { return launcher.Shutdown() })

	pool := session.NewPool(launcher, cfg.Pool.Ceiling, session.WithLogger(logging.MustLogger("pool")))
	a.onClose(pool.Close)

	wd := watchdog.New(pool, watchdog.Config{
		Interval:         cfg.Watchdog.Interval.D(),
		ProbeTimeout:     cfg.Watchdog.ProbeTimeout.D(),
		FailureThreshold: cfg.Watchdog.FailureThreshold,
		IdleTimeout:      cfg.Pool.IdleTimeout.D(),
	}, logging.MustLogger("watchdog"))
	go wd.Run(runCtx)

	worker, err := newWorker(cfg.LLM)
	if err != nil {
		return a, err
	}

	a.orch = orchestrator.New(pool, worker,
		orchestrator.WithConfig(orchestrator.ConfigFrom(cfg.Orchestrator)),
		orchestrator.WithStore(store),
		orchestrator.WithSink(sink),
		orchestrator.WithLogger(logging.MustLogger("orchestrator")),
		orchestrator.WithTracerProvider(tp),
	)
	a.onClose(a.orch.Close)

	if cfg.Server.Enabled {
		a.startServer(runCtx, store)
	}
	return a, nil
}

func newWorker(cfg config.LLMConfig) (*agent.Worker, error) {
	provider, err := openai.NewProvider(cfg.APIKey,
		openai.WithModel(cfg.Model),
		openai.WithBaseURL(cfg.BaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("create model provider: %w", err)
	}
	return agent.New(provider,
		agent.WithTokenizer(tokenizer.NewOrEstimate()),
		agent.WithMaxSteps(cfg.MaxSteps),
		agent.WithMaxObservationTokens(cfg.MaxObservationTokens),
		agent.WithLogger(logging.MustLogger("agent")),
	), nil
}

func (a *app) startServer(ctx context.Context, store checkpoint.Store) {
	srv := server.New(server.WithLogger(logging.MustLogger("server")))
	srv.AddCheck("checkpoint", store.Ping)
	srv.AddCheck("orchestrator", a.orch.Ready)

	go func() {
		if err := srv.ListenAndServe(ctx, a.cfg.Server.Addr); err != nil {
			a.logger.Errorf("health server stopped: %v", err)
		}
	}()
}

func (a *app) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// close shuts components down in reverse start order.
func (a *app) close() error {
	if a.cancel != nil {
		a.cancel()
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warnf("shutdown: %v", err)
		return err
	}
	return nil
}
