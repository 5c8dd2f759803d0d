package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	sfhttp "github.com/Strob0t/SwarmForge/internal/adapter/http"
	sfnats "github.com/Strob0t/SwarmForge/internal/adapter/nats"
	sfotel "github.com/Strob0t/SwarmForge/internal/adapter/otel"
	"github.com/Strob0t/SwarmForge/internal/adapter/postgres"
	"github.com/Strob0t/SwarmForge/internal/adapter/ristretto"
	"github.com/Strob0t/SwarmForge/internal/adapter/ws"
	"github.com/Strob0t/SwarmForge/internal/config"
	"github.com/Strob0t/SwarmForge/internal/health"
	"github.com/Strob0t/SwarmForge/internal/lifecycle"
	"github.com/Strob0t/SwarmForge/internal/logger"
	"github.com/Strob0t/SwarmForge/internal/port/eventstore"
	"github.com/Strob0t/SwarmForge/internal/registry"
	"github.com/Strob0t/SwarmForge/internal/resilience"
	"github.com/Strob0t/SwarmForge/internal/scaler"
	"github.com/Strob0t/SwarmForge/internal/scheduler"
	"github.com/Strob0t/SwarmForge/internal/service"
)

func main() {
	fallback := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(fallback)

	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"strategy", cfg.Scheduler.Strategy,
		"pools", len(cfg.Pools),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---
	otelShutdown, err := sfotel.Init(ctx, cfg.Logging.Service, cfg.Telemetry.Endpoint)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(shutdownCtx)
	}()

	metrics, err := sfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---
	queue, err := sfnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	var events eventstore.Store
	if cfg.Postgres.DSN != "" {
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		pgPool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		events = postgres.NewEventStore(pgPool)
		defer events.Close()
		slog.Info("audit trail enabled")
	}

	results, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("result cache: %w", err)
	}
	defer results.Close()

	// --- Core ---
	reg := registry.New()
	for _, spec := range cfg.Pools {
		if err := reg.RegisterPool(spec); err != nil {
			return fmt.Errorf("pool %s: %w", spec.Name, err)
		}
	}

	agentHost := sfnats.NewHost(queue)
	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)

	strategy, err := scheduler.NewStrategy(cfg.Scheduler.Strategy)
	if err != nil {
		return fmt.Errorf("strategy: %w", err)
	}

	sched := scheduler.New(reg, agentHost, cfg.Scheduler, strategy)
	lcm := lifecycle.NewManager(reg, agentHost, breaker, cfg.Lifecycle)
	monitor := health.NewMonitor(reg, agentHost, cfg.Health)
	scale := scaler.New(reg, sched, lcm, cfg.Scaler)

	hub := ws.NewHub()
	orch := service.NewOrchestrator(queue, sched, reg, hub, events, results, cfg.Cache.ResultTTL)

	sink := orch.EventSink()
	sched.SetEventSink(sink)
	sched.SetResultSink(orch.ResultSink())
	sched.SetOnRelease(lcm.HandleReleased)
	sched.SetMetrics(metrics)
	monitor.SetEventSink(sink)
	monitor.SetMetrics(metrics)
	monitor.SetOnOrphaned(sched.HandleOrphaned)
	monitor.SetOnRecover(func(ctx context.Context) { sched.Dispatch(ctx) })
	lcm.SetEventSink(sink)
	lcm.SetMetrics(metrics)
	lcm.SetOnOrphaned(sched.HandleOrphaned)
	scale.SetEventSink(sink)

	// Bring every pool up to its minimum occupancy before accepting work.
	for _, spec := range cfg.Pools {
		if err := lcm.EnsureMin(ctx, spec.Name); err != nil {
			return fmt.Errorf("pool %s occupancy: %w", spec.Name, err)
		}
	}

	if _, err := orch.StartSubscribers(ctx); err != nil {
		return fmt.Errorf("subscribers: %w", err)
	}
	defer func() {
		if err := orch.Close(); err != nil {
			slog.Error("queue shutdown failed", "error", err)
		}
	}()

	// --- HTTP ---
	handlers := &sfhttp.Handlers{
		Registry:     reg,
		Scheduler:    sched,
		Lifecycle:    lcm,
		Scaler:       scale,
		Orchestrator: orch,
		Events:       events,
		Queue:        queue,
		Hub:          hub,
	}

	r := chi.NewRouter()
	r.Use(sfhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(sfhttp.RequestID)
	r.Use(sfhttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(sfotel.HTTPMiddleware(cfg.Logging.Service))

	r.Get("/health", handlers.Health)
	r.Get("/ws", hub.HandleWS)
	sfhttp.MountRoutes(r, handlers)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		err := monitor.Run(gctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})
	g.Go(func() error {
		err := scale.Run(gctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
