// Package main is the entrypoint for the LLM quality evaluator service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/kiranshivaraju/llm-quality-observer/internal/ai"
	"github.com/kiranshivaraju/llm-quality-observer/internal/api"
	"github.com/kiranshivaraju/llm-quality-observer/internal/api/handler"
	mw "github.com/kiranshivaraju/llm-quality-observer/internal/api/middleware"
	"github.com/kiranshivaraju/llm-quality-observer/internal/cache"
	"github.com/kiranshivaraju/llm-quality-observer/internal/config"
	"github.com/kiranshivaraju/llm-quality-observer/internal/evaluator"
	"github.com/kiranshivaraju/llm-quality-observer/internal/judge"
	"github.com/kiranshivaraju/llm-quality-observer/internal/metrics"
	"github.com/kiranshivaraju/llm-quality-observer/internal/notify"
	"github.com/kiranshivaraju/llm-quality-observer/internal/scheduler"
	"github.com/kiranshivaraju/llm-quality-observer/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 30 * time.Second
	// evaluate-once judges logs inline, so responses can take minutes.
	writeTimeout    = 10 * time.Minute
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("evaluator failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config. Fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Server.SlogLevel(),
	}))
	slog.SetDefault(logger)
	slog.Info("config loaded",
		"ai_provider", cfg.AI.Provider,
		"judge_type", cfg.Scheduler.JudgeType.String(),
		"env", cfg.Server.Env,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = clog.WithLogger(ctx, clog.NewLogger(logger))

	// 2. Connect to database and apply migrations
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := store.RunMigrations(cfg.Database.URL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")
	pgStore := store.NewPostgresStore(pool)

	// 3. Optional Redis cache
	reportCache, closeCache, err := openCache(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer closeCache()

	// 4. Metrics
	reg := metrics.NewRegistry(true)
	m := metrics.New(reg)
	m.SetAppInfo(version, cfg.Server.Env)

	// 5. Judges
	judges, err := buildJudges(cfg.AI, m)
	if err != nil {
		return err
	}
	if _, err := judges.Get(cfg.Scheduler.JudgeType); err != nil {
		return fmt.Errorf("scheduler judge: %w", err)
	}

	// 6. Notification channels
	httpClient := &http.Client{Timeout: cfg.Notify.Timeout}
	channels, err := notify.ChannelsFromConfig(cfg.Notify, httpClient)
	if err != nil {
		return fmt.Errorf("configure notifications: %w", err)
	}
	notifier := notify.New(channels, cfg.Notify.ScoreThreshold, cfg.Notify.Timeout, m)
	slog.Info("notification channels configured", "channels", notifier.Channels())

	// 7. Evaluator and scheduler
	opts := []evaluator.Option{
		evaluator.WithRetry(evaluator.DefaultRetryConfig(cfg.AI.MaxRetries)),
	}
	if reportCache != nil {
		opts = append(opts, evaluator.WithReportCache(reportCache))
	}
	svc, err := evaluator.NewService(pgStore, judges, notifier, m, opts...)
	if err != nil {
		return fmt.Errorf("create evaluator: %w", err)
	}
	sched := scheduler.New(cfg.Scheduler, svc, m)

	// 8. HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      newRouter(cfg, pgStore, reportCache, svc, sched, m, reg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, draining connections...")
		return shutdown(srv, sched)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("evaluator stopped gracefully")
	return nil
}

// shutdown stops the scheduler and the HTTP server within shutdownTimeout.
func shutdown(srv *http.Server, sched *scheduler.Scheduler) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := sched.Stop(ctx); err != nil && !errors.Is(err, scheduler.ErrNotRunning) {
		errs = append(errs, fmt.Errorf("scheduler shutdown: %w", err))
	}
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}
	return errors.Join(errs...)
}

// openCache connects to Redis when configured. The returned cache is a nil
// interface when Redis is disabled.
func openCache(ctx context.Context, cfg config.RedisConfig) (cache.Cache, func(), error) {
	if cfg.URL == "" {
		slog.Info("redis not configured, report cache and rate limiting disabled")
		return nil, func() {}, nil
	}

	rc, err := cache.NewRedisCache(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("create redis cache: %w", err)
	}
	if err := rc.Ping(ctx); err != nil {
		rc.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")
	return rc, func() { rc.Close() }, nil
}

// buildJudges always registers the rule judge and adds the LLM judge when a
// provider is configured.
func buildJudges(cfg config.AIConfig, m *metrics.Metrics) (judge.Registry, error) {
	judges := []judge.Judge{judge.NewRuleJudge()}

	if cfg.Enabled() {
		provider, err := ai.NewProvider(cfg)
		if err != nil {
			return nil, fmt.Errorf("create AI provider: %w", err)
		}
		judges = append(judges, judge.NewLLMJudge(provider, cfg.InferenceTimeout, m))
		slog.Info("AI provider initialized", "provider", provider.Name(), "model", provider.Model())
	} else {
		slog.Info("no AI provider configured, LLM judge disabled")
	}

	return judge.NewRegistry(judges...), nil
}

func newRouter(cfg *config.Config, st store.Store, c cache.Cache, svc *evaluator.Service, sched *scheduler.Scheduler, m *metrics.Metrics, reg *prometheus.Registry) http.Handler {
	var cachePinger handler.Pinger
	if c != nil {
		cachePinger = c
	}

	return api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(cfg.API.APIKeyHash),
		RateLimit: mw.NewRateLimit(c, cfg.API.RateLimitPerMinute),
		Metrics:   m,

		HealthHandler:       handler.NewHealthHandler(st, cachePinger, version),
		EvaluateOnceHandler: handler.NewEvaluateOnceHandler(svc, cfg.Scheduler.JudgeType),
		SchedulerHandler:    handler.NewSchedulerStatusHandler(sched, svc),
		SchedulerRunHandler: handler.NewSchedulerRunHandler(sched),
		BatchReportHandler:  handler.NewBatchReportHandler(svc),
		MetricsHandler:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	})
}
