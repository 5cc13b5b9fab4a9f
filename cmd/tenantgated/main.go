// Command tenantgated serves the tenantgate admission API: per-tenant
// fixed-window rate limiting over a shared Redis counter store, with quota
// configuration and check metrics in SQL.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/tenantgate/tenantgate/internal/config"
	"github.com/tenantgate/tenantgate/internal/httpapi"
	"github.com/tenantgate/tenantgate/internal/store"
	"github.com/tenantgate/tenantgate/pkg/limiter"
)

var cli struct {
	Config string `help:"Path to YAML config file." type:"path" short:"c"`
	Listen string `help:"HTTP listen address override."`
	Debug  bool   `help:"Force debug logging."`
}

const metricsPruneInterval = 12 * time.Hour

func main() {
	kong.Parse(&cli,
		kong.Name("tenantgated"),
		kong.Description("Multi-tenant fixed-window rate limiting service."),
	)

	// Local .env, when present, feeds the TENANTGATE_* overrides.
	_ = godotenv.Load()

	cfg, err := config.Load(cli.Config)
	if err != nil {
		slog.Error("load configuration", "error", err)
		os.Exit(1)
	}
	if cli.Listen != "" {
		cfg.Listen = cli.Listen
	}
	if cli.Debug {
		cfg.LogLevel = "debug"
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("tenantgated exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Init(ctx); err != nil {
		return err
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer client.Close()

	counters, err := limiter.NewRedisCounterStore(client, limiter.WithTimeout(cfg.StoreTimeout))
	if err != nil {
		return err
	}

	sink := store.NewCheckSink(st, logger, cfg.MetricsBuffer)
	defer sink.Close()

	engine := limiter.NewEngine(
		limiter.NewResolver(st, limiter.WithCacheTTL(cfg.ResolverCacheTTL)),
		counters,
		limiter.WithRecorder(sink),
		limiter.WithLogger(logger),
	)

	api := httpapi.New(httpapi.Config{
		FailOpen:   cfg.FailOpen,
		AdminToken: cfg.AdminToken,
	}, engine, st, logger)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go pruneMetrics(ctx, st, logger, cfg.MetricsRetentionDays)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Listen, "redis", cfg.RedisAddr, "fail_open", cfg.FailOpen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// pruneMetrics enforces the metrics retention window in the background.
func pruneMetrics(ctx context.Context, st *store.Store, logger *slog.Logger, retainDays int) {
	ticker := time.NewTicker(metricsPruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := st.PruneMetrics(ctx, retainDays)
			if err != nil {
				logger.Warn("prune check metrics", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("pruned check metrics", "rows", n, "retain_days", retainDays)
			}
		}
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
