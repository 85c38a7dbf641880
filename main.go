// Feedwright - a persistent, multi-feed RSS/Atom ingestion engine
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/avchen/feedwright/internal/config"
	"github.com/avchen/feedwright/internal/fetcher"
	"github.com/avchen/feedwright/internal/feedparse"
	"github.com/avchen/feedwright/internal/ingest"
	"github.com/avchen/feedwright/internal/metrics"
	"github.com/avchen/feedwright/internal/ratelimit"
	"github.com/avchen/feedwright/internal/store"
)

func main() {
	envFile := flag.String("env-file", "", "path to a .env file (default: $ENV_FILE, then /data/.env, then ./.env)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(resolveEnvFilePath(*envFile))
	if err != nil {
		logger.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open store", slog.Any("error", err))
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	m := metrics.New(registry)

	limiter := ratelimit.New(cfg.PerHostLimit)
	limiter.SetObserver(m)
	f := fetcher.New(limiter)
	p := feedparse.New()

	pipeline := ingest.New(ingest.Config{
		FetchWorkers: cfg.FetchConcurrency,
		WriteWorkers: cfg.WriteConcurrency,
		DefaultPoll:  cfg.DefaultPoll(),
	}, s, f, p, logger, m)

	healthSrv := newHealthServer(cfg.HealthAddr, registry)
	go func() {
		logger.Info("health server listening", slog.String("addr", cfg.HealthAddr))
		if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health server error", slog.Any("error", err))
		}
	}()

	logger.Info("feedwright starting",
		slog.Int("fetch_concurrency", cfg.FetchConcurrency),
		slog.Int("write_concurrency", cfg.WriteConcurrency),
		slog.Int("per_host_limit", cfg.PerHostLimit))

	pipeline.Run(ctx) // blocks until SIGINT/SIGTERM, then drains in order

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("health server shutdown failed", slog.Any("error", err))
	}

	logger.Info("feedwright stopped")
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch {
	case strings.HasPrefix(cfg.DBDSN, "postgres://"), strings.HasPrefix(cfg.DBDSN, "postgresql://"):
		return store.OpenPostgres(ctx, cfg.DBDSN, 20)
	case strings.HasPrefix(cfg.DBDSN, "sqlite://"):
		path := strings.TrimPrefix(cfg.DBDSN, "sqlite://")
		return store.OpenSQLite(path)
	default:
		return nil, errors.New("DB_DSN must use postgres:// or sqlite://")
	}
}

func newHealthServer(addr string, registry *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return &http.Server{Addr: addr, Handler: mux}
}

// resolveEnvFilePath mirrors the teacher binary's precedence: an explicit
// flag, then ENV_FILE, then a containerized /data/.env, then ./.env.
func resolveEnvFilePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		return envFile
	}
	if _, err := os.Stat("/data/.env"); err == nil {
		return "/data/.env"
	}
	return ".env"
}
