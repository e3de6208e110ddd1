// Command indexd starts the photo index service.
//
// It maintains the "tags" and "people" counter indexes in Redis, exposing an
// HTTP API to apply count deltas (POST /api/v1/index) and to read back both
// indexes with non-positive counters pruned (GET /api/v1/index). Optional
// subsystems consume asset events from Kafka and checkpoint the latest
// snapshot to PostgreSQL.
//
// Usage:
//
//	go run ./cmd/indexd [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mvkrishnan/photoindex/internal/archive"
	"github.com/mvkrishnan/photoindex/internal/index"
	"github.com/mvkrishnan/photoindex/internal/index/handler"
	"github.com/mvkrishnan/photoindex/internal/ingest"
	"github.com/mvkrishnan/photoindex/internal/storage"
	"github.com/mvkrishnan/photoindex/pkg/config"
	"github.com/mvkrishnan/photoindex/pkg/health"
	"github.com/mvkrishnan/photoindex/pkg/kafka"
	"github.com/mvkrishnan/photoindex/pkg/logger"
	"github.com/mvkrishnan/photoindex/pkg/metrics"
	"github.com/mvkrishnan/photoindex/pkg/middleware"
	"github.com/mvkrishnan/photoindex/pkg/postgres"
	pkgredis "github.com/mvkrishnan/photoindex/pkg/redis"
	"github.com/mvkrishnan/photoindex/pkg/resilience"
)

// main boots the index service: it validates configuration (a missing index
// table identifier aborts startup), connects to Redis, wires the index
// engines and HTTP API, and starts the optional Kafka ingress and PostgreSQL
// checkpoint archive. Graceful shutdown is triggered by SIGINT/SIGTERM.
func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting index service", "port", cfg.Server.Port, "table", cfg.Index.Table)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	var redisClient *pkgredis.Client
	err = resilience.Retry(ctx, "redis-connect", resilience.RetryConfig{MaxAttempts: 5}, func() error {
		var connErr error
		redisClient, connErr = pkgredis.NewClient(cfg.Redis)
		return connErr
	})
	if err != nil {
		slog.Error("redis unavailable", "addr", cfg.Redis.Addr, "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	table := storage.NewIndexTable(redisClient, cfg.Index.Table, m)
	service := index.NewService(table, m)
	indexHandler := handler.New(service)

	checker := health.NewChecker()
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if err := table.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/index", indexHandler.Update)
	mux.HandleFunc("GET /api/v1/index", indexHandler.Read)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	if cfg.Archive.Enabled {
		var pgClient *postgres.Client
		err = resilience.Retry(ctx, "postgres-connect", resilience.RetryConfig{MaxAttempts: 5}, func() error {
			var connErr error
			pgClient, connErr = postgres.New(cfg.Postgres)
			return connErr
		})
		if err != nil {
			slog.Error("postgres unavailable", "host", cfg.Postgres.Host, "error", err)
			os.Exit(1)
		}
		defer pgClient.Close()

		store := archive.NewStore(pgClient)
		store.StartPeriodicSave(ctx, service, cfg.Archive.Interval)
		mux.HandleFunc("GET /api/v1/checkpoints/{slot}", store.LatestHandler())
		checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
			if err := pgClient.DB.PingContext(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
		slog.Info("checkpoint archive enabled", "interval", cfg.Archive.Interval)
	}

	if cfg.Ingest.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AssetEvents, ingest.HandleAsset(service))
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("asset consumer error", "error", err)
			}
		}()
		slog.Info("asset ingress enabled", "topic", cfg.Kafka.Topics.AssetEvents)
	}

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("index service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("index service stopped")
}
