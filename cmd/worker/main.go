package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/finsight/evidence-pipeline/internal/config"
	"github.com/finsight/evidence-pipeline/internal/core/domain"
	"github.com/finsight/evidence-pipeline/internal/core/ports"
	"github.com/finsight/evidence-pipeline/internal/infrastructure/events/nats"
	"github.com/finsight/evidence-pipeline/internal/infrastructure/repository/postgres"
	"github.com/finsight/evidence-pipeline/internal/observability/logging"
	"github.com/finsight/evidence-pipeline/internal/observability/metrics"
)

// The worker drains query events off NATS into Postgres so the API's
// response path never waits on the database.
func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		slog.Error("open_postgres_failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	repo := postgres.NewQueryLogRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		slog.Error("ensure_schema_failed", "error", err)
		os.Exit(1)
	}
	var store ports.QueryLogStore = repo

	queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject)
	if err != nil {
		slog.Error("connect_nats_failed", "error", err)
		os.Exit(1)
	}
	defer queue.Close()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = queue.Subscribe(ctx, func(handlerCtx context.Context, event domain.QueryEvent) error {
		workerMetrics.StartEvent()
		start := time.Now()

		insertCtx, cancel := context.WithTimeout(handlerCtx, 10*time.Second)
		defer cancel()
		insertErr := store.Insert(insertCtx, event)

		workerMetrics.FinishEvent("worker", time.Since(start), insertErr)
		if !event.At.IsZero() {
			workerMetrics.ObserveEventLag("worker", time.Since(event.At))
		}
		return insertErr
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}
