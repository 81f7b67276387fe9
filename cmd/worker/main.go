package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dialogiq/context-engine/internal/bootstrap"
	"github.com/dialogiq/context-engine/internal/config"
	"github.com/dialogiq/context-engine/internal/core/domain"
	"github.com/dialogiq/context-engine/internal/observability/logging"
	"github.com/dialogiq/context-engine/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, "worker", cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		slog.Info("worker metrics listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("worker metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeProfileEvents(ctx, func(handlerCtx context.Context, event domain.ProfileEvent) error {
		applyCtx, cancel := context.WithTimeout(handlerCtx, 30*time.Second)
		defer cancel()

		workerMetrics.StartEvent()
		if !event.OccurredAt.IsZero() {
			workerMetrics.ObserveQueueLag("worker", time.Since(event.OccurredAt))
		}

		start := time.Now()
		applyErr := app.Events.Apply(applyCtx, event)
		workerMetrics.FinishEvent("worker", string(event.Kind), time.Since(start), applyErr)
		if applyErr != nil {
			slog.Error("profile event apply failed",
				"kind", event.Kind,
				"session_id", event.SessionID,
				"tenant_id", event.TenantID,
				"error", applyErr,
			)
		}
		return applyErr
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}
