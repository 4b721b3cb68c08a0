package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/estate-docs/internal/bootstrap"
	"github.com/kirillkom/estate-docs/internal/config"
	"github.com/kirillkom/estate-docs/internal/observability/logging"
)

const serviceName = "estate-worker"

func main() {
	if err := run(); err != nil {
		slog.Error("worker_exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(logging.NewLogger(os.Stdout, serviceName, cfg.LogLevel, cfg.LogFormat))

	if !cfg.UsesNATS() {
		return errors.New("worker requires DISPATCH_MODE=nats; pool mode processes inside the api")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, serviceName)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()

	app.Pool.Start(ctx)

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           app.Metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		slog.Info("worker_metrics_listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("worker metrics server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		slog.Info("worker_subscribed", "subject", cfg.NATSSubject, "workers", cfg.WorkerCount)
		return app.Queue.Subscribe(groupCtx, app.Pool.Dispatch)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		slog.Info("worker_shutting_down")
		return errors.Join(metricsServer.Shutdown(shutdownCtx), app.Shutdown(shutdownCtx))
	})
	return group.Wait()
}
