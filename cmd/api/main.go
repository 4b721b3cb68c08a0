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

	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/kirillkom/estate-docs/internal/adapters/http"
	"github.com/kirillkom/estate-docs/internal/bootstrap"
	"github.com/kirillkom/estate-docs/internal/config"
	"github.com/kirillkom/estate-docs/internal/observability/logging"
	"github.com/kirillkom/estate-docs/internal/observability/metrics"
)

const serviceName = "estate-api"

func main() {
	if err := run(); err != nil {
		slog.Error("api_exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(logging.NewLogger(os.Stdout, serviceName, cfg.LogLevel, cfg.LogFormat))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, serviceName)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()

	if !cfg.UsesNATS() {
		app.Pool.Start(ctx)
	}
	if err := app.StartRecovery(ctx); err != nil {
		return fmt.Errorf("start recovery: %w", err)
	}

	router, err := httpadapter.NewRouter(httpadapter.Dependencies{
		Ingestor: app.IngestUC,
		Reader:   app.QueryUC,
		Analyzer: app.QueryUC,
		Files:    app.AnalyzeUC,
		Health:   app.Repo,
		Queue:    app.QueueHealth(),
		Metrics:  metrics.NewHTTPServerMetrics(serviceName, app.Registry),
	}, httpadapter.Options{
		ServiceName:        serviceName,
		MaxUploadBytes:     cfg.UploadMaxBytes,
		RateLimitRPS:       cfg.RateLimitRPS,
		RateLimitBurst:     cfg.RateLimitBurst,
		MaxInFlight:        cfg.MaxInFlight,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router.Handler(),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if cfg.HTTPMaxConns > 0 {
		listener = netutil.LimitListener(listener, cfg.HTTPMaxConns)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		slog.Info("api_listening", "addr", server.Addr, "max_conns", cfg.HTTPMaxConns)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		slog.Info("api_shutting_down")
		return errors.Join(server.Shutdown(shutdownCtx), app.Shutdown(shutdownCtx))
	})
	return group.Wait()
}
