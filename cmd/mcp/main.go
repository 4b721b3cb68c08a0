package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/estate-docs/internal/adapters/mcp"
	"github.com/kirillkom/estate-docs/internal/config"
	"github.com/kirillkom/estate-docs/internal/core/usecase"
	"github.com/kirillkom/estate-docs/internal/infrastructure/analyzer"
	"github.com/kirillkom/estate-docs/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/estate-docs/internal/observability/logging"
)

const (
	serviceName = "estate-mcp"
	version     = "1.0.0"
)

func main() {
	if err := run(); err != nil {
		slog.Error("mcp_exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	transport := flag.String("transport", "stdio", "stdio or http")
	addr := flag.String("addr", ":8090", "listen address for the http transport")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// stdout carries the protocol on stdio, so logs go to stderr.
	slog.SetDefault(logging.NewLogger(os.Stderr, serviceName, cfg.LogLevel, cfg.LogFormat))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.OpenDB(cfg.PostgresDSN, postgres.PoolOptions{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer db.Close()

	queryUC := usecase.NewDocumentQueryUseCase(postgres.NewDocumentRepository(db), analyzer.New())
	tools := mcpadapter.NewServer(queryUC, version)

	switch *transport {
	case "stdio":
		slog.Info("mcp_serving", "transport", "stdio")
		err := server.NewStdioServer(tools.MCP()).Listen(ctx, os.Stdin, os.Stdout)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("mcp stdio: %w", err)
		}
		return nil
	case "http":
		httpServer := server.NewStreamableHTTPServer(tools.MCP())
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				slog.Warn("mcp_shutdown_failed", "error", err)
			}
		}()
		slog.Info("mcp_serving", "transport", "http", "addr", *addr)
		if err := httpServer.Start(*addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("mcp http: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown transport %q", *transport)
	}
}
