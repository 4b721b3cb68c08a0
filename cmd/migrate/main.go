package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirillkom/estate-docs/internal/config"
	"github.com/kirillkom/estate-docs/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/estate-docs/internal/observability/logging"
)

const serviceName = "estate-migrate"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [up|down|status]\n", os.Args[0])
	}
	flag.Parse()

	if err := run(flag.Arg(0)); err != nil {
		slog.Error("migrate_failed", "error", err)
		os.Exit(1)
	}
}

func run(command string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(logging.NewLogger(os.Stdout, serviceName, cfg.LogLevel, cfg.LogFormat))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.OpenDB(cfg.PostgresDSN, postgres.PoolOptions{MaxOpenConns: 2})
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer db.Close()

	switch command {
	case "", "up":
		err = postgres.Migrate(ctx, db)
	case "down":
		err = postgres.MigrateDown(ctx, db)
	case "status":
		err = postgres.MigrationStatus(ctx, db)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", command, err)
	}
	slog.Info("migrate_done", "command", command)
	return nil
}
