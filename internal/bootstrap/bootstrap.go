package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/estate-docs/internal/config"
	"github.com/kirillkom/estate-docs/internal/core/ports"
	"github.com/kirillkom/estate-docs/internal/core/usecase"
	"github.com/kirillkom/estate-docs/internal/infrastructure/analyzer"
	"github.com/kirillkom/estate-docs/internal/infrastructure/azure"
	"github.com/kirillkom/estate-docs/internal/infrastructure/nlp/rules"
	"github.com/kirillkom/estate-docs/internal/infrastructure/ocr/localpdf"
	"github.com/kirillkom/estate-docs/internal/infrastructure/queue/nats"
	"github.com/kirillkom/estate-docs/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/estate-docs/internal/infrastructure/resilience"
	"github.com/kirillkom/estate-docs/internal/infrastructure/scheduler"
	"github.com/kirillkom/estate-docs/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/estate-docs/internal/infrastructure/storage/minio"
	"github.com/kirillkom/estate-docs/internal/infrastructure/workerpool"
	"github.com/kirillkom/estate-docs/internal/observability/metrics"
)

const recoveryJobName = "recovery_sweep"

type App struct {
	Config config.Config

	DB       *sql.DB
	Repo     *postgres.DocumentRepository
	Storage  ports.ObjectStorage
	Queue    *nats.Queue
	Pool     *workerpool.Pool
	Registry *prometheus.Registry
	Metrics  *metrics.WorkerMetrics

	Dispatcher ports.ProcessingDispatcher
	IngestUC   *usecase.IngestDocumentUseCase
	ProcessUC  *usecase.ProcessDocumentUseCase
	QueryUC    *usecase.DocumentQueryUseCase
	AnalyzeUC  *usecase.AnalyzeFileUseCase
	RecoveryUC *usecase.RecoveryUseCase
	Scheduler  *scheduler.Scheduler

	closeFns []func()
}

// QueueHealth returns the broker connection check in nats mode and nil otherwise.
func (a *App) QueueHealth() ports.HealthChecker {
	if a.Queue == nil {
		return nil
	}
	return a.Queue
}

// New wires every adapter for service. Processing runs on a local worker pool in
// both dispatch modes; in nats mode the pool is fed by the subject subscription
// in cmd/worker and the API only publishes.
func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	app := &App{Config: cfg}

	db, err := postgres.OpenDB(cfg.PostgresDSN, postgres.PoolOptions{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app.DB = db
	app.onClose(func() { _ = db.Close() })

	if cfg.DBAutoMigrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			app.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	app.Repo = postgres.NewDocumentRepository(db)

	app.Storage, err = newStorage(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilienceConfig(cfg))

	ocr, err := newOCRProvider(cfg, executor)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init ocr provider: %w", err)
	}
	entities := newEntityExtractor(cfg, executor)
	keyValues := analyzer.New()

	app.Registry = metrics.NewRegistry()
	app.Metrics = metrics.NewWorkerMetrics(service, app.Registry)

	poll := usecase.PollPolicy{
		Interval:    cfg.OCRPollInterval,
		MaxAttempts: cfg.OCRPollMaxAttempts,
		Multiplier:  cfg.OCRPollMultiplier,
	}
	app.ProcessUC = usecase.NewProcessDocumentUseCase(app.Repo, app.Storage, ocr, entities, keyValues, app.Metrics, usecase.ProcessOptions{
		Poll:              poll,
		EntityTextLimit:   cfg.EntityTextLimit,
		FinalWriteTimeout: cfg.FinalWriteTimeout,
	})
	app.Pool = workerpool.New(app.ProcessUC, app.Metrics, workerpool.Options{
		Workers:    cfg.WorkerCount,
		QueueSize:  cfg.WorkerQueueSize,
		JobTimeout: cfg.WorkerJobTimeout,
	})

	app.Dispatcher = app.Pool
	if cfg.UsesNATS() {
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{ResilienceExecutor: executor})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.Queue = queue
		app.Dispatcher = queue
		app.onClose(queue.Close)
	}

	app.IngestUC = usecase.NewIngestDocumentUseCase(app.Repo, app.Storage, app.Dispatcher, cfg.UploadMaxBytes)
	app.QueryUC = usecase.NewDocumentQueryUseCase(app.Repo, keyValues)
	app.AnalyzeUC = usecase.NewAnalyzeFileUseCase(ocr, keyValues, app.Metrics, poll, cfg.UploadMaxBytes)
	app.RecoveryUC = usecase.NewRecoveryUseCase(app.Repo, app.Dispatcher, usecase.RecoveryOptions{
		UploadedGrace:   cfg.RecoveryUploadedGrace,
		ProcessingStale: cfg.RecoveryProcessingStale,
		BatchSize:       cfg.RecoveryBatchSize,
	})
	app.Scheduler = scheduler.New()

	slog.Info("app_wired",
		"service", service,
		"dispatch_mode", dispatchMode(cfg),
		"storage_backend", cfg.StorageBackend,
		"ocr_provider", providerName(cfg.AzureOCREndpoint),
		"image_ocr", imageOCR,
		"entity_provider", providerName(cfg.AzureTextAnalyticsEndpoint),
	)
	return app, nil
}

// StartRecovery schedules the sweep that re-dispatches stranded uploads and
// fails abandoned runs.
func (a *App) StartRecovery(ctx context.Context) error {
	if !a.Config.RecoveryEnabled {
		return nil
	}
	err := a.Scheduler.Add(recoveryJobName, a.Config.RecoverySchedule, a.Config.RecoveryProcessingStale, func(ctx context.Context) error {
		report, err := a.RecoveryUC.Sweep(ctx)
		a.Metrics.ObserveRecovery(report.Redispatched, report.Abandoned)
		return err
	})
	if err != nil {
		return err
	}
	a.Scheduler.Start(ctx)
	return nil
}

// Shutdown stops the scheduler and drains the worker pool within ctx.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if a.Scheduler != nil {
		errs = append(errs, a.Scheduler.Stop(ctx))
	}
	if a.Pool != nil {
		errs = append(errs, a.Pool.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}

func (a *App) onClose(fn func()) {
	a.closeFns = append(a.closeFns, fn)
}

func newStorage(ctx context.Context, cfg config.Config) (ports.ObjectStorage, error) {
	switch strings.ToLower(cfg.StorageBackend) {
	case "", "local":
		return localfs.New(cfg.StoragePath)
	case "minio":
		storage, err := minio.New(minio.Config{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		})
		if err != nil {
			return nil, err
		}
		if err := storage.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return storage, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func newOCRProvider(cfg config.Config, executor *resilience.Executor) (ports.OCRProvider, error) {
	if cfg.AzureOCREndpoint == "" {
		return localpdf.NewWithImages(newImageReader(cfg)), nil
	}
	return azure.NewDocumentIntelligenceClient(azure.OCRConfig{
		Endpoint:   cfg.AzureOCREndpoint,
		APIKey:     cfg.AzureOCRKey,
		Model:      cfg.AzureOCRModel,
		APIVersion: cfg.AzureOCRAPIVersion,
		Timeout:    cfg.ProviderHTTPTimeout,
	}, executor)
}

func newEntityExtractor(cfg config.Config, executor *resilience.Executor) ports.EntityExtractor {
	if cfg.AzureTextAnalyticsEndpoint == "" {
		return rules.NewRecognizer()
	}
	return azure.NewTextAnalyticsClient(azure.TextAnalyticsConfig{
		Endpoint: cfg.AzureTextAnalyticsEndpoint,
		APIKey:   cfg.AzureTextAnalyticsKey,
		Language: cfg.AzureTextAnalyticsLanguage,
		Timeout:  cfg.ProviderHTTPTimeout,
	}, executor)
}

func resilienceConfig(cfg config.Config) resilience.Config {
	out := resilience.DefaultConfig()
	out.RetryMaxAttempts = cfg.RetryMaxAttempts
	out.RetryInitialBackoff = cfg.RetryInitialBackoff
	out.RetryMaxBackoff = cfg.RetryMaxBackoff
	out.RetryAfterCap = cfg.RetryAfterCap
	out.BreakerEnabled = cfg.BreakerEnabled
	out.BreakerFailureRatio = cfg.BreakerFailureRatio
	out.BreakerOpenTimeout = cfg.BreakerOpenTimeout
	if cfg.BreakerMinRequests > 0 {
		out.BreakerMinRequests = uint32(cfg.BreakerMinRequests)
	}
	return out
}

func dispatchMode(cfg config.Config) string {
	if cfg.UsesNATS() {
		return "nats"
	}
	return "pool"
}

func providerName(endpoint string) string {
	if endpoint == "" {
		return "local"
	}
	return "azure"
}
