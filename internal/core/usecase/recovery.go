package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/estate-docs/internal/core/domain"
	"github.com/kirillkom/estate-docs/internal/core/ports"
)

const abandonedMessage = "processing abandoned"

type RecoveryOptions struct {
	// UploadedGrace is how long a row may sit in uploaded before it is dispatched again.
	UploadedGrace time.Duration
	// ProcessingStale is how long a row may sit in processing before it is failed.
	ProcessingStale time.Duration
	BatchSize       int
}

type SweepReport struct {
	Redispatched int
	Abandoned    int
}

// RecoveryUseCase repairs documents whose background run never started or never finished.
type RecoveryUseCase struct {
	repo       ports.DocumentRepository
	dispatcher ports.ProcessingDispatcher
	opts       RecoveryOptions
	now        func() time.Time
}

func NewRecoveryUseCase(repo ports.DocumentRepository, dispatcher ports.ProcessingDispatcher, opts RecoveryOptions) *RecoveryUseCase {
	if opts.UploadedGrace <= 0 {
		opts.UploadedGrace = 2 * time.Minute
	}
	if opts.ProcessingStale <= 0 {
		opts.ProcessingStale = 15 * time.Minute
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	return &RecoveryUseCase{
		repo:       repo,
		dispatcher: dispatcher,
		opts:       opts,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (uc *RecoveryUseCase) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	now := uc.now()

	pending, err := uc.repo.ListStale(ctx, domain.StatusUploaded, now.Add(-uc.opts.UploadedGrace), uc.opts.BatchSize)
	if err != nil {
		return report, fmt.Errorf("list stale uploaded documents: %w", err)
	}
	for _, doc := range pending {
		job := domain.ProcessingJob{DocumentID: doc.ID, StoragePath: doc.StoragePath, EnqueuedAt: now}
		if err := uc.dispatcher.Dispatch(ctx, job); err != nil {
			if domain.IsKind(err, domain.ErrTemporary) {
				slog.Warn("recovery_dispatch_deferred", "document_id", doc.ID, "error", err)
				break
			}
			return report, fmt.Errorf("redispatch document %s: %w", doc.ID, err)
		}
		report.Redispatched++
	}

	stuck, err := uc.repo.ListStale(ctx, domain.StatusProcessing, now.Add(-uc.opts.ProcessingStale), uc.opts.BatchSize)
	if err != nil {
		return report, fmt.Errorf("list stale processing documents: %w", err)
	}
	for _, doc := range stuck {
		if err := uc.repo.Fail(ctx, doc.ID, abandonedMessage); err != nil {
			if errors.Is(err, domain.ErrStatusConflict) {
				continue
			}
			return report, fmt.Errorf("fail abandoned document %s: %w", doc.ID, err)
		}
		report.Abandoned++
	}

	if report.Redispatched > 0 || report.Abandoned > 0 {
		slog.Info("recovery_sweep_completed", "redispatched", report.Redispatched, "abandoned", report.Abandoned)
	}
	return report, nil
}
