package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/kirillkom/estate-docs/internal/core/domain"
)

func TestRecoverySweepRedispatchesAndAbandons(t *testing.T) {
	old := time.Now().UTC().Add(-time.Hour)
	fresh := time.Now().UTC()
	repo := newMemoryRepo(
		&domain.Document{ID: "lost", StoragePath: "lost.pdf", Status: domain.StatusUploaded, UpdatedAt: old},
		&domain.Document{ID: "new", StoragePath: "new.pdf", Status: domain.StatusUploaded, UpdatedAt: fresh},
		&domain.Document{ID: "stuck", Status: domain.StatusProcessing, UpdatedAt: old},
		&domain.Document{ID: "busy", Status: domain.StatusProcessing, UpdatedAt: fresh},
		&domain.Document{ID: "done", Status: domain.StatusCompleted, UpdatedAt: old},
	)
	dispatcher := &dispatcherFake{}
	uc := NewRecoveryUseCase(repo, dispatcher, RecoveryOptions{})

	report, err := uc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if report.Redispatched != 1 || report.Abandoned != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(dispatcher.jobs) != 1 || dispatcher.jobs[0].DocumentID != "lost" || dispatcher.jobs[0].StoragePath != "lost.pdf" {
		t.Fatalf("unexpected jobs: %+v", dispatcher.jobs)
	}
	stuck := repo.get("stuck")
	if stuck.Status != domain.StatusFailed || stuck.Error != abandonedMessage {
		t.Fatalf("expected stuck document failed, got %+v", stuck)
	}
	if repo.get("busy").Status != domain.StatusProcessing || repo.get("done").Status != domain.StatusCompleted {
		t.Fatalf("sweep touched documents it should not")
	}
}

func TestRecoverySweepStopsOnSaturatedQueue(t *testing.T) {
	old := time.Now().UTC().Add(-time.Hour)
	repo := newMemoryRepo(
		&domain.Document{ID: "a", Status: domain.StatusUploaded, UpdatedAt: old},
		&domain.Document{ID: "b", Status: domain.StatusUploaded, UpdatedAt: old},
	)
	dispatcher := &dispatcherFake{err: domain.WrapError(domain.ErrTemporary, "dispatch", context.DeadlineExceeded)}
	uc := NewRecoveryUseCase(repo, dispatcher, RecoveryOptions{})

	report, err := uc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if report.Redispatched != 0 {
		t.Fatalf("expected nothing redispatched, got %d", report.Redispatched)
	}
}
