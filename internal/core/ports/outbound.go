package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/estate-docs/internal/core/domain"
)

// DocumentRepository persists and reads document state.
// Status writes are conditional on the expected current status and return
// domain.ErrStatusConflict when the row has already moved on.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	List(ctx context.Context, filter domain.ListFilter) ([]domain.Document, int, error)
	ListStale(ctx context.Context, status domain.DocumentStatus, updatedBefore time.Time, limit int) ([]domain.Document, error)
	CountByStatus(ctx context.Context) (domain.StatusCounts, error)
	MarkProcessing(ctx context.Context, id string) error
	Complete(ctx context.Context, id string, result domain.ProcessingResult) error
	Fail(ctx context.Context, id string, errMessage string) error
	Ping(ctx context.Context) error
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// ProcessingDispatcher hands a job to the background orchestrator without waiting for it.
type ProcessingDispatcher interface {
	Dispatch(ctx context.Context, job domain.ProcessingJob) error
}

// OCRProvider runs asynchronous text recognition.
type OCRProvider interface {
	// Submit starts an operation and returns its locator.
	Submit(ctx context.Context, doc *domain.Document, content []byte) (string, error)
	Poll(ctx context.Context, locator string) (domain.OCRPollResult, error)
}

// EntityExtractor recognizes typed entity spans in text.
type EntityExtractor interface {
	ExtractEntities(ctx context.Context, text string) ([]domain.Entity, error)
}

// DocumentAnalyzer derives structured key/value fields from text.
type DocumentAnalyzer interface {
	Analyze(text string) domain.Analysis
}

// ProcessingObserver receives orchestrator lifecycle signals, typically metrics.
type ProcessingObserver interface {
	StartDocument()
	FinishDocument(duration time.Duration, outcome string)
	ObserveOCRPolls(attempts int, outcome string)
}
