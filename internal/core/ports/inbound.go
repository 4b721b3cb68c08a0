package ports

import (
	"context"
	"io"

	"github.com/kirillkom/estate-docs/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document upload.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename, mimeType string, body io.Reader) (*domain.Document, error)
}

// DocumentReader is the inbound read model for document metadata and results.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	List(ctx context.Context, filter domain.ListFilter) (*domain.DocumentPage, error)
	Search(ctx context.Context, id, query string) (*domain.SearchResult, error)
	Summary(ctx context.Context) (*domain.AnalyticsSummary, error)
}

// DocumentProcessor is the inbound contract for asynchronous document processing.
type DocumentProcessor interface {
	Process(ctx context.Context, documentID, storagePath string) error
}

// HealthChecker reports document store reachability.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// TextAnalyzer runs structured analysis over ad-hoc text.
type TextAnalyzer interface {
	AnalyzeText(ctx context.Context, text string) (*domain.Analysis, error)
}

// FileAnalyzer runs OCR and structured analysis over an uploaded file without
// storing it.
type FileAnalyzer interface {
	AnalyzeFile(ctx context.Context, filename, mimeType string, body io.Reader) (*domain.Analysis, error)
}
