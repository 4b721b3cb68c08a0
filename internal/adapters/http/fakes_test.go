package httpadapter

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/estate-docs/internal/core/domain"
)

type ingestFake struct {
	mu       sync.Mutex
	received []byte
	filename string
	err      error
}

func (f *ingestFake) Upload(_ context.Context, filename, mimeType string, body io.Reader) (*domain.Document, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	if len(raw) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("empty file"))
	}

	f.mu.Lock()
	f.received, f.filename = raw, filename
	f.mu.Unlock()

	now := time.Now().UTC()
	return &domain.Document{
		ID:           "doc-1",
		OriginalName: filename,
		MimeType:     mimeType,
		SizeBytes:    int64(len(raw)),
		StoragePath:  "doc-1.pdf",
		Status:       domain.StatusUploaded,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

type readerFake struct {
	docs       map[string]*domain.Document
	lastFilter domain.ListFilter
	lastQuery  string
	listErr    error
	listCalls  int
}

func newReaderFake(docs ...*domain.Document) *readerFake {
	f := &readerFake{docs: map[string]*domain.Document{}}
	for _, d := range docs {
		f.docs[d.ID] = d
	}
	return f
}

func (f *readerFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", errors.New(id))
	}
	return doc, nil
}

func (f *readerFake) List(_ context.Context, filter domain.ListFilter) (*domain.DocumentPage, error) {
	f.listCalls++
	f.lastFilter = filter
	if f.listErr != nil {
		return nil, f.listErr
	}
	page := &domain.DocumentPage{Documents: []domain.DocumentSummary{}}
	if filter.Offset > 0 {
		page.Total = len(f.docs)
		return page, nil
	}
	for _, d := range f.docs {
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		page.Documents = append(page.Documents, d.Summary())
	}
	page.Total = len(page.Documents)
	return page, nil
}

func (f *readerFake) Search(ctx context.Context, id, query string) (*domain.SearchResult, error) {
	f.lastQuery = query
	if _, err := f.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return &domain.SearchResult{Query: query, Matches: []domain.SearchMatch{}}, nil
}

func (f *readerFake) Summary(context.Context) (*domain.AnalyticsSummary, error) {
	return &domain.AnalyticsSummary{
		StatusCounts:   domain.StatusCounts{Completed: 3, Failed: 1},
		TotalDocuments: 4,
		SuccessRate:    75,
	}, nil
}

type analyzerFake struct{}

func (analyzerFake) AnalyzeText(_ context.Context, text string) (*domain.Analysis, error) {
	return &domain.Analysis{DocumentType: "invoice", InvoiceNumber: text, PhoneNumbers: []string{}}, nil
}

type filesFake struct {
	filename string
	received []byte
	err      error
}

func (f *filesFake) AnalyzeFile(_ context.Context, filename, _ string, body io.Reader) (*domain.Analysis, error) {
	f.filename = filename
	f.received, _ = io.ReadAll(body)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Analysis{DocumentType: "rental_agreement", PhoneNumbers: []string{}, PetsMentioned: true}, nil
}

type healthFake struct{ err error }

func (f healthFake) Ping(context.Context) error { return f.err }

func newTestRouter(t *testing.T, ingest *ingestFake, reader *readerFake, opts Options) http.Handler {
	t.Helper()
	return buildHandler(t, Dependencies{
		Ingestor: ingest,
		Reader:   reader,
		Analyzer: analyzerFake{},
		Health:   healthFake{},
	}, opts)
}

func buildHandler(t *testing.T, deps Dependencies, opts Options) http.Handler {
	t.Helper()
	router, err := NewRouter(deps, opts)
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	return router.Handler()
}
