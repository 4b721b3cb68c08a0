package localpdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/estate-docs/internal/core/domain"
)

// Provider reads the embedded text layer of PDFs in-process. It answers the same
// submit/poll protocol as a remote OCR service, completing every operation at submit time.
// Images fail unless an ImageReader is configured.
type Provider struct {
	mu      sync.Mutex
	results map[string]entry
	ttl     time.Duration
	now     func() time.Time
	images  ImageReader
}

// ImageReader recognizes text in a jpeg or png.
type ImageReader interface {
	ReadImage(ctx context.Context, content []byte) ([]domain.OCRPage, error)
}

// ResultTTL is how long an unpolled result is kept before Submit drops it.
const ResultTTL = 10 * time.Minute

type entry struct {
	result    domain.OCRPollResult
	createdAt time.Time
}

func New() *Provider {
	return NewWithImages(nil)
}

// NewWithImages also routes jpeg and png uploads to images when it is non-nil.
func NewWithImages(images ImageReader) *Provider {
	return &Provider{results: make(map[string]entry), ttl: ResultTTL, now: time.Now, images: images}
}

func (p *Provider) Submit(ctx context.Context, doc *domain.Document, content []byte) (string, error) {
	var result domain.OCRPollResult
	if doc != nil && isImage(doc.MimeType) && p.images != nil {
		if pages, err := p.images.ReadImage(ctx, content); err != nil {
			result = domain.OCRPollResult{State: domain.OCRFailed, Error: err.Error()}
		} else {
			result = domain.OCRPollResult{State: domain.OCRSucceeded, Pages: pages}
		}
	} else if doc != nil && doc.MimeType != "" && doc.MimeType != "application/pdf" {
		result = domain.OCRPollResult{
			State: domain.OCRFailed,
			Error: fmt.Sprintf("local text extraction does not support %s", doc.MimeType),
		}
	} else if pages, err := extractPages(content); err != nil {
		result = domain.OCRPollResult{State: domain.OCRFailed, Error: err.Error()}
	} else {
		result = domain.OCRPollResult{State: domain.OCRSucceeded, Pages: pages}
	}

	locator := "local:" + uuid.NewString()
	now := p.now()
	p.mu.Lock()
	p.evictLocked(now)
	p.results[locator] = entry{result: result, createdAt: now}
	p.mu.Unlock()
	return locator, nil
}

// evictLocked drops results whose poller gave up or crashed.
func (p *Provider) evictLocked(now time.Time) {
	for locator, e := range p.results {
		if now.Sub(e.createdAt) > p.ttl {
			delete(p.results, locator)
		}
	}
}

// Poll hands the stored result back once and forgets it.
func (p *Provider) Poll(_ context.Context, locator string) (domain.OCRPollResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.results[locator]
	if !ok {
		return domain.OCRPollResult{}, domain.WrapError(domain.ErrDocumentNotFound, "local ocr poll", fmt.Errorf("unknown locator %q", locator))
	}
	delete(p.results, locator)
	return e.result, nil
}

func isImage(mimeType string) bool {
	return mimeType == "image/jpeg" || mimeType == "image/png"
}

func extractPages(content []byte) ([]domain.OCRPage, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("parse pdf: %w", err)
	}

	pages := make([]domain.OCRPage, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			continue
		}
		var out domain.OCRPage
		for _, row := range rows {
			var b strings.Builder
			for _, word := range row.Content {
				b.WriteString(word.S)
			}
			if line := strings.TrimSpace(b.String()); line != "" {
				out.Lines = append(out.Lines, domain.OCRLine{Content: line})
			}
		}
		pages = append(pages, out)
	}
	return pages, nil
}
