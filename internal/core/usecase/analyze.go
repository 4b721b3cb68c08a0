package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/estate-docs/internal/core/domain"
	"github.com/kirillkom/estate-docs/internal/core/ports"
)

// AnalyzeFileUseCase answers a one-off upload with its structured fields.
// Nothing is written to storage or the document table.
type AnalyzeFileUseCase struct {
	ocr      ports.OCRProvider
	analyzer ports.DocumentAnalyzer
	observer ports.ProcessingObserver
	poller   *ocrPoller
	maxBytes int64
	now      func() time.Time
}

func NewAnalyzeFileUseCase(
	ocr ports.OCRProvider,
	analyzer ports.DocumentAnalyzer,
	observer ports.ProcessingObserver,
	poll PollPolicy,
	maxBytes int64,
) *AnalyzeFileUseCase {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if observer == nil {
		observer = noopObserver{}
	}
	return &AnalyzeFileUseCase{
		ocr:      ocr,
		analyzer: analyzer,
		observer: observer,
		poller:   &ocrPoller{provider: ocr, policy: poll, sleep: sleepContext},
		maxBytes: maxBytes,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (uc *AnalyzeFileUseCase) AnalyzeFile(ctx context.Context, filename, mimeType string, body io.Reader) (*domain.Analysis, error) {
	resolvedMime, err := validateUploadType(filename, mimeType)
	if err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(io.LimitReader(body, uc.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(raw)) > uc.maxBytes {
		return nil, domain.WrapError(domain.ErrPayloadTooLarge, "read upload",
			fmt.Errorf("file exceeds %d bytes", uc.maxBytes))
	}
	if len(raw) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read upload", errors.New("file is empty"))
	}

	doc := &domain.Document{
		OriginalName: filename,
		SizeBytes:    int64(len(raw)),
		MimeType:     resolvedMime,
		CreatedAt:    uc.now(),
	}
	locator, err := uc.ocr.Submit(ctx, doc, raw)
	if err != nil {
		uc.observer.ObserveOCRPolls(0, "submit_error")
		return nil, fmt.Errorf("submit ocr operation: %w", err)
	}
	result, attempts, err := uc.poller.wait(ctx, locator)
	if err != nil {
		uc.observer.ObserveOCRPolls(attempts, pollOutcome(err))
		return nil, err
	}
	uc.observer.ObserveOCRPolls(attempts, "succeeded")

	text := result.JoinedText()
	if strings.TrimSpace(text) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "analyze file", errors.New("no text extracted from document"))
	}
	analysis := uc.analyzer.Analyze(text)
	slog.Info("file_analyzed", "filename", filename, "text_chars", len([]rune(text)), "document_type", analysis.DocumentType)
	return &analysis, nil
}
