package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/kirillkom/estate-docs/internal/core/domain"
	"github.com/kirillkom/estate-docs/internal/core/ports"
)

const (
	DefaultEntityTextLimit   = 5120
	defaultFinalWriteTimeout = 15 * time.Second

	outcomeCompleted = "completed"
	outcomeFailed    = "failed"
)

type ProcessOptions struct {
	Poll            PollPolicy
	EntityTextLimit int
	// FinalWriteTimeout bounds the terminal status write, which runs detached from
	// the caller's cancellation.
	FinalWriteTimeout time.Duration
}

type ProcessDocumentUseCase struct {
	repo     ports.DocumentRepository
	storage  ports.ObjectStorage
	ocr      ports.OCRProvider
	entities ports.EntityExtractor
	analyzer ports.DocumentAnalyzer
	observer ports.ProcessingObserver
	poller   *ocrPoller
	opts     ProcessOptions

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	ocr ports.OCRProvider,
	entities ports.EntityExtractor,
	analyzer ports.DocumentAnalyzer,
	observer ports.ProcessingObserver,
	opts ProcessOptions,
) *ProcessDocumentUseCase {
	if opts.EntityTextLimit <= 0 {
		opts.EntityTextLimit = DefaultEntityTextLimit
	}
	if opts.FinalWriteTimeout <= 0 {
		opts.FinalWriteTimeout = defaultFinalWriteTimeout
	}
	if observer == nil {
		observer = noopObserver{}
	}
	return &ProcessDocumentUseCase{
		repo:     repo,
		storage:  storage,
		ocr:      ocr,
		entities: entities,
		analyzer: analyzer,
		observer: observer,
		poller:   &ocrPoller{provider: ocr, policy: opts.Poll, sleep: sleepContext},
		opts:     opts,
		inFlight: make(map[string]struct{}),
	}
}

// Process runs one document from uploaded to a terminal status. Documents that
// are already processing or terminal are left untouched.
func (uc *ProcessDocumentUseCase) Process(ctx context.Context, documentID, storagePath string) error {
	if !uc.acquire(documentID) {
		return domain.WrapError(domain.ErrAlreadyProcessing, "process document",
			fmt.Errorf("document %s has a run in flight", documentID))
	}
	defer uc.release(documentID)

	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("fetch document by id: %w", err)
	}
	if doc.Status != domain.StatusUploaded {
		slog.Info("document_processing_skipped", "document_id", documentID, "status", doc.Status)
		return nil
	}

	if err := uc.repo.MarkProcessing(ctx, documentID); err != nil {
		if domain.IsKind(err, domain.ErrStatusConflict) {
			slog.Info("document_processing_skipped", "document_id", documentID, "reason", "status_conflict")
			return nil
		}
		return fmt.Errorf("set status=processing: %w", err)
	}

	if storagePath == "" {
		storagePath = doc.StoragePath
	}

	started := time.Now()
	uc.observer.StartDocument()
	slog.Info("document_processing_started", "document_id", documentID, "storage_path", storagePath)

	result, runErr := uc.runRecovered(ctx, doc, storagePath)

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.opts.FinalWriteTimeout)
	defer cancel()

	if runErr != nil {
		uc.observer.FinishDocument(time.Since(started), outcomeFailed)
		if failErr := uc.repo.Fail(writeCtx, documentID, runErr.Error()); failErr != nil {
			slog.Error("document_fail_write_failed", "document_id", documentID, "error", failErr)
			return fmt.Errorf("%w; mark failed status: %v", runErr, failErr)
		}
		slog.Warn("document_processing_failed", "document_id", documentID, "error", runErr)
		return runErr
	}

	if err := uc.repo.Complete(writeCtx, documentID, result); err != nil {
		uc.observer.FinishDocument(time.Since(started), outcomeFailed)
		slog.Error("document_complete_write_failed", "document_id", documentID, "error", err)
		return fmt.Errorf("set status=completed: %w", err)
	}
	uc.observer.FinishDocument(time.Since(started), outcomeCompleted)
	slog.Info("document_processing_completed",
		"document_id", documentID,
		"text_chars", len([]rune(result.ExtractedText)),
		"entities", len(result.Entities),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return nil
}

// runRecovered turns a panic in a provider or the analyzer into a run error so
// the document still reaches failed.
func (uc *ProcessDocumentUseCase) runRecovered(ctx context.Context, doc *domain.Document, storagePath string) (result domain.ProcessingResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("document_processing_panicked", "document_id", doc.ID, "panic", r, "stack", string(debug.Stack()))
			result, err = domain.ProcessingResult{}, fmt.Errorf("processing panicked: %v", r)
		}
	}()
	return uc.run(ctx, doc, storagePath)
}

func (uc *ProcessDocumentUseCase) run(ctx context.Context, doc *domain.Document, storagePath string) (domain.ProcessingResult, error) {
	content, err := uc.readSource(ctx, storagePath)
	if err != nil {
		return domain.ProcessingResult{}, err
	}

	text, err := uc.recognize(ctx, doc, content)
	if err != nil {
		return domain.ProcessingResult{}, err
	}

	entities := uc.extractEntities(ctx, doc.ID, text)

	var analysis *domain.Analysis
	if uc.analyzer != nil {
		a := uc.analyzer.Analyze(text)
		analysis = &a
	}

	return domain.ProcessingResult{
		ExtractedText: text,
		Entities:      entities,
		KeyValuePairs: analysis,
	}, nil
}

func (uc *ProcessDocumentUseCase) readSource(ctx context.Context, storagePath string) ([]byte, error) {
	rc, err := uc.storage.Open(ctx, storagePath)
	if err != nil {
		return nil, fmt.Errorf("open source file: %w", err)
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read source file: %w", err)
	}
	return content, nil
}

func (uc *ProcessDocumentUseCase) recognize(ctx context.Context, doc *domain.Document, content []byte) (string, error) {
	locator, err := uc.ocr.Submit(ctx, doc, content)
	if err != nil {
		uc.observer.ObserveOCRPolls(0, "submit_error")
		return "", fmt.Errorf("submit ocr operation: %w", err)
	}

	result, attempts, err := uc.poller.wait(ctx, locator)
	if err != nil {
		uc.observer.ObserveOCRPolls(attempts, pollOutcome(err))
		return "", err
	}
	uc.observer.ObserveOCRPolls(attempts, "succeeded")
	return result.JoinedText(), nil
}

// extractEntities never fails the run: text extraction already succeeded.
func (uc *ProcessDocumentUseCase) extractEntities(ctx context.Context, documentID, text string) []domain.Entity {
	if uc.entities == nil || text == "" {
		return []domain.Entity{}
	}
	entities, err := uc.entities.ExtractEntities(ctx, domain.TruncateRunes(text, uc.opts.EntityTextLimit))
	if err != nil {
		slog.Warn("entity_extraction_degraded", "document_id", documentID, "error", err)
		return []domain.Entity{}
	}
	if entities == nil {
		return []domain.Entity{}
	}
	return entities
}

func (uc *ProcessDocumentUseCase) acquire(id string) bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if _, busy := uc.inFlight[id]; busy {
		return false
	}
	uc.inFlight[id] = struct{}{}
	return true
}

func (uc *ProcessDocumentUseCase) release(id string) {
	uc.mu.Lock()
	delete(uc.inFlight, id)
	uc.mu.Unlock()
}

func pollOutcome(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrOCRFailed):
		return "failed"
	case domain.IsKind(err, domain.ErrOCRTimeout):
		return "timeout"
	default:
		return "error"
	}
}

type noopObserver struct{}

func (noopObserver) StartDocument()                       {}
func (noopObserver) FinishDocument(time.Duration, string) {}
func (noopObserver) ObserveOCRPolls(int, string)          {}
