package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/estate-docs/internal/core/domain"
	"github.com/kirillkom/estate-docs/internal/core/ports"
)

const DefaultMaxUploadBytes int64 = 10 << 20

var allowedExtensions = map[string]string{
	".pdf":  "application/pdf",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

type IngestDocumentUseCase struct {
	repo       ports.DocumentRepository
	storage    ports.ObjectStorage
	dispatcher ports.ProcessingDispatcher
	maxBytes   int64
	now        func() time.Time
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	dispatcher ports.ProcessingDispatcher,
	maxBytes int64,
) *IngestDocumentUseCase {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &IngestDocumentUseCase{
		repo:       repo,
		storage:    storage,
		dispatcher: dispatcher,
		maxBytes:   maxBytes,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Upload validates and stores the file, inserts the uploaded row, then dispatches
// processing without waiting for it. Validation failures never create a row.
func (uc *IngestDocumentUseCase) Upload(
	ctx context.Context,
	filename, mimeType string,
	body io.Reader,
) (*domain.Document, error) {
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

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(filename))
	now := uc.now()

	if err := uc.storage.Save(ctx, storageKey, bytes.NewReader(raw), int64(len(raw)), resolvedMime); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	doc := &domain.Document{
		ID:           id,
		OriginalName: filename,
		StoragePath:  storageKey,
		SizeBytes:    int64(len(raw)),
		MimeType:     resolvedMime,
		Status:       domain.StatusUploaded,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := uc.repo.Create(ctx, doc); err != nil {
		if delErr := uc.storage.Delete(context.WithoutCancel(ctx), storageKey); delErr != nil {
			slog.Warn("orphan_upload_cleanup_failed", "storage_path", storageKey, "error", delErr)
		}
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	// The row is already committed as uploaded; a failed hand-off is picked up by the recovery sweep.
	job := domain.ProcessingJob{DocumentID: doc.ID, StoragePath: doc.StoragePath, EnqueuedAt: now}
	if err := uc.dispatcher.Dispatch(ctx, job); err != nil {
		slog.Warn("processing_dispatch_failed", "document_id", doc.ID, "error", err)
	}

	return doc, nil
}

func validateUploadType(filename, mimeType string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	expected, ok := allowedExtensions[ext]
	if !ok {
		return "", domain.WrapError(domain.ErrInvalidInput, "validate upload",
			fmt.Errorf("unsupported file type %q: allowed pdf, jpg, jpeg, png", ext))
	}

	declared := strings.ToLower(strings.TrimSpace(mimeType))
	if declared != "" {
		if parsed, _, err := mime.ParseMediaType(declared); err == nil {
			declared = parsed
		}
	}
	switch declared {
	case "", "application/octet-stream", expected:
		return expected, nil
	case "image/jpg", "image/pjpeg":
		if expected == "image/jpeg" {
			return expected, nil
		}
	}
	return "", domain.WrapError(domain.ErrInvalidInput, "validate upload",
		fmt.Errorf("content type %q does not match extension %q", declared, ext))
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
