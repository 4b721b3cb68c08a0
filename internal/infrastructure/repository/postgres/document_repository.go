package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/estate-docs/internal/core/domain"
)

const documentColumns = `id, original_name, storage_path, size_bytes, mime_type, status, extracted_text,
	entities, key_value_pairs, error_message, created_at, updated_at, processed_at`

const summaryColumns = `id, original_name, storage_path, size_bytes, mime_type, status, error_message,
	created_at, updated_at, processed_at`

type DocumentRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *DocumentRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping document store: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, original_name, storage_path, size_bytes, mime_type, status, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`,
		doc.ID, doc.OriginalName, doc.StoragePath, doc.SizeBytes, doc.MimeType,
		string(doc.Status), doc.Error, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)

	var (
		doc         domain.Document
		status      string
		text        sql.NullString
		entitiesRaw []byte
		pairsRaw    []byte
		processedAt sql.NullTime
	)
	err := row.Scan(
		&doc.ID, &doc.OriginalName, &doc.StoragePath, &doc.SizeBytes, &doc.MimeType, &status, &text,
		&entitiesRaw, &pairsRaw, &doc.Error, &doc.CreatedAt, &doc.UpdatedAt, &processedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}

	doc.Status = domain.DocumentStatus(status)
	if text.Valid {
		doc.ExtractedText = &text.String
	}
	if processedAt.Valid {
		t := processedAt.Time
		doc.ProcessedAt = &t
	}
	if len(entitiesRaw) > 0 {
		if err := json.Unmarshal(entitiesRaw, &doc.Entities); err != nil {
			return nil, fmt.Errorf("unmarshal entities: %w", err)
		}
	}
	if len(pairsRaw) > 0 {
		var analysis domain.Analysis
		if err := json.Unmarshal(pairsRaw, &analysis); err != nil {
			return nil, fmt.Errorf("unmarshal key value pairs: %w", err)
		}
		doc.KeyValuePairs = &analysis
	}
	return &doc, nil
}

func (r *DocumentRepository) List(ctx context.Context, filter domain.ListFilter) ([]domain.Document, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM documents WHERE ($1 = '' OR status = $1)
`, string(filter.Status)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT `+summaryColumns+`
FROM documents
WHERE ($1 = '' OR status = $1)
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3
`, string(filter.Status), filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs, err := scanSummaries(rows)
	if err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

func (r *DocumentRepository) ListStale(
	ctx context.Context,
	status domain.DocumentStatus,
	updatedBefore time.Time,
	limit int,
) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+summaryColumns+`
FROM documents
WHERE status = $1 AND updated_at < $2
ORDER BY updated_at ASC
LIMIT $3
`, string(status), updatedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale documents: %w", err)
	}
	defer rows.Close()
	return scanSummaries(rows)
}

func (r *DocumentRepository) CountByStatus(ctx context.Context) (domain.StatusCounts, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM documents GROUP BY status`)
	if err != nil {
		return domain.StatusCounts{}, fmt.Errorf("count documents by status: %w", err)
	}
	defer rows.Close()

	var counts domain.StatusCounts
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return domain.StatusCounts{}, fmt.Errorf("scan status count: %w", err)
		}
		switch domain.DocumentStatus(status) {
		case domain.StatusUploaded:
			counts.Uploaded = n
		case domain.StatusProcessing:
			counts.Processing = n
		case domain.StatusCompleted:
			counts.Completed = n
		case domain.StatusFailed:
			counts.Failed = n
		}
	}
	if err := rows.Err(); err != nil {
		return domain.StatusCounts{}, fmt.Errorf("iterate status counts: %w", err)
	}
	return counts, nil
}

// MarkProcessing moves an uploaded row to processing. It is the compare-and-set
// that keeps two runners from both claiming the same document.
func (r *DocumentRepository) MarkProcessing(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, updated_at = $3
WHERE id = $1 AND status = $4
`, id, string(domain.StatusProcessing), r.now(), string(domain.StatusUploaded))
	if err != nil {
		return fmt.Errorf("mark document processing: %w", err)
	}
	return r.checkTransition(ctx, res, id, "mark document processing")
}

func (r *DocumentRepository) Complete(ctx context.Context, id string, result domain.ProcessingResult) error {
	entities := result.Entities
	if entities == nil {
		entities = []domain.Entity{}
	}
	entitiesJSON, err := json.Marshal(entities)
	if err != nil {
		return fmt.Errorf("marshal entities: %w", err)
	}
	var pairsJSON []byte
	if result.KeyValuePairs != nil {
		if pairsJSON, err = json.Marshal(result.KeyValuePairs); err != nil {
			return fmt.Errorf("marshal key value pairs: %w", err)
		}
	}

	now := r.now()
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, extracted_text = $3, entities = $4, key_value_pairs = $5,
	error_message = '', updated_at = $6, processed_at = $6
WHERE id = $1 AND status = $7
`, id, string(domain.StatusCompleted), result.ExtractedText, entitiesJSON, pairsJSON, now, string(domain.StatusProcessing))
	if err != nil {
		return fmt.Errorf("complete document: %w", err)
	}
	return r.checkTransition(ctx, res, id, "complete document")
}

func (r *DocumentRepository) Fail(ctx context.Context, id string, errMessage string) error {
	now := r.now()
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, error_message = $3, updated_at = $4, processed_at = $4
WHERE id = $1 AND status = $5
`, id, string(domain.StatusFailed), errMessage, now, string(domain.StatusProcessing))
	if err != nil {
		return fmt.Errorf("fail document: %w", err)
	}
	return r.checkTransition(ctx, res, id, "fail document")
}

// checkTransition tells a missing row apart from a row that is in another status.
func (r *DocumentRepository) checkTransition(ctx context.Context, res sql.Result, id, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected > 0 {
		return nil
	}

	var status string
	err = r.db.QueryRowContext(ctx, `SELECT status FROM documents WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WrapError(domain.ErrDocumentNotFound, op, fmt.Errorf("id=%s", id))
	}
	if err != nil {
		return fmt.Errorf("%s lookup status: %w", op, err)
	}
	return domain.WrapError(domain.ErrStatusConflict, op, fmt.Errorf("id=%s current=%s", id, status))
}

func scanSummaries(rows *sql.Rows) ([]domain.Document, error) {
	docs := make([]domain.Document, 0)
	for rows.Next() {
		var (
			doc         domain.Document
			status      string
			processedAt sql.NullTime
		)
		if err := rows.Scan(
			&doc.ID, &doc.OriginalName, &doc.StoragePath, &doc.SizeBytes, &doc.MimeType, &status,
			&doc.Error, &doc.CreatedAt, &doc.UpdatedAt, &processedAt,
		); err != nil {
			return nil, fmt.Errorf("scan document summary: %w", err)
		}
		doc.Status = domain.DocumentStatus(status)
		if processedAt.Valid {
			t := processedAt.Time
			doc.ProcessedAt = &t
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}
