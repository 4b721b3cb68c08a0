package domain

import "time"

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

// ParseStatus accepts the lower-case wire form of a status.
func ParseStatus(raw string) (DocumentStatus, bool) {
	switch s := DocumentStatus(raw); s {
	case StatusUploaded, StatusProcessing, StatusCompleted, StatusFailed:
		return s, true
	default:
		return "", false
	}
}

func (s DocumentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether next is the single legal forward edge from s.
func (s DocumentStatus) CanTransitionTo(next DocumentStatus) bool {
	switch s {
	case StatusUploaded:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

type Document struct {
	ID            string         `json:"id"`
	OriginalName  string         `json:"original_name"`
	StoragePath   string         `json:"storage_path"`
	SizeBytes     int64          `json:"size_bytes"`
	MimeType      string         `json:"mime_type"`
	Status        DocumentStatus `json:"status"`
	ExtractedText *string        `json:"extracted_text"`
	Entities      []Entity       `json:"entities"`
	KeyValuePairs *Analysis      `json:"key_value_pairs"`
	Error         string         `json:"error,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	ProcessedAt   *time.Time     `json:"processed_at,omitempty"`
}

// DocumentSummary is the list projection; it never carries extracted artifacts.
type DocumentSummary struct {
	ID           string         `json:"id"`
	OriginalName string         `json:"original_name"`
	SizeBytes    int64          `json:"size_bytes"`
	MimeType     string         `json:"mime_type"`
	Status       DocumentStatus `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	ProcessedAt  *time.Time     `json:"processed_at,omitempty"`
}

func (d *Document) Summary() DocumentSummary {
	return DocumentSummary{
		ID:           d.ID,
		OriginalName: d.OriginalName,
		SizeBytes:    d.SizeBytes,
		MimeType:     d.MimeType,
		Status:       d.Status,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
		ProcessedAt:  d.ProcessedAt,
	}
}

type Entity struct {
	Text            string  `json:"text"`
	Category        string  `json:"category"`
	Subcategory     string  `json:"subcategory,omitempty"`
	ConfidenceScore float64 `json:"confidence_score"`
	Offset          int     `json:"offset"`
	Length          int     `json:"length"`
}

// ProcessingResult is everything written by the completed transition.
type ProcessingResult struct {
	ExtractedText string
	Entities      []Entity
	KeyValuePairs *Analysis
}

// ProcessingJob is the unit handed from the upload path to the orchestrator.
type ProcessingJob struct {
	DocumentID  string    `json:"document_id"`
	StoragePath string    `json:"storage_path"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

type ListFilter struct {
	Status DocumentStatus
	Limit  int
	Offset int
}

type DocumentPage struct {
	Documents []DocumentSummary `json:"documents"`
	Total     int               `json:"total"`
}

type StatusCounts struct {
	Uploaded   int `json:"uploaded_documents"`
	Processing int `json:"processing_documents"`
	Completed  int `json:"completed_documents"`
	Failed     int `json:"failed_documents"`
}

type AnalyticsSummary struct {
	TotalDocuments int `json:"total_documents"`
	StatusCounts
	SuccessRate float64 `json:"success_rate"`
}

type SearchMatch struct {
	Type  string `json:"type"`
	Field string `json:"field"`
	Value string `json:"value"`
}

type SearchResult struct {
	Query   string        `json:"query"`
	Matches []SearchMatch `json:"matches"`
}
