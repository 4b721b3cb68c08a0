package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	"github.com/kirillkom/estate-docs/internal/core/domain"
	"github.com/kirillkom/estate-docs/internal/observability/logging"
)

const healthTimeout = 2 * time.Second

type uploadAccepted struct {
	Message    string                `json:"message"`
	DocumentID string                `json:"document_id"`
	Filename   string                `json:"filename"`
	Status     domain.DocumentStatus `json:"status"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	Queue     string    `json:"queue,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (rt *Router) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := healthResponse{Status: "healthy", Database: "connected", Timestamp: rt.now()}
	if rt.deps.Health != nil {
		if err := rt.deps.Health.Ping(ctx); err != nil {
			logging.FromContext(r.Context()).Error("health_check_failed", "component", "database", "error", err)
			resp.Status, resp.Database = "unhealthy", "disconnected"
		}
	}
	if rt.deps.Queue != nil {
		resp.Queue = "connected"
		if err := rt.deps.Queue.Ping(ctx); err != nil {
			logging.FromContext(r.Context()).Error("health_check_failed", "component", "queue", "error", err)
			resp.Status, resp.Queue = "unhealthy", "disconnected"
		}
	}
	if resp.Status != "healthy" {
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.opts.MaxUploadBytes+multipartOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, domain.WrapError(domain.ErrPayloadTooLarge, "upload document", err))
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	doc, err := rt.deps.Ingestor.Upload(r.Context(), header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rt.deps.Metrics != nil {
		rt.deps.Metrics.RecordUpload(doc.SizeBytes)
	}

	logging.FromContext(r.Context()).Info("document_uploaded", "document_id", doc.ID, "size_bytes", doc.SizeBytes)
	writeJSON(w, http.StatusAccepted, uploadAccepted{
		Message:    "Document uploaded successfully. Processing started.",
		DocumentID: doc.ID,
		Filename:   doc.OriginalName,
		Status:     doc.Status,
	})
}

func (rt *Router) analyzeDocument(w http.ResponseWriter, r *http.Request) {
	if rt.deps.Files == nil {
		writeError(w, r, domain.WrapError(domain.ErrTemporary, "analyze document", errors.New("file analysis is not configured")))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, rt.opts.MaxUploadBytes+multipartOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, domain.WrapError(domain.ErrPayloadTooLarge, "analyze document", err))
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	analysis, err := rt.deps.Files.AnalyzeFile(r.Context(), header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.deps.Reader.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	filter, err := bindListFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := rt.deps.Reader.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (rt *Router) searchDocument(w http.ResponseWriter, r *http.Request) {
	var query string
	if err := runtime.BindQueryParameter("form", true, true, "query", r.URL.Query(), &query); err != nil {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "search document", err))
		return
	}
	result, err := rt.deps.Reader.Search(r.Context(), chi.URLParam(r, "id"), query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) analyticsSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := rt.deps.Reader.Summary(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (rt *Router) analyzeText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "text is required"})
		return
	}

	analysis, err := rt.deps.Analyzer.AnalyzeText(r.Context(), req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func bindListFilter(r *http.Request) (domain.ListFilter, error) {
	query := r.URL.Query()
	var (
		status string
		filter domain.ListFilter
	)
	for name, dest := range map[string]any{"status": &status, "limit": &filter.Limit, "offset": &filter.Offset} {
		if err := runtime.BindQueryParameter("form", true, false, name, query, dest); err != nil {
			return domain.ListFilter{}, domain.WrapError(domain.ErrInvalidInput, "list documents", fmt.Errorf("parameter %s: %w", name, err))
		}
	}
	filter.Status = domain.DocumentStatus(strings.ToLower(strings.TrimSpace(status)))
	return filter, nil
}
