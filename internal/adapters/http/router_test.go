package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/estate-docs/internal/core/domain"
)

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return &body, writer.FormDataContentType()
}

func completedDocument() *domain.Document {
	text := "INVOICE\nInvoice Number: INV-1"
	processed := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return &domain.Document{
		ID:            "doc-done",
		OriginalName:  "invoice.pdf",
		MimeType:      "application/pdf",
		SizeBytes:     2048,
		Status:        domain.StatusCompleted,
		ExtractedText: &text,
		Entities:      []domain.Entity{},
		KeyValuePairs: &domain.Analysis{DocumentType: "invoice", InvoiceNumber: "INV-1", TotalAmount: "$10.00", PhoneNumbers: []string{}},
		CreatedAt:     processed.Add(-time.Minute),
		UpdatedAt:     processed,
		ProcessedAt:   &processed,
	}
}

func TestHealthEndpoint(t *testing.T) {
	handler := newTestRouter(t, &ingestFake{}, newReaderFake(), Options{})
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/health", nil))

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var body healthResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if body.Status != "healthy" || body.Database != "connected" || body.Timestamp.IsZero() {
		t.Fatalf("unexpected health body %+v", body)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestHealthEndpointReportsUnreachableStore(t *testing.T) {
	handler := buildHandler(t, Dependencies{
		Ingestor: &ingestFake{},
		Reader:   newReaderFake(),
		Analyzer: analyzerFake{},
		Health:   healthFake{err: errors.New("connection refused")},
	}, Options{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/health", nil))
	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "disconnected") {
		t.Fatalf("expected disconnected database, got %s", res.Body.String())
	}
}

func TestHealthEndpointReportsQueue(t *testing.T) {
	cases := []struct {
		name      string
		queueErr  error
		wantCode  int
		wantQueue string
	}{
		{name: "connected", wantCode: http.StatusOK, wantQueue: "connected"},
		{name: "disconnected", queueErr: errors.New("nats: connection closed"), wantCode: http.StatusInternalServerError, wantQueue: "disconnected"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := buildHandler(t, Dependencies{
				Ingestor: &ingestFake{},
				Reader:   newReaderFake(),
				Analyzer: analyzerFake{},
				Health:   healthFake{},
				Queue:    healthFake{err: tc.queueErr},
			}, Options{})

			res := httptest.NewRecorder()
			handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/health", nil))
			if res.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, res.Code)
			}
			var body healthResponse
			if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
				t.Fatalf("decode health: %v", err)
			}
			if body.Queue != tc.wantQueue || body.Database != "connected" {
				t.Fatalf("unexpected health body %+v", body)
			}
		})
	}
}

func TestUploadDocumentAccepted(t *testing.T) {
	ingest := &ingestFake{}
	handler := newTestRouter(t, ingest, newReaderFake(), Options{})

	body, contentType := multipartBody(t, "file", "lease.pdf", []byte("%PDF-1.4 lease"))
	req := httptest.NewRequest(http.MethodPost, "/documents/upload", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	var payload uploadAccepted
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	if payload.DocumentID != "doc-1" || payload.Filename != "lease.pdf" || payload.Status != domain.StatusUploaded {
		t.Fatalf("unexpected upload response %+v", payload)
	}
	if payload.Message == "" {
		t.Fatalf("expected message in upload response")
	}
	if string(ingest.received) != "%PDF-1.4 lease" {
		t.Fatalf("ingestor received %q", ingest.received)
	}
}

func TestUploadDocumentRequiresFileField(t *testing.T) {
	handler := newTestRouter(t, &ingestFake{}, newReaderFake(), Options{})

	body, contentType := multipartBody(t, "attachment", "lease.pdf", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/documents/upload", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestUploadDocumentRejectsUnsupportedType(t *testing.T) {
	ingest := &ingestFake{err: domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("unsupported file type"))}
	handler := newTestRouter(t, ingest, newReaderFake(), Options{})

	body, contentType := multipartBody(t, "file", "notes.exe", []byte("MZ"))
	req := httptest.NewRequest(http.MethodPost, "/documents/upload", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "unsupported file type") {
		t.Fatalf("expected client error message, got %s", res.Body.String())
	}
}

func TestUploadDocumentTooLarge(t *testing.T) {
	handler := newTestRouter(t, &ingestFake{}, newReaderFake(), Options{MaxUploadBytes: 16})

	body, contentType := multipartBody(t, "file", "big.pdf", bytes.Repeat([]byte("a"), int(multipartOverhead)+64))
	req := httptest.NewRequest(http.MethodPost, "/documents/upload", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", res.Code)
	}
}

func TestGetDocument(t *testing.T) {
	handler := newTestRouter(t, &ingestFake{}, newReaderFake(completedDocument()), Options{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/documents/doc-done", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var doc domain.Document
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		t.Fatalf("decode document: %v", err)
	}
	if doc.KeyValuePairs == nil || doc.KeyValuePairs.InvoiceNumber != "INV-1" {
		t.Fatalf("expected extracted fields, got %+v", doc.KeyValuePairs)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/documents/missing", nil))
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown document, got %d", res.Code)
	}
}

func TestListDocumentsBindsQuery(t *testing.T) {
	reader := newReaderFake(completedDocument())
	handler := newTestRouter(t, &ingestFake{}, reader, Options{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/documents?status=Completed&limit=5", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if reader.lastFilter.Status != domain.StatusCompleted || reader.lastFilter.Limit != 5 || reader.lastFilter.Offset != 0 {
		t.Fatalf("unexpected filter %+v", reader.lastFilter)
	}
	var page domain.DocumentPage
	if err := json.NewDecoder(res.Body).Decode(&page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if page.Total != 1 || len(page.Documents) != 1 {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestListDocumentsRejectsMalformedLimit(t *testing.T) {
	handler := newTestRouter(t, &ingestFake{}, newReaderFake(), Options{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/documents?limit=ten", nil))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestListDocumentsHidesInternalErrors(t *testing.T) {
	reader := newReaderFake()
	reader.listErr = errors.New("pq: relation documents does not exist")
	handler := newTestRouter(t, &ingestFake{}, reader, Options{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/documents", nil))
	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.Code)
	}
	if strings.Contains(res.Body.String(), "relation") {
		t.Fatalf("internal error leaked: %s", res.Body.String())
	}
}

func TestSearchDocumentRequiresQuery(t *testing.T) {
	reader := newReaderFake(completedDocument())
	handler := newTestRouter(t, &ingestFake{}, reader, Options{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/documents/doc-done/search", nil))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without query, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/documents/doc-done/search?query=INV", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if reader.lastQuery != "INV" {
		t.Fatalf("expected query to reach reader, got %q", reader.lastQuery)
	}
}

func TestAnalyticsSummary(t *testing.T) {
	handler := newTestRouter(t, &ingestFake{}, newReaderFake(), Options{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/analytics/summary", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if body["total_documents"] != float64(4) || body["completed_documents"] != float64(3) || body["success_rate"] != float64(75) {
		t.Fatalf("unexpected summary %v", body)
	}
}

func TestAnalyzeText(t *testing.T) {
	handler := newTestRouter(t, &ingestFake{}, newReaderFake(), Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze-text", strings.NewReader(`{"text":"INV-9"}`))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var analysis domain.Analysis
	if err := json.NewDecoder(res.Body).Decode(&analysis); err != nil {
		t.Fatalf("decode analysis: %v", err)
	}
	if analysis.InvoiceNumber != "INV-9" {
		t.Fatalf("unexpected analysis %+v", analysis)
	}

	for _, payload := range []string{`{"text":"   "}`, `not json`} {
		res = httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/api/v1/analyze-text", strings.NewReader(payload)))
		if res.Code != http.StatusBadRequest {
			t.Fatalf("payload %q: expected 400, got %d", payload, res.Code)
		}
	}
}

func TestAnalyzeDocument(t *testing.T) {
	files := &filesFake{}
	handler := buildHandler(t, Dependencies{
		Ingestor: &ingestFake{},
		Reader:   newReaderFake(),
		Analyzer: analyzerFake{},
		Files:    files,
	}, Options{})

	body, contentType := multipartBody(t, "file", "lease.pdf", []byte("%PDF-1.4 lease"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var analysis domain.Analysis
	if err := json.NewDecoder(res.Body).Decode(&analysis); err != nil {
		t.Fatalf("decode analysis: %v", err)
	}
	if analysis.DocumentType != "rental_agreement" || !analysis.PetsMentioned {
		t.Fatalf("unexpected analysis %+v", analysis)
	}
	if files.filename != "lease.pdf" || string(files.received) != "%PDF-1.4 lease" {
		t.Fatalf("file did not reach analyzer: %q %q", files.filename, files.received)
	}
}

func TestAnalyzeDocumentErrors(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		field string
		want  int
	}{
		{name: "missing file", field: "upload", want: http.StatusBadRequest},
		{name: "no text", err: domain.WrapError(domain.ErrInvalidInput, "analyze file", errors.New("no text extracted from document")), field: "file", want: http.StatusBadRequest},
		{name: "ocr failed", err: domain.WrapError(domain.ErrOCRFailed, "poll ocr operation", errors.New("InvalidContent")), field: "file", want: http.StatusUnprocessableEntity},
		{name: "ocr timeout", err: domain.WrapError(domain.ErrOCRTimeout, "poll ocr operation", errors.New("still running")), field: "file", want: http.StatusGatewayTimeout},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := buildHandler(t, Dependencies{
				Ingestor: &ingestFake{},
				Reader:   newReaderFake(),
				Analyzer: analyzerFake{},
				Files:    &filesFake{err: tc.err},
			}, Options{})

			body, contentType := multipartBody(t, tc.field, "scan.png", []byte("png"))
			req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", body)
			req.Header.Set("Content-Type", contentType)
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)
			if res.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, res.Code)
			}
		})
	}
}

func TestAnalyzeDocumentUnconfigured(t *testing.T) {
	handler := newTestRouter(t, &ingestFake{}, newReaderFake(), Options{})

	body, contentType := multipartBody(t, "file", "lease.pdf", []byte("%PDF-1.4"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func TestExportDocumentsWritesWorkbook(t *testing.T) {
	uploaded := &domain.Document{ID: "doc-new", OriginalName: "new.png", Status: domain.StatusUploaded, CreatedAt: time.Now().UTC()}
	handler := newTestRouter(t, &ingestFake{}, newReaderFake(completedDocument(), uploaded), Options{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/documents/export?status=completed", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if !strings.Contains(res.Header().Get("Content-Disposition"), ".xlsx") {
		t.Fatalf("expected xlsx attachment, got %q", res.Header().Get("Content-Disposition"))
	}

	book, err := excelize.OpenReader(res.Body)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer book.Close()
	rows, err := book.GetRows(exportSheet)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header and one row, got %d rows", len(rows))
	}
	if rows[1][0] != "doc-done" || rows[1][6] != "invoice" || rows[1][11] != "INV-1" {
		t.Fatalf("unexpected export row %v", rows[1])
	}
}

func TestUnknownRouteReturnsJSON404(t *testing.T) {
	handler := newTestRouter(t, &ingestFake{}, newReaderFake(), Options{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
	if !strings.HasPrefix(res.Header().Get("Content-Type"), "application/json") {
		t.Fatalf("expected json error body")
	}
}
