package httpadapter

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/estate-docs/internal/core/domain"
	"github.com/kirillkom/estate-docs/internal/observability/logging"
)

const (
	exportSheet    = "Documents"
	exportPageSize = 500
	maxExportRows  = 5000
)

var exportHeader = []any{
	"ID", "File name", "Status", "Size (bytes)", "Uploaded at", "Processed at",
	"Document type", "Tenant", "Landlord", "Property address", "Monthly rent",
	"Invoice number", "Total amount", "Payment status", "Confidence",
}

// exportDocuments streams the documents matching ?status= as an XLSX workbook.
func (rt *Router) exportDocuments(w http.ResponseWriter, r *http.Request) {
	filter, err := bindListFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rows, err := rt.collectExportRows(r.Context(), filter.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}

	book, err := buildWorkbook(rows)
	if err != nil {
		writeError(w, r, fmt.Errorf("build workbook: %w", err))
		return
	}
	defer book.Close()

	filename := fmt.Sprintf("documents-%s.xlsx", rt.now().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := book.WriteTo(w); err != nil {
		logging.FromContext(r.Context()).Warn("export_write_failed", "error", err)
	}
}

func (rt *Router) collectExportRows(ctx context.Context, status domain.DocumentStatus) ([][]any, error) {
	rows := make([][]any, 0)
	for offset := 0; len(rows) < maxExportRows; offset += exportPageSize {
		page, err := rt.deps.Reader.List(ctx, domain.ListFilter{Status: status, Limit: exportPageSize, Offset: offset})
		if err != nil {
			return nil, err
		}
		for _, summary := range page.Documents {
			row, err := rt.exportRow(ctx, summary)
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
			if len(rows) == maxExportRows {
				break
			}
		}
		if len(page.Documents) < exportPageSize {
			break
		}
	}
	return rows, nil
}

func (rt *Router) exportRow(ctx context.Context, summary domain.DocumentSummary) ([]any, error) {
	processedAt := ""
	if summary.ProcessedAt != nil {
		processedAt = summary.ProcessedAt.UTC().Format(time.RFC3339)
	}
	row := []any{
		summary.ID, summary.OriginalName, string(summary.Status), summary.SizeBytes,
		summary.CreatedAt.UTC().Format(time.RFC3339), processedAt,
	}
	if summary.Status != domain.StatusCompleted {
		return row, nil
	}

	doc, err := rt.deps.Reader.GetByID(ctx, summary.ID)
	if err != nil {
		if domain.IsKind(err, domain.ErrDocumentNotFound) {
			return row, nil
		}
		return nil, err
	}
	if kv := doc.KeyValuePairs; kv != nil {
		row = append(row,
			kv.DocumentType, kv.TenantName, kv.LandlordName, kv.PropertyAddress, kv.MonthlyRent,
			kv.InvoiceNumber, kv.TotalAmount, kv.PaymentStatus, kv.ConfidenceScore,
		)
	}
	return row, nil
}

func buildWorkbook(rows [][]any) (*excelize.File, error) {
	book := excelize.NewFile()
	if err := book.SetSheetName("Sheet1", exportSheet); err != nil {
		book.Close()
		return nil, err
	}

	stream, err := book.NewStreamWriter(exportSheet)
	if err != nil {
		book.Close()
		return nil, err
	}
	for i, values := range append([][]any{exportHeader}, rows...) {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			book.Close()
			return nil, err
		}
		if err := stream.SetRow(cell, values); err != nil {
			book.Close()
			return nil, err
		}
	}
	if err := stream.Flush(); err != nil {
		book.Close()
		return nil, err
	}
	return book, nil
}
