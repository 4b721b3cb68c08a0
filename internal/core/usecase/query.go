package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/kirillkom/estate-docs/internal/core/domain"
	"github.com/kirillkom/estate-docs/internal/core/ports"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

type DocumentQueryUseCase struct {
	repo     ports.DocumentRepository
	analyzer ports.DocumentAnalyzer
}

func NewDocumentQueryUseCase(repo ports.DocumentRepository, analyzer ports.DocumentAnalyzer) *DocumentQueryUseCase {
	return &DocumentQueryUseCase{repo: repo, analyzer: analyzer}
}

func (uc *DocumentQueryUseCase) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get document", errors.New("id is required"))
	}
	doc, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// List returns summaries newest first. Zero limit means DefaultListLimit.
func (uc *DocumentQueryUseCase) List(ctx context.Context, filter domain.ListFilter) (*domain.DocumentPage, error) {
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list documents", errors.New("limit and offset must be non-negative"))
	}
	if filter.Status != "" {
		if _, ok := domain.ParseStatus(string(filter.Status)); !ok {
			return nil, domain.WrapError(domain.ErrInvalidInput, "list documents", fmt.Errorf("unknown status %q", filter.Status))
		}
	}
	if filter.Limit == 0 {
		filter.Limit = DefaultListLimit
	}
	if filter.Limit > MaxListLimit {
		filter.Limit = MaxListLimit
	}

	docs, total, err := uc.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	page := &domain.DocumentPage{Documents: make([]domain.DocumentSummary, 0, len(docs)), Total: total}
	for i := range docs {
		page.Documents = append(page.Documents, docs[i].Summary())
	}
	return page, nil
}

// Search matches query case-insensitively against extracted fields, entities and text lines.
func (uc *DocumentQueryUseCase) Search(ctx context.Context, id, query string) (*domain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search document", errors.New("query is required"))
	}
	doc, err := uc.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(query)
	result := &domain.SearchResult{Query: query, Matches: []domain.SearchMatch{}}
	add := func(kind, field, value string) {
		if strings.Contains(strings.ToLower(value), needle) {
			result.Matches = append(result.Matches, domain.SearchMatch{Type: kind, Field: field, Value: value})
		}
	}

	fields := doc.KeyValuePairs.Fields()
	for _, key := range sortedKeys(fields) {
		for _, value := range fields[key] {
			add("extracted_field", key, value)
		}
	}
	for _, entity := range doc.Entities {
		add("entity", entity.Category, entity.Text)
	}
	if doc.ExtractedText != nil {
		for _, line := range strings.Split(*doc.ExtractedText, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				add("text", "extracted_text", line)
			}
		}
	}
	return result, nil
}

func (uc *DocumentQueryUseCase) Summary(ctx context.Context) (*domain.AnalyticsSummary, error) {
	counts, err := uc.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count documents by status: %w", err)
	}
	total := counts.Uploaded + counts.Processing + counts.Completed + counts.Failed
	summary := &domain.AnalyticsSummary{TotalDocuments: total, StatusCounts: counts}
	if total > 0 {
		summary.SuccessRate = math.Round(float64(counts.Completed)/float64(total)*10000) / 100
	}
	return summary, nil
}

// AnalyzeText runs the key/value analyzer over ad-hoc text without persisting anything.
func (uc *DocumentQueryUseCase) AnalyzeText(_ context.Context, text string) (*domain.Analysis, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "analyze text", errors.New("no text provided"))
	}
	analysis := uc.analyzer.Analyze(text)
	return &analysis, nil
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
