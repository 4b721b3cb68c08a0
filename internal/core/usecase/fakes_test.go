package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/kirillkom/estate-docs/internal/core/domain"
)

// memoryRepo enforces the same conditional status writes as the postgres repository.
type memoryRepo struct {
	mu        sync.Mutex
	docs      map[string]*domain.Document
	history   map[string][]domain.DocumentStatus
	createErr error
	getErr    error
	listErr   error
	failErr   error
	creates   int
}

func newMemoryRepo(docs ...*domain.Document) *memoryRepo {
	r := &memoryRepo{docs: map[string]*domain.Document{}, history: map[string][]domain.DocumentStatus{}}
	for _, d := range docs {
		copyDoc := *d
		r.docs[d.ID] = &copyDoc
		r.history[d.ID] = []domain.DocumentStatus{d.Status}
	}
	return r
}

func (r *memoryRepo) Create(_ context.Context, doc *domain.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates++
	if r.createErr != nil {
		return r.createErr
	}
	copyDoc := *doc
	r.docs[doc.ID] = &copyDoc
	r.history[doc.ID] = []domain.DocumentStatus{doc.Status}
	return nil
}

func (r *memoryRepo) GetByID(_ context.Context, id string) (*domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	doc, ok := r.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", errors.New(id))
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (r *memoryRepo) List(_ context.Context, filter domain.ListFilter) ([]domain.Document, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, 0, r.listErr
	}
	var all []domain.Document
	for _, d := range r.docs {
		if filter.Status == "" || d.Status == filter.Status {
			all = append(all, *d)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if filter.Offset >= len(all) {
		return []domain.Document{}, total, nil
	}
	all = all[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(all) {
		all = all[:filter.Limit]
	}
	return all, total, nil
}

func (r *memoryRepo) ListStale(_ context.Context, status domain.DocumentStatus, before time.Time, limit int) ([]domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Document
	for _, d := range r.docs {
		if d.Status == status && d.UpdatedAt.Before(before) {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryRepo) CountByStatus(context.Context) (domain.StatusCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var c domain.StatusCounts
	for _, d := range r.docs {
		switch d.Status {
		case domain.StatusUploaded:
			c.Uploaded++
		case domain.StatusProcessing:
			c.Processing++
		case domain.StatusCompleted:
			c.Completed++
		case domain.StatusFailed:
			c.Failed++
		}
	}
	return c, nil
}

func (r *memoryRepo) transition(id string, from, to domain.DocumentStatus, apply func(*domain.Document)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "update status", errors.New(id))
	}
	if doc.Status != from {
		return domain.WrapError(domain.ErrStatusConflict, "update status", errors.New(string(doc.Status)))
	}
	doc.Status = to
	doc.UpdatedAt = time.Now().UTC()
	if apply != nil {
		apply(doc)
	}
	r.history[id] = append(r.history[id], to)
	return nil
}

func (r *memoryRepo) MarkProcessing(_ context.Context, id string) error {
	return r.transition(id, domain.StatusUploaded, domain.StatusProcessing, nil)
}

func (r *memoryRepo) Complete(_ context.Context, id string, result domain.ProcessingResult) error {
	return r.transition(id, domain.StatusProcessing, domain.StatusCompleted, func(d *domain.Document) {
		text := result.ExtractedText
		d.ExtractedText = &text
		d.Entities = result.Entities
		d.KeyValuePairs = result.KeyValuePairs
		now := d.UpdatedAt
		d.ProcessedAt = &now
	})
}

func (r *memoryRepo) Fail(_ context.Context, id string, msg string) error {
	if r.failErr != nil {
		return r.failErr
	}
	return r.transition(id, domain.StatusProcessing, domain.StatusFailed, func(d *domain.Document) {
		d.Error = msg
		now := d.UpdatedAt
		d.ProcessedAt = &now
	})
}

func (r *memoryRepo) Ping(context.Context) error { return nil }

func (r *memoryRepo) get(id string) domain.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.docs[id]
}

func (r *memoryRepo) statuses(id string) []domain.DocumentStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.DocumentStatus(nil), r.history[id]...)
}

type memoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	saveErr error
	deleted []string
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: map[string][]byte{}, types: map[string]string{}}
}

func (s *memoryStorage) Save(_ context.Context, key string, data io.Reader, _ int64, contentType string) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = raw
	s.types[key] = contentType
	return nil
}

func (s *memoryStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.objects[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "open object", errors.New(key))
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (s *memoryStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

type dispatcherFake struct {
	mu   sync.Mutex
	jobs []domain.ProcessingJob
	err  error
}

func (d *dispatcherFake) Dispatch(_ context.Context, job domain.ProcessingJob) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, job)
	return nil
}

// ocrFake replays scripted poll results; the last one repeats once the script runs out.
type ocrFake struct {
	mu        sync.Mutex
	submitErr error
	results   []domain.OCRPollResult
	pollErr   error
	submits   int
	polls     int
	// block, when set, holds Submit until released.
	block chan struct{}
	// panicPoll makes Poll panic, standing in for a provider bug.
	panicPoll bool
}

func (o *ocrFake) Submit(ctx context.Context, _ *domain.Document, _ []byte) (string, error) {
	if o.block != nil {
		select {
		case <-o.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.submits++
	if o.submitErr != nil {
		return "", o.submitErr
	}
	return "op-1", nil
}

func (o *ocrFake) Poll(context.Context, string) (domain.OCRPollResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.polls++
	if o.panicPoll {
		panic("nil page in provider response")
	}
	if o.pollErr != nil {
		return domain.OCRPollResult{}, o.pollErr
	}
	if len(o.results) == 0 {
		return domain.OCRPollResult{State: domain.OCRRunning}, nil
	}
	idx := o.polls - 1
	if idx >= len(o.results) {
		idx = len(o.results) - 1
	}
	return o.results[idx], nil
}

func succeededWith(lines ...string) domain.OCRPollResult {
	page := domain.OCRPage{}
	for _, l := range lines {
		page.Lines = append(page.Lines, domain.OCRLine{Content: l})
	}
	return domain.OCRPollResult{State: domain.OCRSucceeded, Pages: []domain.OCRPage{page}}
}

type entitiesFake struct {
	entities []domain.Entity
	err      error
	gotText  string
}

func (e *entitiesFake) ExtractEntities(_ context.Context, text string) ([]domain.Entity, error) {
	e.gotText = text
	if e.err != nil {
		return nil, e.err
	}
	return e.entities, nil
}

type analyzerFake struct {
	analysis domain.Analysis
}

func (a analyzerFake) Analyze(string) domain.Analysis { return a.analysis }

type observerFake struct {
	mu       sync.Mutex
	started  int
	outcomes []string
	polls    []string
}

func (o *observerFake) StartDocument() {
	o.mu.Lock()
	o.started++
	o.mu.Unlock()
}

func (o *observerFake) FinishDocument(_ time.Duration, outcome string) {
	o.mu.Lock()
	o.outcomes = append(o.outcomes, outcome)
	o.mu.Unlock()
}

func (o *observerFake) ObserveOCRPolls(_ int, outcome string) {
	o.mu.Lock()
	o.polls = append(o.polls, outcome)
	o.mu.Unlock()
}

func noSleep(context.Context, time.Duration) error { return nil }
