package workerpool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/estate-docs/internal/core/domain"
)

type processorFake struct {
	mu      sync.Mutex
	calls   []string
	block   chan struct{}
	started chan string
	err     error
	sawDead bool
}

func (p *processorFake) Process(ctx context.Context, documentID, _ string) error {
	p.mu.Lock()
	p.calls = append(p.calls, documentID)
	p.mu.Unlock()
	if p.started != nil {
		p.started <- documentID
	}
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			p.mu.Lock()
			_, p.sawDead = ctx.Deadline()
			p.mu.Unlock()
			return ctx.Err()
		}
	}
	return p.err
}

type observerFake struct {
	mu      sync.Mutex
	results []string
	lags    int
}

func (o *observerFake) ObserveQueueLag(time.Duration) {
	o.mu.Lock()
	o.lags++
	o.mu.Unlock()
}

func (o *observerFake) SetQueueDepth(int) {}

func (o *observerFake) ObserveDispatch(result string) {
	o.mu.Lock()
	o.results = append(o.results, result)
	o.mu.Unlock()
}

func TestDispatchRunsJob(t *testing.T) {
	processor := &processorFake{started: make(chan string, 1)}
	observer := &observerFake{}
	pool := New(processor, observer, Options{Workers: 2})
	pool.Start(context.Background())

	if err := pool.Dispatch(context.Background(), domain.ProcessingJob{DocumentID: "doc-1"}); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	select {
	case id := <-processor.started:
		if id != "doc-1" {
			t.Fatalf("unexpected document %q", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("job was not processed")
	}
	if err := pool.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if observer.lags != 1 {
		t.Fatalf("expected one queue lag observation, got %d", observer.lags)
	}
}

func TestDispatchRejectsWhenQueueFull(t *testing.T) {
	observer := &observerFake{}
	pool := New(&processorFake{}, observer, Options{Workers: 1, QueueSize: 1})

	if err := pool.Dispatch(context.Background(), domain.ProcessingJob{DocumentID: "a"}); err != nil {
		t.Fatalf("first Dispatch() error = %v", err)
	}
	if len(pool.jobs) != cap(pool.jobs) {
		t.Fatalf("expected saturated queue")
	}
	err := pool.Dispatch(context.Background(), domain.ProcessingJob{DocumentID: "b"})
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
	if observer.results[len(observer.results)-1] != "rejected" {
		t.Fatalf("expected rejected observation, got %v", observer.results)
	}
}

func TestDispatchIgnoresQueuedDuplicate(t *testing.T) {
	pool := New(&processorFake{}, nil, Options{QueueSize: 4})
	for i := 0; i < 2; i++ {
		if err := pool.Dispatch(context.Background(), domain.ProcessingJob{DocumentID: "a"}); err != nil {
			t.Fatalf("Dispatch() error = %v", err)
		}
	}
	if len(pool.jobs) != 1 {
		t.Fatalf("expected a single queued job, got %d", len(pool.jobs))
	}
}

func TestDispatchRequiresDocumentID(t *testing.T) {
	pool := New(&processorFake{}, nil, Options{})
	if err := pool.Dispatch(context.Background(), domain.ProcessingJob{}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestShutdownWaitsForInFlightAndRejectsNewJobs(t *testing.T) {
	processor := &processorFake{block: make(chan struct{}), started: make(chan string, 1)}
	pool := New(processor, nil, Options{Workers: 1})
	pool.Start(context.Background())

	_ = pool.Dispatch(context.Background(), domain.ProcessingJob{DocumentID: "a"})
	<-processor.started

	done := make(chan error, 1)
	go func() { done <- pool.Shutdown(context.Background()) }()

	select {
	case <-done:
		t.Fatalf("shutdown returned before the in-flight run finished")
	case <-time.After(50 * time.Millisecond):
	}
	close(processor.block)
	if err := <-done; err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	err := pool.Dispatch(context.Background(), domain.ProcessingJob{DocumentID: "b"})
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary after shutdown, got %v", err)
	}
}

func TestShutdownDeadlineCancelsRuns(t *testing.T) {
	processor := &processorFake{block: make(chan struct{}), started: make(chan string, 1)}
	pool := New(processor, nil, Options{Workers: 1})
	pool.Start(context.Background())
	_ = pool.Dispatch(context.Background(), domain.ProcessingJob{DocumentID: "a"})
	<-processor.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := pool.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestJobTimeoutBoundsRun(t *testing.T) {
	processor := &processorFake{block: make(chan struct{}), started: make(chan string, 1)}
	pool := New(processor, nil, Options{Workers: 1, JobTimeout: 10 * time.Millisecond})
	pool.Start(context.Background())
	_ = pool.Dispatch(context.Background(), domain.ProcessingJob{DocumentID: "a"})
	<-processor.started

	if err := pool.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	processor.mu.Lock()
	defer processor.mu.Unlock()
	if !processor.sawDead {
		t.Fatalf("expected the run context to carry a deadline")
	}
	if len(processor.calls) != 1 {
		t.Fatalf("expected one call, got %d", len(processor.calls))
	}
}
