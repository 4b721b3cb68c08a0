package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/estate-docs/internal/core/domain"
	"github.com/kirillkom/estate-docs/internal/core/ports"
)

const (
	DefaultWorkers    = 4
	DefaultQueueSize  = 100
	DefaultJobTimeout = 5 * time.Minute
)

var (
	errQueueFull  = errors.New("processing queue is full")
	errPoolClosed = errors.New("processing pool is shut down")
)

// Observer receives queue signals, typically metrics.
type Observer interface {
	ObserveQueueLag(lag time.Duration)
	SetQueueDepth(depth int)
	ObserveDispatch(result string)
}

type Options struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.JobTimeout <= 0 {
		o.JobTimeout = DefaultJobTimeout
	}
	return o
}

// Pool runs processing jobs on a fixed set of goroutines fed by a bounded queue.
// Dispatch never blocks: a full queue is reported as a temporary failure and
// the document stays uploaded until the recovery sweep re-dispatches it.
type Pool struct {
	processor ports.DocumentProcessor
	observer  Observer
	opts      Options
	now       func() time.Time

	jobs chan domain.ProcessingJob

	mu      sync.Mutex
	pending map[string]struct{}
	closed  bool

	group  *errgroup.Group
	cancel context.CancelFunc
}

func New(processor ports.DocumentProcessor, observer Observer, opts Options) *Pool {
	opts = opts.withDefaults()
	return &Pool{
		processor: processor,
		observer:  observer,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
		jobs:      make(chan domain.ProcessingJob, opts.QueueSize),
		pending:   make(map[string]struct{}),
	}
}

// Start launches the workers. Runs outlive ctx; Shutdown bounds them.
func (p *Pool) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	p.group = &errgroup.Group{}
	for i := 0; i < p.opts.Workers; i++ {
		p.group.Go(func() error {
			p.work(runCtx)
			return nil
		})
	}
	slog.Info("worker_pool_started", "workers", p.opts.Workers, "queue_size", p.opts.QueueSize)
}

func (p *Pool) Dispatch(_ context.Context, job domain.ProcessingJob) error {
	if job.DocumentID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "dispatch processing job", fmt.Errorf("document_id is required"))
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = p.now()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		p.observe("closed")
		return domain.WrapError(domain.ErrTemporary, "dispatch processing job", errPoolClosed)
	}
	if _, ok := p.pending[job.DocumentID]; ok {
		p.observe("duplicate")
		return nil
	}
	select {
	case p.jobs <- job:
		p.pending[job.DocumentID] = struct{}{}
		p.observe("accepted")
		p.setDepth()
		return nil
	default:
		p.observe("rejected")
		return domain.WrapError(domain.ErrTemporary, "dispatch processing job", errQueueFull)
	}
}

// Shutdown stops intake, lets in-flight runs finish and skips queued jobs.
// When ctx expires first, in-flight runs are cancelled.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	if p.group == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- p.group.Wait() }()

	select {
	case err := <-done:
		p.cancel()
		return err
	case <-ctx.Done():
		p.cancel()
		<-done
		return fmt.Errorf("worker pool shutdown: %w", ctx.Err())
	}
}

func (p *Pool) work(ctx context.Context) {
	for job := range p.jobs {
		p.release(job.DocumentID)
		if p.isClosed() {
			slog.Info("processing_job_deferred", "document_id", job.DocumentID)
			continue
		}
		p.run(ctx, job)
	}
}

func (p *Pool) run(ctx context.Context, job domain.ProcessingJob) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("processing_job_panic", "document_id", job.DocumentID, "panic", r)
		}
	}()

	if p.observer != nil {
		p.observer.ObserveQueueLag(p.now().Sub(job.EnqueuedAt))
	}

	jobCtx, cancel := context.WithTimeout(ctx, p.opts.JobTimeout)
	defer cancel()

	err := p.processor.Process(jobCtx, job.DocumentID, job.StoragePath)
	switch {
	case err == nil:
	case domain.IsKind(err, domain.ErrAlreadyProcessing):
		slog.Info("processing_job_duplicate", "document_id", job.DocumentID)
	default:
		slog.Error("processing_job_failed", "document_id", job.DocumentID, "error", err)
	}
}

func (p *Pool) release(documentID string) {
	p.mu.Lock()
	delete(p.pending, documentID)
	p.setDepth()
	p.mu.Unlock()
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Pool) observe(result string) {
	if p.observer != nil {
		p.observer.ObserveDispatch(result)
	}
}

func (p *Pool) setDepth() {
	if p.observer != nil {
		p.observer.SetQueueDepth(len(p.jobs))
	}
}
