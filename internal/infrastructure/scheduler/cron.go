package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a periodic task. Errors are logged; the schedule keeps running.
type Job func(ctx context.Context) error

// Scheduler runs jobs on cron expressions. A run still in progress when its
// next tick fires is skipped.
type Scheduler struct {
	cron *cron.Cron

	mu      sync.Mutex
	baseCtx context.Context
}

var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func New() *Scheduler {
	logger := slogAdapter{}
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		baseCtx: context.Background(),
	}
}

// ParseSpec accepts 5 or 6 field expressions and descriptors such as "@every 1m".
func ParseSpec(spec string) (cron.Schedule, error) {
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse cron spec %q: %w", spec, err)
	}
	return schedule, nil
}

// Add registers job under name. Each run gets its own timeout when timeout > 0.
func (s *Scheduler) Add(name, spec string, timeout time.Duration, job Job) error {
	schedule, err := ParseSpec(spec)
	if err != nil {
		return err
	}
	s.cron.Schedule(schedule, s.wrap(name, timeout, job))
	slog.Info("scheduler_job_registered", "job", name, "spec", spec)
	return nil
}

// Start begins ticking. Runs are cancelled when ctx is.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()
	s.cron.Start()
}

// Stop prevents new runs and waits for running ones until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

func (s *Scheduler) wrap(name string, timeout time.Duration, job Job) cron.FuncJob {
	return func() {
		s.mu.Lock()
		ctx := s.baseCtx
		s.mu.Unlock()

		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		start := time.Now()
		if err := job(ctx); err != nil {
			slog.Error("scheduler_job_failed", "job", name, "error", err, "duration_ms", time.Since(start).Milliseconds())
			return
		}
		slog.Debug("scheduler_job_completed", "job", name, "duration_ms", time.Since(start).Milliseconds())
	}
}

type slogAdapter struct{}

func (slogAdapter) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (slogAdapter) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
