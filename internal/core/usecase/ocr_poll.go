package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/estate-docs/internal/core/domain"
	"github.com/kirillkom/estate-docs/internal/core/ports"
)

const (
	DefaultPollInterval    = 2 * time.Second
	DefaultPollMaxAttempts = 30
)

// PollPolicy bounds the OCR polling loop. The sum of all delays never exceeds
// Interval*MaxAttempts, whatever the multiplier, and no two polls are closer
// than Interval. With a multiplier above 1 the bound is reached before
// MaxAttempts polls.
type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts int
	// Multiplier grows the delay between attempts; 1 keeps it fixed.
	Multiplier float64
}

func (p PollPolicy) withDefaults() PollPolicy {
	if p.Interval <= 0 {
		p.Interval = DefaultPollInterval
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPollMaxAttempts
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	return p
}

// TotalWait is the upper bound on time spent sleeping between polls.
func (p PollPolicy) TotalWait() time.Duration {
	p = p.withDefaults()
	return p.Interval * time.Duration(p.MaxAttempts)
}

type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type ocrPoller struct {
	provider ports.OCRProvider
	policy   PollPolicy
	sleep    sleepFunc
}

// wait polls the locator until the operation leaves the running state or the
// attempt budget is spent. Every poll follows a sleep of at least Interval; a
// growing delay therefore spends the total wait bound in fewer attempts. It
// returns the attempts used alongside the outcome.
func (p *ocrPoller) wait(ctx context.Context, locator string) (domain.OCRPollResult, int, error) {
	policy := p.policy.withDefaults()
	remaining := policy.TotalWait()
	delay := policy.Interval
	attempts := 0

	for attempts < policy.MaxAttempts && remaining >= policy.Interval {
		step := delay
		if step > remaining {
			step = remaining
		}
		if err := p.sleep(ctx, step); err != nil {
			return domain.OCRPollResult{}, attempts, fmt.Errorf("wait for ocr poll: %w", err)
		}
		remaining -= step
		attempts++

		result, err := p.provider.Poll(ctx, locator)
		if err != nil {
			return domain.OCRPollResult{}, attempts, fmt.Errorf("poll ocr operation: %w", err)
		}

		switch result.State {
		case domain.OCRSucceeded:
			return result, attempts, nil
		case domain.OCRFailed:
			msg := result.Error
			if msg == "" {
				msg = "provider reported failure"
			}
			return result, attempts, domain.WrapError(domain.ErrOCRFailed, "poll ocr operation", errors.New(msg))
		}

		delay = time.Duration(float64(delay) * policy.Multiplier)
	}

	return domain.OCRPollResult{}, attempts, domain.WrapError(
		domain.ErrOCRTimeout,
		"poll ocr operation",
		fmt.Errorf("still running after %d attempts", attempts),
	)
}
