package nats

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/estate-docs/internal/core/domain"
	"github.com/kirillkom/estate-docs/internal/infrastructure/resilience"
)

const publishOp = "nats.publish"

// classifyPublishError decides whether a job publish is retried and whether it
// counts against the publish circuit.
func classifyPublishError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	case jobRejected(err):
		// The same payload fails the same way; the broker itself is fine.
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	case brokerUnavailable(err):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
	}
}

// publishError maps a failed job publish onto the domain error kinds: rejected
// payloads are invalid input, an unreachable broker is temporary.
func publishError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case domain.IsKind(err, domain.ErrTemporary), domain.IsKind(err, domain.ErrInvalidInput):
		return err
	case jobRejected(err):
		return domain.WrapError(domain.ErrInvalidInput, op, err)
	case brokerUnavailable(err), errors.Is(err, context.DeadlineExceeded):
		return domain.WrapError(domain.ErrTemporary, op, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func jobRejected(err error) bool {
	return errors.Is(err, nats.ErrMaxPayload) || errors.Is(err, nats.ErrBadSubject)
}

func brokerUnavailable(err error) bool {
	for _, target := range []error{
		nats.ErrNoServers,
		nats.ErrTimeout,
		nats.ErrConnectionClosed,
		nats.ErrConnectionDraining,
		nats.ErrConnectionReconnecting,
		nats.ErrDisconnected,
		nats.ErrInvalidConnection,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
