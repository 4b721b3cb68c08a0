package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/estate-docs/internal/core/domain"
	"github.com/kirillkom/estate-docs/internal/infrastructure/resilience"
	"github.com/nats-io/nats.go"
)

const workerGroup = "workers"

// Queue carries processing jobs between the API and worker processes.
type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
	now      func() time.Time
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("estate-docs"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// Ping reports whether the connection is currently usable.
func (q *Queue) Ping(context.Context) error {
	if q.conn == nil || !q.conn.IsConnected() {
		return domain.WrapError(domain.ErrTemporary, "nats ping", nats.ErrDisconnected)
	}
	return nil
}

// Dispatch publishes the job without waiting for a worker to pick it up.
func (q *Queue) Dispatch(ctx context.Context, job domain.ProcessingJob) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = q.now()
	}
	payload, err := encodeJob(job)
	if err != nil {
		return err
	}

	call := func(_ context.Context) error {
		return q.conn.Publish(q.subject, payload)
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, publishOp, call, classifyPublishError)
	} else {
		err = call(ctx)
	}
	return publishError(publishOp+" "+q.subject, err)
}

// Subscribe joins the worker queue group and blocks until ctx is done, then
// drains in-flight messages.
func (q *Queue) Subscribe(ctx context.Context, handler func(context.Context, domain.ProcessingJob) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, workerGroup, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		job, err := decodeJob(msg.Data)
		if err != nil {
			slog.Warn("processing_job_rejected", "error", err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, job); err != nil {
			slog.Error("processing_job_failed", "document_id", job.DocumentID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func encodeJob(job domain.ProcessingJob) ([]byte, error) {
	if job.DocumentID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "encode processing job", fmt.Errorf("document_id is required"))
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal processing job: %w", err)
	}
	return payload, nil
}

func decodeJob(data []byte) (domain.ProcessingJob, error) {
	var job domain.ProcessingJob
	if err := json.Unmarshal(data, &job); err != nil {
		return domain.ProcessingJob{}, domain.WrapError(domain.ErrInvalidInput, "decode processing job", err)
	}
	if job.DocumentID == "" {
		return domain.ProcessingJob{}, domain.WrapError(domain.ErrInvalidInput, "decode processing job", fmt.Errorf("document_id is required"))
	}
	return job, nil
}
