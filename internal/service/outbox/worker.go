package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
	"github.com/vladislavdragonenkov/bakery/internal/metrics"
)

const (
	defaultPollInterval   = time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
)

// WorkerOptions задаёт параметры outbox worker.
type WorkerOptions struct {
	Logger         *log.Entry
	Metrics        *metrics.WorkerMetrics
	DLQPublisher   domain.OutboxPublisher
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	RetryBaseDelay time.Duration
}

// Option настраивает Worker.
type Option func(*WorkerOptions)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *WorkerOptions) { opts.Logger = logger }
}

// WithMetrics подключает метрики backlog и попыток публикации.
func WithMetrics(m *metrics.WorkerMetrics) Option {
	return func(opts *WorkerOptions) { opts.Metrics = m }
}

// WithDLQPublisher задаёт publisher для сообщений, исчерпавших попытки.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(opts *WorkerOptions) { opts.DLQPublisher = publisher }
}

// WithPollInterval задаёт частоту опроса outbox.
func WithPollInterval(interval time.Duration) Option {
	return func(opts *WorkerOptions) { opts.PollInterval = interval }
}

// WithBatchSize задаёт размер батча.
func WithBatchSize(batchSize int) Option {
	return func(opts *WorkerOptions) { opts.BatchSize = batchSize }
}

// WithMaxAttempts задаёт число попыток публикации до failed/DLQ.
func WithMaxAttempts(maxAttempts int) Option {
	return func(opts *WorkerOptions) { opts.MaxAttempts = maxAttempts }
}

// WithRetryBaseDelay задаёт базовую задержку exponential backoff.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(opts *WorkerOptions) { opts.RetryBaseDelay = delay }
}

// Worker доставляет события заказов и склада из outbox в брокер.
type Worker struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	opts      WorkerOptions
	logger    *log.Entry
}

// NewWorker создаёт outbox worker.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	opts := WorkerOptions{
		PollInterval:   defaultPollInterval,
		BatchSize:      defaultBatchSize,
		MaxAttempts:    defaultMaxAttempts,
		RetryBaseDelay: defaultRetryBaseDelay,
	}
	for _, option := range options {
		option(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "outbox-worker")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryBaseDelay < 0 {
		opts.RetryBaseDelay = 0
	}

	return &Worker{repo: repo, publisher: publisher, opts: opts, logger: opts.Logger}
}

// Run опрашивает outbox до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	w.ProcessOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce выполняет один цикл и возвращает число доставленных сообщений.
func (w *Worker) ProcessOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	w.refreshBacklog(ctx)

	pending, err := w.repo.PullPending(ctx, w.opts.BatchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending outbox messages")
		return 0
	}

	sent := 0
	for _, msg := range pending {
		if ctx.Err() != nil {
			break
		}
		logger := w.logger.WithFields(log.Fields{
			"outbox_id":    msg.ID,
			"event_type":   msg.EventType,
			"aggregate_id": msg.AggregateID,
		})

		if err := w.publishWithRetry(ctx, msg); err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.WithError(err).Error("outbox publish failed after retries")
			w.opts.Metrics.RecordOutboxPublish("failed")

			if dlqErr := w.publishToDLQ(msg, err); dlqErr != nil {
				logger.WithError(dlqErr).Warn("failed to publish to DLQ")
				w.opts.Metrics.RecordOutboxPublish("dlq_failed")
			}
			if markErr := w.repo.MarkFailed(ctx, msg.ID); markErr != nil {
				logger.WithError(markErr).Warn("failed to mark outbox message as failed")
			}
			continue
		}

		if err := w.repo.MarkSent(ctx, msg.ID); err != nil {
			logger.WithError(err).Warn("failed to mark outbox message as sent")
			continue
		}
		sent++
	}

	if len(pending) > 0 {
		w.refreshBacklog(ctx)
	}
	return sent
}

func (w *Worker) publishWithRetry(ctx context.Context, msg domain.OutboxMessage) error {
	var lastErr error
	for attempt := 1; attempt <= w.opts.MaxAttempts; attempt++ {
		err := w.publisher.Publish(msg)
		if err == nil {
			w.opts.Metrics.RecordOutboxPublish("sent")
			return nil
		}
		lastErr = err
		w.opts.Metrics.RecordOutboxPublish("retry_error")

		if attempt == w.opts.MaxAttempts {
			break
		}
		if delay := w.backoff(attempt); delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return fmt.Errorf("publish failed after %d attempts: %w", w.opts.MaxAttempts, lastErr)
}

// backoff удваивает базовую задержку на каждой попытке, без переполнения.
func (w *Worker) backoff(attempt int) time.Duration {
	const maxDelay = time.Duration(1<<63 - 1)
	delay := w.opts.RetryBaseDelay
	for i := 1; i < attempt && delay > 0; i++ {
		if delay > maxDelay/2 {
			return maxDelay
		}
		delay *= 2
	}
	return delay
}

func (w *Worker) refreshBacklog(ctx context.Context) {
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}
	age := 0.0
	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
		age = time.Since(stats.OldestPendingAt).Seconds()
	}
	w.opts.Metrics.SetOutboxBacklog(stats.PendingCount, age)
}

func (w *Worker) publishToDLQ(msg domain.OutboxMessage, publishErr error) error {
	if w.opts.DLQPublisher == nil {
		return nil
	}

	body, err := json.Marshal(domain.DeadLetter{
		SourceID:      msg.ID,
		Source:        "outbox",
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       json.RawMessage(msg.Payload),
		Error:         publishErr.Error(),
		Attempts:      w.opts.MaxAttempts,
		FailedAt:      time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal dlq payload: %w", err)
	}

	dead := msg
	dead.Payload = body
	if err := w.opts.DLQPublisher.Publish(dead); err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}
	return nil
}
