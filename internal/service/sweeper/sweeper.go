// Package sweeper периодически убирает просроченные ключи идемпотентности
// и закрывает брошенные корзины.
package sweeper

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
	"github.com/vladislavdragonenkov/bakery/internal/metrics"
)

const (
	defaultInterval    = 10 * time.Minute
	defaultBatchSize   = 500
	defaultCartIdleTTL = 72 * time.Hour

	taskIdempotency = "idempotency_keys"
	taskCarts       = "idle_carts"
)

// CartAbandoner закрывает активные корзины, не менявшиеся с idleBefore.
type CartAbandoner interface {
	AbandonIdle(ctx context.Context, idleBefore time.Time, limit int) (int, error)
}

// Options задаёт параметры sweeper.
type Options struct {
	Logger      *log.Entry
	Metrics     *metrics.WorkerMetrics
	Interval    time.Duration
	BatchSize   int
	CartIdleTTL time.Duration
}

// Option настраивает Sweeper.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) { opts.Logger = logger }
}

// WithMetrics подключает метрики проходов.
func WithMetrics(m *metrics.WorkerMetrics) Option {
	return func(opts *Options) { opts.Metrics = m }
}

// WithInterval задаёт интервал между проходами.
func WithInterval(interval time.Duration) Option {
	return func(opts *Options) { opts.Interval = interval }
}

// WithBatchSize задаёт размер порции удаления.
func WithBatchSize(batchSize int) Option {
	return func(opts *Options) { opts.BatchSize = batchSize }
}

// WithCartIdleTTL задаёт, через сколько без изменений корзина считается брошенной.
func WithCartIdleTTL(ttl time.Duration) Option {
	return func(opts *Options) { opts.CartIdleTTL = ttl }
}

// Report: итог одного прохода.
type Report struct {
	IdempotencyDeleted int
	CartsAbandoned     int
}

// Sweeper выполняет фоновые задачи очистки.
type Sweeper struct {
	keys   domain.IdempotencyRepository
	carts  CartAbandoner
	opts   Options
	logger *log.Entry
	now    func() time.Time
}

// New создаёт sweeper. keys и carts могут быть nil: соответствующая задача пропускается.
func New(keys domain.IdempotencyRepository, carts CartAbandoner, options ...Option) *Sweeper {
	opts := Options{
		Interval:    defaultInterval,
		BatchSize:   defaultBatchSize,
		CartIdleTTL: defaultCartIdleTTL,
	}
	for _, option := range options {
		option(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "sweeper")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.CartIdleTTL <= 0 {
		opts.CartIdleTTL = defaultCartIdleTTL
	}

	return &Sweeper{
		keys:   keys,
		carts:  carts,
		opts:   opts,
		logger: opts.Logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run выполняет проходы до отмены ctx.
func (s *Sweeper) Run(ctx context.Context) {
	if s.keys == nil && s.carts == nil {
		s.logger.Warn("sweeper is disabled: nothing to sweep")
		return
	}

	s.RunOnce(ctx)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет обе задачи. Ошибка одной задачи не мешает другой.
func (s *Sweeper) RunOnce(ctx context.Context) Report {
	var report Report
	now := s.now()

	if s.keys != nil {
		deleted, err := s.DeleteExpiredKeys(ctx, now)
		report.IdempotencyDeleted = deleted
		s.finish(taskIdempotency, deleted, err)
	}
	if s.carts != nil && ctx.Err() == nil {
		abandoned, err := s.carts.AbandonIdle(ctx, now.Add(-s.opts.CartIdleTTL), s.opts.BatchSize)
		report.CartsAbandoned = abandoned
		s.finish(taskCarts, abandoned, err)
	}
	return report
}

func (s *Sweeper) finish(task string, affected int, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	s.opts.Metrics.RecordSweep(task, affected, err)

	logger := s.logger.WithField("task", task)
	if err != nil {
		logger.WithError(err).Warn("sweep failed")
		return
	}
	if affected > 0 {
		logger.WithField("affected", affected).Info("sweep completed")
	}
}

// DeleteExpiredKeys удаляет ключи идемпотентности с ttl <= before порциями BatchSize.
func (s *Sweeper) DeleteExpiredKeys(ctx context.Context, before time.Time) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		deleted, err := s.keys.DeleteExpired(ctx, before, s.opts.BatchSize)
		if err != nil {
			return total, err
		}
		total += deleted
		if deleted < s.opts.BatchSize {
			return total, nil
		}
	}
}
