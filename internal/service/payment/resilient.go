package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

// ErrCircuitOpen: провайдер временно отключён после серии ошибок.
var ErrCircuitOpen = errors.New("payment gateway circuit is open")

// RetryConfig задаёт повторы вызова провайдера.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2.0,
	}
}

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

func (s circuitState) String() string {
	switch s {
	case circuitOpen:
		return "open"
	case circuitHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreaker размыкается после maxFailures ошибок подряд и пропускает
// пробный вызов по истечении resetTimeout.
type CircuitBreaker struct {
	mu           sync.Mutex
	maxFailures  int
	resetTimeout time.Duration
	failures     int
	lastFailure  time.Time
	state        circuitState
	now          func() time.Time
	logger       *log.Entry
}

// NewCircuitBreaker создаёт circuit breaker.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration, logger *log.Entry) *CircuitBreaker {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if logger == nil {
		logger = log.WithField("component", "circuit-breaker")
	}
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		now:          time.Now,
		logger:       logger,
	}
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != circuitOpen {
		return true
	}
	if cb.now().Sub(cb.lastFailure) < cb.resetTimeout {
		return false
	}
	cb.state = circuitHalfOpen
	cb.logger.Info("circuit breaker half-open")
	return true
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		if cb.state == circuitHalfOpen {
			cb.logger.Info("circuit breaker closed")
		}
		cb.state = circuitClosed
		cb.failures = 0
		return
	}

	cb.failures++
	cb.lastFailure = cb.now()
	if cb.state == circuitHalfOpen || cb.failures >= cb.maxFailures {
		if cb.state != circuitOpen {
			cb.logger.WithField("failures", cb.failures).Warn("circuit breaker opened")
		}
		cb.state = circuitOpen
	}
}

// State возвращает текущее состояние: closed, open или half-open.
func (cb *CircuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state.String()
}

// ResilientGateway оборачивает удалённого провайдера повторами и circuit breaker.
// Отказ по карте не считается ошибкой и не повторяется.
type ResilientGateway struct {
	next    Gateway
	retry   RetryConfig
	breaker *CircuitBreaker
	logger  *log.Entry
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewResilientGateway создаёт обёртку; breaker может быть nil.
func NewResilientGateway(next Gateway, retry RetryConfig, breaker *CircuitBreaker, logger *log.Entry) *ResilientGateway {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	if retry.BackoffFactor < 1 {
		retry.BackoffFactor = 1
	}
	if logger == nil {
		logger = log.WithField("component", "payment-gateway")
	}
	return &ResilientGateway{
		next:    next,
		retry:   retry,
		breaker: breaker,
		logger:  logger.WithField("provider", next.Name()),
		sleep:   sleepContext,
	}
}

func (g *ResilientGateway) Name() string { return g.next.Name() }

// Charge повторяет только ошибки транспорта; повтор безопасен благодаря IdempotencyKey.
func (g *ResilientGateway) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	delay := g.retry.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= g.retry.MaxAttempts; attempt++ {
		if g.breaker != nil && !g.breaker.allow() {
			return ChargeResult{}, fmt.Errorf("%w: %w", domain.ErrPaymentGateway, ErrCircuitOpen)
		}

		result, err := g.next.Charge(ctx, req)
		if g.breaker != nil {
			g.breaker.record(err)
		}
		if err == nil {
			if attempt > 1 {
				g.logger.WithFields(log.Fields{
					"order_id": req.OrderID,
					"attempt":  attempt,
				}).Info("charge succeeded after retry")
			}
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return ChargeResult{}, err
		}

		if attempt < g.retry.MaxAttempts {
			g.logger.WithError(err).WithFields(log.Fields{
				"order_id": req.OrderID,
				"attempt":  attempt,
				"delay":    delay,
			}).Warn("charge failed, retrying")
			if err := g.sleep(ctx, delay); err != nil {
				return ChargeResult{}, lastErr
			}
			delay = time.Duration(float64(delay) * g.retry.BackoffFactor)
			if g.retry.MaxDelay > 0 && delay > g.retry.MaxDelay {
				delay = g.retry.MaxDelay
			}
		}
	}

	g.logger.WithError(lastErr).WithFields(log.Fields{
		"order_id":     req.OrderID,
		"max_attempts": g.retry.MaxAttempts,
	}).Error("charge failed after all retry attempts")
	return ChargeResult{}, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ Gateway = (*ResilientGateway)(nil)
