package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
	"github.com/vladislavdragonenkov/bakery/internal/metrics"
	"github.com/vladislavdragonenkov/bakery/internal/storage/memory"
)

func enqueue(t *testing.T, store *memory.Store, orderID string) domain.OutboxMessage {
	t.Helper()
	msg, err := domain.NewOutboxMessage(domain.AggregateOrder, orderID, domain.EventOrderStatusChanged,
		domain.OrderStatusChangedEvent{OrderID: orderID, FromStatus: domain.OrderStatusPending, ToStatus: domain.OrderStatusConfirmed})
	require.NoError(t, err)
	saved, err := store.Outbox().Enqueue(context.Background(), msg)
	require.NoError(t, err)
	return saved
}

func TestWorker_ProcessOnce_MarkSent(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	first := enqueue(t, store, "order-1")
	second := enqueue(t, store, "order-2")
	publisher := &stubPublisher{}

	worker := NewWorker(store.Outbox(), publisher, WithRetryBaseDelay(0))

	require.Equal(t, 2, worker.ProcessOnce(context.Background()))
	require.Equal(t, []string{first.ID, second.ID}, publisher.ids())

	stats, err := store.Outbox().Stats(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.PendingCount)

	require.Zero(t, worker.ProcessOnce(context.Background()))
	require.Equal(t, 2, publisher.calls())
}

func TestWorker_ProcessOnce_MarkFailedAndDLQAfterRetries(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	msg := enqueue(t, store, "order-2")
	publisher := &stubPublisher{err: errors.New("broker unavailable")}
	dlq := &stubPublisher{}

	worker := NewWorker(store.Outbox(), publisher,
		WithDLQPublisher(dlq),
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
	)

	require.Zero(t, worker.ProcessOnce(context.Background()))
	require.Equal(t, 3, publisher.calls())
	require.Equal(t, 1, dlq.calls())

	var dead domain.DeadLetter
	require.NoError(t, json.Unmarshal(dlq.last().Payload, &dead))
	require.Equal(t, msg.ID, dead.SourceID)
	require.Equal(t, "outbox", dead.Source)
	require.Equal(t, domain.EventOrderStatusChanged, dead.EventType)
	require.Equal(t, 3, dead.Attempts)
	require.Contains(t, dead.Error, "broker unavailable")
	require.JSONEq(t, string(msg.Payload), string(dead.Payload))

	stats, err := store.Outbox().Stats(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.PendingCount, "failed message must leave the pending queue")
}

func TestWorker_ProcessOnce_SuccessAfterRetry(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	enqueue(t, store, "order-3")
	publisher := &stubPublisher{sequence: []error{errors.New("attempt 1"), errors.New("attempt 2"), nil}}

	registry := prometheus.NewRegistry()
	m := metrics.NewWorkerMetrics(registry)
	worker := NewWorker(store.Outbox(), publisher,
		WithRetryBaseDelay(time.Millisecond),
		WithMaxAttempts(3),
		WithMetrics(m),
	)

	require.Equal(t, 1, worker.ProcessOnce(context.Background()))
	require.Equal(t, 3, publisher.calls())

	families, err := registry.Gather()
	require.NoError(t, err)
	var retries, sent float64
	for _, mf := range families {
		if mf.GetName() != "bakery_outbox_publish_attempts_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				switch label.GetValue() {
				case "retry_error":
					retries = metric.GetCounter().GetValue()
				case "sent":
					sent = metric.GetCounter().GetValue()
				}
			}
		}
	}
	require.Equal(t, 2.0, retries)
	require.Equal(t, 1.0, sent)
}

func TestWorker_Backoff(t *testing.T) {
	worker := NewWorker(nil, nil, WithRetryBaseDelay(10*time.Millisecond))
	require.Equal(t, 10*time.Millisecond, worker.backoff(1))
	require.Equal(t, 20*time.Millisecond, worker.backoff(2))
	require.Equal(t, 40*time.Millisecond, worker.backoff(3))

	none := NewWorker(nil, nil, WithRetryBaseDelay(0))
	require.Zero(t, none.backoff(5))
}

func TestWorker_Run_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	worker := NewWorker(store.Outbox(), &stubPublisher{},
		WithPollInterval(5*time.Millisecond),
		WithRetryBaseDelay(0),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(15 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

func TestWorker_Run_DisabledWithoutPublisher(t *testing.T) {
	worker := NewWorker(memory.NewStore().Outbox(), nil)
	worker.Run(context.Background())
}

type stubPublisher struct {
	mu        sync.Mutex
	err       error
	sequence  []error
	published []domain.OutboxMessage
	callCount int
}

func (s *stubPublisher) Publish(msg domain.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++
	err := s.err
	if len(s.sequence) > 0 {
		err = s.sequence[0]
		s.sequence = s.sequence[1:]
	}
	if err == nil {
		s.published = append(s.published, msg)
	}
	return err
}

func (s *stubPublisher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

func (s *stubPublisher) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.published))
	for _, msg := range s.published {
		ids = append(ids, msg.ID)
	}
	return ids
}

func (s *stubPublisher) last() domain.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.published[len(s.published)-1]
}

var _ domain.OutboxPublisher = (*stubPublisher)(nil)
