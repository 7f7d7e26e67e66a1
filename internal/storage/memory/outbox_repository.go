package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
	outboxStatusFailed  = "failed"
)

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg        domain.OutboxMessage
	status     string
	attemptCnt int
	seq        int64
	updatedAt  time.Time
}

// outboxWriter пишет в outbox внутри транзакции.
type outboxWriter struct {
	st *state
}

// Enqueue сохраняет событие со статусом pending.
func (w outboxWriter) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	msg.Payload = append([]byte(nil), msg.Payload...)
	put(w.st, w.st.outbox, msg.ID, outboxRecord{
		msg:       msg,
		status:    outboxStatusPending,
		seq:       w.st.nextSeq(),
		updatedAt: now,
	})
	return msg, nil
}

// outboxRepositoryInMemory работает с outbox вне бизнес-транзакций (для воркера).
type outboxRepositoryInMemory struct {
	store *Store
}

func (r *outboxRepositoryInMemory) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return outboxWriter{st: r.store.state}.Enqueue(ctx, msg)
}

// PullPending возвращает до limit pending-сообщений в порядке записи.
func (r *outboxRepositoryInMemory) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if limit <= 0 {
		limit = 100
	}

	pending := r.pendingLocked()
	if len(pending) > limit {
		pending = pending[:limit]
	}

	result := make([]domain.OutboxMessage, 0, len(pending))
	for _, rec := range pending {
		result = append(result, rec.msg)
	}
	return result, nil
}

func (r *outboxRepositoryInMemory) Stats(context.Context) (domain.OutboxStats, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	pending := r.pendingLocked()
	stats := domain.OutboxStats{PendingCount: len(pending)}
	if len(pending) > 0 {
		stats.OldestPendingAt = pending[0].msg.CreatedAt
	}
	return stats, nil
}

// MarkSent удаляет опубликованное событие: в памяти история отправок не хранится.
func (r *outboxRepositoryInMemory) MarkSent(_ context.Context, id string) error {
	return r.mark(id, outboxStatusSent)
}

// MarkFailed фиксирует ошибку публикации.
func (r *outboxRepositoryInMemory) MarkFailed(_ context.Context, id string) error {
	return r.mark(id, outboxStatusFailed)
}

func (r *outboxRepositoryInMemory) mark(id, status string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	record, ok := r.store.state.outbox[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	if status == outboxStatusSent {
		delete(r.store.state.outbox, id)
		return nil
	}
	record.status = status
	record.attemptCnt++
	record.updatedAt = time.Now().UTC()
	r.store.state.outbox[id] = record
	return nil
}

func (r *outboxRepositoryInMemory) pendingLocked() []outboxRecord {
	var pending []outboxRecord
	for _, rec := range r.store.state.outbox {
		if rec.status == outboxStatusPending {
			pending = append(pending, rec)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].seq < pending[j].seq })
	return pending
}

var (
	_ domain.OutboxWriter     = outboxWriter{}
	_ domain.OutboxRepository = (*outboxRepositoryInMemory)(nil)
)
