package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

const defaultOutboxBatch = 100

// outboxRepository пишет в outbox внутри бизнес-транзакции (q = *sql.Tx)
// или обслуживает воркер публикации (q = *sql.DB).
type outboxRepository struct {
	q querier
}

func (r outboxRepository) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO outbox_messages (
			id, aggregate_type, aggregate_id, event_type, payload,
			status, attempt_count, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,'pending',0,$6,$7)
	`,
		msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, string(msg.Payload), msg.CreatedAt, now,
	)
	if err != nil {
		return domain.OutboxMessage{}, wrapErr("enqueue outbox message", err)
	}
	return msg, nil
}

// PullPending возвращает до limit pending-сообщений в порядке записи.
func (r outboxRepository) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = defaultOutboxBatch
	}

	rows, err := r.q.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
		FROM outbox_messages
		WHERE status = 'pending'
		ORDER BY seq
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, wrapErr("pull pending outbox messages", err)
	}
	defer rows.Close()

	result := make([]domain.OutboxMessage, 0, limit)
	for rows.Next() {
		var msg domain.OutboxMessage
		if err := rows.Scan(&msg.ID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &msg.Payload, &msg.CreatedAt); err != nil {
			return nil, wrapErr("scan outbox message", err)
		}
		result = append(result, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate outbox rows", err)
	}
	return result, nil
}

func (r outboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	var (
		stats  domain.OutboxStats
		oldest sql.NullTime
	)
	if err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(created_at)
		FROM outbox_messages
		WHERE status = 'pending'
	`).Scan(&stats.PendingCount, &oldest); err != nil {
		return domain.OutboxStats{}, wrapErr("outbox stats", err)
	}
	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time.UTC()
	}
	return stats, nil
}

// MarkSent обновляет статус события после успешной публикации.
func (r outboxRepository) MarkSent(ctx context.Context, id string) error {
	return r.mark(ctx, id, "sent")
}

// MarkFailed фиксирует, что событие ушло в DLQ.
func (r outboxRepository) MarkFailed(ctx context.Context, id string) error {
	return r.mark(ctx, id, "failed")
}

func (r outboxRepository) mark(ctx context.Context, id, status string) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE outbox_messages
		SET status = $2,
		    attempt_count = attempt_count + 1,
		    updated_at = $3
		WHERE id = $1
	`, id, status, time.Now().UTC())
	if err != nil {
		return wrapErr("mark outbox message as "+status, err)
	}
	return requireAffected(res, domain.ErrOutboxPublish)
}

var _ domain.OutboxRepository = outboxRepository{}
