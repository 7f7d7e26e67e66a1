package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

type paymentRepository struct {
	q querier
}

func (r paymentRepository) Create(ctx context.Context, p domain.Payment) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO payments (
			id, order_id, provider, method, status, amount, currency,
			external_transaction_id, failure_reason, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		p.ID, p.OrderID, p.Provider, string(p.Method), string(p.Status), p.Amount, p.Currency,
		p.ExternalTransactionID, p.FailureReason, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if foreignKeyViolationOn(err, "payments_order_id_fkey") {
			return domain.ErrOrderNotFound
		}
		return wrapErr("insert payment", err)
	}
	return nil
}

// ListByOrder возвращает попытки оплаты в порядке создания.
func (r paymentRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, order_id, provider, method, status, amount, currency,
		       external_transaction_id, failure_reason, created_at, updated_at
		FROM payments
		WHERE order_id = $1
		ORDER BY seq
	`, orderID)
	if err != nil {
		return nil, wrapErr("list payments", err)
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0)
	for rows.Next() {
		var (
			p              domain.Payment
			method, status string
		)
		if err := rows.Scan(
			&p.ID, &p.OrderID, &p.Provider, &method, &status, &p.Amount, &p.Currency,
			&p.ExternalTransactionID, &p.FailureReason, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, wrapErr("scan payment", err)
		}
		p.Method = domain.PaymentMethod(method)
		p.Status = domain.PaymentStatus(status)
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate payments", err)
	}
	return payments, nil
}

type statusEventRepository struct {
	q querier
}

func (r statusEventRepository) Append(ctx context.Context, e domain.OrderStatusEvent) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO order_status_events (id, order_id, from_status, to_status, note, actor, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, e.ID, e.OrderID, string(e.FromStatus), string(e.ToStatus), e.Note, e.Actor, e.CreatedAt)
	if err != nil {
		if foreignKeyViolationOn(err, "order_status_events_order_id_fkey") {
			return domain.ErrOrderNotFound
		}
		return wrapErr("insert order status event", err)
	}
	return nil
}

// ListByOrder возвращает события в порядке добавления.
func (r statusEventRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.OrderStatusEvent, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, order_id, from_status, to_status, note, actor, created_at
		FROM order_status_events
		WHERE order_id = $1
		ORDER BY seq
	`, orderID)
	if err != nil {
		return nil, wrapErr("list order status events", err)
	}
	defer rows.Close()

	events := make([]domain.OrderStatusEvent, 0)
	for rows.Next() {
		var (
			e        domain.OrderStatusEvent
			from, to string
		)
		if err := rows.Scan(&e.ID, &e.OrderID, &from, &to, &e.Note, &e.Actor, &e.CreatedAt); err != nil {
			return nil, wrapErr("scan order status event", err)
		}
		e.FromStatus = domain.OrderStatus(from)
		e.ToStatus = domain.OrderStatus(to)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate order status events", err)
	}
	return events, nil
}

type shipmentRepository struct {
	q querier
}

// Upsert создаёт или обновляет отправление; у заказа не больше одного отправления.
func (r shipmentRepository) Upsert(ctx context.Context, s domain.Shipment) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO shipments (
			id, order_id, carrier, tracking_number, status, shipped_at, delivered_at, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (order_id) DO UPDATE
		SET carrier = EXCLUDED.carrier,
		    tracking_number = EXCLUDED.tracking_number,
		    status = EXCLUDED.status,
		    shipped_at = EXCLUDED.shipped_at,
		    delivered_at = EXCLUDED.delivered_at,
		    updated_at = EXCLUDED.updated_at
	`,
		s.ID, s.OrderID, s.Carrier, s.TrackingNumber, string(s.Status),
		s.ShippedAt, s.DeliveredAt, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		if foreignKeyViolationOn(err, "shipments_order_id_fkey") {
			return domain.ErrOrderNotFound
		}
		return wrapErr("upsert shipment", err)
	}
	return nil
}

func (r shipmentRepository) GetByOrder(ctx context.Context, orderID string) (domain.Shipment, error) {
	var (
		s                      domain.Shipment
		status                 string
		shippedAt, deliveredAt sql.NullTime
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT id, order_id, carrier, tracking_number, status, shipped_at, delivered_at, created_at, updated_at
		FROM shipments
		WHERE order_id = $1
	`, orderID).Scan(
		&s.ID, &s.OrderID, &s.Carrier, &s.TrackingNumber, &status,
		&shippedAt, &deliveredAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Shipment{}, domain.ErrShipmentNotFound
		}
		return domain.Shipment{}, wrapErr("select shipment", err)
	}

	s.Status = domain.ShipmentStatus(status)
	if shippedAt.Valid {
		t := shippedAt.Time
		s.ShippedAt = &t
	}
	if deliveredAt.Valid {
		t := deliveredAt.Time
		s.DeliveredAt = &t
	}
	return s, nil
}

var (
	_ domain.PaymentRepository     = paymentRepository{}
	_ domain.StatusEventRepository = statusEventRepository{}
	_ domain.ShipmentRepository    = shipmentRepository{}
)
