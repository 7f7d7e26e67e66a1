package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

const orderColumns = `
	id, order_number, COALESCE(user_id, ''), COALESCE(session_id, ''), cart_id, email,
	status, payment_status, shipment_status, currency,
	subtotal, tax, shipping_fee, discount_total, total,
	shipping_address, billing_address, notes, version, created_at, updated_at`

type orderRepository struct {
	q querier
}

// Create сохраняет новый заказ вместе с позициями.
func (r orderRepository) Create(ctx context.Context, order domain.Order) error {
	shipping, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshal shipping address: %w", err)
	}
	var billing sql.NullString
	if order.BillingAddress != nil {
		raw, err := json.Marshal(order.BillingAddress)
		if err != nil {
			return fmt.Errorf("marshal billing address: %w", err)
		}
		billing = sql.NullString{String: string(raw), Valid: true}
	}

	_, err = r.q.ExecContext(ctx, `
		INSERT INTO orders (
			id, order_number, user_id, session_id, cart_id, email,
			status, payment_status, shipment_status, currency,
			subtotal, tax, shipping_fee, discount_total, total,
			shipping_address, billing_address, notes, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
	`,
		order.ID, order.OrderNumber, nullString(order.UserID), nullString(order.SessionID), order.CartID, order.Email,
		string(order.Status), string(order.PaymentStatus), string(order.ShipmentStatus), order.Currency,
		order.Subtotal, order.Tax, order.ShippingFee, order.DiscountTotal, order.Total,
		string(shipping), billing, order.Notes, order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if uniqueViolationOn(err, "orders_pkey") {
			return domain.ErrOrderVersionConflict
		}
		return wrapErr("insert order", err)
	}

	for i, item := range order.Items {
		if _, err := r.q.ExecContext(ctx, `
			INSERT INTO order_items (
				id, order_id, position, variant_id, product_name, variant_name, sku,
				quantity, unit_price, line_total
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`,
			item.ID, order.ID, i, item.VariantID, item.ProductName, item.VariantName, item.SKU,
			item.Quantity, item.UnitPrice, item.LineTotal,
		); err != nil {
			return wrapErr("insert order item", err)
		}
	}
	return nil
}

// Get возвращает заказ по идентификатору или ErrOrderNotFound.
func (r orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	order, err := scanOrder(r.q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return domain.Order{}, err
	}

	items, err := r.loadItems(ctx, []string{order.ID})
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items[order.ID]
	return order, nil
}

// ListByUser возвращает заказы пользователя, новые первыми.
func (r orderRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	return r.list(ctx, `WHERE user_id = $1`, []any{userID}, limit)
}

// List возвращает все заказы, новые первыми.
func (r orderRepository) List(ctx context.Context, limit int) ([]domain.Order, error) {
	return r.list(ctx, "", nil, limit)
}

func (r orderRepository) list(ctx context.Context, filter string, args []any, limit int) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders ` + filter + ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list orders", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	ids := make([]string, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate orders", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	items, err := r.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}

// Save обновляет изменяемые поля заказа с учётом optimistic locking.
func (r orderRepository) Save(ctx context.Context, order domain.Order) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    payment_status = $2,
		    shipment_status = $3,
		    notes = $4,
		    version = version + 1,
		    updated_at = $5
		WHERE id = $6
		  AND version = $7
	`,
		string(order.Status),
		string(order.PaymentStatus),
		string(order.ShipmentStatus),
		order.Notes,
		order.UpdatedAt,
		order.ID,
		order.Version,
	)
	if err != nil {
		return wrapErr("update order", err)
	}

	if err := requireAffected(res, domain.ErrOrderVersionConflict); err != nil {
		if !errors.Is(err, domain.ErrOrderVersionConflict) {
			return err
		}
		exists, existsErr := r.exists(ctx, order.ID)
		if existsErr != nil {
			return existsErr
		}
		if !exists {
			return domain.ErrOrderNotFound
		}
		return err
	}
	return nil
}

func (r orderRepository) exists(ctx context.Context, orderID string) (bool, error) {
	var id string
	err := r.q.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, orderID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, wrapErr("check order exists", err)
}

func (r orderRepository) loadItems(ctx context.Context, orderIDs []string) (map[string][]domain.OrderItem, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, order_id, variant_id, product_name, variant_name, sku, quantity, unit_price, line_total
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`, orderIDs)
	if err != nil {
		return nil, wrapErr("load order items", err)
	}
	defer rows.Close()

	items := make(map[string][]domain.OrderItem, len(orderIDs))
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID, &item.OrderID, &item.VariantID, &item.ProductName, &item.VariantName,
			&item.SKU, &item.Quantity, &item.UnitPrice, &item.LineTotal,
		); err != nil {
			return nil, wrapErr("scan order item", err)
		}
		items[item.OrderID] = append(items[item.OrderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate order items", err)
	}
	return items, nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order                                 domain.Order
		status, paymentStatus, shipmentStatus string
		shipping                              []byte
		billing                               []byte
	)
	err := row.Scan(
		&order.ID, &order.OrderNumber, &order.UserID, &order.SessionID, &order.CartID, &order.Email,
		&status, &paymentStatus, &shipmentStatus, &order.Currency,
		&order.Subtotal, &order.Tax, &order.ShippingFee, &order.DiscountTotal, &order.Total,
		&shipping, &billing, &order.Notes, &order.Version, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, wrapErr("scan order", err)
	}

	order.Status = domain.OrderStatus(status)
	order.PaymentStatus = domain.PaymentStatus(paymentStatus)
	order.ShipmentStatus = domain.ShipmentStatus(shipmentStatus)
	if err := json.Unmarshal(shipping, &order.ShippingAddress); err != nil {
		return domain.Order{}, fmt.Errorf("decode shipping address of %s: %w", order.ID, err)
	}
	if len(billing) > 0 {
		var addr domain.Address
		if err := json.Unmarshal(billing, &addr); err != nil {
			return domain.Order{}, fmt.Errorf("decode billing address of %s: %w", order.ID, err)
		}
		order.BillingAddress = &addr
	}
	return order, nil
}

var _ domain.OrderRepository = orderRepository{}
