package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

const cartColumns = `id, COALESCE(user_id, ''), COALESCE(session_id, ''), status, currency, created_at, updated_at`

type cartRepository struct {
	q querier
}

// Create полагается на частичные уникальные индексы: одна ACTIVE корзина на владельца.
func (r cartRepository) Create(ctx context.Context, cart domain.Cart) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO carts (id, user_id, session_id, status, currency, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		cart.ID, nullString(cart.UserID), nullString(cart.SessionID), string(cart.Status),
		cart.Currency, cart.CreatedAt, cart.UpdatedAt,
	)
	switch {
	case err == nil:
		return nil
	case uniqueViolationOn(err, "uq_carts_active_user"), uniqueViolationOn(err, "uq_carts_active_session"):
		return domain.ErrActiveCartExists
	case isUniqueViolation(err):
		return domain.Validationf("cart %s already exists", cart.ID)
	default:
		return wrapErr("insert cart", err)
	}
}

func (r cartRepository) Get(ctx context.Context, id string) (domain.Cart, error) {
	return r.scanCart(r.q.QueryRowContext(ctx, `SELECT `+cartColumns+` FROM carts WHERE id = $1`, id))
}

// FindActive ищет корзину пользователя, а для гостя — корзину сессии без user_id.
func (r cartRepository) FindActive(ctx context.Context, owner domain.CartOwner) (domain.Cart, error) {
	if owner.UserID != "" {
		return r.scanCart(r.q.QueryRowContext(ctx, `
			SELECT `+cartColumns+`
			FROM carts
			WHERE user_id = $1 AND status = 'ACTIVE'
		`, owner.UserID))
	}
	if owner.SessionID == "" {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	return r.scanCart(r.q.QueryRowContext(ctx, `
		SELECT `+cartColumns+`
		FROM carts
		WHERE session_id = $1 AND user_id IS NULL AND status = 'ACTIVE'
	`, owner.SessionID))
}

func (r cartRepository) UpdateStatus(ctx context.Context, id string, status domain.CartStatus, at time.Time) error {
	return r.exec(ctx, "update cart status",
		`UPDATE carts SET status = $2, updated_at = $3 WHERE id = $1`, id, string(status), at)
}

func (r cartRepository) Touch(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx, "touch cart", `UPDATE carts SET updated_at = $2 WHERE id = $1`, id, at)
}

func (r cartRepository) ListIdleActive(ctx context.Context, idleBefore time.Time, limit int) ([]domain.Cart, error) {
	query := `
		SELECT ` + cartColumns + `
		FROM carts
		WHERE status = 'ACTIVE' AND updated_at < $1
		ORDER BY updated_at
	`
	args := []any{idleBefore}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list idle carts", err)
	}
	defer rows.Close()

	carts := make([]domain.Cart, 0)
	for rows.Next() {
		cart, err := r.scanCart(rows)
		if err != nil {
			return nil, err
		}
		carts = append(carts, cart)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate idle carts", err)
	}
	return carts, nil
}

func (r cartRepository) ListItems(ctx context.Context, cartID string) ([]domain.CartItem, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, cart_id, variant_id, quantity, unit_price, created_at, updated_at
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY created_at, id
	`, cartID)
	if err != nil {
		return nil, wrapErr("list cart items", err)
	}
	defer rows.Close()

	items := make([]domain.CartItem, 0)
	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(&item.ID, &item.CartID, &item.VariantID, &item.Quantity, &item.UnitPrice, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, wrapErr("scan cart item", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate cart items", err)
	}
	return items, nil
}

func (r cartRepository) GetItem(ctx context.Context, itemID string) (domain.CartItem, error) {
	var item domain.CartItem
	err := r.q.QueryRowContext(ctx, `
		SELECT id, cart_id, variant_id, quantity, unit_price, created_at, updated_at
		FROM cart_items
		WHERE id = $1
	`, itemID).Scan(&item.ID, &item.CartID, &item.VariantID, &item.Quantity, &item.UnitPrice, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CartItem{}, domain.ErrCartItemNotFound
		}
		return domain.CartItem{}, wrapErr("select cart item", err)
	}
	return item, nil
}

func (r cartRepository) AddItem(ctx context.Context, item domain.CartItem) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO cart_items (id, cart_id, variant_id, quantity, unit_price, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		item.ID, item.CartID, item.VariantID, item.Quantity, item.UnitPrice, item.CreatedAt, item.UpdatedAt,
	)
	switch {
	case err == nil:
		return nil
	case foreignKeyViolationOn(err, "cart_items_cart_id_fkey"):
		return domain.ErrCartNotFound
	case isUniqueViolation(err):
		return domain.Validationf("variant %s already in cart", item.VariantID)
	default:
		return wrapErr("insert cart item", err)
	}
}

func (r cartRepository) UpdateItemQuantity(ctx context.Context, itemID string, quantity int, at time.Time) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE cart_items SET quantity = $2, updated_at = $3 WHERE id = $1
	`, itemID, quantity, at)
	if err != nil {
		return wrapErr("update cart item", err)
	}
	return requireAffected(res, domain.ErrCartItemNotFound)
}

func (r cartRepository) DeleteItem(ctx context.Context, itemID string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1`, itemID)
	if err != nil {
		return wrapErr("delete cart item", err)
	}
	return requireAffected(res, domain.ErrCartItemNotFound)
}

func (r cartRepository) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return wrapErr(op, err)
	}
	return requireAffected(res, domain.ErrCartNotFound)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r cartRepository) scanCart(row rowScanner) (domain.Cart, error) {
	var (
		cart   domain.Cart
		status string
	)
	if err := row.Scan(&cart.ID, &cart.UserID, &cart.SessionID, &status, &cart.Currency, &cart.CreatedAt, &cart.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Cart{}, domain.ErrCartNotFound
		}
		return domain.Cart{}, wrapErr("scan cart", err)
	}
	cart.Status = domain.CartStatus(status)
	return cart, nil
}

var _ domain.CartRepository = cartRepository{}
