package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

type inventoryRepository struct {
	q querier
}

// GetForUpdate блокирует строку остатка до конца транзакции: две конкурирующие
// покупки последней единицы выполняются по очереди.
func (r inventoryRepository) GetForUpdate(ctx context.Context, variantID string) (domain.InventoryLevel, error) {
	return r.get(ctx, variantID, " FOR UPDATE")
}

func (r inventoryRepository) Get(ctx context.Context, variantID string) (domain.InventoryLevel, error) {
	return r.get(ctx, variantID, "")
}

func (r inventoryRepository) get(ctx context.Context, variantID, lock string) (domain.InventoryLevel, error) {
	var level domain.InventoryLevel
	err := r.q.QueryRowContext(ctx, `
		SELECT variant_id, quantity, reserved, low_stock_threshold, updated_at
		FROM inventory_levels
		WHERE variant_id = $1`+lock,
		variantID,
	).Scan(&level.VariantID, &level.Quantity, &level.Reserved, &level.LowStockThreshold, &level.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.InventoryLevel{}, domain.ErrInventoryNotFound
		}
		return domain.InventoryLevel{}, wrapErr("select inventory level", err)
	}
	return level, nil
}

func (r inventoryRepository) Save(ctx context.Context, level domain.InventoryLevel) error {
	if level.Quantity < 0 {
		return domain.ErrInvalidAdjustment
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO inventory_levels (variant_id, quantity, reserved, low_stock_threshold, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (variant_id) DO UPDATE
		SET quantity = EXCLUDED.quantity,
		    reserved = EXCLUDED.reserved,
		    low_stock_threshold = EXCLUDED.low_stock_threshold,
		    updated_at = EXCLUDED.updated_at
	`, level.VariantID, level.Quantity, level.Reserved, level.LowStockThreshold, level.UpdatedAt)
	if err != nil {
		return wrapErr("upsert inventory level", err)
	}
	return nil
}

func (r inventoryRepository) AppendTransaction(ctx context.Context, txn domain.InventoryTransaction) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO inventory_transactions (
			id, variant_id, delta, quantity_after, reason, reference, actor, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		txn.ID, txn.VariantID, txn.Delta, txn.QuantityAfter, string(txn.Reason),
		txn.Reference, txn.Actor, txn.CreatedAt,
	)
	if err != nil {
		return wrapErr("insert inventory transaction", err)
	}
	return nil
}

// ListTransactions возвращает журнал варианта, новые записи первыми.
func (r inventoryRepository) ListTransactions(ctx context.Context, variantID string, limit int) ([]domain.InventoryTransaction, error) {
	query := `
		SELECT id, variant_id, delta, quantity_after, reason, reference, actor, created_at
		FROM inventory_transactions
		WHERE variant_id = $1
		ORDER BY seq DESC
	`
	args := []any{variantID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list inventory transactions", err)
	}
	defer rows.Close()

	result := make([]domain.InventoryTransaction, 0)
	for rows.Next() {
		var (
			txn    domain.InventoryTransaction
			reason string
		)
		if err := rows.Scan(&txn.ID, &txn.VariantID, &txn.Delta, &txn.QuantityAfter, &reason, &txn.Reference, &txn.Actor, &txn.CreatedAt); err != nil {
			return nil, wrapErr("scan inventory transaction", err)
		}
		txn.Reason = domain.InventoryReason(reason)
		result = append(result, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate inventory transactions", err)
	}
	return result, nil
}

var _ domain.InventoryRepository = inventoryRepository{}
