package memory

import (
	"context"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

type inventoryRepo struct {
	st *state
}

// GetForUpdate в памяти не отличается от Get: транзакции и так последовательны.
func (r inventoryRepo) GetForUpdate(ctx context.Context, variantID string) (domain.InventoryLevel, error) {
	return r.Get(ctx, variantID)
}

func (r inventoryRepo) Get(_ context.Context, variantID string) (domain.InventoryLevel, error) {
	level, ok := r.st.levels[variantID]
	if !ok {
		return domain.InventoryLevel{}, domain.ErrInventoryNotFound
	}
	return level, nil
}

func (r inventoryRepo) Save(_ context.Context, level domain.InventoryLevel) error {
	if level.Quantity < 0 {
		return domain.ErrInvalidAdjustment
	}
	put(r.st, r.st.levels, level.VariantID, level)
	return nil
}

func (r inventoryRepo) AppendTransaction(_ context.Context, txn domain.InventoryTransaction) error {
	r.st.ledger = append(r.st.ledger, txn)
	return nil
}

// ListTransactions возвращает журнал варианта, новые записи первыми.
func (r inventoryRepo) ListTransactions(_ context.Context, variantID string, limit int) ([]domain.InventoryTransaction, error) {
	var result []domain.InventoryTransaction
	for i := len(r.st.ledger) - 1; i >= 0; i-- {
		if r.st.ledger[i].VariantID != variantID {
			continue
		}
		result = append(result, r.st.ledger[i])
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

var _ domain.InventoryRepository = inventoryRepo{}
