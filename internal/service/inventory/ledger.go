package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
	"github.com/vladislavdragonenkov/bakery/internal/metrics"
)

// DefaultLowStockThreshold применяется к вариантам без явно заданного порога.
const DefaultLowStockThreshold = 5

const defaultHistoryLimit = 100

// Ledger ведёт остатки вариантов и неизменяемый журнал движений.
type Ledger struct {
	store   domain.Store
	logger  *log.Entry
	metrics *metrics.StorefrontMetrics
	now     func() time.Time
}

// NewLedger создаёт сервис складского учёта.
func NewLedger(store domain.Store, logger *log.Entry, m *metrics.StorefrontMetrics) *Ledger {
	if logger == nil {
		logger = log.WithField("component", "inventory")
	}
	return &Ledger{
		store:   store,
		logger:  logger,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Adjust применяет корректировку в отдельной транзакции и возвращает новый остаток.
func (l *Ledger) Adjust(ctx context.Context, adj domain.Adjustment) (domain.InventoryLevel, error) {
	var level domain.InventoryLevel
	err := l.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		level, err = l.ApplyInTx(ctx, tx, adj)
		return err
	})
	if err != nil {
		l.logger.WithError(err).WithFields(log.Fields{
			"variant_id": adj.VariantID,
			"delta":      adj.Delta,
			"reason":     adj.Reason,
		}).Warn("inventory adjustment rejected")
		return domain.InventoryLevel{}, err
	}

	l.RecordApplied(adj, level)
	return level, nil
}

// ApplyInTx изменяет остаток и пишет запись журнала в транзакции вызывающего.
// Строка остатка читается с блокировкой, поэтому параллельные списания сериализуются.
func (l *Ledger) ApplyInTx(ctx context.Context, tx domain.Tx, adj domain.Adjustment) (domain.InventoryLevel, error) {
	if err := adj.Validate(); err != nil {
		return domain.InventoryLevel{}, err
	}
	if _, err := tx.Catalog().GetVariant(ctx, adj.VariantID); err != nil {
		return domain.InventoryLevel{}, err
	}

	level, err := tx.Inventory().GetForUpdate(ctx, adj.VariantID)
	switch {
	case errors.Is(err, domain.ErrInventoryNotFound):
		level = domain.InventoryLevel{VariantID: adj.VariantID, LowStockThreshold: DefaultLowStockThreshold}
	case err != nil:
		return domain.InventoryLevel{}, err
	}

	next := level.Quantity + adj.Delta
	if next < 0 {
		return domain.InventoryLevel{}, fmt.Errorf("%w: variant %s has %d, delta %d",
			domain.ErrInvalidAdjustment, adj.VariantID, level.Quantity, adj.Delta)
	}

	now := l.now()
	level.Quantity = next
	level.UpdatedAt = now
	if err := tx.Inventory().Save(ctx, level); err != nil {
		return domain.InventoryLevel{}, err
	}

	entry := domain.InventoryTransaction{
		ID:            uuid.NewString(),
		VariantID:     adj.VariantID,
		Delta:         adj.Delta,
		QuantityAfter: next,
		Reason:        adj.Reason,
		Reference:     adj.Reference,
		Actor:         adj.Actor,
		CreatedAt:     now,
	}
	if err := tx.Inventory().AppendTransaction(ctx, entry); err != nil {
		return domain.InventoryLevel{}, err
	}

	msg, err := domain.NewOutboxMessage(domain.AggregateInventory, adj.VariantID, domain.EventInventoryAdjusted, domain.InventoryAdjustedEvent{
		VariantID:     adj.VariantID,
		Delta:         adj.Delta,
		QuantityAfter: next,
		Reason:        adj.Reason,
		Reference:     adj.Reference,
		LowStock:      level.LowStock(),
	})
	if err != nil {
		return domain.InventoryLevel{}, err
	}
	if _, err := tx.Outbox().Enqueue(ctx, msg); err != nil {
		return domain.InventoryLevel{}, err
	}

	return level, nil
}

// RecordApplied пишет метрики и предупреждение о низком остатке после фиксации транзакции.
func (l *Ledger) RecordApplied(adj domain.Adjustment, level domain.InventoryLevel) {
	l.metrics.RecordInventoryAdjustment(string(adj.Reason))
	l.metrics.RecordOutboxEnqueued(domain.EventInventoryAdjusted)

	if adj.Delta < 0 && level.LowStock() {
		l.metrics.RecordLowStock(level.VariantID)
		l.logger.WithFields(log.Fields{
			"variant_id": level.VariantID,
			"quantity":   level.Quantity,
			"threshold":  level.LowStockThreshold,
		}).Warn("inventory low stock")
	}
}

// Available возвращает доступное количество; отсутствие записи означает ноль.
func Available(ctx context.Context, tx domain.Tx, variantID string, forUpdate bool) (int, error) {
	get := tx.Inventory().Get
	if forUpdate {
		get = tx.Inventory().GetForUpdate
	}
	level, err := get(ctx, variantID)
	if errors.Is(err, domain.ErrInventoryNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return level.Quantity, nil
}

// Level возвращает текущий остаток варианта.
func (l *Ledger) Level(ctx context.Context, variantID string) (domain.InventoryLevel, error) {
	var level domain.InventoryLevel
	err := l.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		if _, err := tx.Catalog().GetVariant(ctx, variantID); err != nil {
			return err
		}
		var err error
		level, err = tx.Inventory().Get(ctx, variantID)
		if errors.Is(err, domain.ErrInventoryNotFound) {
			level = domain.InventoryLevel{VariantID: variantID, LowStockThreshold: DefaultLowStockThreshold}
			return nil
		}
		return err
	})
	return level, err
}

// History возвращает журнал движений варианта, новые записи первыми.
func (l *Ledger) History(ctx context.Context, variantID string, limit int) ([]domain.InventoryTransaction, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	var entries []domain.InventoryTransaction
	err := l.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		if _, err := tx.Catalog().GetVariant(ctx, variantID); err != nil {
			return err
		}
		var err error
		entries, err = tx.Inventory().ListTransactions(ctx, variantID, limit)
		return err
	})
	return entries, err
}
