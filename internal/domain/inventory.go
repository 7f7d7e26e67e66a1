package domain

import "time"

// InventoryReason описывает причину движения по складу.
type InventoryReason string

const (
	InventoryReasonInitialStock     InventoryReason = "INITIAL_STOCK"
	InventoryReasonRestock          InventoryReason = "RESTOCK"
	InventoryReasonOrderFulfilled   InventoryReason = "ORDER_FULFILLED"
	InventoryReasonManualAdjustment InventoryReason = "MANUAL_ADJUSTMENT"
	InventoryReasonDamaged          InventoryReason = "DAMAGED"
	InventoryReasonReturned         InventoryReason = "RETURNED"
)

// Valid проверяет, что причина относится к поддерживаемым значениям.
func (r InventoryReason) Valid() bool {
	switch r {
	case InventoryReasonInitialStock,
		InventoryReasonRestock,
		InventoryReasonOrderFulfilled,
		InventoryReasonManualAdjustment,
		InventoryReasonDamaged,
		InventoryReasonReturned:
		return true
	default:
		return false
	}
}

// InventoryLevel: остаток по одному варианту.
type InventoryLevel struct {
	VariantID string
	// Доступные единицы, никогда не уходит ниже нуля.
	Quantity int
	// Reserved носит информационный характер и не вычитается из Quantity.
	Reserved          int
	LowStockThreshold int
	UpdatedAt         time.Time
}

// LowStock сообщает, что остаток опустился до порога.
func (l InventoryLevel) LowStock() bool {
	return l.Quantity <= l.LowStockThreshold
}

// InventoryTransaction: неизменяемая запись складского журнала.
type InventoryTransaction struct {
	ID            string
	VariantID     string
	Delta         int
	QuantityAfter int
	Reason        InventoryReason
	Reference     string
	Actor         string
	CreatedAt     time.Time
}

// Adjustment: запрос на изменение остатка.
type Adjustment struct {
	VariantID string
	Delta     int
	Reason    InventoryReason
	Actor     string
	Reference string
}

// Validate проверяет поля корректировки.
func (a Adjustment) Validate() error {
	switch {
	case a.VariantID == "":
		return Validationf("variantId is required")
	case a.Delta == 0:
		return Validationf("delta must not be zero")
	case !a.Reason.Valid():
		return Validationf("unknown adjustment reason %q", a.Reason)
	case a.Actor == "":
		return Validationf("actor is required")
	}
	return nil
}
