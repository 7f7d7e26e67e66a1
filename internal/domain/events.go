package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Типы событий, которые бизнес-транзакции пишут в outbox.
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventPaymentCaptured    = "payment.captured"
	EventPaymentFailed      = "payment.failed"
	EventInventoryAdjusted  = "inventory.adjusted"
)

// Типы агрегатов outbox.
const (
	AggregateOrder     = "order"
	AggregateInventory = "inventory"
)

// OrderCreatedEvent публикуется после успешного оформления заказа.
type OrderCreatedEvent struct {
	OrderID     string          `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	UserID      string          `json:"user_id,omitempty"`
	CartID      string          `json:"cart_id"`
	Total       decimal.Decimal `json:"total"`
	Currency    string          `json:"currency"`
	ItemCount   int             `json:"item_count"`
	CreatedAt   time.Time       `json:"created_at"`
}

// OrderStatusChangedEvent публикуется при каждом переходе статуса.
type OrderStatusChangedEvent struct {
	OrderID    string      `json:"order_id"`
	FromStatus OrderStatus `json:"from_status"`
	ToStatus   OrderStatus `json:"to_status"`
	Note       string      `json:"note,omitempty"`
	Actor      string      `json:"actor"`
	ChangedAt  time.Time   `json:"changed_at"`
}

// PaymentProcessedEvent публикуется по итогам попытки оплаты.
type PaymentProcessedEvent struct {
	OrderID       string          `json:"order_id"`
	PaymentID     string          `json:"payment_id"`
	Status        PaymentStatus   `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Provider      string          `json:"provider"`
	FailureReason string          `json:"failure_reason,omitempty"`
	ProcessedAt   time.Time       `json:"processed_at"`
}

// InventoryAdjustedEvent публикуется для каждой записи складского журнала.
type InventoryAdjustedEvent struct {
	VariantID     string          `json:"variant_id"`
	Delta         int             `json:"delta"`
	QuantityAfter int             `json:"quantity_after"`
	Reason        InventoryReason `json:"reason"`
	Reference     string          `json:"reference,omitempty"`
	LowStock      bool            `json:"low_stock"`
}

// NewOutboxMessage сериализует payload в сообщение outbox.
func NewOutboxMessage(aggregateType, aggregateID, eventType string, payload any) (OutboxMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return OutboxMessage{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       body,
	}, nil
}

// DeadLetter: конверт сообщения, отправленного в DLQ после исчерпания попыток.
type DeadLetter struct {
	SourceID      string          `json:"source_id"`
	Source        string          `json:"source"`
	AggregateType string          `json:"aggregate_type,omitempty"`
	AggregateID   string          `json:"aggregate_id,omitempty"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	Error         string          `json:"error"`
	Attempts      int             `json:"attempts"`
	FailedAt      time.Time       `json:"failed_at"`
}
