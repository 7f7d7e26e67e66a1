package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа пекарни.
type OrderStatus string

const (
	// Заказ создан, оплата ещё не получена.
	OrderStatusPending OrderStatus = "PENDING"
	// Оплата подтверждена.
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	// Заказ собирают или выпекают.
	OrderStatusPreparing OrderStatus = "PREPARING"
	// Заказ готов к выдаче или передаче курьеру.
	OrderStatusReadyForPickup OrderStatus = "READY_FOR_PICKUP"
	// Заказ передан в доставку.
	OrderStatusOutForDelivery OrderStatus = "OUT_FOR_DELIVERY"
	// Заказ получен покупателем.
	OrderStatusDelivered OrderStatus = "DELIVERED"
	// Заказ отменён.
	OrderStatusCancelled OrderStatus = "CANCELLED"
	// Деньги по заказу возвращены.
	OrderStatusRefunded OrderStatus = "REFUNDED"
)

// fulfillmentSequence задаёт порядок прямого движения заказа.
var fulfillmentSequence = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusPreparing,
	OrderStatusReadyForPickup,
	OrderStatusOutForDelivery,
	OrderStatusDelivered,
}

func fulfillmentRank(s OrderStatus) int {
	for i, st := range fulfillmentSequence {
		if st == s {
			return i
		}
	}
	return -1
}

// ParseOrderStatus приводит строку к OrderStatus без учёта регистра.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	s := OrderStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", Validationf("unknown order status %q", raw)
	}
	return s, nil
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	return fulfillmentRank(s) >= 0 || s == OrderStatusCancelled || s == OrderStatusRefunded
}

// Terminal сообщает, что из статуса нет прямых переходов по исполнению.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled || s == OrderStatusRefunded
}

// CanTransition проверяет переход по таблице статусов.
// Прямые переходы могут пропускать шаги; CANCELLED доступен из любого
// нетерминального статуса; REFUNDED доступен после подтверждения оплаты
// либо из CANCELLED, если деньги были списаны.
func CanTransition(from, to OrderStatus, paymentStatus PaymentStatus) bool {
	if !from.Valid() || !to.Valid() || from == to {
		return false
	}

	switch to {
	case OrderStatusCancelled:
		return !from.Terminal()
	case OrderStatusRefunded:
		if from == OrderStatusCancelled {
			return paymentStatus == PaymentStatusCaptured
		}
		return fulfillmentRank(from) >= fulfillmentRank(OrderStatusConfirmed)
	}

	fromRank, toRank := fulfillmentRank(from), fulfillmentRank(to)
	if fromRank < 0 || toRank < 0 {
		return false
	}
	return toRank > fromRank
}

// ShipmentStatus описывает состояние доставки.
type ShipmentStatus string

const (
	ShipmentStatusPending   ShipmentStatus = "PENDING"
	ShipmentStatusShipped   ShipmentStatus = "SHIPPED"
	ShipmentStatusDelivered ShipmentStatus = "DELIVERED"
)

// Address: адрес доставки, сохраняется в заказе как снимок.
type Address struct {
	Name       string `json:"name,omitempty"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

// Validate проверяет обязательные поля адреса.
func (a Address) Validate() error {
	var missing []string
	if strings.TrimSpace(a.Line1) == "" {
		missing = append(missing, "line1")
	}
	if strings.TrimSpace(a.City) == "" {
		missing = append(missing, "city")
	}
	if strings.TrimSpace(a.PostalCode) == "" {
		missing = append(missing, "postalCode")
	}
	if strings.TrimSpace(a.Country) == "" {
		missing = append(missing, "country")
	}
	if len(missing) > 0 {
		return Validationf("shipping address missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// OrderItem: позиция заказа, скопированная из корзины.
type OrderItem struct {
	ID          string
	OrderID     string
	VariantID   string
	ProductName string
	VariantName string
	SKU         string
	Quantity    int
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID              string
	OrderNumber     string
	UserID          string
	SessionID       string
	CartID          string
	Email           string
	Status          OrderStatus
	PaymentStatus   PaymentStatus
	ShipmentStatus  ShipmentStatus
	Currency        string
	Subtotal        decimal.Decimal
	Tax             decimal.Decimal
	ShippingFee     decimal.Decimal
	DiscountTotal   decimal.Decimal
	Total           decimal.Decimal
	ShippingAddress Address
	BillingAddress  *Address
	Notes           string
	Items           []OrderItem
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OwnedBy проверяет, что заказ принадлежит запрашивающему.
func (o Order) OwnedBy(r Requester) bool {
	if r.IsAdmin() {
		return true
	}
	if o.UserID != "" {
		return r.UserID == o.UserID
	}
	return r.SessionID != "" && r.SessionID == o.SessionID
}

// ApplyTotals переносит рассчитанные итоги в заказ.
func (o *Order) ApplyTotals(t Totals) {
	o.Subtotal = t.Subtotal
	o.Tax = t.Tax
	o.ShippingFee = t.ShippingFee
	o.DiscountTotal = t.DiscountTotal
	o.Total = t.Total
}

// OrderStatusEvent: запись журнала изменений статуса заказа.
type OrderStatusEvent struct {
	ID         string
	OrderID    string
	FromStatus OrderStatus
	ToStatus   OrderStatus
	Note       string
	Actor      string
	CreatedAt  time.Time
}

// Shipment создаётся при передаче заказа в доставку.
type Shipment struct {
	ID             string
	OrderID        string
	Carrier        string
	TrackingNumber string
	Status         ShipmentStatus
	ShippedAt      *time.Time
	DeliveredAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
