package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartStatus описывает жизненный цикл корзины.
type CartStatus string

const (
	// Корзина, в которую покупатель добавляет товары.
	CartStatusActive CartStatus = "ACTIVE"
	// Корзина превращена в заказ, повторно не используется.
	CartStatusCheckedOut CartStatus = "CHECKED_OUT"
	// Корзина брошена и закрыта по таймауту.
	CartStatusAbandoned CartStatus = "ABANDONED"
)

// DefaultCurrency используется, если клиент не передал валюту.
const DefaultCurrency = "USD"

// CartOwner: владелец корзины: пользователь либо анонимная сессия.
type CartOwner struct {
	UserID    string
	SessionID string
}

// Validate требует ровно один идентификатор владельца.
func (o CartOwner) Validate() error {
	if o.UserID == "" && o.SessionID == "" {
		return Validationf("sessionId is required for guest carts")
	}
	return nil
}

// Cart: корзина покупателя.
type Cart struct {
	ID        string
	UserID    string
	SessionID string
	Status    CartStatus
	Currency  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Owner возвращает владельца корзины.
func (c Cart) Owner() CartOwner {
	return CartOwner{UserID: c.UserID, SessionID: c.SessionID}
}

// CartItem: позиция корзины с ценой, зафиксированной при добавлении.
type CartItem struct {
	ID        string
	CartID    string
	VariantID string
	Quantity  int
	UnitPrice decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Line переводит позицию в строку расчёта.
func (i CartItem) Line() PricedLine {
	return PricedLine{UnitPrice: i.UnitPrice, Quantity: i.Quantity}
}

// CartView: корзина вместе с позициями и пересчитанными итогами.
type CartView struct {
	Cart    Cart
	Items   []CartItem
	Summary Totals
}

// Summarize всегда пересчитывает итоги по текущим позициям.
func Summarize(items []CartItem) Totals {
	lines := make([]PricedLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, item.Line())
	}
	return PriceLines(lines)
}
