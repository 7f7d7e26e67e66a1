package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product: карточка товара пекарни.
type Product struct {
	ID          string
	Slug        string
	Name        string
	Description string
	Category    string
	Published   bool
	Variants    []Variant
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Variant: продаваемый SKU продукта (например, «1 кг»).
type Variant struct {
	ID        string
	ProductID string
	SKU       string
	Name      string
	Price     decimal.Decimal
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Purchasable проверяет, можно ли положить вариант в корзину.
func Purchasable(product Product, variant Variant) bool {
	return product.Published && variant.Active
}
