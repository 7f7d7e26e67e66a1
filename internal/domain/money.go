package domain

import "github.com/shopspring/decimal"

const moneyScale = 2

var (
	// Ставка налога с подытога.
	TaxRate = decimal.RequireFromString("0.08")
	// Стоимость доставки ниже порога бесплатной доставки.
	FlatShippingFee = decimal.RequireFromString("5.00")
	// Подытог, начиная с которого доставка бесплатна.
	FreeShippingThreshold = decimal.RequireFromString("50.00")
	// Допустимое расхождение суммы платежа и суммы заказа.
	PaymentTolerance = decimal.RequireFromString("0.01")
)

// RoundMoney округляет сумму до копеек. Применяется на каждом шаге расчёта.
func RoundMoney(v decimal.Decimal) decimal.Decimal {
	return v.Round(moneyScale)
}

// PricedLine: позиция для расчёта: цена зафиксирована при добавлении в корзину.
type PricedLine struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// LineTotal возвращает округлённую стоимость позиции.
func (l PricedLine) LineTotal() decimal.Decimal {
	return RoundMoney(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
}

// Totals: итог расчёта корзины или заказа.
type Totals struct {
	Subtotal      decimal.Decimal `json:"subtotal"`
	Tax           decimal.Decimal `json:"tax"`
	ShippingFee   decimal.Decimal `json:"shippingFee"`
	DiscountTotal decimal.Decimal `json:"discountTotal"`
	Total         decimal.Decimal `json:"total"`
	ItemCount     int             `json:"itemCount"`
}

// PriceLines считает subtotal → tax → shipping → total с округлением на каждом шаге.
func PriceLines(lines []PricedLine) Totals {
	subtotal := decimal.Zero
	count := 0
	for _, line := range lines {
		subtotal = RoundMoney(subtotal.Add(line.LineTotal()))
		count += line.Quantity
	}

	tax := RoundMoney(subtotal.Mul(TaxRate))

	shipping := decimal.Zero
	if count > 0 && subtotal.LessThan(FreeShippingThreshold) {
		shipping = FlatShippingFee
	}

	discount := decimal.Zero
	total := RoundMoney(subtotal.Add(tax).Add(shipping).Sub(discount))

	return Totals{
		Subtotal:      subtotal,
		Tax:           tax,
		ShippingFee:   shipping,
		DiscountTotal: discount,
		Total:         total,
		ItemCount:     count,
	}
}

// AmountMatches проверяет сумму платежа с допуском в один цент.
func AmountMatches(expected, actual decimal.Decimal) bool {
	return expected.Sub(actual).Abs().LessThanOrEqual(PaymentTolerance)
}
