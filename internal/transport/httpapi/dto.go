package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
	"github.com/vladislavdragonenkov/bakery/internal/service/orderstatus"
	"github.com/vladislavdragonenkov/bakery/internal/service/payment"
)

// money печатает сумму ровно с двумя знаками: 34.00, а не 34.
func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

type totalsDTO struct {
	Subtotal      string `json:"subtotal"`
	Tax           string `json:"tax"`
	ShippingFee   string `json:"shippingFee"`
	DiscountTotal string `json:"discountTotal"`
	Total         string `json:"total"`
	ItemCount     int    `json:"itemCount"`
}

func toTotals(t domain.Totals) totalsDTO {
	return totalsDTO{
		Subtotal:      money(t.Subtotal),
		Tax:           money(t.Tax),
		ShippingFee:   money(t.ShippingFee),
		DiscountTotal: money(t.DiscountTotal),
		Total:         money(t.Total),
		ItemCount:     t.ItemCount,
	}
}

type cartItemDTO struct {
	ID        string `json:"id"`
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
	LineTotal string `json:"lineTotal"`
}

type cartDTO struct {
	ID        string        `json:"id"`
	UserID    string        `json:"userId,omitempty"`
	SessionID string        `json:"sessionId,omitempty"`
	Status    string        `json:"status"`
	Currency  string        `json:"currency"`
	Items     []cartItemDTO `json:"items"`
	Summary   totalsDTO     `json:"summary"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

func toCart(v domain.CartView) cartDTO {
	items := make([]cartItemDTO, 0, len(v.Items))
	for _, it := range v.Items {
		items = append(items, cartItemDTO{
			ID:        it.ID,
			VariantID: it.VariantID,
			Quantity:  it.Quantity,
			UnitPrice: money(it.UnitPrice),
			LineTotal: money(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))),
		})
	}
	return cartDTO{
		ID:        v.Cart.ID,
		UserID:    v.Cart.UserID,
		SessionID: v.Cart.SessionID,
		Status:    string(v.Cart.Status),
		Currency:  v.Cart.Currency,
		Items:     items,
		Summary:   toTotals(v.Summary),
		UpdatedAt: v.Cart.UpdatedAt,
	}
}

type variantDTO struct {
	ID     string `json:"id"`
	SKU    string `json:"sku"`
	Name   string `json:"name"`
	Price  string `json:"price"`
	Active bool   `json:"active"`
}

type productDTO struct {
	ID          string       `json:"id"`
	Slug        string       `json:"slug"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Category    string       `json:"category,omitempty"`
	Published   bool         `json:"published"`
	Variants    []variantDTO `json:"variants"`
}

func toVariant(v domain.Variant) variantDTO {
	return variantDTO{ID: v.ID, SKU: v.SKU, Name: v.Name, Price: money(v.Price), Active: v.Active}
}

func toProduct(p domain.Product) productDTO {
	variants := make([]variantDTO, 0, len(p.Variants))
	for _, v := range p.Variants {
		variants = append(variants, toVariant(v))
	}
	return productDTO{
		ID:          p.ID,
		Slug:        p.Slug,
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		Published:   p.Published,
		Variants:    variants,
	}
}

type orderItemDTO struct {
	VariantID   string `json:"variantId"`
	ProductName string `json:"productName"`
	VariantName string `json:"variantName"`
	SKU         string `json:"sku"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unitPrice"`
	LineTotal   string `json:"lineTotal"`
}

type orderDTO struct {
	ID              string          `json:"id"`
	OrderNumber     string          `json:"orderNumber"`
	UserID          string          `json:"userId,omitempty"`
	CartID          string          `json:"cartId"`
	Email           string          `json:"email,omitempty"`
	Status          string          `json:"status"`
	PaymentStatus   string          `json:"paymentStatus"`
	ShipmentStatus  string          `json:"shipmentStatus"`
	Currency        string          `json:"currency"`
	Subtotal        string          `json:"subtotal"`
	Tax             string          `json:"tax"`
	ShippingFee     string          `json:"shippingFee"`
	DiscountTotal   string          `json:"discountTotal"`
	Total           string          `json:"total"`
	ShippingAddress domain.Address  `json:"shippingAddress"`
	BillingAddress  *domain.Address `json:"billingAddress,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	Items           []orderItemDTO  `json:"items"`
	Version         int64           `json:"version"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

func toOrder(o domain.Order) orderDTO {
	items := make([]orderItemDTO, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemDTO{
			VariantID:   it.VariantID,
			ProductName: it.ProductName,
			VariantName: it.VariantName,
			SKU:         it.SKU,
			Quantity:    it.Quantity,
			UnitPrice:   money(it.UnitPrice),
			LineTotal:   money(it.LineTotal),
		})
	}
	return orderDTO{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		UserID:          o.UserID,
		CartID:          o.CartID,
		Email:           o.Email,
		Status:          string(o.Status),
		PaymentStatus:   string(o.PaymentStatus),
		ShipmentStatus:  string(o.ShipmentStatus),
		Currency:        o.Currency,
		Subtotal:        money(o.Subtotal),
		Tax:             money(o.Tax),
		ShippingFee:     money(o.ShippingFee),
		DiscountTotal:   money(o.DiscountTotal),
		Total:           money(o.Total),
		ShippingAddress: o.ShippingAddress,
		BillingAddress:  o.BillingAddress,
		Notes:           o.Notes,
		Items:           items,
		Version:         o.Version,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func toOrders(orders []domain.Order) []orderDTO {
	out := make([]orderDTO, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrder(o))
	}
	return out
}

type statusEventDTO struct {
	From      string    `json:"from,omitempty"`
	To        string    `json:"to"`
	Note      string    `json:"note,omitempty"`
	Actor     string    `json:"actor"`
	CreatedAt time.Time `json:"createdAt"`
}

type paymentDTO struct {
	ID                    string    `json:"id"`
	OrderID               string    `json:"orderId"`
	Provider              string    `json:"provider"`
	Method                string    `json:"method"`
	Status                string    `json:"status"`
	Amount                string    `json:"amount"`
	Currency              string    `json:"currency"`
	ExternalTransactionID string    `json:"externalTransactionId,omitempty"`
	FailureReason         string    `json:"failureReason,omitempty"`
	CreatedAt             time.Time `json:"createdAt"`
}

func toPayment(p domain.Payment) paymentDTO {
	return paymentDTO{
		ID:                    p.ID,
		OrderID:               p.OrderID,
		Provider:              p.Provider,
		Method:                string(p.Method),
		Status:                string(p.Status),
		Amount:                money(p.Amount),
		Currency:              p.Currency,
		ExternalTransactionID: p.ExternalTransactionID,
		FailureReason:         p.FailureReason,
		CreatedAt:             p.CreatedAt,
	}
}

type shipmentDTO struct {
	Carrier        string     `json:"carrier"`
	TrackingNumber string     `json:"trackingNumber"`
	Status         string     `json:"status"`
	ShippedAt      *time.Time `json:"shippedAt,omitempty"`
	DeliveredAt    *time.Time `json:"deliveredAt,omitempty"`
}

type orderDetailsDTO struct {
	orderDTO
	Events   []statusEventDTO `json:"events"`
	Payments []paymentDTO     `json:"payments"`
	Shipment *shipmentDTO     `json:"shipment,omitempty"`
}

func toOrderDetails(d orderstatus.Details) orderDetailsDTO {
	out := orderDetailsDTO{
		orderDTO: toOrder(d.Order),
		Events:   make([]statusEventDTO, 0, len(d.Events)),
		Payments: make([]paymentDTO, 0, len(d.Payments)),
	}
	for _, e := range d.Events {
		out.Events = append(out.Events, statusEventDTO{
			From:      string(e.FromStatus),
			To:        string(e.ToStatus),
			Note:      e.Note,
			Actor:     e.Actor,
			CreatedAt: e.CreatedAt,
		})
	}
	for _, p := range d.Payments {
		out.Payments = append(out.Payments, toPayment(p))
	}
	if d.Shipment != nil {
		out.Shipment = &shipmentDTO{
			Carrier:        d.Shipment.Carrier,
			TrackingNumber: d.Shipment.TrackingNumber,
			Status:         string(d.Shipment.Status),
			ShippedAt:      d.Shipment.ShippedAt,
			DeliveredAt:    d.Shipment.DeliveredAt,
		}
	}
	return out
}

type paymentResultDTO struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Order   orderDTO `json:"order"`
}

type paymentResponse struct {
	Payment       paymentDTO       `json:"payment"`
	PaymentResult paymentResultDTO `json:"paymentResult"`
}

func toPaymentResponse(r payment.Result) paymentResponse {
	return paymentResponse{
		Payment: toPayment(r.Payment),
		PaymentResult: paymentResultDTO{
			Success: r.Success,
			Message: r.Message,
			Order:   toOrder(r.Order),
		},
	}
}

type inventoryLevelDTO struct {
	VariantID         string    `json:"variantId"`
	Quantity          int       `json:"quantity"`
	Reserved          int       `json:"reserved"`
	LowStockThreshold int       `json:"lowStockThreshold"`
	LowStock          bool      `json:"lowStock"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func toLevel(l domain.InventoryLevel) inventoryLevelDTO {
	return inventoryLevelDTO{
		VariantID:         l.VariantID,
		Quantity:          l.Quantity,
		Reserved:          l.Reserved,
		LowStockThreshold: l.LowStockThreshold,
		LowStock:          l.LowStock(),
		UpdatedAt:         l.UpdatedAt,
	}
}

type inventoryTransactionDTO struct {
	ID            string    `json:"id"`
	Delta         int       `json:"delta"`
	QuantityAfter int       `json:"quantityAfter"`
	Reason        string    `json:"reason"`
	Reference     string    `json:"reference,omitempty"`
	Actor         string    `json:"actor"`
	CreatedAt     time.Time `json:"createdAt"`
}

type inventoryResponse struct {
	Level   inventoryLevelDTO         `json:"level"`
	History []inventoryTransactionDTO `json:"history"`
}

func toInventory(level domain.InventoryLevel, history []domain.InventoryTransaction) inventoryResponse {
	out := inventoryResponse{Level: toLevel(level), History: make([]inventoryTransactionDTO, 0, len(history))}
	for _, t := range history {
		out.History = append(out.History, inventoryTransactionDTO{
			ID:            t.ID,
			Delta:         t.Delta,
			QuantityAfter: t.QuantityAfter,
			Reason:        string(t.Reason),
			Reference:     t.Reference,
			Actor:         t.Actor,
			CreatedAt:     t.CreatedAt,
		})
	}
	return out
}
