// Package assistant связывает голосового/текстового ассистента с операциями витрины.
// Набор инструментов закрыт: каждый имеет типизированный вход и обрабатывается одной веткой switch.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
	"github.com/vladislavdragonenkov/bakery/internal/service/cart"
	"github.com/vladislavdragonenkov/bakery/internal/service/catalog"
	"github.com/vladislavdragonenkov/bakery/internal/service/orderstatus"
)

// Tool: имя инструмента ассистента.
type Tool string

const (
	ToolSearchProducts Tool = "search_products"
	ToolViewCart       Tool = "view_cart"
	ToolAddToCart      Tool = "add_to_cart"
	ToolOrderStatus    Tool = "order_status"
)

// Invocation: вызов инструмента от ассистента.
type Invocation struct {
	Tool  Tool            `json:"tool"`
	Input json.RawMessage `json:"input"`
}

// SearchProductsInput: вход search_products.
type SearchProductsInput struct {
	Query string `json:"query"`
}

// ViewCartInput: вход view_cart.
type ViewCartInput struct {
	SessionID string `json:"sessionId"`
}

// AddToCartInput: вход add_to_cart.
type AddToCartInput struct {
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity"`
	SessionID string `json:"sessionId"`
}

// OrderStatusInput: вход order_status.
type OrderStatusInput struct {
	OrderID   string `json:"orderId"`
	SessionID string `json:"sessionId"`
}

// Reply: ответ инструмента: короткая фраза для озвучивания и структурированные данные.
type Reply struct {
	Tool    Tool   `json:"tool"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ProductHit: найденный товар в ответе search_products.
type ProductHit struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId"`
	Name      string `json:"name"`
	Price     string `json:"price"`
}

// CartLine: позиция корзины в ответе view_cart и add_to_cart.
type CartLine struct {
	ItemID    string `json:"itemId"`
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
}

// CartSnapshot: корзина в ответе ассистенту.
type CartSnapshot struct {
	CartID string     `json:"cartId"`
	Lines  []CartLine `json:"lines"`
	Total  string     `json:"total"`
	Items  int        `json:"itemCount"`
}

// OrderSnapshot: статус заказа в ответе order_status.
type OrderSnapshot struct {
	OrderID        string `json:"orderId"`
	OrderNumber    string `json:"orderNumber"`
	Status         string `json:"status"`
	PaymentStatus  string `json:"paymentStatus"`
	ShipmentStatus string `json:"shipmentStatus"`
	Total          string `json:"total"`
}

// Bridge исполняет вызовы инструментов поверх сервисов витрины.
type Bridge struct {
	catalog *catalog.Service
	carts   *cart.Service
	orders  *orderstatus.Service
	logger  *log.Entry
}

// NewBridge создаёт мост инструментов.
func NewBridge(catalogSvc *catalog.Service, carts *cart.Service, orders *orderstatus.Service, logger *log.Entry) *Bridge {
	if logger == nil {
		logger = log.WithField("component", "assistant")
	}
	return &Bridge{catalog: catalogSvc, carts: carts, orders: orders, logger: logger}
}

// Dispatch декодирует вход и вызывает инструмент. Для неизвестного инструмента возвращает ErrUnknownTool.
func (b *Bridge) Dispatch(ctx context.Context, requester domain.Requester, inv Invocation) (Reply, error) {
	logger := b.logger.WithFields(log.Fields{"tool": inv.Tool, "actor": requester.Actor()})

	var (
		reply Reply
		err   error
	)
	switch inv.Tool {
	case ToolSearchProducts:
		var in SearchProductsInput
		if err = decode(inv.Input, &in); err == nil {
			reply, err = b.searchProducts(ctx, in)
		}
	case ToolViewCart:
		var in ViewCartInput
		if err = decode(inv.Input, &in); err == nil {
			reply, err = b.viewCart(ctx, withSession(requester, in.SessionID))
		}
	case ToolAddToCart:
		var in AddToCartInput
		if err = decode(inv.Input, &in); err == nil {
			reply, err = b.addToCart(ctx, withSession(requester, in.SessionID), in)
		}
	case ToolOrderStatus:
		var in OrderStatusInput
		if err = decode(inv.Input, &in); err == nil {
			reply, err = b.orderStatus(ctx, withSession(requester, in.SessionID), in)
		}
	default:
		err = fmt.Errorf("%w: %q", domain.ErrUnknownTool, inv.Tool)
	}

	if err != nil {
		logger.WithError(err).Warn("assistant tool failed")
		return Reply{}, err
	}
	reply.Tool = inv.Tool
	logger.Debug("assistant tool executed")
	return reply, nil
}

func decode(raw json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.Validationf("invalid tool input: %v", err)
	}
	return nil
}

// withSession подставляет sessionId из входа инструмента для гостя.
func withSession(r domain.Requester, sessionID string) domain.Requester {
	if r.UserID == "" && strings.TrimSpace(sessionID) != "" {
		r.SessionID = strings.TrimSpace(sessionID)
	}
	return r
}

func (b *Bridge) searchProducts(ctx context.Context, in SearchProductsInput) (Reply, error) {
	products, err := b.catalog.Search(ctx, in.Query)
	if err != nil {
		return Reply{}, err
	}

	var hits []ProductHit
	for _, p := range products {
		for _, v := range p.Variants {
			if !domain.Purchasable(p, v) {
				continue
			}
			hits = append(hits, ProductHit{
				ProductID: p.ID,
				VariantID: v.ID,
				Name:      p.Name + " (" + v.Name + ")",
				Price:     v.Price.StringFixed(2),
			})
		}
	}

	msg := fmt.Sprintf("I found %d options.", len(hits))
	if len(hits) == 0 {
		msg = "Sorry, nothing on the menu matches that."
	}
	return Reply{Message: msg, Data: hits}, nil
}

func (b *Bridge) viewCart(ctx context.Context, requester domain.Requester) (Reply, error) {
	view, err := b.carts.GetOrCreateActive(ctx, requester.Owner(), "")
	if err != nil {
		return Reply{}, err
	}
	snap := snapshotCart(view)
	msg := fmt.Sprintf("Your cart has %d items, total %s.", snap.Items, snap.Total)
	if snap.Items == 0 {
		msg = "Your cart is empty."
	}
	return Reply{Message: msg, Data: snap}, nil
}

func (b *Bridge) addToCart(ctx context.Context, requester domain.Requester, in AddToCartInput) (Reply, error) {
	quantity := in.Quantity
	if quantity == 0 {
		quantity = 1
	}
	view, err := b.carts.AddItem(ctx, requester, in.VariantID, quantity, "")
	if err != nil {
		return Reply{}, err
	}
	snap := snapshotCart(view)
	return Reply{
		Message: fmt.Sprintf("Added %d to your cart. Total is now %s.", quantity, snap.Total),
		Data:    snap,
	}, nil
}

func (b *Bridge) orderStatus(ctx context.Context, requester domain.Requester, in OrderStatusInput) (Reply, error) {
	if strings.TrimSpace(in.OrderID) == "" {
		return Reply{}, domain.Validationf("orderId is required")
	}
	details, err := b.orders.Get(ctx, requester, in.OrderID)
	if err != nil {
		return Reply{}, err
	}
	o := details.Order
	snap := OrderSnapshot{
		OrderID:        o.ID,
		OrderNumber:    o.OrderNumber,
		Status:         string(o.Status),
		PaymentStatus:  string(o.PaymentStatus),
		ShipmentStatus: string(o.ShipmentStatus),
		Total:          o.Total.StringFixed(2),
	}
	return Reply{
		Message: fmt.Sprintf("Order %s is %s.", o.OrderNumber, strings.ToLower(strings.ReplaceAll(string(o.Status), "_", " "))),
		Data:    snap,
	}, nil
}

func snapshotCart(view domain.CartView) CartSnapshot {
	snap := CartSnapshot{
		CartID: view.Cart.ID,
		Lines:  make([]CartLine, 0, len(view.Items)),
		Total:  view.Summary.Total.StringFixed(2),
		Items:  view.Summary.ItemCount,
	}
	for _, item := range view.Items {
		snap.Lines = append(snap.Lines, CartLine{
			ItemID:    item.ID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.StringFixed(2),
		})
	}
	return snap
}
