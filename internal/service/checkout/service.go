package checkout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
	"github.com/vladislavdragonenkov/bakery/internal/metrics"
	"github.com/vladislavdragonenkov/bakery/internal/service/inventory"
)

// Request: данные для оформления заказа из корзины.
type Request struct {
	CartID          string
	ShippingAddress domain.Address
	BillingAddress  *domain.Address
	Email           string
	Notes           string
}

// Service превращает активную корзину в заказ.
type Service struct {
	store   domain.Store
	ledger  *inventory.Ledger
	logger  *log.Entry
	metrics *metrics.StorefrontMetrics
	now     func() time.Time
}

// NewService создаёт сервис оформления заказов.
func NewService(store domain.Store, ledger *inventory.Ledger, logger *log.Entry, m *metrics.StorefrontMetrics) *Service {
	if logger == nil {
		logger = log.WithField("component", "checkout")
	}
	return &Service{
		store:   store,
		ledger:  ledger,
		logger:  logger,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrderFromCart оформляет заказ. Заказ, списание остатков, закрытие корзины
// и сообщение outbox фиксируются одной транзакцией.
func (s *Service) CreateOrderFromCart(ctx context.Context, requester domain.Requester, req Request) (domain.Order, error) {
	start := time.Now()
	s.metrics.RecordCheckoutStarted()

	order, applied, err := s.createOrder(ctx, requester, req)
	s.metrics.RecordCheckoutFinished(failureReason(err), time.Since(start))

	logger := s.logger.WithFields(log.Fields{
		"cart_id": req.CartID,
		"actor":   requester.Actor(),
	})
	if err != nil {
		logger.WithError(err).Warn("checkout failed")
		return domain.Order{}, err
	}

	for _, adj := range applied {
		s.ledger.RecordApplied(adj.adjustment, adj.level)
	}
	s.metrics.RecordOutboxEnqueued(domain.EventOrderCreated)
	logger.WithFields(log.Fields{
		"order_id": order.ID,
		"total":    order.Total.StringFixed(2),
	}).Info("order created")
	return order, nil
}

type appliedAdjustment struct {
	adjustment domain.Adjustment
	level      domain.InventoryLevel
}

func (s *Service) createOrder(ctx context.Context, requester domain.Requester, req Request) (domain.Order, []appliedAdjustment, error) {
	if strings.TrimSpace(req.CartID) == "" {
		return domain.Order{}, nil, domain.Validationf("cartId is required")
	}
	if err := req.ShippingAddress.Validate(); err != nil {
		return domain.Order{}, nil, err
	}
	if req.BillingAddress != nil {
		if err := req.BillingAddress.Validate(); err != nil {
			return domain.Order{}, nil, fmt.Errorf("billing address: %w", err)
		}
	}

	var (
		order   domain.Order
		applied []appliedAdjustment
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		applied = applied[:0]

		cart, err := tx.Carts().Get(ctx, req.CartID)
		if err != nil {
			return err
		}
		if cart.Status != domain.CartStatusActive {
			return domain.ErrCartNotCheckoutReady
		}
		if !requester.CanAccessCart(cart) {
			return domain.ErrForbidden
		}

		items, err := tx.Carts().ListItems(ctx, cart.ID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return domain.ErrEmptyCart
		}

		// Блокируем строки остатков в порядке variant id, чтобы параллельные оформления не взаимоблокировались.
		sort.Slice(items, func(i, j int) bool { return items[i].VariantID < items[j].VariantID })
		for _, item := range items {
			available, err := inventory.Available(ctx, tx, item.VariantID, true)
			if err != nil {
				return err
			}
			if item.Quantity > available {
				return domain.NewShortage(item.VariantID, item.Quantity, available)
			}
		}

		now := s.now()
		order = domain.Order{
			ID:              uuid.NewString(),
			UserID:          cart.UserID,
			SessionID:       cart.SessionID,
			CartID:          cart.ID,
			Email:           strings.TrimSpace(req.Email),
			Status:          domain.OrderStatusPending,
			PaymentStatus:   domain.PaymentStatusPending,
			ShipmentStatus:  domain.ShipmentStatusPending,
			Currency:        cart.Currency,
			ShippingAddress: req.ShippingAddress,
			BillingAddress:  req.BillingAddress,
			Notes:           strings.TrimSpace(req.Notes),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		order.OrderNumber = orderNumber(order.ID, now)
		order.ApplyTotals(domain.Summarize(items))

		for _, item := range items {
			line, err := s.orderItem(ctx, tx, order.ID, item)
			if err != nil {
				return err
			}
			order.Items = append(order.Items, line)
		}

		if err := tx.Orders().Create(ctx, order); err != nil {
			return err
		}
		if err := tx.StatusEvents().Append(ctx, domain.OrderStatusEvent{
			ID:        uuid.NewString(),
			OrderID:   order.ID,
			ToStatus:  domain.OrderStatusPending,
			Note:      "Order placed",
			Actor:     requester.Actor(),
			CreatedAt: now,
		}); err != nil {
			return err
		}

		for _, item := range items {
			adj := domain.Adjustment{
				VariantID: item.VariantID,
				Delta:     -item.Quantity,
				Reason:    domain.InventoryReasonOrderFulfilled,
				Actor:     requester.Actor(),
				Reference: order.ID,
			}
			level, err := s.ledger.ApplyInTx(ctx, tx, adj)
			if errors.Is(err, domain.ErrInvalidAdjustment) {
				return domain.NewShortage(item.VariantID, item.Quantity, level.Quantity)
			}
			if err != nil {
				return err
			}
			applied = append(applied, appliedAdjustment{adjustment: adj, level: level})
		}

		if err := tx.Carts().UpdateStatus(ctx, cart.ID, domain.CartStatusCheckedOut, now); err != nil {
			return err
		}

		msg, err := domain.NewOutboxMessage(domain.AggregateOrder, order.ID, domain.EventOrderCreated, domain.OrderCreatedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			UserID:      order.UserID,
			CartID:      order.CartID,
			Total:       order.Total,
			Currency:    order.Currency,
			ItemCount:   len(order.Items),
			CreatedAt:   now,
		})
		if err != nil {
			return err
		}
		_, err = tx.Outbox().Enqueue(ctx, msg)
		return err
	})
	if err != nil {
		return domain.Order{}, nil, err
	}
	return order, applied, nil
}

func (s *Service) orderItem(ctx context.Context, tx domain.Tx, orderID string, item domain.CartItem) (domain.OrderItem, error) {
	variant, err := tx.Catalog().GetVariant(ctx, item.VariantID)
	if err != nil {
		return domain.OrderItem{}, err
	}
	product, err := tx.Catalog().GetProduct(ctx, variant.ProductID)
	if err != nil {
		return domain.OrderItem{}, err
	}
	return domain.OrderItem{
		ID:          uuid.NewString(),
		OrderID:     orderID,
		VariantID:   item.VariantID,
		ProductName: product.Name,
		VariantName: variant.Name,
		SKU:         variant.SKU,
		Quantity:    item.Quantity,
		UnitPrice:   item.UnitPrice,
		LineTotal:   item.Line().LineTotal(),
	}, nil
}

func orderNumber(orderID string, at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(orderID, "-", ""))
	if len(suffix) > 6 {
		suffix = suffix[:6]
	}
	return fmt.Sprintf("BK-%s-%s", at.Format("20060102"), suffix)
}

func failureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrCartNotFound):
		return "cart_not_found"
	case errors.Is(err, domain.ErrCartNotCheckoutReady):
		return "cart_not_ready"
	case errors.Is(err, domain.ErrForbidden):
		return "forbidden"
	case errors.Is(err, domain.ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, domain.ErrInsufficientInventory):
		return "insufficient_inventory"
	default:
		return "internal"
	}
}
