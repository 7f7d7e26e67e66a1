package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

func cloneOrder(order domain.Order) domain.Order {
	order.Items = append([]domain.OrderItem(nil), order.Items...)
	if order.BillingAddress != nil {
		billing := *order.BillingAddress
		order.BillingAddress = &billing
	}
	return order
}

type orderRepo struct {
	st *state
}

// Create сохраняет новый заказ, если ID ещё не занят.
func (r orderRepo) Create(_ context.Context, order domain.Order) error {
	if _, exists := r.st.orders[order.ID]; exists {
		return domain.ErrOrderVersionConflict
	}
	put(r.st, r.st.orders, order.ID, cloneOrder(order))
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r orderRepo) Get(_ context.Context, id string) (domain.Order, error) {
	order, ok := r.st.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

func (r orderRepo) ListByUser(_ context.Context, userID string, limit int) ([]domain.Order, error) {
	return r.list(func(o domain.Order) bool { return o.UserID == userID }, limit), nil
}

func (r orderRepo) List(_ context.Context, limit int) ([]domain.Order, error) {
	return r.list(func(domain.Order) bool { return true }, limit), nil
}

func (r orderRepo) list(match func(domain.Order) bool, limit int) []domain.Order {
	result := make([]domain.Order, 0, len(r.st.orders))
	for _, order := range r.st.orders {
		if match(order) {
			result = append(result, cloneOrder(order))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// Save перезаписывает заказ, проверяя версию (optimistic locking).
func (r orderRepo) Save(_ context.Context, order domain.Order) error {
	current, ok := r.st.orders[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrOrderVersionConflict
	}
	order.Version++
	put(r.st, r.st.orders, order.ID, cloneOrder(order))
	return nil
}

type paymentRepo struct {
	st *state
}

func (r paymentRepo) Create(_ context.Context, payment domain.Payment) error {
	if _, ok := r.st.orders[payment.OrderID]; !ok {
		return domain.ErrOrderNotFound
	}
	r.st.payments = append(r.st.payments, payment)
	return nil
}

func (r paymentRepo) ListByOrder(_ context.Context, orderID string) ([]domain.Payment, error) {
	var result []domain.Payment
	for _, p := range r.st.payments {
		if p.OrderID == orderID {
			result = append(result, p)
		}
	}
	return result, nil
}

type statusEventRepo struct {
	st *state
}

func (r statusEventRepo) Append(_ context.Context, event domain.OrderStatusEvent) error {
	if _, ok := r.st.orders[event.OrderID]; !ok {
		return domain.ErrOrderNotFound
	}
	r.st.events = append(r.st.events, event)
	return nil
}

// ListByOrder возвращает события в порядке добавления.
func (r statusEventRepo) ListByOrder(_ context.Context, orderID string) ([]domain.OrderStatusEvent, error) {
	var result []domain.OrderStatusEvent
	for _, e := range r.st.events {
		if e.OrderID == orderID {
			result = append(result, e)
		}
	}
	return result, nil
}

type shipmentRepo struct {
	st *state
}

func (r shipmentRepo) Upsert(_ context.Context, shipment domain.Shipment) error {
	if _, ok := r.st.orders[shipment.OrderID]; !ok {
		return domain.ErrOrderNotFound
	}
	put(r.st, r.st.shipments, shipment.OrderID, shipment)
	return nil
}

func (r shipmentRepo) GetByOrder(_ context.Context, orderID string) (domain.Shipment, error) {
	s, ok := r.st.shipments[orderID]
	if !ok {
		return domain.Shipment{}, domain.ErrShipmentNotFound
	}
	return s, nil
}

var (
	_ domain.OrderRepository       = orderRepo{}
	_ domain.PaymentRepository     = paymentRepo{}
	_ domain.StatusEventRepository = statusEventRepo{}
	_ domain.ShipmentRepository    = shipmentRepo{}
)
