package orderstatus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
	"github.com/vladislavdragonenkov/bakery/internal/metrics"
)

const (
	defaultListLimit   = 50
	maxConflictRetries = 3
	conflictBaseDelay  = 10 * time.Millisecond
)

// Details: заказ вместе с историей статусов, платежами и доставкой.
type Details struct {
	Order    domain.Order              `json:"order"`
	Events   []domain.OrderStatusEvent `json:"events"`
	Payments []domain.Payment          `json:"payments"`
	Shipment *domain.Shipment          `json:"shipment,omitempty"`
}

// Options настраивает машину статусов.
type Options struct {
	// Strict включает проверку таблицы переходов. При false принимается любой переход.
	Strict bool
	// DefaultCarrier записывается в Shipment, когда заказ уходит в доставку.
	DefaultCarrier string
}

// Service ведёт заказы по статусам и хранит журнал переходов.
type Service struct {
	store   domain.Store
	opts    Options
	logger  *log.Entry
	metrics *metrics.StorefrontMetrics
	now     func() time.Time
}

// NewService создаёт сервис статусов заказа.
func NewService(store domain.Store, opts Options, logger *log.Entry, m *metrics.StorefrontMetrics) *Service {
	if logger == nil {
		logger = log.WithField("component", "order-status")
	}
	if opts.DefaultCarrier == "" {
		opts.DefaultCarrier = "bakery-courier"
	}
	return &Service{
		store:   store,
		opts:    opts,
		logger:  logger,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// UpdateStatus переводит заказ в новый статус. Доступно только администратору.
func (s *Service) UpdateStatus(ctx context.Context, requester domain.Requester, orderID string, next domain.OrderStatus, note string) (domain.Order, error) {
	if !requester.IsAdmin() {
		return domain.Order{}, domain.ErrForbidden
	}
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, domain.Validationf("orderId is required")
	}
	if !next.Valid() {
		return domain.Order{}, domain.Validationf("unknown order status %q", next)
	}

	var (
		order domain.Order
		from  domain.OrderStatus
	)
	err := s.retryOnConflict(ctx, orderID, func() error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
			var err error
			order, err = tx.Orders().Get(ctx, orderID)
			if err != nil {
				return err
			}
			from = order.Status
			if s.opts.Strict && !domain.CanTransition(from, next, order.PaymentStatus) {
				return fmt.Errorf("%w: %s -> %s", domain.ErrIllegalTransition, from, next)
			}

			now := s.now()
			order.Status = next
			order.UpdatedAt = now
			if err := s.applySideEffects(ctx, tx, &order, now); err != nil {
				return err
			}

			if err := tx.Orders().Save(ctx, order); err != nil {
				return err
			}
			order.Version++

			event := domain.OrderStatusEvent{
				ID:         uuid.NewString(),
				OrderID:    order.ID,
				FromStatus: from,
				ToStatus:   next,
				Note:       strings.TrimSpace(note),
				Actor:      requester.Actor(),
				CreatedAt:  now,
			}
			if err := tx.StatusEvents().Append(ctx, event); err != nil {
				return err
			}

			msg, err := domain.NewOutboxMessage(domain.AggregateOrder, order.ID, domain.EventOrderStatusChanged, domain.OrderStatusChangedEvent{
				OrderID:    order.ID,
				FromStatus: from,
				ToStatus:   next,
				Note:       event.Note,
				Actor:      event.Actor,
				ChangedAt:  now,
			})
			if err != nil {
				return err
			}
			_, err = tx.Outbox().Enqueue(ctx, msg)
			return err
		})
	})

	logger := s.logger.WithFields(log.Fields{
		"order_id": orderID,
		"to":       next,
		"actor":    requester.Actor(),
	})
	if err != nil {
		logger.WithError(err).Warn("order status update rejected")
		return domain.Order{}, err
	}

	s.metrics.RecordOrderTransition(string(from), string(next))
	s.metrics.RecordOutboxEnqueued(domain.EventOrderStatusChanged)
	logger.WithField("from", from).Info("order status updated")
	return order, nil
}

// retryOnConflict повторяет транзакцию, если заказ успели изменить параллельно.
// Каждая попытка перечитывает заказ и заново проверяет переход.
func (s *Service) retryOnConflict(ctx context.Context, orderID string, fn func() error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = fn()
		if !domain.IsVersionConflict(err) || attempt == maxConflictRetries-1 {
			return err
		}
		s.logger.WithFields(log.Fields{
			"order_id": orderID,
			"attempt":  attempt + 1,
		}).Warn("version conflict detected, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(conflictBaseDelay * time.Duration(1<<attempt)):
		}
	}
	return err
}

func (s *Service) applySideEffects(ctx context.Context, tx domain.Tx, order *domain.Order, now time.Time) error {
	switch order.Status {
	case domain.OrderStatusOutForDelivery:
		order.ShipmentStatus = domain.ShipmentStatusShipped
		shipment, err := s.shipmentFor(ctx, tx, order.ID, now)
		if err != nil {
			return err
		}
		shipment.Status = domain.ShipmentStatusShipped
		if shipment.ShippedAt == nil {
			shipment.ShippedAt = &now
		}
		shipment.UpdatedAt = now
		return tx.Shipments().Upsert(ctx, shipment)

	case domain.OrderStatusDelivered:
		order.ShipmentStatus = domain.ShipmentStatusDelivered
		shipment, err := s.shipmentFor(ctx, tx, order.ID, now)
		if err != nil {
			return err
		}
		shipment.Status = domain.ShipmentStatusDelivered
		if shipment.ShippedAt == nil {
			shipment.ShippedAt = &now
		}
		shipment.DeliveredAt = &now
		shipment.UpdatedAt = now
		return tx.Shipments().Upsert(ctx, shipment)

	case domain.OrderStatusRefunded:
		if order.PaymentStatus == domain.PaymentStatusCaptured {
			order.PaymentStatus = domain.PaymentStatusRefunded
		}
	}
	return nil
}

func (s *Service) shipmentFor(ctx context.Context, tx domain.Tx, orderID string, now time.Time) (domain.Shipment, error) {
	shipment, err := tx.Shipments().GetByOrder(ctx, orderID)
	if err == nil {
		return shipment, nil
	}
	if !errors.Is(err, domain.ErrShipmentNotFound) {
		return domain.Shipment{}, err
	}
	return domain.Shipment{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		Carrier:   s.opts.DefaultCarrier,
		Status:    domain.ShipmentStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Get возвращает заказ с историей, если он принадлежит запрашивающему.
func (s *Service) Get(ctx context.Context, requester domain.Requester, orderID string) (Details, error) {
	var details Details
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		order, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.OwnedBy(requester) {
			return domain.ErrForbidden
		}
		details, err = loadDetails(ctx, tx, order)
		return err
	})
	return details, err
}

// Events возвращает журнал переходов заказа в порядке записи.
func (s *Service) Events(ctx context.Context, requester domain.Requester, orderID string) ([]domain.OrderStatusEvent, error) {
	details, err := s.Get(ctx, requester, orderID)
	if err != nil {
		return nil, err
	}
	return details.Events, nil
}

// ListForRequester возвращает заказы вошедшего пользователя, новые первыми.
func (s *Service) ListForRequester(ctx context.Context, requester domain.Requester, limit int) ([]domain.Order, error) {
	if !requester.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	var orders []domain.Order
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		orders, err = tx.Orders().ListByUser(ctx, requester.UserID, normalizeLimit(limit))
		return err
	})
	return orders, err
}

// ListAll возвращает все заказы. Только для администратора.
func (s *Service) ListAll(ctx context.Context, requester domain.Requester, limit int) ([]domain.Order, error) {
	if !requester.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	var orders []domain.Order
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		orders, err = tx.Orders().List(ctx, normalizeLimit(limit))
		return err
	})
	return orders, err
}

func loadDetails(ctx context.Context, tx domain.Tx, order domain.Order) (Details, error) {
	events, err := tx.StatusEvents().ListByOrder(ctx, order.ID)
	if err != nil {
		return Details{}, err
	}
	payments, err := tx.Payments().ListByOrder(ctx, order.ID)
	if err != nil {
		return Details{}, err
	}
	details := Details{Order: order, Events: events, Payments: payments}

	shipment, err := tx.Shipments().GetByOrder(ctx, order.ID)
	switch {
	case err == nil:
		details.Shipment = &shipment
	case !errors.Is(err, domain.ErrShipmentNotFound):
		return Details{}, err
	}
	return details, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 200 {
		return defaultListLimit
	}
	return limit
}
