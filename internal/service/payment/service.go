package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
	"github.com/vladislavdragonenkov/bakery/internal/metrics"
)

// Request: попытка оплаты заказа.
type Request struct {
	OrderID string
	Method  domain.PaymentMethod
	// Amount можно не передавать, тогда списывается сумма заказа.
	Amount         *decimal.Decimal
	ForceResult    domain.ForcedResult
	IdempotencyKey string
}

// Result: итог попытки оплаты.
type Result struct {
	Payment domain.Payment
	Order   domain.Order
	Success bool
	Message string
}

// Service проводит оплату заказа через Gateway.
type Service struct {
	store   domain.Store
	gateway Gateway
	logger  *log.Entry
	metrics *metrics.StorefrontMetrics
	now     func() time.Time
}

// NewService создаёт платёжный сервис.
func NewService(store domain.Store, gateway Gateway, logger *log.Entry, m *metrics.StorefrontMetrics) *Service {
	if logger == nil {
		logger = log.WithField("component", "payment")
	}
	if gateway == nil {
		gateway = NewSimulatedGateway(ModeDeterministic, nil)
	}
	return &Service{
		store:   store,
		gateway: gateway,
		logger:  logger,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ProcessPayment проверяет заказ, обращается к провайдеру и фиксирует результат.
// Каждая попытка, дошедшая до провайдера, оставляет ровно одну запись Payment и одно событие статуса.
func (s *Service) ProcessPayment(ctx context.Context, requester domain.Requester, req Request) (Result, error) {
	if strings.TrimSpace(req.OrderID) == "" {
		return Result{}, domain.Validationf("orderId is required")
	}
	if req.Method == "" {
		req.Method = domain.PaymentMethodCard
	}

	var (
		order  domain.Order
		amount decimal.Decimal
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		order, err = tx.Orders().Get(ctx, req.OrderID)
		if err != nil {
			return err
		}
		if !order.OwnedBy(requester) {
			return domain.ErrForbidden
		}
		amount, err = checkPayable(order, req.Amount)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	logger := s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"provider": s.gateway.Name(),
		"amount":   amount.StringFixed(2),
	})

	charge, chargeErr := s.gateway.Charge(ctx, ChargeRequest{
		OrderID:        order.ID,
		Amount:         amount,
		Currency:       order.Currency,
		Method:         req.Method,
		ForceResult:    req.ForceResult,
		IdempotencyKey: req.IdempotencyKey,
	})
	if chargeErr != nil {
		logger.WithError(chargeErr).Error("payment gateway call failed")
		charge = ChargeResult{FailureReason: chargeErr.Error()}
	}

	var result Result
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		result, err = s.record(ctx, tx, requester, req, amount, charge)
		return err
	})
	if err != nil {
		logger.WithError(err).Error("failed to record payment result")
		return Result{}, err
	}

	outcome := "captured"
	event := domain.EventPaymentCaptured
	if !result.Success {
		outcome = "failed"
		event = domain.EventPaymentFailed
	}
	s.metrics.RecordPayment(s.gateway.Name(), outcome)
	s.metrics.RecordOutboxEnqueued(event)
	logger.WithField("result", outcome).Info("payment processed")
	return result, nil
}

func checkPayable(order domain.Order, requested *decimal.Decimal) (decimal.Decimal, error) {
	switch {
	case order.Status == domain.OrderStatusCancelled || order.Status == domain.OrderStatusRefunded:
		return decimal.Zero, domain.ErrOrderNotPayable
	case order.PaymentStatus == domain.PaymentStatusCaptured || order.PaymentStatus == domain.PaymentStatusRefunded:
		return decimal.Zero, domain.ErrPaymentAlreadyCaptured
	}

	if requested == nil {
		return order.Total, nil
	}
	if !domain.AmountMatches(order.Total, *requested) {
		return decimal.Zero, fmt.Errorf("%w: expected %s, got %s",
			domain.ErrInvalidPaymentAmount, order.Total.StringFixed(2), requested.StringFixed(2))
	}
	return domain.RoundMoney(*requested), nil
}

func (s *Service) record(ctx context.Context, tx domain.Tx, requester domain.Requester, req Request, amount decimal.Decimal, charge ChargeResult) (Result, error) {
	order, err := tx.Orders().Get(ctx, req.OrderID)
	if err != nil {
		return Result{}, err
	}
	// Статус мог измениться, пока шёл запрос к провайдеру.
	if order.PaymentStatus == domain.PaymentStatusCaptured || order.PaymentStatus == domain.PaymentStatusRefunded {
		return Result{}, domain.ErrPaymentAlreadyCaptured
	}

	now := s.now()
	payment := domain.Payment{
		ID:                    uuid.NewString(),
		OrderID:               order.ID,
		Provider:              s.gateway.Name(),
		Method:                req.Method,
		Amount:                amount,
		Currency:              order.Currency,
		ExternalTransactionID: charge.TransactionID,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	from := order.Status
	var note string
	if charge.Success {
		payment.Status = domain.PaymentStatusCaptured
		order.PaymentStatus = domain.PaymentStatusCaptured
		if order.Status == domain.OrderStatusPending {
			order.Status = domain.OrderStatusConfirmed
		}
		note = fmt.Sprintf("Payment captured via %s (%s)", payment.Provider, payment.Method)
	} else {
		payment.Status = domain.PaymentStatusFailed
		payment.FailureReason = charge.FailureReason
		order.PaymentStatus = domain.PaymentStatusFailed
		note = fmt.Sprintf("Payment failed via %s: %s", payment.Provider, charge.FailureReason)
	}
	order.UpdatedAt = now

	if err := tx.Payments().Create(ctx, payment); err != nil {
		return Result{}, err
	}
	if err := tx.Orders().Save(ctx, order); err != nil {
		return Result{}, err
	}
	order.Version++

	if err := tx.StatusEvents().Append(ctx, domain.OrderStatusEvent{
		ID:         uuid.NewString(),
		OrderID:    order.ID,
		FromStatus: from,
		ToStatus:   order.Status,
		Note:       note,
		Actor:      requester.Actor(),
		CreatedAt:  now,
	}); err != nil {
		return Result{}, err
	}

	eventType := domain.EventPaymentCaptured
	if !charge.Success {
		eventType = domain.EventPaymentFailed
	}
	msg, err := domain.NewOutboxMessage(domain.AggregateOrder, order.ID, eventType, domain.PaymentProcessedEvent{
		OrderID:       order.ID,
		PaymentID:     payment.ID,
		Status:        payment.Status,
		Amount:        payment.Amount,
		Provider:      payment.Provider,
		FailureReason: payment.FailureReason,
		ProcessedAt:   now,
	})
	if err != nil {
		return Result{}, err
	}
	if _, err := tx.Outbox().Enqueue(ctx, msg); err != nil {
		return Result{}, err
	}

	message := "Payment captured"
	if !charge.Success {
		message = "Payment failed: " + charge.FailureReason
	}
	return Result{Payment: payment, Order: order, Success: charge.Success, Message: message}, nil
}
