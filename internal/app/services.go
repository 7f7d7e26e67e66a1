package app

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
	"github.com/vladislavdragonenkov/bakery/internal/metrics"
	"github.com/vladislavdragonenkov/bakery/internal/service/assistant"
	"github.com/vladislavdragonenkov/bakery/internal/service/cart"
	"github.com/vladislavdragonenkov/bakery/internal/service/catalog"
	"github.com/vladislavdragonenkov/bakery/internal/service/checkout"
	"github.com/vladislavdragonenkov/bakery/internal/service/inventory"
	"github.com/vladislavdragonenkov/bakery/internal/service/orderstatus"
	"github.com/vladislavdragonenkov/bakery/internal/service/payment"
)

// services: прикладной слой витрины поверх одного хранилища.
type services struct {
	ledger    *inventory.Ledger
	catalog   *catalog.Service
	carts     *cart.Service
	checkout  *checkout.Service
	payments  *payment.Service
	orders    *orderstatus.Service
	assistant *assistant.Bridge
}

func newServices(cfg Config, store domain.Store, m *metrics.StorefrontMetrics, logger *log.Entry) (*services, error) {
	gateway, err := newPaymentGateway(cfg, logger.WithField("layer", "payment-gateway"))
	if err != nil {
		return nil, err
	}
	logger.WithField("provider", gateway.Name()).Info("payment gateway selected")

	layer := func(name string) *log.Entry { return logger.WithField("layer", name) }

	ledger := inventory.NewLedger(store, layer("inventory"), m)
	catalogSvc := catalog.NewService(store, ledger, layer("catalog"))
	carts := cart.NewService(store, layer("cart"), m)
	orders := orderstatus.NewService(store, orderstatus.Options{
		Strict:         cfg.OrderStatusStrict,
		DefaultCarrier: cfg.DefaultCarrier,
	}, layer("orders"), m)

	return &services{
		ledger:    ledger,
		catalog:   catalogSvc,
		carts:     carts,
		checkout:  checkout.NewService(store, ledger, layer("checkout"), m),
		payments:  payment.NewService(store, gateway, layer("payment"), m),
		orders:    orders,
		assistant: assistant.NewBridge(catalogSvc, carts, orders, layer("assistant")),
	}, nil
}

// newPaymentGateway выбирает Stripe при заданном ключе, иначе симулятор.
// Вызовы Stripe идут через повторы и circuit breaker.
func newPaymentGateway(cfg Config, logger *log.Entry) (payment.Gateway, error) {
	if cfg.StripeSecretKey != "" {
		stripeGateway := payment.NewStripeGateway(cfg.StripeSecretKey)
		breaker := payment.NewCircuitBreaker(5, 30*time.Second, logger)
		return payment.NewResilientGateway(stripeGateway, payment.DefaultRetryConfig(), breaker, logger), nil
	}
	mode, err := payment.ParseMode(cfg.PaymentMode)
	if err != nil {
		return nil, err
	}
	return payment.NewSimulatedGateway(mode, nil), nil
}
