package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StorefrontMetrics содержит бизнес-метрики витрины.
// Все методы безопасны для nil-получателя: сервисы в тестах создаются без метрик.
type StorefrontMetrics struct {
	// Checkout
	checkoutStarted   prometheus.Counter
	checkoutCompleted prometheus.Counter
	checkoutFailed    *prometheus.CounterVec
	checkoutDuration  prometheus.Histogram
	activeCheckouts   prometheus.Gauge

	// Платежи и статусы
	payments         *prometheus.CounterVec
	orderTransitions *prometheus.CounterVec

	// Корзина и склад
	cartOperations       *prometheus.CounterVec
	inventoryAdjustments *prometheus.CounterVec
	lowStockWarnings     *prometheus.CounterVec
	outboxEnqueued       *prometheus.CounterVec
}

// NewStorefrontMetrics создаёт метрики в глобальном реестре Prometheus.
func NewStorefrontMetrics() *StorefrontMetrics {
	return NewStorefrontMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewStorefrontMetricsWithRegisterer позволяет использовать изолированный реестр (тесты).
func NewStorefrontMetricsWithRegisterer(registerer prometheus.Registerer) *StorefrontMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &StorefrontMetrics{
		checkoutStarted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bakery_checkout_started_total",
			Help: "Total number of checkout attempts",
		}),
		checkoutCompleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bakery_checkout_completed_total",
			Help: "Total number of carts converted into orders",
		}),
		checkoutFailed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bakery_checkout_failed_total",
			Help: "Total number of failed checkouts grouped by reason",
		}, []string{"reason"}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "bakery_checkout_duration_seconds",
			Help:    "Duration of checkout transactions in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}),
		activeCheckouts: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "bakery_active_checkouts",
			Help: "Number of checkouts currently in flight",
		}),
		payments: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bakery_payments_total",
			Help: "Total number of payment attempts grouped by provider and result",
		}, []string{"provider", "result"}),
		orderTransitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bakery_order_status_transitions_total",
			Help: "Total number of order status transitions",
		}, []string{"from", "to"}),
		cartOperations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bakery_cart_operations_total",
			Help: "Total number of cart mutations grouped by operation and result",
		}, []string{"operation", "result"}),
		inventoryAdjustments: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bakery_inventory_adjustments_total",
			Help: "Total number of inventory ledger entries grouped by reason",
		}, []string{"reason"}),
		lowStockWarnings: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bakery_inventory_low_stock_total",
			Help: "Number of times a variant dropped to its low stock threshold",
		}, []string{"variant_id"}),
		outboxEnqueued: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bakery_outbox_enqueued_total",
			Help: "Total number of outbox messages written by business transactions",
		}, []string{"event_type"}),
	}
}

// RecordCheckoutStarted увеличивает счётчик попыток оформления.
func (m *StorefrontMetrics) RecordCheckoutStarted() {
	if m == nil {
		return
	}
	m.checkoutStarted.Inc()
	m.activeCheckouts.Inc()
}

// RecordCheckoutFinished фиксирует результат оформления и его длительность.
// Пустой reason означает успех.
func (m *StorefrontMetrics) RecordCheckoutFinished(reason string, duration time.Duration) {
	if m == nil {
		return
	}
	m.activeCheckouts.Dec()
	m.checkoutDuration.Observe(duration.Seconds())
	if reason == "" {
		m.checkoutCompleted.Inc()
		return
	}
	m.checkoutFailed.WithLabelValues(reason).Inc()
}

// RecordPayment считает попытку оплаты.
func (m *StorefrontMetrics) RecordPayment(provider, result string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(provider, result).Inc()
}

// RecordOrderTransition считает переход статуса заказа.
func (m *StorefrontMetrics) RecordOrderTransition(from, to string) {
	if m == nil {
		return
	}
	m.orderTransitions.WithLabelValues(from, to).Inc()
}

// RecordCartOperation считает изменение корзины.
func (m *StorefrontMetrics) RecordCartOperation(operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.cartOperations.WithLabelValues(operation, result).Inc()
}

// RecordInventoryAdjustment считает запись складского журнала.
func (m *StorefrontMetrics) RecordInventoryAdjustment(reason string) {
	if m == nil {
		return
	}
	m.inventoryAdjustments.WithLabelValues(reason).Inc()
}

// RecordLowStock считает предупреждение о низком остатке.
func (m *StorefrontMetrics) RecordLowStock(variantID string) {
	if m == nil {
		return
	}
	m.lowStockWarnings.WithLabelValues(variantID).Inc()
}

// RecordOutboxEnqueued считает сообщение, записанное в outbox.
func (m *StorefrontMetrics) RecordOutboxEnqueued(eventType string) {
	if m == nil {
		return
	}
	m.outboxEnqueued.WithLabelValues(eventType).Inc()
}
