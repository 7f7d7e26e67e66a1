package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// WorkerMetrics: метрики фоновых процессов: outbox, sweeper и Kafka-консьюмера.
type WorkerMetrics struct {
	outboxPublishAttempts  *prometheus.CounterVec
	outboxPendingRecords   prometheus.Gauge
	outboxOldestPendingAge prometheus.Gauge

	sweeperRuns    *prometheus.CounterVec
	sweeperRemoved *prometheus.CounterVec

	consumedMessages *prometheus.CounterVec
}

// NewWorkerMetrics регистрирует метрики воркеров.
func NewWorkerMetrics(registerer prometheus.Registerer) *WorkerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &WorkerMetrics{
		outboxPublishAttempts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bakery_outbox_publish_attempts_total",
			Help: "Total number of outbox publish attempts grouped by result.",
		}, []string{"result"}),
		outboxPendingRecords: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "bakery_outbox_pending_records",
			Help: "Current number of pending records in transactional outbox.",
		}),
		outboxOldestPendingAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "bakery_outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending outbox record.",
		}),
		sweeperRuns: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bakery_sweeper_runs_total",
			Help: "Total number of sweeper passes grouped by task and result.",
		}, []string{"task", "result"}),
		sweeperRemoved: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bakery_sweeper_affected_total",
			Help: "Total number of records cleaned up by the sweeper grouped by task.",
		}, []string{"task"}),
		consumedMessages: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bakery_kafka_consumed_total",
			Help: "Total number of consumed Kafka messages grouped by topic and result.",
		}, []string{"topic", "result"}),
	}
}

// RecordOutboxPublish учитывает попытку публикации: sent, retry_error, failed, dlq_failed.
func (m *WorkerMetrics) RecordOutboxPublish(result string) {
	if m == nil {
		return
	}
	m.outboxPublishAttempts.WithLabelValues(result).Inc()
}

// SetOutboxBacklog обновляет размер и возраст очереди outbox.
func (m *WorkerMetrics) SetOutboxBacklog(pending int, oldestAgeSeconds float64) {
	if m == nil {
		return
	}
	if oldestAgeSeconds < 0 {
		oldestAgeSeconds = 0
	}
	m.outboxPendingRecords.Set(float64(pending))
	m.outboxOldestPendingAge.Set(oldestAgeSeconds)
}

// RecordSweep фиксирует проход sweeper по задаче.
func (m *WorkerMetrics) RecordSweep(task string, affected int, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.sweeperRuns.WithLabelValues(task, result).Inc()
	if affected > 0 {
		m.sweeperRemoved.WithLabelValues(task).Add(float64(affected))
	}
}

// RecordConsumed учитывает обработанное сообщение Kafka: processed, retried, dlq, skipped.
func (m *WorkerMetrics) RecordConsumed(topic, result string) {
	if m == nil {
		return
	}
	m.consumedMessages.WithLabelValues(topic, result).Inc()
}
