package app

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/bakery/internal/metrics"
)

// initKafkaProducer создаёт producer, если заданы брокеры. Без брокеров возвращает nil, nil.
func initKafkaProducer(brokers []string, clientID string, logger *log.Entry) (*kafka.Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers, clientID)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// startRestockConsumer подписывается на топик поставок. Ошибки обработки
// после всех попыток уходят в DLQ через producer.
func startRestockConsumer(ctx context.Context, cfg Config, ledger kafka.Adjuster, producer *kafka.Producer, m *metrics.WorkerMetrics, logger *log.Entry) (*kafka.Consumer, error) {
	consumerLogger := logger.WithField("component", "restock-consumer")
	consumer, err := kafka.NewConsumer(
		cfg.KafkaBrokers,
		cfg.KafkaConsumerGroup,
		[]string{cfg.KafkaRestockTopic},
		kafka.NewRestockHandler(ledger, consumerLogger),
		kafka.ConsumerOptions{
			Logger:      consumerLogger,
			Metrics:     m,
			DLQProducer: producer,
			DLQTopic:    cfg.KafkaDLQTopic,
		},
	)
	if err != nil {
		return nil, err
	}
	if err := consumer.Start(ctx); err != nil {
		_ = consumer.Stop()
		return nil, err
	}
	return consumer, nil
}

// closeKafkaProducer закрывает producer, если он был создан.
func closeKafkaProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}

// stopConsumer останавливает consumer, если он был запущен.
func stopConsumer(consumer *kafka.Consumer, logger *log.Entry) {
	if consumer == nil {
		return
	}
	if err := consumer.Stop(); err != nil {
		logger.WithError(err).Warn("failed to stop kafka consumer")
	}
}
