package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
	"github.com/vladislavdragonenkov/bakery/internal/metrics"
)

const (
	defaultMaxRetries = 3
	defaultRetryDelay = 200 * time.Millisecond
)

// MessageHandler обрабатывает сообщение из Kafka.
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

// ConsumerOptions задаёт параметры consumer.
type ConsumerOptions struct {
	Logger      *log.Entry
	Metrics     *metrics.WorkerMetrics
	DLQProducer *Producer
	DLQTopic    string
	MaxRetries  int
	RetryDelay  time.Duration
}

// Consumer читает топики в consumer group, повторяет временные ошибки и отправляет
// необработанные сообщения в DLQ.
type Consumer struct {
	consumer    sarama.ConsumerGroup
	topics      []string
	handler     MessageHandler
	logger      *log.Entry
	metrics     *metrics.WorkerMetrics
	wg          sync.WaitGroup
	dlqProducer *Producer
	dlqTopic    string
	maxRetries  int
	retryDelay  time.Duration
}

// NewConsumer создаёт consumer group.
func NewConsumer(brokers []string, groupID string, topics []string, handler MessageHandler, opts ConsumerOptions) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	return newConsumer(group, topics, handler, opts), nil
}

func newConsumer(group sarama.ConsumerGroup, topics []string, handler MessageHandler, opts ConsumerOptions) *Consumer {
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "kafka-consumer")
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	if opts.DLQTopic == "" {
		opts.DLQTopic = TopicDeadLetterQueue
	}
	return &Consumer{
		consumer:    group,
		topics:      topics,
		handler:     handler,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		dlqProducer: opts.DLQProducer,
		dlqTopic:    opts.DLQTopic,
		maxRetries:  opts.MaxRetries,
		retryDelay:  opts.RetryDelay,
	}
}

// Start запускает чтение в фоне до отмены ctx.
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			// Consume возвращается при каждом rebalance.
			if err := c.consumer.Consume(ctx, c.topics, c); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.WithError(err).Error("error from consumer")
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range c.consumer.Errors() {
			c.logger.WithError(err).Error("consumer error")
		}
	}()

	c.logger.WithField("topics", c.topics).Info("kafka consumer started")
	return nil
}

// Stop закрывает consumer group и ждёт фоновые горутины.
func (c *Consumer) Stop() error {
	if err := c.consumer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka consumer: %w", err)
	}
	c.wg.Wait()
	c.logger.Info("kafka consumer stopped")
	return nil
}

// Setup вызывается при старте сессии.
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup вызывается при завершении сессии.
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim обрабатывает сообщения партиции. Сообщение отмечается, если оно
// обработано или ушло в DLQ; иначе будет прочитано заново после rebalance.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			logger := c.logger.WithFields(log.Fields{
				"topic":     message.Topic,
				"partition": message.Partition,
				"offset":    message.Offset,
			})
			logger.Debug("received message")

			if err := c.handleMessageWithRetry(session.Context(), message); err != nil {
				logger.WithError(err).Error("message processing failed after all retries")
				continue
			}
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

// handleMessageWithRetry повторяет обработку до maxRetries с линейно растущей паузой.
// Ошибки валидации не повторяются. Исчерпав попытки, отправляет сообщение в DLQ.
func (c *Consumer) handleMessageWithRetry(ctx context.Context, message *sarama.ConsumerMessage) error {
	attempts := c.getRetryCount(message)
	var err error
	for attempts < c.maxRetries {
		attempts++
		err = c.handler(ctx, message)
		if err == nil {
			c.metrics.RecordConsumed(message.Topic, "processed")
			return nil
		}
		if errors.Is(err, domain.ErrValidation) || ctx.Err() != nil {
			break
		}
		if attempts < c.maxRetries {
			c.metrics.RecordConsumed(message.Topic, "retried")
			c.logger.WithError(err).WithFields(log.Fields{
				"topic":       message.Topic,
				"attempt":     attempts,
				"max_retries": c.maxRetries,
			}).Warn("message processing failed, will retry")
			if waitErr := c.wait(ctx, attempts); waitErr != nil {
				return waitErr
			}
		}
	}
	if err == nil {
		err = errors.New("retry budget exhausted before processing")
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if c.dlqProducer == nil {
		return err
	}
	if dlqErr := c.sendToDLQ(message, err, attempts); dlqErr != nil {
		c.logger.WithError(dlqErr).Error("failed to send message to DLQ")
		return fmt.Errorf("failed to send to DLQ: %w", dlqErr)
	}
	c.metrics.RecordConsumed(message.Topic, "dlq")
	c.logger.WithFields(log.Fields{
		"topic":    message.Topic,
		"attempts": attempts,
	}).Warn("message sent to DLQ")
	return nil
}

func (c *Consumer) wait(ctx context.Context, attempt int) error {
	if c.retryDelay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Duration(attempt) * c.retryDelay):
		return nil
	}
}

// getRetryCount читает число уже сделанных попыток из заголовка (для сообщений, переигранных из DLQ).
func (c *Consumer) getRetryCount(message *sarama.ConsumerMessage) int {
	raw, ok := header(message, HeaderRetryCount)
	if !ok {
		return 0
	}
	count, err := strconv.Atoi(raw)
	if err != nil || count < 0 {
		return 0
	}
	return count
}

func (c *Consumer) sendToDLQ(message *sarama.ConsumerMessage, processingErr error, attempts int) error {
	payload := json.RawMessage(message.Value)
	if !json.Valid(message.Value) {
		quoted, _ := json.Marshal(string(message.Value))
		payload = quoted
	}
	eventType, _ := header(message, HeaderEventType)

	return c.dlqProducer.PublishEventWithHeaders(c.dlqTopic, string(message.Key), domain.DeadLetter{
		SourceID:  fmt.Sprintf("%s/%d/%d", message.Topic, message.Partition, message.Offset),
		Source:    message.Topic,
		EventType: eventType,
		Payload:   payload,
		Error:     processingErr.Error(),
		Attempts:  attempts,
		FailedAt:  time.Now().UTC(),
	}, map[string]string{
		HeaderOriginalTopic: message.Topic,
		HeaderErrorMessage:  processingErr.Error(),
		HeaderRetryCount:    strconv.Itoa(attempts),
		HeaderFailedAt:      time.Now().UTC().Format(time.RFC3339),
	})
}
