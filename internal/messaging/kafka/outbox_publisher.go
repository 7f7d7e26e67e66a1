package kafka

import (
	"errors"
	"time"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

var errPublisherNotInitialized = errors.New("kafka outbox publisher is not initialized")

// OutboxTopicPublisher публикует события outbox: заказы и склад в разные топики.
type OutboxTopicPublisher struct {
	producer       *Producer
	orderTopic     string
	inventoryTopic string
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer, orderTopic, inventoryTopic string) *OutboxTopicPublisher {
	if orderTopic == "" {
		orderTopic = TopicOrderEvents
	}
	if inventoryTopic == "" {
		inventoryTopic = TopicInventoryEvents
	}
	return &OutboxTopicPublisher{
		producer:       producer,
		orderTopic:     orderTopic,
		inventoryTopic: inventoryTopic,
	}
}

// TopicFor возвращает топик для типа агрегата.
func (p *OutboxTopicPublisher) TopicFor(aggregateType string) string {
	if aggregateType == domain.AggregateInventory {
		return p.inventoryTopic
	}
	return p.orderTopic
}

// Publish отправляет событие с ключом по агрегату, чтобы сохранить порядок внутри заказа.
func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errPublisherNotInitialized
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	return p.producer.PublishEventWithHeaders(p.TopicFor(event.AggregateType), key, Envelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       event.Payload,
		PublishedAt:   time.Now().UTC(),
	}, map[string]string{HeaderEventType: event.EventType})
}

// DLQPublisher пересылает уже упакованные DeadLetter-сообщения в топик DLQ.
type DLQPublisher struct {
	producer *Producer
	topic    string
}

// NewDLQPublisher создаёт паблишер DLQ.
func NewDLQPublisher(producer *Producer, topic string) *DLQPublisher {
	if topic == "" {
		topic = TopicDeadLetterQueue
	}
	return &DLQPublisher{producer: producer, topic: topic}
}

// Publish отправляет payload как есть: outbox worker уже сформировал конверт.
func (p *DLQPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errPublisherNotInitialized
	}
	key := event.AggregateID
	if key == "" {
		key = event.ID
	}
	return p.producer.Send(p.topic, key, event.Payload, map[string]string{
		HeaderEventType:     event.EventType,
		HeaderOriginalTopic: "outbox",
		HeaderFailedAt:      time.Now().UTC().Format(time.RFC3339),
	})
}

var (
	_ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
	_ domain.OutboxPublisher = (*DLQPublisher)(nil)
)
