package kafka

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "bakery.order.events"
	TopicInventoryEvents = "bakery.inventory.events"
	TopicRestock         = "bakery.inventory.restock"
	TopicDeadLetterQueue = "bakery.dlq"
)

// Kafka headers
const (
	HeaderEventType     = "x-event-type"
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// Envelope: формат сообщений, которые outbox публикует в Kafka.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// RestockMessage: поставка от пекарни или поставщика, увеличивающая остаток варианта.
type RestockMessage struct {
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity"`
	Reference string `json:"reference,omitempty"`
	Supplier  string `json:"supplier,omitempty"`
}

// Validate проверяет поля поставки.
func (m RestockMessage) Validate() error {
	if strings.TrimSpace(m.VariantID) == "" {
		return domain.Validationf("restock variantId is required")
	}
	if m.Quantity <= 0 {
		return domain.Validationf("restock quantity must be positive, got %d", m.Quantity)
	}
	return nil
}

// ParseRestockMessage разбирает сообщение из топика поставок.
func ParseRestockMessage(message *sarama.ConsumerMessage) (RestockMessage, error) {
	var msg RestockMessage
	if err := json.Unmarshal(message.Value, &msg); err != nil {
		return RestockMessage{}, domain.Validationf("unmarshal restock message: %v", err)
	}
	if err := msg.Validate(); err != nil {
		return RestockMessage{}, err
	}
	return msg, nil
}

// ParseEnvelope разбирает событие, опубликованное из outbox.
func ParseEnvelope(message *sarama.ConsumerMessage) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(message.Value, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	return env, nil
}

func header(message *sarama.ConsumerMessage, key string) (string, bool) {
	for _, h := range message.Headers {
		if h != nil && string(h.Key) == key {
			return string(h.Value), true
		}
	}
	return "", false
}
