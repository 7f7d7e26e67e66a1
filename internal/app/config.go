package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/bakery/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/bakery/internal/service/payment"
)

// Поддерживаемые хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска витрины.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string
	GinMode     string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	JWTSecret string
	JWTIssuer string

	PaymentMode     string
	StripeSecretKey string

	OrderStatusStrict bool
	DefaultCarrier    string

	KafkaBrokers        []string
	KafkaClientID       string
	KafkaOrderTopic     string
	KafkaInventoryTopic string
	KafkaRestockTopic   string
	KafkaDLQTopic       string
	KafkaConsumerGroup  string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	CartIdleTTL    time.Duration
	SweepInterval  time.Duration
	SweepBatchSize int

	SeedDemoData bool

	ConsulAddr  string
	ServiceName string

	ShutdownTimeout time.Duration
}

// DefaultConfig возвращает настройки для локального запуска на in-memory хранилище.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",
		GinMode:     "release",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		JWTIssuer: "bakery",

		PaymentMode: string(payment.ModeDeterministic),

		OrderStatusStrict: true,
		DefaultCarrier:    "bakery-courier",

		KafkaClientID:       "bakery-storefront",
		KafkaOrderTopic:     kafka.TopicOrderEvents,
		KafkaInventoryTopic: kafka.TopicInventoryEvents,
		KafkaRestockTopic:   kafka.TopicRestock,
		KafkaDLQTopic:       kafka.TopicDeadLetterQueue,
		KafkaConsumerGroup:  "bakery-restock",

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  5,
		OutboxRetryDelay:   200 * time.Millisecond,

		CartIdleTTL:    72 * time.Hour,
		SweepInterval:  10 * time.Minute,
		SweepBatchSize: 500,

		SeedDemoData: true,

		ServiceName: "bakery-storefront",

		ShutdownTimeout: 5 * time.Second,
	}
}

// Validate проверяет сочетания настроек, которые нельзя исправить значением по умолчанию.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return fmt.Errorf("POSTGRES_DSN is required for storage driver %q", StorageDriverPostgres)
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.StorageDriver)
	}
	if _, err := payment.ParseMode(c.PaymentMode); err != nil {
		return err
	}
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return fmt.Errorf("HTTP_ADDR must not be empty")
	}
	return nil
}

// KafkaEnabled сообщает, что заданы брокеры.
func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}
