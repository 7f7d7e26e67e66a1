package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/app"
)

const (
	envHTTPAddr            = "HTTP_ADDR"
	envGRPCAddr            = "GRPC_ADDR"
	envMetricsAddr         = "METRICS_ADDR"
	envGinMode             = "GIN_MODE"
	envStorageDriver       = "STORAGE_DRIVER"
	envPostgresDSN         = "POSTGRES_DSN"
	envPostgresAutoMigrate = "POSTGRES_AUTO_MIGRATE"
	envJWTSecret           = "JWT_SECRET"
	envJWTIssuer           = "JWT_ISSUER"
	envPaymentMode         = "PAYMENT_MODE"
	envStripeSecretKey     = "STRIPE_SECRET_KEY"
	envOrderStatusStrict   = "ORDER_STATUS_STRICT"
	envDefaultCarrier      = "DEFAULT_CARRIER"
	envKafkaBrokers        = "KAFKA_BROKERS"
	envKafkaOrderTopic     = "KAFKA_ORDER_TOPIC"
	envKafkaInventoryTopic = "KAFKA_INVENTORY_TOPIC"
	envKafkaRestockTopic   = "KAFKA_RESTOCK_TOPIC"
	envKafkaDLQTopic       = "KAFKA_DLQ_TOPIC"
	envKafkaConsumerGroup  = "KAFKA_CONSUMER_GROUP"
	envOutboxPollInterval  = "OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize     = "OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts   = "OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay    = "OUTBOX_RETRY_DELAY"
	envCartIdleTTL         = "CART_IDLE_TTL"
	envSweepInterval       = "SWEEP_INTERVAL"
	envSweepBatchSize      = "SWEEP_BATCH_SIZE"
	envSeedDemoData        = "SEED_DEMO_DATA"
	envConsulAddr          = "CONSUL_ADDR"
	envServiceName         = "SERVICE_NAME"
	envShutdownTimeout     = "SHUTDOWN_TIMEOUT"
	envLogLevel            = "LOG_LEVEL"
)

type envLookup func(string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(lookup envLookup) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)
	if raw, ok := lookup(envLogLevel); ok && strings.TrimSpace(raw) != "" {
		level, err := log.ParseLevel(strings.TrimSpace(raw))
		if err != nil {
			log.WithError(err).Warnf("invalid %s, using info", envLogLevel)
			return
		}
		log.SetLevel(level)
	}
}

// readConfigFromEnv накладывает переменные окружения на app.DefaultConfig.
// Некорректные значения не прерывают запуск: остаётся значение по умолчанию и пишется предупреждение.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string
	warn := func(key string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s: %v, using default", key, err))
	}

	str := func(key string, dst *string) {
		if raw, ok := lookup(key); ok && strings.TrimSpace(raw) != "" {
			*dst = strings.TrimSpace(raw)
		}
	}
	boolean := func(key string, dst *bool) {
		raw, ok := lookup(key)
		if !ok || strings.TrimSpace(raw) == "" {
			return
		}
		v, err := parseBool(raw)
		if err != nil {
			warn(key, err)
			return
		}
		*dst = v
	}
	positiveInt := func(key string, dst *int) {
		raw, ok := lookup(key)
		if !ok || strings.TrimSpace(raw) == "" {
			return
		}
		v, err := parseInt(raw, func(v int) bool { return v > 0 }, "must be > 0")
		if err != nil {
			warn(key, err)
			return
		}
		*dst = v
	}
	duration := func(key string, dst *time.Duration, allowZero bool) {
		raw, ok := lookup(key)
		if !ok || strings.TrimSpace(raw) == "" {
			return
		}
		validate, msg := func(v time.Duration) bool { return v > 0 }, "must be > 0"
		if allowZero {
			validate, msg = func(v time.Duration) bool { return v >= 0 }, "must be >= 0"
		}
		v, err := parseDuration(raw, validate, msg)
		if err != nil {
			warn(key, err)
			return
		}
		*dst = v
	}

	str(envHTTPAddr, &cfg.HTTPAddr)
	str(envGRPCAddr, &cfg.GRPCAddr)
	str(envMetricsAddr, &cfg.MetricsAddr)
	str(envGinMode, &cfg.GinMode)

	str(envStorageDriver, &cfg.StorageDriver)
	cfg.StorageDriver = strings.ToLower(cfg.StorageDriver)
	str(envPostgresDSN, &cfg.PostgresDSN)
	boolean(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)

	str(envJWTSecret, &cfg.JWTSecret)
	str(envJWTIssuer, &cfg.JWTIssuer)
	str(envPaymentMode, &cfg.PaymentMode)
	str(envStripeSecretKey, &cfg.StripeSecretKey)
	boolean(envOrderStatusStrict, &cfg.OrderStatusStrict)
	str(envDefaultCarrier, &cfg.DefaultCarrier)

	if raw, ok := lookup(envKafkaBrokers); ok {
		cfg.KafkaBrokers = splitList(raw)
	}
	str(envKafkaOrderTopic, &cfg.KafkaOrderTopic)
	str(envKafkaInventoryTopic, &cfg.KafkaInventoryTopic)
	str(envKafkaRestockTopic, &cfg.KafkaRestockTopic)
	str(envKafkaDLQTopic, &cfg.KafkaDLQTopic)
	str(envKafkaConsumerGroup, &cfg.KafkaConsumerGroup)

	duration(envOutboxPollInterval, &cfg.OutboxPollInterval, false)
	positiveInt(envOutboxBatchSize, &cfg.OutboxBatchSize)
	positiveInt(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts)
	duration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, true)

	duration(envCartIdleTTL, &cfg.CartIdleTTL, false)
	duration(envSweepInterval, &cfg.SweepInterval, false)
	positiveInt(envSweepBatchSize, &cfg.SweepBatchSize)
	boolean(envSeedDemoData, &cfg.SeedDemoData)

	str(envConsulAddr, &cfg.ConsulAddr)
	str(envServiceName, &cfg.ServiceName)
	duration(envShutdownTimeout, &cfg.ShutdownTimeout, false)

	return cfg, warnings
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "y", "yes", "on":
		return true, nil
	case "0", "f", "false", "n", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool %q", raw)
	}
}

func parseInt(raw string, validate func(int) bool, msg string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int %q: %w", raw, err)
	}
	if validate != nil && !validate(value) {
		return 0, fmt.Errorf("invalid int %d: %s", value, msg)
	}
	return value, nil
}

func parseDuration(raw string, validate func(time.Duration) bool, msg string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if validate != nil && !validate(value) {
		return 0, fmt.Errorf("invalid duration %s: %s", value, msg)
	}
	return value, nil
}

func main() {
	// .env необязателен; переменные окружения процесса имеют приоритет.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("failed to load .env")
	}

	setupLogger(os.LookupEnv)
	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, w := range warnings {
		log.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr":      cfg.HTTPAddr,
		"grpc_addr":      cfg.GRPCAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"kafka_enabled":  cfg.KafkaEnabled(),
	}).Info("запускаем витрину пекарни")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("витрина остановлена")
}
