package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
	"github.com/vladislavdragonenkov/bakery/internal/messaging/kafka"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
	outboxSource       = "outbox"
)

type config struct {
	brokers        []string
	dlqTopic       string
	orderTopic     string
	inventoryTopic string
	source         string
	limit          int
	execute        bool
	fromNewest     bool
	idleTimeout    time.Duration
}

type replayMessage struct {
	topic     string
	key       string
	value     []byte
	eventType string
}

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionConsumerSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

type saramaConsumerAdapter struct {
	consumer sarama.Consumer
}

func (a saramaConsumerAdapter) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	return a.consumer.ConsumePartition(topic, partition, offset)
}

func (a saramaConsumerAdapter) Close() error {
	if a.consumer == nil {
		return nil
	}
	return a.consumer.Close()
}

var newReplayDependencies = func(cfg config) (offsetClient, partitionConsumerSource, *kafka.Producer, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.ClientID = "bakery-dlq-replay"
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, consumerConfig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create kafka client: %w", err)
	}
	rawConsumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	consumer := saramaConsumerAdapter{consumer: rawConsumer}

	if !cfg.execute {
		return client, consumer, nil, nil
	}

	producer, err := kafka.NewProducer(cfg.brokers, "bakery-dlq-replay")
	if err != nil {
		_ = consumer.Close()
		_ = client.Close()
		return nil, nil, nil, err
	}
	return client, consumer, producer, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := readConfig(os.Args[1:], os.LookupEnv)
	if err != nil {
		log.WithError(err).Fatal("invalid arguments")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.WithError(err).Fatal("dlq replay failed")
	}
}

func readConfig(args []string, lookup func(string) (string, bool)) (config, error) {
	var (
		brokersRaw string
		cfg        config
	)

	fs := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: KAFKA_BROKERS)")
	fs.StringVar(&cfg.dlqTopic, "dlq-topic", kafka.TopicDeadLetterQueue, "DLQ topic to scan")
	fs.StringVar(&cfg.orderTopic, "order-topic", kafka.TopicOrderEvents, "target topic for order outbox events")
	fs.StringVar(&cfg.inventoryTopic, "inventory-topic", kafka.TopicInventoryEvents, "target topic for inventory outbox events")
	fs.StringVar(&cfg.source, "source", "", "replay only dead letters from this source (outbox or a consumed topic)")
	fs.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max number of messages to scan")
	fs.BoolVar(&cfg.execute, "execute", false, "execute replay; default is dry-run")
	fs.BoolVar(&cfg.fromNewest, "from-newest", false, "scan latest messages first (bounded by limit)")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "idle timeout per partition")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw, _ = lookup("KAFKA_BROKERS")
	}
	cfg.brokers = parseBrokers(brokersRaw)
	cfg.source = strings.TrimSpace(cfg.source)

	switch {
	case len(cfg.brokers) == 0:
		return config{}, errors.New("kafka brokers are required (-brokers or KAFKA_BROKERS)")
	case strings.TrimSpace(cfg.dlqTopic) == "":
		return config{}, errors.New("dlq-topic is required")
	case strings.TrimSpace(cfg.orderTopic) == "" || strings.TrimSpace(cfg.inventoryTopic) == "":
		return config{}, errors.New("order-topic and inventory-topic are required")
	case cfg.limit <= 0:
		return config{}, errors.New("limit must be > 0")
	case cfg.idleTimeout <= 0:
		return config{}, errors.New("idle-timeout must be > 0")
	}
	return cfg, nil
}

func parseBrokers(raw string) []string {
	chunks := strings.Split(raw, ",")
	brokers := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if broker := strings.TrimSpace(chunk); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func run(ctx context.Context, cfg config) error {
	log.WithFields(log.Fields{
		"dlq_topic":   cfg.dlqTopic,
		"source":      cfg.source,
		"limit":       cfg.limit,
		"execute":     cfg.execute,
		"from_newest": cfg.fromNewest,
	}).Info("starting dlq replay")

	client, consumer, producer, err := newReplayDependencies(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if producer != nil {
			_ = producer.Close()
		}
		_ = consumer.Close()
		_ = client.Close()
	}()

	var out sender
	if producer != nil {
		out = producer
	}
	_, err = runReplay(ctx, cfg, client, consumer, out)
	return err
}

// sender: часть kafka.Producer, нужная для повторной отправки.
type sender interface {
	Send(topic, key string, value []byte, headers map[string]string) error
}

type replayStats struct {
	processed int
	replayed  int
	skipped   int
}

func runReplay(ctx context.Context, cfg config, client offsetClient, consumer partitionConsumerSource, producer sender) (replayStats, error) {
	var total replayStats
	if client == nil || consumer == nil {
		return total, errors.New("kafka client and consumer are required")
	}
	if cfg.execute && producer == nil {
		return total, errors.New("producer is required in execute mode")
	}

	partitions, err := client.Partitions(cfg.dlqTopic)
	if err != nil {
		return total, fmt.Errorf("get partitions for topic %s: %w", cfg.dlqTopic, err)
	}
	if len(partitions) == 0 {
		log.WithField("topic", cfg.dlqTopic).Warn("dlq topic has no partitions")
		return total, nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		if total.processed >= cfg.limit {
			break
		}
		stats, err := processPartition(ctx, consumer, client, producer, cfg, partition, cfg.limit-total.processed)
		total.processed += stats.processed
		total.replayed += stats.replayed
		total.skipped += stats.skipped
		if err != nil {
			return total, err
		}
	}

	mode := "dry-run"
	if cfg.execute {
		mode = "execute"
	}
	log.WithFields(log.Fields{
		"mode":      mode,
		"processed": total.processed,
		"replayed":  total.replayed,
		"skipped":   total.skipped,
	}).Info("dlq replay finished")
	return total, nil
}

func processPartition(
	ctx context.Context,
	consumer partitionConsumerSource,
	client offsetClient,
	producer sender,
	cfg config,
	partition int32,
	limit int,
) (replayStats, error) {
	var stats replayStats

	oldest, err := client.GetOffset(cfg.dlqTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := client.GetOffset(cfg.dlqTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	start := oldest
	if cfg.fromNewest {
		start = max(newest-int64(limit), oldest)
	}

	pc, err := consumer.ConsumePartition(cfg.dlqTopic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(cfg.idleTimeout)
	defer idle.Stop()

	for stats.processed < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case cerr := <-pc.Errors():
			if cerr != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, cerr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return stats, nil
			}
			idle.Reset(cfg.idleTimeout)
			stats.processed++

			logger := log.WithFields(log.Fields{"partition": msg.Partition, "offset": msg.Offset})
			replay, ok, err := extractReplayMessage(msg, cfg)
			switch {
			case err != nil:
				stats.skipped++
				logger.WithError(err).Warn("skip malformed dead letter")
			case !ok:
				stats.skipped++
			case cfg.execute:
				if err := producer.Send(replay.topic, replay.key, replay.value, map[string]string{
					kafka.HeaderEventType: replay.eventType,
				}); err != nil {
					return stats, fmt.Errorf("publish replay message: %w", err)
				}
				stats.replayed++
			default:
				logger.WithFields(log.Fields{
					"target_topic": replay.topic,
					"key":          replay.key,
					"event_type":   replay.eventType,
				}).Info("dlq replay candidate")
				stats.replayed++
			}

			if msg.Offset+1 >= newest {
				return stats, nil
			}
		case <-idle.C:
			return stats, nil
		}
	}
	return stats, nil
}

// extractReplayMessage восстанавливает исходное сообщение из DeadLetter.
// События outbox заново упаковываются в Envelope и уходят в топик своего агрегата,
// сообщения consumer возвращаются в исходный топик без заголовка попыток.
func extractReplayMessage(msg *sarama.ConsumerMessage, cfg config) (replayMessage, bool, error) {
	var dead domain.DeadLetter
	if err := json.Unmarshal(msg.Value, &dead); err != nil {
		return replayMessage{}, false, fmt.Errorf("decode dead letter: %w", err)
	}
	if dead.Source == "" || len(dead.Payload) == 0 {
		return replayMessage{}, false, errors.New("dead letter has no source or payload")
	}
	if cfg.source != "" && dead.Source != cfg.source {
		return replayMessage{}, false, nil
	}

	if dead.Source != outboxSource {
		value := []byte(dead.Payload)
		var quoted string
		if err := json.Unmarshal(dead.Payload, &quoted); err == nil {
			value = []byte(quoted)
		}
		return replayMessage{
			topic:     dead.Source,
			key:       string(msg.Key),
			value:     value,
			eventType: dead.EventType,
		}, true, nil
	}

	topic := cfg.orderTopic
	switch dead.AggregateType {
	case domain.AggregateOrder:
	case domain.AggregateInventory:
		topic = cfg.inventoryTopic
	default:
		return replayMessage{}, false, fmt.Errorf("unknown aggregate type %q", dead.AggregateType)
	}

	encoded, err := json.Marshal(kafka.Envelope{
		ID:            dead.SourceID,
		AggregateType: dead.AggregateType,
		AggregateID:   dead.AggregateID,
		EventType:     dead.EventType,
		Payload:       dead.Payload,
		PublishedAt:   time.Now().UTC(),
	})
	if err != nil {
		return replayMessage{}, false, fmt.Errorf("encode replay envelope: %w", err)
	}

	key := dead.AggregateID
	if key == "" {
		key = dead.SourceID
	}
	return replayMessage{topic: topic, key: key, value: encoded, eventType: dead.EventType}, true, nil
}
