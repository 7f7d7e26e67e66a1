package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
	"github.com/vladislavdragonenkov/bakery/internal/messaging/kafka"
)

func testConfig() config {
	return config{
		brokers:        []string{"localhost:9092"},
		dlqTopic:       kafka.TopicDeadLetterQueue,
		orderTopic:     kafka.TopicOrderEvents,
		inventoryTopic: kafka.TopicInventoryEvents,
		limit:          10,
		idleTimeout:    50 * time.Millisecond,
	}
}

func deadLetter(t *testing.T, dead domain.DeadLetter) []byte {
	t.Helper()
	raw, err := json.Marshal(dead)
	require.NoError(t, err)
	return raw
}

func lookup(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestParseBrokers(t *testing.T) {
	require.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, parseBrokers(" broker-1:9092, ,broker-2:9092 "))
}

func TestReadConfig(t *testing.T) {
	cfg, err := readConfig([]string{"-limit", "5", "-execute", "-source", " outbox "}, lookup(map[string]string{
		"KAFKA_BROKERS": "k1:9092,k2:9092",
	}))
	require.NoError(t, err)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.brokers)
	require.Equal(t, 5, cfg.limit)
	require.True(t, cfg.execute)
	require.Equal(t, "outbox", cfg.source)
	require.Equal(t, kafka.TopicDeadLetterQueue, cfg.dlqTopic)

	_, err = readConfig(nil, lookup(nil))
	require.ErrorContains(t, err, "brokers are required")

	_, err = readConfig([]string{"-brokers", "k:9092", "-limit", "0"}, lookup(nil))
	require.ErrorContains(t, err, "limit")

	_, err = readConfig([]string{"-brokers", "k:9092", "-idle-timeout", "0s"}, lookup(nil))
	require.ErrorContains(t, err, "idle-timeout")
}

func TestExtractReplayMessage_Outbox(t *testing.T) {
	cfg := testConfig()
	msg := &sarama.ConsumerMessage{Value: deadLetter(t, domain.DeadLetter{
		SourceID:      "outbox-1",
		Source:        outboxSource,
		AggregateType: domain.AggregateInventory,
		AggregateID:   "variant-1",
		EventType:     domain.EventInventoryAdjusted,
		Payload:       json.RawMessage(`{"delta":-2}`),
		Error:         "timeout",
	})}

	got, ok, err := extractReplayMessage(msg, cfg)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, kafka.TopicInventoryEvents, got.topic)
	require.Equal(t, "variant-1", got.key)
	require.Equal(t, domain.EventInventoryAdjusted, got.eventType)

	var env kafka.Envelope
	require.NoError(t, json.Unmarshal(got.value, &env))
	require.Equal(t, "outbox-1", env.ID)
	require.JSONEq(t, `{"delta":-2}`, string(env.Payload))
}

func TestExtractReplayMessage_OutboxUnknownAggregate(t *testing.T) {
	msg := &sarama.ConsumerMessage{Value: deadLetter(t, domain.DeadLetter{
		Source:        outboxSource,
		AggregateType: "invoice",
		Payload:       json.RawMessage(`{}`),
	})}

	_, ok, err := extractReplayMessage(msg, testConfig())
	require.Error(t, err)
	require.False(t, ok)
}

func TestExtractReplayMessage_Consumer(t *testing.T) {
	msg := &sarama.ConsumerMessage{
		Key: []byte("variant-9"),
		Value: deadLetter(t, domain.DeadLetter{
			Source:  kafka.TopicRestock,
			Payload: json.RawMessage(`{"variantId":"variant-9","quantity":5}`),
		}),
	}

	got, ok, err := extractReplayMessage(msg, testConfig())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, kafka.TopicRestock, got.topic)
	require.Equal(t, "variant-9", got.key)
	require.JSONEq(t, `{"variantId":"variant-9","quantity":5}`, string(got.value))
}

func TestExtractReplayMessage_ConsumerQuotedPayload(t *testing.T) {
	msg := &sarama.ConsumerMessage{Value: deadLetter(t, domain.DeadLetter{
		Source:  kafka.TopicRestock,
		Payload: json.RawMessage(`"not json"`),
	})}

	got, ok, err := extractReplayMessage(msg, testConfig())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "not json", string(got.value))
}

func TestExtractReplayMessage_SourceFilterAndGarbage(t *testing.T) {
	cfg := testConfig()
	cfg.source = outboxSource

	msg := &sarama.ConsumerMessage{Value: deadLetter(t, domain.DeadLetter{
		Source:  kafka.TopicRestock,
		Payload: json.RawMessage(`{}`),
	})}
	_, ok, err := extractReplayMessage(msg, cfg)
	require.NoError(t, err)
	require.False(t, ok)

	_, _, err = extractReplayMessage(&sarama.ConsumerMessage{Value: []byte("garbage")}, cfg)
	require.Error(t, err)

	_, _, err = extractReplayMessage(&sarama.ConsumerMessage{Value: []byte(`{"foo":"bar"}`)}, cfg)
	require.Error(t, err)
}

type fakeOffsetClient struct {
	partitions []int32
	oldest     int64
	newest     int64
	err        error
}

func (f *fakeOffsetClient) GetOffset(_ string, _ int32, at int64) (int64, error) {
	if at == sarama.OffsetOldest {
		return f.oldest, nil
	}
	return f.newest, nil
}

func (f *fakeOffsetClient) Partitions(string) ([]int32, error) { return f.partitions, f.err }
func (f *fakeOffsetClient) Close() error                       { return nil }

type fakePartitionConsumer struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
}

func (f *fakePartitionConsumer) Messages() <-chan *sarama.ConsumerMessage { return f.messages }
func (f *fakePartitionConsumer) Errors() <-chan *sarama.ConsumerError     { return f.errors }
func (f *fakePartitionConsumer) Close() error                             { return nil }

type fakeConsumerSource struct {
	pc *fakePartitionConsumer
}

func (f *fakeConsumerSource) ConsumePartition(string, int32, int64) (partitionConsumer, error) {
	return f.pc, nil
}
func (f *fakeConsumerSource) Close() error { return nil }

type sent struct {
	topic, key string
	value      []byte
}

type fakeSender struct {
	sent []sent
	err  error
}

func (f *fakeSender) Send(topic, key string, value []byte, _ map[string]string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sent{topic: topic, key: key, value: value})
	return nil
}

func newSource(t *testing.T, values ...[]byte) *fakeConsumerSource {
	t.Helper()
	pc := &fakePartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage, len(values)),
		errors:   make(chan *sarama.ConsumerError),
	}
	for i, v := range values {
		pc.messages <- &sarama.ConsumerMessage{Topic: kafka.TopicDeadLetterQueue, Offset: int64(i), Value: v}
	}
	return &fakeConsumerSource{pc: pc}
}

func TestRunReplay_Execute(t *testing.T) {
	cfg := testConfig()
	cfg.execute = true

	source := newSource(t,
		deadLetter(t, domain.DeadLetter{SourceID: "o-1", Source: outboxSource, AggregateType: domain.AggregateOrder, AggregateID: "order-1", EventType: domain.EventOrderCreated, Payload: json.RawMessage(`{}`)}),
		[]byte("garbage"),
		deadLetter(t, domain.DeadLetter{Source: kafka.TopicRestock, Payload: json.RawMessage(`{"variantId":"v","quantity":1}`)}),
	)
	out := &fakeSender{}

	stats, err := runReplay(context.Background(), cfg, &fakeOffsetClient{partitions: []int32{0}, newest: 3}, source, out)
	require.NoError(t, err)
	require.Equal(t, replayStats{processed: 3, replayed: 2, skipped: 1}, stats)
	require.Len(t, out.sent, 2)
	require.Equal(t, kafka.TopicOrderEvents, out.sent[0].topic)
	require.Equal(t, "order-1", out.sent[0].key)
	require.Equal(t, kafka.TopicRestock, out.sent[1].topic)
}

func TestRunReplay_DryRunRespectsLimit(t *testing.T) {
	cfg := testConfig()
	cfg.limit = 1

	dead := deadLetter(t, domain.DeadLetter{Source: kafka.TopicRestock, Payload: json.RawMessage(`{}`)})
	stats, err := runReplay(context.Background(), cfg, &fakeOffsetClient{partitions: []int32{0}, newest: 2}, newSource(t, dead, dead), nil)
	require.NoError(t, err)
	require.Equal(t, replayStats{processed: 1, replayed: 1}, stats)
}

func TestRunReplay_Errors(t *testing.T) {
	cfg := testConfig()

	_, err := runReplay(context.Background(), cfg, nil, nil, nil)
	require.Error(t, err)

	cfg.execute = true
	_, err = runReplay(context.Background(), cfg, &fakeOffsetClient{}, newSource(t), nil)
	require.ErrorContains(t, err, "producer is required")

	cfg.execute = false
	_, err = runReplay(context.Background(), cfg, &fakeOffsetClient{err: errors.New("boom")}, newSource(t), nil)
	require.ErrorContains(t, err, "get partitions")

	stats, err := runReplay(context.Background(), cfg, &fakeOffsetClient{}, newSource(t), nil)
	require.NoError(t, err)
	require.Zero(t, stats.processed)

	cfg.execute = true
	dead := deadLetter(t, domain.DeadLetter{Source: kafka.TopicRestock, Payload: json.RawMessage(`{}`)})
	_, err = runReplay(context.Background(), cfg, &fakeOffsetClient{partitions: []int32{0}, newest: 1}, newSource(t, dead), &fakeSender{err: errors.New("down")})
	require.ErrorContains(t, err, "publish replay message")
}

func TestRunReplay_IdleTimeout(t *testing.T) {
	cfg := testConfig()

	stats, err := runReplay(context.Background(), cfg, &fakeOffsetClient{partitions: []int32{0}, newest: 5}, newSource(t), nil)
	require.NoError(t, err)
	require.Zero(t, stats.processed)
}
