package app

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestInitKafkaProducer_EmptyBrokers(t *testing.T) {
	producer, err := initKafkaProducer(nil, "bakery-test", log.WithField("test", "kafka"))
	require.NoError(t, err)
	require.Nil(t, producer)
}

func TestInitKafkaProducer_UnreachableBrokers(t *testing.T) {
	producer, err := initKafkaProducer([]string{"broker1.invalid:9092", "broker2.invalid:9092"}, "bakery-test", log.WithField("test", "kafka"))
	require.Error(t, err)
	require.Nil(t, producer)
}

func TestCloseKafkaProducer_Nil(_ *testing.T) {
	closeKafkaProducer(nil, log.WithField("test", "kafka"))
}

func TestStopConsumer_Nil(_ *testing.T) {
	stopConsumer(nil, log.WithField("test", "kafka"))
}
