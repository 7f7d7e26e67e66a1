package kafka_test

import (
	"context"
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
	"github.com/vladislavdragonenkov/bakery/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/bakery/internal/service/inventory"
	"github.com/vladislavdragonenkov/bakery/internal/testkit"
)

func TestRestockHandler(t *testing.T) {
	ctx := context.Background()
	store := testkit.NewStore(t, testkit.DefaultStock())
	ledger := inventory.NewLedger(store, nil, nil)
	handler := kafka.NewRestockHandler(ledger, nil)

	err := handler(ctx, &sarama.ConsumerMessage{
		Topic: kafka.TopicRestock,
		Value: []byte(`{"variantId":"` + testkit.CakeVariant + `","quantity":5,"reference":"delivery-42","supplier":"central-kitchen"}`),
	})
	require.NoError(t, err)
	require.Equal(t, 8, testkit.Quantity(t, store, testkit.CakeVariant))

	history, err := ledger.History(ctx, testkit.CakeVariant, 1)
	require.NoError(t, err)
	require.Equal(t, domain.InventoryReasonRestock, history[0].Reason)
	require.Equal(t, "delivery-42", history[0].Reference)
	require.Equal(t, "supplier:central-kitchen", history[0].Actor)
	require.Equal(t, 5, history[0].Delta)

	err = handler(ctx, &sarama.ConsumerMessage{Topic: kafka.TopicRestock, Value: []byte(`{"variantId":"nope","quantity":1}`)})
	require.ErrorIs(t, err, domain.ErrVariantNotFound)

	err = handler(ctx, &sarama.ConsumerMessage{Topic: kafka.TopicRestock, Value: []byte(`{"variantId":"x","quantity":-2}`)})
	require.ErrorIs(t, err, domain.ErrValidation)
}
