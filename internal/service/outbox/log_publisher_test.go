package outbox

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/bakery/internal/storage/memory"
)

func TestLogPublisher_DrainsOutbox(t *testing.T) {
	t.Parallel()

	logger, hook := test.NewNullLogger()
	store := memory.NewStore()
	msg := enqueue(t, store, "order-9")

	worker := NewWorker(store.Outbox(), NewLogPublisher(logger.WithField("component", "test")), WithRetryBaseDelay(0))
	require.Equal(t, 1, worker.ProcessOnce(context.Background()))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	require.Equal(t, "outbox event", entry.Message)
	require.Equal(t, msg.ID, entry.Data["outbox_id"])
	require.Equal(t, "order-9", entry.Data["aggregate_id"])

	pending, err := store.Outbox().PullPending(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, pending)
}
