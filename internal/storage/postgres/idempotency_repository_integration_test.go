package postgres

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

func TestIdempotencyRepository_PostgresLifecycle(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewIdempotencyRepository(store)
	ctx := context.Background()

	record, err := repo.CreateProcessing(ctx, "key-1", "hash-1", time.Time{})
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusProcessing, record.Status)
	require.True(t, record.TTLAt.After(time.Now()))

	_, err = repo.CreateProcessing(ctx, "key-1", "hash-1", time.Time{})
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyAlreadyExists)
	_, err = repo.CreateProcessing(ctx, "key-1", "hash-2", time.Time{})
	require.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)

	require.NoError(t, repo.MarkDone(ctx, "key-1", []byte(`{"ok":true}`), http.StatusCreated))
	stored, err := repo.Get(ctx, "key-1")
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusDone, stored.Status)
	require.Equal(t, http.StatusCreated, stored.HTTPStatus)
	require.JSONEq(t, `{"ok":true}`, string(stored.ResponseBody))

	require.ErrorIs(t, repo.MarkFailed(ctx, "missing", nil, http.StatusInternalServerError), domain.ErrIdempotencyKeyNotFound)
	_, err = repo.CreateProcessing(ctx, " ", "hash", time.Time{})
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyRequired)
}

func TestIdempotencyRepository_PostgresDeleteExpired(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewIdempotencyRepository(store)
	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Hour)

	for _, key := range []string{"old-1", "old-2", "old-3"} {
		_, err := repo.CreateProcessing(ctx, key, "hash", past)
		require.NoError(t, err)
	}
	_, err := repo.CreateProcessing(ctx, "fresh", "hash", time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)

	removed, err := repo.DeleteExpired(ctx, time.Now().UTC(), 2)
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	removed, err = repo.DeleteExpired(ctx, time.Time{}, 0)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = repo.Get(ctx, "fresh")
	require.NoError(t, err)
}
