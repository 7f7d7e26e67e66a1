package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
	"github.com/vladislavdragonenkov/bakery/internal/service/cart"
	"github.com/vladislavdragonenkov/bakery/internal/storage/memory"
	"github.com/vladislavdragonenkov/bakery/internal/testkit"
)

func TestDeleteExpiredKeys_Batches(t *testing.T) {
	t.Parallel()

	repo := &stubKeys{results: []int{2, 2, 1}}
	s := New(repo, nil, WithBatchSize(2))

	deleted, err := s.DeleteExpiredKeys(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, 5, deleted)
	require.Equal(t, 3, repo.calls())
}

func TestDeleteExpiredKeys_Error(t *testing.T) {
	t.Parallel()

	repo := &stubKeys{errs: []error{errors.New("boom")}}
	s := New(repo, nil, WithBatchSize(10))

	deleted, err := s.DeleteExpiredKeys(context.Background(), time.Now().UTC())
	require.Error(t, err)
	require.Zero(t, deleted)
}

func TestDeleteExpiredKeys_MemoryRepository(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()
	now := time.Now().UTC()

	_, err := repo.CreateProcessing(ctx, "expired-1", "hash", now.Add(-time.Hour))
	require.NoError(t, err)
	_, err = repo.CreateProcessing(ctx, "expired-2", "hash", now.Add(-time.Minute))
	require.NoError(t, err)
	_, err = repo.CreateProcessing(ctx, "fresh", "hash", now.Add(time.Hour))
	require.NoError(t, err)

	deleted, err := New(repo, nil, WithBatchSize(1)).DeleteExpiredKeys(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 2, deleted)

	_, err = repo.Get(ctx, "fresh")
	require.NoError(t, err)
	_, err = repo.Get(ctx, "expired-1")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)
}

func TestRunOnce_AbandonsIdleCarts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := testkit.NewStore(t, testkit.DefaultStock())
	carts := cart.NewService(store, nil, nil)

	idle, err := carts.AddItem(ctx, testkit.Guest("idle"), testkit.CroissantVariant, 1, "")
	require.NoError(t, err)

	s := New(nil, carts, WithCartIdleTTL(time.Hour))
	s.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }

	report := s.RunOnce(ctx)
	require.Equal(t, 1, report.CartsAbandoned)
	require.Zero(t, report.IdempotencyDeleted)

	view, err := carts.Get(ctx, testkit.Guest("idle"), idle.Cart.ID)
	require.NoError(t, err)
	require.Equal(t, domain.CartStatusAbandoned, view.Cart.Status)

	fresh, err := carts.GetOrCreateActive(ctx, domain.CartOwner{SessionID: "idle"}, "")
	require.NoError(t, err)
	require.NotEqual(t, idle.Cart.ID, fresh.Cart.ID)
}

func TestRunOnce_KeepsGoingAfterKeyFailure(t *testing.T) {
	t.Parallel()

	carts := &stubCarts{abandoned: 3}
	s := New(&stubKeys{errs: []error{errors.New("db down")}}, carts)

	report := s.RunOnce(context.Background())
	require.Equal(t, 3, report.CartsAbandoned)
	require.Equal(t, 1, carts.calls)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	s := New(&stubKeys{}, nil, WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on context cancel")
	}
}

type stubKeys struct {
	mu        sync.Mutex
	results   []int
	errs      []error
	callCount int
}

func (s *stubKeys) CreateProcessing(context.Context, string, string, time.Time) (domain.IdempotencyRecord, error) {
	return domain.IdempotencyRecord{}, nil
}

func (s *stubKeys) Get(context.Context, string) (domain.IdempotencyRecord, error) {
	return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
}

func (s *stubKeys) MarkDone(context.Context, string, []byte, int) error   { return nil }
func (s *stubKeys) MarkFailed(context.Context, string, []byte, int) error { return nil }

func (s *stubKeys) DeleteExpired(context.Context, time.Time, int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return 0, err
	}
	if len(s.results) == 0 {
		return 0, nil
	}
	n := s.results[0]
	s.results = s.results[1:]
	return n, nil
}

func (s *stubKeys) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

type stubCarts struct {
	abandoned int
	calls     int
}

func (s *stubCarts) AbandonIdle(context.Context, time.Time, int) (int, error) {
	s.calls++
	return s.abandoned, nil
}

var _ domain.IdempotencyRepository = (*stubKeys)(nil)
