package catalog_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
	"github.com/vladislavdragonenkov/bakery/internal/service/cart"
	"github.com/vladislavdragonenkov/bakery/internal/service/catalog"
	"github.com/vladislavdragonenkov/bakery/internal/service/inventory"
	"github.com/vladislavdragonenkov/bakery/internal/storage/memory"
	"github.com/vladislavdragonenkov/bakery/internal/testkit"
)

func newService(t *testing.T) (*catalog.Service, *memory.Store) {
	t.Helper()
	store := testkit.NewStore(t, testkit.DefaultStock())
	return catalog.NewService(store, inventory.NewLedger(store, nil, nil), nil), store
}

func TestListHidesUnpublished(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	public, err := svc.List(ctx, testkit.Guest("s1"))
	require.NoError(t, err)
	all, err := svc.List(ctx, testkit.Admin())
	require.NoError(t, err)

	require.Less(t, len(public), len(all))
	for _, p := range public {
		require.True(t, p.Published)
	}
}

func TestGet(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	product, err := svc.Get(ctx, testkit.Guest("s1"), "prod-cake")
	require.NoError(t, err)
	require.Len(t, product.Variants, 2)

	_, err = svc.Get(ctx, testkit.Guest("s1"), "prod-seasonal")
	require.ErrorIs(t, err, domain.ErrProductNotFound)

	_, err = svc.Get(ctx, testkit.Admin(), "prod-seasonal")
	require.NoError(t, err)

	_, err = svc.Get(ctx, testkit.Admin(), "missing")
	require.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestSearch(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	found, err := svc.Search(ctx, "CROISS")
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "prod-croissant", found[0].ID)

	found, err = svc.Search(ctx, "sd-loaf")
	require.NoError(t, err)
	require.Len(t, found, 1)

	found, err = svc.Search(ctx, "pretzel")
	require.NoError(t, err)
	require.Empty(t, found)
}

func TestUpdateVariantPriceKeepsCapturedCartPrice(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	guest := testkit.Guest("s-price")

	carts := cart.NewService(store, nil, nil)
	before, err := carts.AddItem(ctx, guest, testkit.CroissantVariant, 2, "")
	require.NoError(t, err)

	_, err = svc.UpdateVariantPrice(ctx, testkit.Customer("u1"), testkit.CroissantVariant, decimal.NewFromInt(5))
	require.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.UpdateVariantPrice(ctx, testkit.Admin(), testkit.CroissantVariant, decimal.Zero)
	require.ErrorIs(t, err, domain.ErrValidation)

	variant, err := svc.UpdateVariantPrice(ctx, testkit.Admin(), testkit.CroissantVariant, decimal.RequireFromString("4.999"))
	require.NoError(t, err)
	require.Equal(t, "5.00", variant.Price.StringFixed(2))

	after, err := carts.Get(ctx, guest, before.Cart.ID)
	require.NoError(t, err)
	require.True(t, after.Summary.Subtotal.Equal(before.Summary.Subtotal))
	require.Equal(t, "3.50", after.Items[0].UnitPrice.StringFixed(2))

	_, err = svc.UpdateVariantPrice(ctx, testkit.Admin(), "missing", decimal.NewFromInt(1))
	require.ErrorIs(t, err, domain.ErrVariantNotFound)
}

func TestSeedDemo(t *testing.T) {
	store := memory.NewStore()
	ledger := inventory.NewLedger(store, nil, nil)
	svc := catalog.NewService(store, ledger, nil)
	ctx := context.Background()

	created, err := svc.SeedDemo(ctx)
	require.NoError(t, err)
	require.Positive(t, created)

	again, err := svc.SeedDemo(ctx)
	require.NoError(t, err)
	require.Zero(t, again)

	for _, id := range catalog.DemoVariantIDs() {
		level, err := ledger.Level(ctx, id)
		require.NoError(t, err)
		require.Positive(t, level.Quantity)

		history, err := ledger.History(ctx, id, 10)
		require.NoError(t, err)
		require.Len(t, history, 1)
		require.Equal(t, domain.InventoryReasonInitialStock, history[0].Reason)
		require.Equal(t, level.Quantity, history[0].QuantityAfter)
	}
}
