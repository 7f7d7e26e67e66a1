package cart_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
	"github.com/vladislavdragonenkov/bakery/internal/service/cart"
	"github.com/vladislavdragonenkov/bakery/internal/storage/memory"
	"github.com/vladislavdragonenkov/bakery/internal/testkit"
)

type CartServiceSuite struct {
	suite.Suite
	ctx   context.Context
	store *memory.Store
	svc   *cart.Service
}

func TestCartServiceSuite(t *testing.T) {
	suite.Run(t, new(CartServiceSuite))
}

func (s *CartServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = testkit.NewStore(s.T(), testkit.DefaultStock())
	s.svc = cart.NewService(s.store, nil, nil)
}

func (s *CartServiceSuite) TestGetOrCreateActive_ReturnsSameCart() {
	owner := domain.CartOwner{SessionID: "sess-1"}

	first, err := s.svc.GetOrCreateActive(s.ctx, owner, "usd")
	s.Require().NoError(err)
	s.Require().Equal(domain.CartStatusActive, first.Cart.Status)
	s.Require().Equal("USD", first.Cart.Currency)
	s.Require().Empty(first.Items)
	s.Require().True(first.Summary.Total.IsZero())

	second, err := s.svc.GetOrCreateActive(s.ctx, owner, "")
	s.Require().NoError(err)
	s.Require().Equal(first.Cart.ID, second.Cart.ID)
}

func (s *CartServiceSuite) TestGetOrCreateActive_RequiresOwner() {
	_, err := s.svc.GetOrCreateActive(s.ctx, domain.CartOwner{}, "")
	s.Require().ErrorIs(err, domain.ErrValidation)
}

func (s *CartServiceSuite) TestAddItem_SumsQuantitiesForSameVariant() {
	guest := testkit.Guest("sess-1")

	_, err := s.svc.AddItem(s.ctx, guest, testkit.CroissantVariant, 2, "")
	s.Require().NoError(err)
	view, err := s.svc.AddItem(s.ctx, guest, testkit.CroissantVariant, 3, "")
	s.Require().NoError(err)

	s.Require().Len(view.Items, 1)
	s.Require().Equal(5, view.Items[0].Quantity)
	s.Require().True(view.Summary.Subtotal.Equal(decimal.RequireFromString("17.50")))
	s.Require().Equal(5, view.Summary.ItemCount)
}

func (s *CartServiceSuite) TestAddItem_InsufficientInventoryLeavesCartUnchanged() {
	guest := testkit.Guest("sess-1")

	before, err := s.svc.AddItem(s.ctx, guest, testkit.CakeVariant, 2, "")
	s.Require().NoError(err)

	_, err = s.svc.AddItem(s.ctx, guest, testkit.CakeVariant, 2, "")
	s.Require().ErrorIs(err, domain.ErrInsufficientInventory)

	var shortage *domain.InventoryShortageError
	s.Require().True(errors.As(err, &shortage))
	s.Require().Equal(4, shortage.Requested)
	s.Require().Equal(3, shortage.Available)

	after, err := s.svc.GetOrCreateActive(s.ctx, guest.Owner(), "")
	s.Require().NoError(err)
	s.Require().Equal(before.Items, after.Items)
	s.Require().True(before.Summary.Total.Equal(after.Summary.Total))
}

func (s *CartServiceSuite) TestAddItem_RejectsUnavailableVariants() {
	guest := testkit.Guest("sess-1")

	_, err := s.svc.AddItem(s.ctx, guest, testkit.RetiredVariant, 1, "")
	s.Require().ErrorIs(err, domain.ErrVariantUnavailable)

	_, err = s.svc.AddItem(s.ctx, guest, testkit.HiddenVariant, 1, "")
	s.Require().ErrorIs(err, domain.ErrVariantUnavailable)

	_, err = s.svc.AddItem(s.ctx, guest, "var-missing", 1, "")
	s.Require().ErrorIs(err, domain.ErrVariantNotFound)

	_, err = s.svc.AddItem(s.ctx, guest, testkit.CroissantVariant, 0, "")
	s.Require().ErrorIs(err, domain.ErrValidation)
}

func (s *CartServiceSuite) TestAddItem_ReservedIsNotSubtracted() {
	err := s.store.WithinTx(s.ctx, func(ctx context.Context, tx domain.Tx) error {
		level, err := tx.Inventory().Get(ctx, testkit.CakeVariant)
		if err != nil {
			return err
		}
		level.Reserved = 3
		return tx.Inventory().Save(ctx, level)
	})
	s.Require().NoError(err)

	view, err := s.svc.AddItem(s.ctx, testkit.Guest("sess-1"), testkit.CakeVariant, 3, "")
	s.Require().NoError(err)
	s.Require().Equal(3, view.Items[0].Quantity)
}

func (s *CartServiceSuite) TestPriceFreeze() {
	guest := testkit.Guest("sess-1")

	_, err := s.svc.AddItem(s.ctx, guest, testkit.SourdoughVariant, 1, "")
	s.Require().NoError(err)

	err = s.store.WithinTx(s.ctx, func(ctx context.Context, tx domain.Tx) error {
		_, err := tx.Catalog().UpdateVariantPrice(ctx, testkit.SourdoughVariant, decimal.RequireFromString("40.00"), time.Now().UTC())
		return err
	})
	s.Require().NoError(err)

	view, err := s.svc.AddItem(s.ctx, guest, testkit.SourdoughVariant, 1, "")
	s.Require().NoError(err)
	s.Require().True(view.Items[0].UnitPrice.Equal(decimal.RequireFromString("34.00")))
	s.Require().True(view.Summary.Subtotal.Equal(decimal.RequireFromString("68.00")))
}

func (s *CartServiceSuite) TestSummaryIsIdempotent() {
	guest := testkit.Guest("sess-1")
	_, err := s.svc.AddItem(s.ctx, guest, testkit.SourdoughVariant, 1, "")
	s.Require().NoError(err)

	first, err := s.svc.GetOrCreateActive(s.ctx, guest.Owner(), "")
	s.Require().NoError(err)
	second, err := s.svc.GetOrCreateActive(s.ctx, guest.Owner(), "")
	s.Require().NoError(err)

	s.Require().Equal(first.Summary, second.Summary)
	s.Require().True(first.Summary.Subtotal.Equal(decimal.RequireFromString("34.00")))
	s.Require().True(first.Summary.Tax.Equal(decimal.RequireFromString("2.72")))
	s.Require().True(first.Summary.ShippingFee.Equal(decimal.RequireFromString("5.00")))
	s.Require().True(first.Summary.Total.Equal(decimal.RequireFromString("41.72")))
}

func (s *CartServiceSuite) TestUpdateQuantity() {
	guest := testkit.Guest("sess-1")
	view, err := s.svc.AddItem(s.ctx, guest, testkit.CroissantVariant, 2, "")
	s.Require().NoError(err)
	itemID := view.Items[0].ID

	view, err = s.svc.UpdateQuantity(s.ctx, guest, itemID, 6)
	s.Require().NoError(err)
	s.Require().Equal(6, view.Items[0].Quantity)

	_, err = s.svc.UpdateQuantity(s.ctx, guest, itemID, 41)
	s.Require().ErrorIs(err, domain.ErrInsufficientInventory)

	_, err = s.svc.UpdateQuantity(s.ctx, guest, itemID, -1)
	s.Require().ErrorIs(err, domain.ErrValidation)

	view, err = s.svc.UpdateQuantity(s.ctx, guest, itemID, 0)
	s.Require().NoError(err)
	s.Require().Empty(view.Items)
	s.Require().True(view.Summary.ShippingFee.IsZero())
}

func (s *CartServiceSuite) TestOwnershipIsEnforced() {
	owner := testkit.Guest("sess-owner")
	view, err := s.svc.AddItem(s.ctx, owner, testkit.CroissantVariant, 1, "")
	s.Require().NoError(err)
	itemID := view.Items[0].ID

	_, err = s.svc.UpdateQuantity(s.ctx, testkit.Guest("sess-other"), itemID, 2)
	s.Require().ErrorIs(err, domain.ErrForbidden)

	_, err = s.svc.RemoveItem(s.ctx, testkit.Customer("user-1"), itemID)
	s.Require().ErrorIs(err, domain.ErrForbidden)

	_, err = s.svc.RemoveItem(s.ctx, testkit.Admin(), itemID)
	s.Require().NoError(err)

	_, err = s.svc.RemoveItem(s.ctx, owner, itemID)
	s.Require().ErrorIs(err, domain.ErrCartItemNotFound)
}

func (s *CartServiceSuite) TestUserAndGuestCartsAreSeparate() {
	userView, err := s.svc.AddItem(s.ctx, testkit.Customer("user-1"), testkit.CroissantVariant, 1, "")
	s.Require().NoError(err)
	guestView, err := s.svc.AddItem(s.ctx, testkit.Guest("sess-1"), testkit.CroissantVariant, 1, "")
	s.Require().NoError(err)

	s.Require().NotEqual(userView.Cart.ID, guestView.Cart.ID)
	s.Require().Equal("user-1", userView.Cart.UserID)
	s.Require().Empty(userView.Cart.SessionID)
}

func TestAbandonIdle(t *testing.T) {
	ctx := context.Background()
	store := testkit.NewStore(t, testkit.DefaultStock())
	svc := cart.NewService(store, nil, nil)

	view, err := svc.GetOrCreateActive(ctx, domain.CartOwner{SessionID: "sess-idle"}, "")
	require.NoError(t, err)

	count, err := svc.AbandonIdle(ctx, time.Now().UTC().Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Zero(t, count)

	count, err = svc.AbandonIdle(ctx, time.Now().UTC().Add(time.Minute), 10)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	abandoned, err := svc.Get(ctx, testkit.Guest("sess-idle"), view.Cart.ID)
	require.NoError(t, err)
	require.Equal(t, domain.CartStatusAbandoned, abandoned.Cart.Status)

	fresh, err := svc.GetOrCreateActive(ctx, domain.CartOwner{SessionID: "sess-idle"}, "")
	require.NoError(t, err)
	require.NotEqual(t, view.Cart.ID, fresh.Cart.ID)
}
