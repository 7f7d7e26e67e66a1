package assistant_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
	"github.com/vladislavdragonenkov/bakery/internal/service/assistant"
	"github.com/vladislavdragonenkov/bakery/internal/service/cart"
	"github.com/vladislavdragonenkov/bakery/internal/service/catalog"
	"github.com/vladislavdragonenkov/bakery/internal/service/checkout"
	"github.com/vladislavdragonenkov/bakery/internal/service/inventory"
	"github.com/vladislavdragonenkov/bakery/internal/service/orderstatus"
	"github.com/vladislavdragonenkov/bakery/internal/storage/memory"
	"github.com/vladislavdragonenkov/bakery/internal/testkit"
)

func newBridge(t *testing.T) (*assistant.Bridge, *memory.Store) {
	t.Helper()
	store := testkit.NewStore(t, testkit.DefaultStock())
	ledger := inventory.NewLedger(store, nil, nil)
	bridge := assistant.NewBridge(
		catalog.NewService(store, ledger, nil),
		cart.NewService(store, nil, nil),
		orderstatus.NewService(store, orderstatus.Options{Strict: true}, nil, nil),
		nil,
	)
	return bridge, store
}

func invoke(tool assistant.Tool, input any) assistant.Invocation {
	raw, _ := json.Marshal(input)
	return assistant.Invocation{Tool: tool, Input: raw}
}

func TestSearchProducts(t *testing.T) {
	bridge, _ := newBridge(t)

	reply, err := bridge.Dispatch(context.Background(), domain.Requester{}, invoke(assistant.ToolSearchProducts, map[string]string{"query": "cake"}))
	require.NoError(t, err)
	require.Equal(t, assistant.ToolSearchProducts, reply.Tool)

	hits, ok := reply.Data.([]assistant.ProductHit)
	require.True(t, ok)
	require.Len(t, hits, 1, "retired variant must not be offered")
	require.Equal(t, testkit.CakeVariant, hits[0].VariantID)
	require.Equal(t, "25.00", hits[0].Price)
}

func TestAddToCartAndViewCart(t *testing.T) {
	bridge, _ := newBridge(t)
	ctx := context.Background()
	guest := domain.Requester{Role: domain.RoleGuest}

	reply, err := bridge.Dispatch(ctx, guest, invoke(assistant.ToolAddToCart, assistant.AddToCartInput{
		VariantID: testkit.CroissantVariant, Quantity: 3, SessionID: "voice-1",
	}))
	require.NoError(t, err)
	snap := reply.Data.(assistant.CartSnapshot)
	require.Equal(t, 3, snap.Items)
	require.Equal(t, "16.34", snap.Total)

	reply, err = bridge.Dispatch(ctx, guest, invoke(assistant.ToolViewCart, assistant.ViewCartInput{SessionID: "voice-1"}))
	require.NoError(t, err)
	view := reply.Data.(assistant.CartSnapshot)
	require.Equal(t, snap.CartID, view.CartID)
	require.Len(t, view.Lines, 1)
	require.Equal(t, "3.50", view.Lines[0].UnitPrice)

	_, err = bridge.Dispatch(ctx, guest, invoke(assistant.ToolAddToCart, assistant.AddToCartInput{
		VariantID: testkit.CakeVariant, Quantity: 99, SessionID: "voice-1",
	}))
	require.ErrorIs(t, err, domain.ErrInsufficientInventory)
}

func TestOrderStatusTool(t *testing.T) {
	bridge, store := newBridge(t)
	ctx := context.Background()
	guest := testkit.Guest("voice-2")

	view, err := cart.NewService(store, nil, nil).AddItem(ctx, guest, testkit.SourdoughVariant, 1, "")
	require.NoError(t, err)
	order, err := checkout.NewService(store, inventory.NewLedger(store, nil, nil), nil, nil).
		CreateOrderFromCart(ctx, guest, checkout.Request{CartID: view.Cart.ID, ShippingAddress: testkit.ShippingAddress()})
	require.NoError(t, err)

	reply, err := bridge.Dispatch(ctx, domain.Requester{}, invoke(assistant.ToolOrderStatus, assistant.OrderStatusInput{
		OrderID: order.ID, SessionID: "voice-2",
	}))
	require.NoError(t, err)
	snap := reply.Data.(assistant.OrderSnapshot)
	require.Equal(t, "PENDING", snap.Status)
	require.Equal(t, "41.72", snap.Total)
	require.Contains(t, reply.Message, "pending")

	_, err = bridge.Dispatch(ctx, domain.Requester{}, invoke(assistant.ToolOrderStatus, assistant.OrderStatusInput{
		OrderID: order.ID, SessionID: "someone-else",
	}))
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestDispatchRejectsBadInput(t *testing.T) {
	bridge, _ := newBridge(t)
	ctx := context.Background()

	_, err := bridge.Dispatch(ctx, domain.Requester{}, invoke("bake_cake", nil))
	require.ErrorIs(t, err, domain.ErrUnknownTool)

	_, err = bridge.Dispatch(ctx, domain.Requester{}, assistant.Invocation{
		Tool:  assistant.ToolSearchProducts,
		Input: json.RawMessage(`{"q":"bread"}`),
	})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = bridge.Dispatch(ctx, domain.Requester{}, invoke(assistant.ToolViewCart, assistant.ViewCartInput{}))
	require.ErrorIs(t, err, domain.ErrValidation)
}
