package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

func TestSimulatedGateway(t *testing.T) {
	ctx := context.Background()
	req := ChargeRequest{OrderID: "order-1", Amount: decimal.RequireFromString("41.72"), Currency: "USD"}

	tests := []struct {
		name    string
		mode    Mode
		float   float64
		force   domain.ForcedResult
		success bool
	}{
		{name: "deterministic succeeds", mode: ModeDeterministic, float: 0.99, success: true},
		{name: "forced failure wins over deterministic", mode: ModeDeterministic, force: domain.ForcedResultFailure, success: false},
		{name: "random below threshold succeeds", mode: ModeRandom, float: 0.10, success: true},
		{name: "random above threshold fails", mode: ModeRandom, float: 0.90, success: false},
		{name: "forced success wins over random", mode: ModeRandom, float: 0.99, force: domain.ForcedResultSuccess, success: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := NewSimulatedGateway(tt.mode, func() float64 { return tt.float })
			r := req
			r.ForceResult = tt.force

			res, err := gw.Charge(ctx, r)
			require.NoError(t, err)
			require.Equal(t, tt.success, res.Success)
			if tt.success {
				require.Equal(t, "sim_order1", res.TransactionID)
				require.Empty(t, res.FailureReason)
			} else {
				require.NotEmpty(t, res.FailureReason)
			}
		})
	}
}

func TestSimulatedGateway_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSimulatedGateway(ModeDeterministic, nil).Charge(ctx, ChargeRequest{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	require.Equal(t, ModeDeterministic, m)

	m, err = ParseMode("RANDOM")
	require.NoError(t, err)
	require.Equal(t, ModeRandom, m)

	_, err = ParseMode("chaos")
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestStripeGateway(t *testing.T) {
	ctx := context.Background()
	req := ChargeRequest{
		OrderID:        "order-7",
		Amount:         decimal.RequireFromString("41.72"),
		Currency:       "USD",
		Method:         domain.PaymentMethodCard,
		IdempotencyKey: "idem-1",
	}

	t.Run("succeeded intent", func(t *testing.T) {
		var captured *stripe.PaymentIntentParams
		gw := NewStripeGatewayWithCreator(func(p *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			captured = p
			return &stripe.PaymentIntent{ID: "pi_123", Status: stripe.PaymentIntentStatusSucceeded}, nil
		})

		res, err := gw.Charge(ctx, req)
		require.NoError(t, err)
		require.True(t, res.Success)
		require.Equal(t, "pi_123", res.TransactionID)

		require.Equal(t, int64(4172), *captured.Amount)
		require.Equal(t, "usd", *captured.Currency)
		require.True(t, *captured.Confirm)
		require.Equal(t, "order-7", captured.Metadata["order_id"])
		require.Equal(t, "idem-1", *captured.IdempotencyKey)
	})

	t.Run("requires action is a failure", func(t *testing.T) {
		gw := NewStripeGatewayWithCreator(func(*stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			return &stripe.PaymentIntent{ID: "pi_456", Status: stripe.PaymentIntentStatusRequiresAction}, nil
		})

		res, err := gw.Charge(ctx, req)
		require.NoError(t, err)
		require.False(t, res.Success)
		require.Contains(t, res.FailureReason, "requires_action")
	})

	t.Run("card error is a decline", func(t *testing.T) {
		gw := NewStripeGatewayWithCreator(func(*stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			return nil, &stripe.Error{Type: stripe.ErrorTypeCard, Msg: "Your card was declined."}
		})

		res, err := gw.Charge(ctx, req)
		require.NoError(t, err)
		require.False(t, res.Success)
		require.Equal(t, "Your card was declined.", res.FailureReason)
	})

	t.Run("api error is a gateway error", func(t *testing.T) {
		gw := NewStripeGatewayWithCreator(func(*stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			return nil, errors.New("connection reset")
		})

		_, err := gw.Charge(ctx, req)
		require.ErrorIs(t, err, domain.ErrPaymentGateway)
	})
}
