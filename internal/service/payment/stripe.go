package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/paymentintent"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

// testPaymentMethod: тестовая карта Stripe, используется, пока витрина не собирает реквизиты.
const testPaymentMethod = "pm_card_visa"

// IntentCreator создаёт PaymentIntent; в проде это paymentintent.Client.New.
type IntentCreator func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)

// StripeGateway списывает деньги через Stripe PaymentIntents с немедленным подтверждением.
type StripeGateway struct {
	create IntentCreator
}

// NewStripeGateway создаёт провайдера с секретным ключом Stripe.
func NewStripeGateway(secretKey string) *StripeGateway {
	client := &paymentintent.Client{B: stripe.GetBackend(stripe.APIBackend), Key: secretKey}
	return NewStripeGatewayWithCreator(client.New)
}

// NewStripeGatewayWithCreator позволяет подменить вызов Stripe в тестах.
func NewStripeGatewayWithCreator(create IntentCreator) *StripeGateway {
	return &StripeGateway{create: create}
}

func (g *StripeGateway) Name() string { return "stripe" }

// Charge создаёт и подтверждает PaymentIntent. forceResult для Stripe игнорируется.
func (g *StripeGateway) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	if err := ctx.Err(); err != nil {
		return ChargeResult{}, err
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(minorUnits(req.Amount)),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		Confirm:       stripe.Bool(true),
		PaymentMethod: stripe.String(testPaymentMethod),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	params.Context = ctx
	params.AddMetadata("order_id", req.OrderID)
	params.AddMetadata("method", string(req.Method))
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	intent, err := g.create(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			return ChargeResult{FailureReason: stripeErr.Msg}, nil
		}
		return ChargeResult{}, fmt.Errorf("%w: %v", domain.ErrPaymentGateway, err)
	}

	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		return ChargeResult{
			TransactionID: intent.ID,
			FailureReason: fmt.Sprintf("payment intent status %s", intent.Status),
		}, nil
	}
	return ChargeResult{Success: true, TransactionID: intent.ID}, nil
}

func minorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

var _ Gateway = (*StripeGateway)(nil)
