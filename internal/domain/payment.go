package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus описывает состояние платежа и оплаты заказа.
type PaymentStatus string

const (
	// Оплата ещё не получена.
	PaymentStatusPending PaymentStatus = "PENDING"
	// Деньги списаны в пользу пекарни.
	PaymentStatusCaptured PaymentStatus = "CAPTURED"
	// Провайдер отклонил платёж.
	PaymentStatusFailed PaymentStatus = "FAILED"
	// Деньги возвращены покупателю.
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

// PaymentMethod: способ оплаты, выбранный покупателем.
type PaymentMethod string

const (
	PaymentMethodCard          PaymentMethod = "CARD"
	PaymentMethodCashOnPickup  PaymentMethod = "CASH_ON_PICKUP"
	PaymentMethodBankTransfer  PaymentMethod = "BANK_TRANSFER"
	PaymentMethodDigitalWallet PaymentMethod = "DIGITAL_WALLET"
)

// ParsePaymentMethod приводит строку к PaymentMethod без учёта регистра.
func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToUpper(strings.TrimSpace(raw)))
	switch m {
	case PaymentMethodCard, PaymentMethodCashOnPickup, PaymentMethodBankTransfer, PaymentMethodDigitalWallet:
		return m, nil
	default:
		return "", Validationf("unknown payment method %q", raw)
	}
}

// ForcedResult позволяет клиенту принудительно выбрать исход симулированного платежа.
type ForcedResult string

const (
	ForcedResultNone    ForcedResult = ""
	ForcedResultSuccess ForcedResult = "success"
	ForcedResultFailure ForcedResult = "failure"
)

// ParseForcedResult проверяет значение forceResult.
func ParseForcedResult(raw string) (ForcedResult, error) {
	switch r := ForcedResult(strings.ToLower(strings.TrimSpace(raw))); r {
	case ForcedResultNone, ForcedResultSuccess, ForcedResultFailure:
		return r, nil
	default:
		return "", Validationf("forceResult must be success or failure")
	}
}

// Payment: одна попытка оплаты заказа.
type Payment struct {
	ID                    string
	OrderID               string
	Provider              string
	Method                PaymentMethod
	Status                PaymentStatus
	Amount                decimal.Decimal
	Currency              string
	ExternalTransactionID string
	FailureReason         string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}
