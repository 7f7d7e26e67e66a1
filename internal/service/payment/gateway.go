package payment

import (
	"context"
	"math/rand/v2"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

// ChargeRequest: запрос на списание у платёжного провайдера.
type ChargeRequest struct {
	OrderID        string
	Amount         decimal.Decimal
	Currency       string
	Method         domain.PaymentMethod
	ForceResult    domain.ForcedResult
	IdempotencyKey string
}

// ChargeResult: ответ провайдера.
type ChargeResult struct {
	Success       bool
	TransactionID string
	FailureReason string
}

// Gateway описывает платёжного провайдера.
type Gateway interface {
	// Name используется в записи платежа и метриках.
	Name() string
	// Charge списывает сумму. Отказ провайдера возвращается как ChargeResult{Success:false}, а не ошибка.
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}

// Mode задаёт поведение симулированного провайдера.
type Mode string

const (
	// Каждый платёж успешен, если не задан forceResult.
	ModeDeterministic Mode = "deterministic"
	// Около 85% платежей успешны.
	ModeRandom Mode = "random"
)

const randomSuccessRate = 0.85

// ParseMode приводит строку к Mode; пустая строка означает deterministic.
func ParseMode(raw string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(raw))); m {
	case "", ModeDeterministic:
		return ModeDeterministic, nil
	case ModeRandom:
		return ModeRandom, nil
	default:
		return "", domain.Validationf("unknown payment mode %q", raw)
	}
}

// SimulatedGateway: встроенный провайдер для разработки и демо.
type SimulatedGateway struct {
	mode  Mode
	float func() float64
}

// NewSimulatedGateway создаёт симулятор. float может быть nil, тогда используется math/rand.
func NewSimulatedGateway(mode Mode, float func() float64) *SimulatedGateway {
	if float == nil {
		float = rand.Float64
	}
	if mode == "" {
		mode = ModeDeterministic
	}
	return &SimulatedGateway{mode: mode, float: float}
}

func (g *SimulatedGateway) Name() string { return "simulated" }

// Charge сначала учитывает forceResult, затем режим симулятора.
func (g *SimulatedGateway) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	if err := ctx.Err(); err != nil {
		return ChargeResult{}, err
	}

	success := true
	switch req.ForceResult {
	case domain.ForcedResultSuccess:
		success = true
	case domain.ForcedResultFailure:
		success = false
	default:
		if g.mode == ModeRandom {
			success = g.float() < randomSuccessRate
		}
	}

	if !success {
		return ChargeResult{FailureReason: "card declined by simulated gateway"}, nil
	}
	return ChargeResult{Success: true, TransactionID: "sim_" + strings.ReplaceAll(req.OrderID, "-", "")}, nil
}

var _ Gateway = (*SimulatedGateway)(nil)
