package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

// Стабильные коды ошибок API.
const (
	CodeValidation            = "VALIDATION_ERROR"
	CodeUnauthenticated       = "UNAUTHENTICATED"
	CodeForbidden             = "FORBIDDEN"
	CodeNotFound              = "NOT_FOUND"
	CodeProductNotFound       = "PRODUCT_NOT_FOUND"
	CodeVariantNotFound       = "VARIANT_NOT_FOUND"
	CodeVariantUnavailable    = "VARIANT_UNAVAILABLE"
	CodeInventoryNotFound     = "INVENTORY_NOT_FOUND"
	CodeInsufficientInventory = "INSUFFICIENT_INVENTORY"
	CodeInvalidAdjustment     = "INVALID_ADJUSTMENT"
	CodeCartNotFound          = "CART_NOT_FOUND"
	CodeCartItemNotFound      = "CART_ITEM_NOT_FOUND"
	CodeCartClosed            = "CART_CLOSED"
	CodeCartNotCheckoutReady  = "CART_NOT_CHECKOUT_READY"
	CodeEmptyCart             = "EMPTY_CART"
	CodeOrderNotFound         = "ORDER_NOT_FOUND"
	CodeIllegalTransition     = "ILLEGAL_TRANSITION"
	CodeInvalidPaymentAmount  = "INVALID_PAYMENT_AMOUNT"
	CodePaymentCaptured       = "PAYMENT_ALREADY_CAPTURED"
	CodeOrderNotPayable       = "ORDER_NOT_PAYABLE"
	CodePaymentGateway        = "PAYMENT_GATEWAY_ERROR"
	CodeUnknownTool           = "UNKNOWN_TOOL"
	CodeVersionConflict       = "VERSION_CONFLICT"
	CodeConflict              = "CONFLICT"
	CodeIdempotencyMismatch   = "IDEMPOTENCY_KEY_REUSED"
	CodeIdempotencyInProgress = "IDEMPOTENCY_IN_PROGRESS"
	CodeDatabase              = "DATABASE_ERROR"
	CodeInternal              = "INTERNAL_ERROR"
)

// ErrorBody: тело ошибки внутри конверта.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope: единый формат ответов с ошибкой.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

type errorMapping struct {
	target error
	status int
	code   string
}

// errorMappings проверяются по порядку: более специфичные ошибки идут раньше.
var errorMappings = []errorMapping{
	{domain.ErrValidation, http.StatusBadRequest, CodeValidation},
	{domain.ErrUnauthenticated, http.StatusUnauthorized, CodeUnauthenticated},
	{domain.ErrForbidden, http.StatusForbidden, CodeForbidden},

	{domain.ErrProductNotFound, http.StatusNotFound, CodeProductNotFound},
	{domain.ErrVariantNotFound, http.StatusNotFound, CodeVariantNotFound},
	{domain.ErrInventoryNotFound, http.StatusNotFound, CodeInventoryNotFound},
	{domain.ErrCartNotFound, http.StatusNotFound, CodeCartNotFound},
	{domain.ErrCartItemNotFound, http.StatusNotFound, CodeCartItemNotFound},
	{domain.ErrOrderNotFound, http.StatusNotFound, CodeOrderNotFound},
	{domain.ErrShipmentNotFound, http.StatusNotFound, CodeNotFound},

	{domain.ErrVariantUnavailable, http.StatusBadRequest, CodeVariantUnavailable},
	{domain.ErrInsufficientInventory, http.StatusBadRequest, CodeInsufficientInventory},
	{domain.ErrInvalidAdjustment, http.StatusBadRequest, CodeInvalidAdjustment},
	{domain.ErrCartClosed, http.StatusBadRequest, CodeCartClosed},
	{domain.ErrCartNotCheckoutReady, http.StatusBadRequest, CodeCartNotCheckoutReady},
	{domain.ErrEmptyCart, http.StatusBadRequest, CodeEmptyCart},
	{domain.ErrIllegalTransition, http.StatusBadRequest, CodeIllegalTransition},
	{domain.ErrInvalidPaymentAmount, http.StatusBadRequest, CodeInvalidPaymentAmount},
	{domain.ErrPaymentAlreadyCaptured, http.StatusBadRequest, CodePaymentCaptured},
	{domain.ErrOrderNotPayable, http.StatusBadRequest, CodeOrderNotPayable},
	{domain.ErrUnknownTool, http.StatusBadRequest, CodeUnknownTool},
	{domain.ErrConstraintViolation, http.StatusBadRequest, CodeDatabase},

	{domain.ErrActiveCartExists, http.StatusConflict, CodeConflict},
	{domain.ErrOrderVersionConflict, http.StatusConflict, CodeVersionConflict},
	{domain.ErrIdempotencyHashMismatch, http.StatusConflict, CodeIdempotencyMismatch},
	{domain.ErrIdempotencyInProgress, http.StatusConflict, CodeIdempotencyInProgress},

	{domain.ErrPaymentGateway, http.StatusBadGateway, CodePaymentGateway},
}

// classify переводит ошибку сервиса в HTTP-статус и тело ответа.
// Неизвестные ошибки становятся 500 без текста исходной ошибки.
func classify(err error) (int, ErrorBody) {
	for _, m := range errorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		body := ErrorBody{Code: m.code, Message: err.Error()}
		var shortage *domain.InventoryShortageError
		if errors.As(err, &shortage) {
			body.Details = gin.H{
				"variantId": shortage.VariantID,
				"requested": shortage.Requested,
				"available": shortage.Available,
			}
		}
		if m.code == CodeDatabase {
			body.Message = "request violates a data constraint"
		}
		return m.status, body
	}
	return http.StatusInternalServerError, ErrorBody{Code: CodeInternal, Message: "internal server error"}
}

// respondError пишет конверт ошибки и логирует непредвиденные ошибки.
func respondError(c *gin.Context, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		loggerFrom(c).WithError(err).Error("request failed")
	} else {
		loggerFrom(c).WithError(err).WithField("code", body.Code).Debug("request rejected")
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: body})
}

// respondValidation отвечает 400 на некорректное тело запроса.
func respondValidation(c *gin.Context, format string, args ...any) {
	respondError(c, domain.Validationf(format, args...))
}

func loggerFrom(c *gin.Context) *log.Entry {
	if v, ok := c.Get(ctxLoggerKey); ok {
		if entry, ok := v.(*log.Entry); ok {
			return entry
		}
	}
	return log.WithField("component", "http")
}
