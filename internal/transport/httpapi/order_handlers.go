package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
	"github.com/vladislavdragonenkov/bakery/internal/service/checkout"
	"github.com/vladislavdragonenkov/bakery/internal/service/payment"
)

type createOrderRequest struct {
	CartID          string          `json:"cartId"`
	ShippingAddress domain.Address  `json:"shippingAddress"`
	BillingAddress  *domain.Address `json:"billingAddress"`
	Email           string          `json:"email"`
	Notes           string          `json:"notes"`
	SessionID       string          `json:"sessionId"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

type paymentRequest struct {
	OrderID     string           `json:"orderId"`
	Method      string           `json:"method"`
	Amount      *decimal.Decimal `json:"amount"`
	ForceResult string           `json:"forceResult"`
	SessionID   string           `json:"sessionId"`
}

func (h *handlers) createOrder(c *gin.Context) {
	var req createOrderRequest
	if !bindJSON(c, &req) {
		return
	}
	order, err := h.checkout.CreateOrderFromCart(c.Request.Context(), requesterFrom(c, req.SessionID), checkout.Request{
		CartID:          req.CartID,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		Email:           req.Email,
		Notes:           req.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toOrder(order))
}

func (h *handlers) listOrders(c *gin.Context) {
	limit, ok := limitParam(c)
	if !ok {
		return
	}
	orders, err := h.orders.ListForRequester(c.Request.Context(), requesterFrom(c, ""), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": toOrders(orders)})
}

func (h *handlers) getOrder(c *gin.Context) {
	details, err := h.orders.Get(c.Request.Context(), requesterFrom(c, ""), c.Param("orderId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderDetails(details))
}

func (h *handlers) updateOrderStatus(c *gin.Context) {
	var req updateStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	next, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	order, err := h.orders.UpdateStatus(c.Request.Context(), requesterFrom(c, ""), c.Param("orderId"), next, req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrder(order))
}

func (h *handlers) processPayment(c *gin.Context) {
	var req paymentRequest
	if !bindJSON(c, &req) {
		return
	}
	var method domain.PaymentMethod
	if req.Method != "" {
		parsed, err := domain.ParsePaymentMethod(req.Method)
		if err != nil {
			respondError(c, err)
			return
		}
		method = parsed
	}
	forced, err := domain.ParseForcedResult(req.ForceResult)
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.payments.ProcessPayment(c.Request.Context(), requesterFrom(c, req.SessionID), payment.Request{
		OrderID:        req.OrderID,
		Method:         method,
		Amount:         req.Amount,
		ForceResult:    forced,
		IdempotencyKey: c.GetHeader(headerIdempotencyKey),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPaymentResponse(result))
}
