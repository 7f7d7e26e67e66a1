package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type addItemRequest struct {
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity"`
	Currency  string `json:"currency"`
	SessionID string `json:"sessionId"`
}

// updateItemRequest: quantity обязателен, явный 0 удаляет позицию.
type updateItemRequest struct {
	Quantity  *int   `json:"quantity"`
	SessionID string `json:"sessionId"`
}

type sessionRequest struct {
	SessionID string `json:"sessionId"`
}

func (h *handlers) getCart(c *gin.Context) {
	requester := requesterFrom(c, "")
	view, err := h.carts.GetOrCreateActive(c.Request.Context(), requester.Owner(), c.Query("currency"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCart(view))
}

func (h *handlers) addCartItem(c *gin.Context) {
	var req addItemRequest
	if !bindJSON(c, &req) {
		return
	}
	view, err := h.carts.AddItem(c.Request.Context(), requesterFrom(c, req.SessionID), req.VariantID, req.Quantity, req.Currency)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCart(view))
}

func (h *handlers) updateCartItem(c *gin.Context) {
	var req updateItemRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Quantity == nil {
		respondValidation(c, "quantity is required")
		return
	}
	view, err := h.carts.UpdateQuantity(c.Request.Context(), requesterFrom(c, req.SessionID), c.Param("itemId"), *req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCart(view))
}

func (h *handlers) removeCartItem(c *gin.Context) {
	var req sessionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	view, err := h.carts.RemoveItem(c.Request.Context(), requesterFrom(c, req.SessionID), c.Param("itemId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCart(view))
}
