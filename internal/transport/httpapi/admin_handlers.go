package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

type updatePriceRequest struct {
	Price decimal.Decimal `json:"price"`
}

type adjustmentRequest struct {
	Delta     int    `json:"delta"`
	Reason    string `json:"reason"`
	Reference string `json:"reference"`
}

func (h *handlers) updateVariantPrice(c *gin.Context) {
	var req updatePriceRequest
	if !bindJSON(c, &req) {
		return
	}
	variant, err := h.catalog.UpdateVariantPrice(c.Request.Context(), requesterFrom(c, ""), c.Param("variantId"), req.Price)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toVariant(variant))
}

func (h *handlers) adjustInventory(c *gin.Context) {
	var req adjustmentRequest
	if !bindJSON(c, &req) {
		return
	}
	reason := domain.InventoryReason(req.Reason)
	if reason == "" {
		reason = domain.InventoryReasonManualAdjustment
	}
	level, err := h.ledger.Adjust(c.Request.Context(), domain.Adjustment{
		VariantID: c.Param("variantId"),
		Delta:     req.Delta,
		Reason:    reason,
		Actor:     requesterFrom(c, "").Actor(),
		Reference: req.Reference,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toLevel(level))
}

func (h *handlers) getInventory(c *gin.Context) {
	limit, ok := limitParam(c)
	if !ok {
		return
	}
	variantID := c.Param("variantId")
	level, err := h.ledger.Level(c.Request.Context(), variantID)
	if err != nil {
		respondError(c, err)
		return
	}
	history, err := h.ledger.History(c.Request.Context(), variantID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toInventory(level, history))
}

func (h *handlers) listAllOrders(c *gin.Context) {
	limit, ok := limitParam(c)
	if !ok {
		return
	}
	orders, err := h.orders.ListAll(c.Request.Context(), requesterFrom(c, ""), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": toOrders(orders)})
}
