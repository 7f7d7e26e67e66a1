package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/bakery/internal/service/assistant"
	"github.com/vladislavdragonenkov/bakery/internal/service/cart"
	"github.com/vladislavdragonenkov/bakery/internal/service/catalog"
	"github.com/vladislavdragonenkov/bakery/internal/service/checkout"
	"github.com/vladislavdragonenkov/bakery/internal/service/inventory"
	"github.com/vladislavdragonenkov/bakery/internal/service/orderstatus"
	"github.com/vladislavdragonenkov/bakery/internal/service/payment"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type handlers struct {
	carts     *cart.Service
	checkout  *checkout.Service
	payments  *payment.Service
	orders    *orderstatus.Service
	catalog   *catalog.Service
	ledger    *inventory.Ledger
	assistant *assistant.Bridge
}

// bindJSON декодирует тело запроса; при ошибке уже ответил 400.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondValidation(c, "invalid request body: %v", err)
		return false
	}
	return true
}

// bindOptionalJSON допускает пустое тело, например у DELETE.
func bindOptionalJSON(c *gin.Context, dst any) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	return bindJSON(c, dst)
}

// limitParam читает ?limit=, ограничивая его сверху.
func limitParam(c *gin.Context) (int, bool) {
	raw := strings.TrimSpace(c.Query("limit"))
	if raw == "" {
		return defaultListLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		respondValidation(c, "limit must be a positive integer")
		return 0, false
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit, true
}

func (h *handlers) listProducts(c *gin.Context) {
	requester := requesterFrom(c, "")
	var (
		out []productDTO
		err error
	)
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		products, searchErr := h.catalog.Search(c.Request.Context(), q)
		err = searchErr
		for _, p := range products {
			out = append(out, toProduct(p))
		}
	} else {
		products, listErr := h.catalog.List(c.Request.Context(), requester)
		err = listErr
		for _, p := range products {
			out = append(out, toProduct(p))
		}
	}
	if err != nil {
		respondError(c, err)
		return
	}
	if out == nil {
		out = []productDTO{}
	}
	c.JSON(http.StatusOK, gin.H{"products": out})
}

func (h *handlers) getProduct(c *gin.Context) {
	product, err := h.catalog.Get(c.Request.Context(), requesterFrom(c, ""), c.Param("productId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toProduct(product))
}

type assistantRequest struct {
	assistant.Invocation
	SessionID string `json:"sessionId"`
}

func (h *handlers) dispatchTool(c *gin.Context) {
	var req assistantRequest
	if !bindJSON(c, &req) {
		return
	}
	reply, err := h.assistant.Dispatch(c.Request.Context(), requesterFrom(c, req.SessionID), req.Invocation)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}
