package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
	"github.com/vladislavdragonenkov/bakery/internal/metrics"
	"github.com/vladislavdragonenkov/bakery/internal/service/assistant"
	"github.com/vladislavdragonenkov/bakery/internal/service/cart"
	"github.com/vladislavdragonenkov/bakery/internal/service/catalog"
	"github.com/vladislavdragonenkov/bakery/internal/service/checkout"
	"github.com/vladislavdragonenkov/bakery/internal/service/inventory"
	"github.com/vladislavdragonenkov/bakery/internal/service/orderstatus"
	"github.com/vladislavdragonenkov/bakery/internal/service/payment"
)

// Dependencies: сервисы и инфраструктура, нужные REST API.
type Dependencies struct {
	Carts       *cart.Service
	Checkout    *checkout.Service
	Payments    *payment.Service
	Orders      *orderstatus.Service
	Catalog     *catalog.Service
	Ledger      *inventory.Ledger
	Assistant   *assistant.Bridge
	Idempotency domain.IdempotencyRepository
	Auth        *Authenticator
	Metrics     *metrics.HTTPMetrics
	Logger      *log.Entry
	// Режим gin (debug|release|test); пустое значение не меняет текущий.
	Mode string
}

// NewRouter собирает gin.Engine со всеми маршрутами витрины.
func NewRouter(deps Dependencies) *gin.Engine {
	if deps.Mode != "" {
		gin.SetMode(deps.Mode)
	}
	if deps.Logger == nil {
		deps.Logger = log.WithField("component", "http")
	}

	h := &handlers{
		carts:     deps.Carts,
		checkout:  deps.Checkout,
		payments:  deps.Payments,
		orders:    deps.Orders,
		catalog:   deps.Catalog,
		ledger:    deps.Ledger,
		assistant: deps.Assistant,
	}

	r := gin.New()
	r.Use(requestContext(deps.Logger), recovery(), accessLog(), observe(deps.Metrics), authenticate(deps.Auth))
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorEnvelope{Error: ErrorBody{Code: CodeNotFound, Message: "route not found"}})
	})
	r.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	r.GET("/products", h.listProducts)
	r.GET("/products/:productId", h.getProduct)

	r.GET("/cart", h.getCart)
	r.POST("/cart/items", h.addCartItem)
	r.PATCH("/cart/items/:itemId", h.updateCartItem)
	r.DELETE("/cart/items/:itemId", h.removeCartItem)

	idem := idempotent(deps.Idempotency)
	r.POST("/orders", idem, h.createOrder)
	r.GET("/orders", h.listOrders)
	r.GET("/orders/:orderId", h.getOrder)
	r.PATCH("/orders/:orderId/status", requireAdmin(), h.updateOrderStatus)
	r.POST("/payments", idem, h.processPayment)

	r.POST("/assistant/tools", h.dispatchTool)

	admin := r.Group("/admin", requireAdmin())
	{
		admin.PATCH("/variants/:variantId/price", h.updateVariantPrice)
		admin.POST("/inventory/:variantId/adjustments", h.adjustInventory)
		admin.GET("/inventory/:variantId", h.getInventory)
		admin.GET("/orders", h.listAllOrders)
	}

	return r
}
