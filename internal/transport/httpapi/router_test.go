package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
	"github.com/vladislavdragonenkov/bakery/internal/metrics"
	"github.com/vladislavdragonenkov/bakery/internal/service/assistant"
	"github.com/vladislavdragonenkov/bakery/internal/service/cart"
	"github.com/vladislavdragonenkov/bakery/internal/service/catalog"
	"github.com/vladislavdragonenkov/bakery/internal/service/checkout"
	"github.com/vladislavdragonenkov/bakery/internal/service/inventory"
	"github.com/vladislavdragonenkov/bakery/internal/service/orderstatus"
	"github.com/vladislavdragonenkov/bakery/internal/service/payment"
	"github.com/vladislavdragonenkov/bakery/internal/storage/memory"
	"github.com/vladislavdragonenkov/bakery/internal/testkit"
)

const testSecret = "test-secret"

type RouterSuite struct {
	suite.Suite
	store  *memory.Store
	auth   *Authenticator
	router *gin.Engine
}

func TestRouterSuite(t *testing.T) {
	gin.SetMode(gin.TestMode)
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.store = testkit.NewStore(s.T(), testkit.DefaultStock())
	s.auth = NewAuthenticator(testSecret, "")

	ledger := inventory.NewLedger(s.store, nil, nil)
	carts := cart.NewService(s.store, nil, nil)
	orders := orderstatus.NewService(s.store, orderstatus.Options{Strict: true}, nil, nil)
	catalogSvc := catalog.NewService(s.store, ledger, nil)

	s.router = NewRouter(Dependencies{
		Carts:       carts,
		Checkout:    checkout.NewService(s.store, ledger, nil, nil),
		Payments:    payment.NewService(s.store, payment.NewSimulatedGateway(payment.ModeDeterministic, nil), nil, nil),
		Orders:      orders,
		Catalog:     catalogSvc,
		Ledger:      ledger,
		Assistant:   assistant.NewBridge(catalogSvc, carts, orders, nil),
		Idempotency: memory.NewIdempotencyRepository(),
		Auth:        s.auth,
		Metrics:     metrics.NewHTTPMetrics(prometheus.NewRegistry()),
	})
}

func (s *RouterSuite) token(userID string, role domain.Role) string {
	tok, err := s.auth.Issue(userID, role, time.Hour)
	s.Require().NoError(err)
	return tok
}

func (s *RouterSuite) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *RouterSuite) decode(rec *httptest.ResponseRecorder, dst any) {
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func (s *RouterSuite) errorCode(rec *httptest.ResponseRecorder) string {
	var env ErrorEnvelope
	s.decode(rec, &env)
	return env.Error.Code
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func (s *RouterSuite) addSourdough(sessionID string) cartDTO {
	rec := s.do(http.MethodPost, "/cart/items", gin.H{"variantId": testkit.SourdoughVariant, "quantity": 1, "sessionId": sessionID}, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var c cartDTO
	s.decode(rec, &c)
	return c
}

func (s *RouterSuite) TestGuestCheckoutAndPayment() {
	c := s.addSourdough("sess-1")
	s.Require().Len(c.Items, 1)
	s.Require().Equal("34.00", c.Summary.Subtotal)
	s.Require().Equal("2.72", c.Summary.Tax)
	s.Require().Equal("5.00", c.Summary.ShippingFee)
	s.Require().Equal("41.72", c.Summary.Total)

	rec := s.do(http.MethodPost, "/orders", gin.H{
		"cartId":          c.ID,
		"shippingAddress": testkit.ShippingAddress(),
		"sessionId":       "sess-1",
	}, nil)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var order orderDTO
	s.decode(rec, &order)
	s.Require().Equal("PENDING", order.Status)
	s.Require().Equal("41.72", order.Total)
	s.Require().Equal(9, testkit.Quantity(s.T(), s.store, testkit.SourdoughVariant))

	rec = s.do(http.MethodPost, "/payments", gin.H{"orderId": order.ID, "amount": "40.00", "sessionId": "sess-1"}, nil)
	s.Require().Equal(http.StatusBadRequest, rec.Code)
	s.Require().Equal(CodeInvalidPaymentAmount, s.errorCode(rec))

	rec = s.do(http.MethodPost, "/payments", gin.H{"orderId": order.ID, "method": "card", "sessionId": "sess-1"}, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var paid paymentResponse
	s.decode(rec, &paid)
	s.Require().True(paid.PaymentResult.Success)
	s.Require().Equal("CAPTURED", paid.Payment.Status)
	s.Require().Equal("41.72", paid.Payment.Amount)
	s.Require().Equal("CONFIRMED", paid.PaymentResult.Order.Status)

	rec = s.do(http.MethodGet, "/orders/"+order.ID+"?sessionId=sess-1", nil, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var details orderDetailsDTO
	s.decode(rec, &details)
	s.Require().Len(details.Payments, 1)
	s.Require().NotEmpty(details.Events)

	rec = s.do(http.MethodGet, "/orders/"+order.ID+"?sessionId=someone-else", nil, nil)
	s.Require().Equal(http.StatusForbidden, rec.Code)
}

func (s *RouterSuite) TestCartRequiresSessionForGuests() {
	rec := s.do(http.MethodGet, "/cart", nil, nil)
	s.Require().Equal(http.StatusBadRequest, rec.Code)
	s.Require().Equal(CodeValidation, s.errorCode(rec))

	rec = s.do(http.MethodGet, "/cart", nil, map[string]string{headerSessionID: "sess-h"})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var c cartDTO
	s.decode(rec, &c)
	s.Require().Equal("sess-h", c.SessionID)
	s.Require().Equal("ACTIVE", c.Status)
	s.Require().Empty(c.Items)
}

func (s *RouterSuite) TestInsufficientInventoryCarriesDetails() {
	rec := s.do(http.MethodPost, "/cart/items", gin.H{"variantId": testkit.SourdoughVariant, "quantity": 11, "sessionId": "sess-2"}, nil)
	s.Require().Equal(http.StatusBadRequest, rec.Code)

	var env struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	s.decode(rec, &env)
	s.Require().Equal(CodeInsufficientInventory, env.Error.Code)
	s.Require().Equal(testkit.SourdoughVariant, env.Error.Details["variantId"])
	s.Require().EqualValues(11, env.Error.Details["requested"])
	s.Require().EqualValues(10, env.Error.Details["available"])
}

func (s *RouterSuite) TestUpdateAndRemoveCartItem() {
	c := s.addSourdough("sess-3")
	itemID := c.Items[0].ID

	rec := s.do(http.MethodPatch, "/cart/items/"+itemID, gin.H{"quantity": 2, "sessionId": "sess-3"}, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.decode(rec, &c)
	s.Require().Equal(2, c.Items[0].Quantity)
	s.Require().Equal("68.00", c.Items[0].LineTotal)
	s.Require().Equal("0.00", c.Summary.ShippingFee)

	rec = s.do(http.MethodDelete, "/cart/items/"+itemID+"?sessionId=sess-3", nil, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.decode(rec, &c)
	s.Require().Empty(c.Items)

	rec = s.do(http.MethodDelete, "/cart/items/"+itemID, gin.H{"sessionId": "sess-3"}, nil)
	s.Require().Equal(http.StatusNotFound, rec.Code)
	s.Require().Equal(CodeCartItemNotFound, s.errorCode(rec))
}

func (s *RouterSuite) TestUpdateCartItemRequiresQuantity() {
	c := s.addSourdough("sess-qty")
	itemID := c.Items[0].ID

	rec := s.do(http.MethodPatch, "/cart/items/"+itemID, gin.H{"sessionId": "sess-qty"}, nil)
	s.Require().Equal(http.StatusBadRequest, rec.Code, rec.Body.String())
	s.Require().Equal(CodeValidation, s.errorCode(rec))

	rec = s.do(http.MethodGet, "/cart?sessionId=sess-qty", nil, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.decode(rec, &c)
	s.Require().Len(c.Items, 1)

	rec = s.do(http.MethodPatch, "/cart/items/"+itemID, gin.H{"quantity": 0, "sessionId": "sess-qty"}, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.decode(rec, &c)
	s.Require().Empty(c.Items)
}

func (s *RouterSuite) TestAuthentication() {
	rec := s.do(http.MethodGet, "/orders", nil, nil)
	s.Require().Equal(http.StatusUnauthorized, rec.Code)
	s.Require().Equal(CodeUnauthenticated, s.errorCode(rec))

	rec = s.do(http.MethodGet, "/orders", nil, bearer("not-a-jwt"))
	s.Require().Equal(http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodGet, "/orders", nil, map[string]string{"Authorization": "Basic abc"})
	s.Require().Equal(http.StatusUnauthorized, rec.Code)

	foreign, err := NewAuthenticator("other-secret", "").Issue("user-1", domain.RoleCustomer, time.Hour)
	s.Require().NoError(err)
	rec = s.do(http.MethodGet, "/orders", nil, bearer(foreign))
	s.Require().Equal(http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodGet, "/orders", nil, bearer(s.token("user-1", domain.RoleCustomer)))
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Require().JSONEq(`{"orders":[]}`, rec.Body.String())
}

func (s *RouterSuite) TestCustomerOrdersAreListed() {
	headers := bearer(s.token("user-7", domain.RoleCustomer))
	rec := s.do(http.MethodPost, "/cart/items", gin.H{"variantId": testkit.CroissantVariant, "quantity": 3}, headers)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var c cartDTO
	s.decode(rec, &c)
	s.Require().Equal("user-7", c.UserID)

	rec = s.do(http.MethodPost, "/orders", gin.H{"cartId": c.ID, "shippingAddress": testkit.ShippingAddress()}, headers)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/orders", nil, headers)
	s.Require().Equal(http.StatusOK, rec.Code)
	var list struct {
		Orders []orderDTO `json:"orders"`
	}
	s.decode(rec, &list)
	s.Require().Len(list.Orders, 1)
	s.Require().Equal("10.50", list.Orders[0].Subtotal)
}

func (s *RouterSuite) TestAdminRoutes() {
	rec := s.do(http.MethodPatch, "/admin/variants/"+testkit.SourdoughVariant+"/price", gin.H{"price": "30.00"}, nil)
	s.Require().Equal(http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodPatch, "/admin/variants/"+testkit.SourdoughVariant+"/price", gin.H{"price": "30.00"},
		bearer(s.token("user-1", domain.RoleCustomer)))
	s.Require().Equal(http.StatusForbidden, rec.Code)
	s.Require().Equal(CodeForbidden, s.errorCode(rec))

	admin := bearer(s.token("admin-1", domain.RoleAdmin))
	rec = s.do(http.MethodPatch, "/admin/variants/"+testkit.SourdoughVariant+"/price", gin.H{"price": "30.00"}, admin)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var v variantDTO
	s.decode(rec, &v)
	s.Require().Equal("30.00", v.Price)

	rec = s.do(http.MethodPost, "/admin/inventory/"+testkit.CakeVariant+"/adjustments", gin.H{"delta": 5, "reason": "RESTOCK", "reference": "po-1"}, admin)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var level inventoryLevelDTO
	s.decode(rec, &level)
	s.Require().Equal(8, level.Quantity)

	rec = s.do(http.MethodPost, "/admin/inventory/"+testkit.CakeVariant+"/adjustments", gin.H{"delta": -100, "reason": "DAMAGED"}, admin)
	s.Require().Equal(http.StatusBadRequest, rec.Code)
	s.Require().Equal(CodeInvalidAdjustment, s.errorCode(rec))

	rec = s.do(http.MethodGet, "/admin/inventory/"+testkit.CakeVariant, nil, admin)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var inv inventoryResponse
	s.decode(rec, &inv)
	s.Require().Equal(8, inv.Level.Quantity)
	s.Require().Len(inv.History, 2)
	s.Require().Equal("RESTOCK", inv.History[0].Reason)
	s.Require().Equal("admin-1", inv.History[0].Actor)

	rec = s.do(http.MethodGet, "/admin/orders?limit=abc", nil, admin)
	s.Require().Equal(http.StatusBadRequest, rec.Code)
	rec = s.do(http.MethodGet, "/admin/orders", nil, admin)
	s.Require().Equal(http.StatusOK, rec.Code)
}

func (s *RouterSuite) TestOrderStatusTransitions() {
	c := s.addSourdough("sess-4")
	rec := s.do(http.MethodPost, "/orders", gin.H{"cartId": c.ID, "shippingAddress": testkit.ShippingAddress(), "sessionId": "sess-4"}, nil)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var order orderDTO
	s.decode(rec, &order)

	admin := bearer(s.token("admin-1", domain.RoleAdmin))
	rec = s.do(http.MethodPatch, "/orders/"+order.ID+"/status", gin.H{"status": "refunded"}, admin)
	s.Require().Equal(http.StatusBadRequest, rec.Code)
	s.Require().Equal(CodeIllegalTransition, s.errorCode(rec))

	rec = s.do(http.MethodPatch, "/orders/"+order.ID+"/status", gin.H{"status": "bogus"}, admin)
	s.Require().Equal(http.StatusBadRequest, rec.Code)
	s.Require().Equal(CodeValidation, s.errorCode(rec))

	rec = s.do(http.MethodPatch, "/orders/"+order.ID+"/status", gin.H{"status": "CANCELLED", "note": "customer called"}, admin)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.decode(rec, &order)
	s.Require().Equal("CANCELLED", order.Status)

	rec = s.do(http.MethodPost, "/payments", gin.H{"orderId": order.ID, "sessionId": "sess-4"}, nil)
	s.Require().Equal(http.StatusBadRequest, rec.Code)
	s.Require().Equal(CodeOrderNotPayable, s.errorCode(rec))
}

func (s *RouterSuite) TestIdempotentOrderCreation() {
	c := s.addSourdough("sess-5")
	body := gin.H{"cartId": c.ID, "shippingAddress": testkit.ShippingAddress(), "sessionId": "sess-5"}
	headers := map[string]string{headerIdempotencyKey: "order-key-1"}

	first := s.do(http.MethodPost, "/orders", body, headers)
	s.Require().Equal(http.StatusCreated, first.Code, first.Body.String())

	second := s.do(http.MethodPost, "/orders", body, headers)
	s.Require().Equal(http.StatusCreated, second.Code)
	s.Require().Equal("true", second.Header().Get(headerReplayed))
	s.Require().JSONEq(first.Body.String(), second.Body.String())
	s.Require().Equal(9, testkit.Quantity(s.T(), s.store, testkit.SourdoughVariant))

	body["notes"] = "different payload"
	third := s.do(http.MethodPost, "/orders", body, headers)
	s.Require().Equal(http.StatusConflict, third.Code)
	s.Require().Equal(CodeIdempotencyMismatch, s.errorCode(third))
}

func (s *RouterSuite) TestIdempotentFailureIsReplayed() {
	headers := map[string]string{headerIdempotencyKey: "pay-key-1"}
	body := gin.H{"orderId": "missing-order", "sessionId": "sess-6"}

	first := s.do(http.MethodPost, "/payments", body, headers)
	s.Require().Equal(http.StatusNotFound, first.Code)

	second := s.do(http.MethodPost, "/payments", body, headers)
	s.Require().Equal(http.StatusNotFound, second.Code)
	s.Require().Equal("true", second.Header().Get(headerReplayed))
	s.Require().Equal(CodeOrderNotFound, s.errorCode(second))
}

func (s *RouterSuite) TestProductsVisibility() {
	rec := s.do(http.MethodGet, "/products", nil, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var list struct {
		Products []productDTO `json:"products"`
	}
	s.decode(rec, &list)
	s.Require().Len(list.Products, 3)

	rec = s.do(http.MethodGet, "/products", nil, bearer(s.token("admin-1", domain.RoleAdmin)))
	s.decode(rec, &list)
	s.Require().Len(list.Products, 4)

	rec = s.do(http.MethodGet, "/products/prod-seasonal", nil, nil)
	s.Require().Equal(http.StatusNotFound, rec.Code)
	s.Require().Equal(CodeProductNotFound, s.errorCode(rec))

	rec = s.do(http.MethodGet, "/products/prod-sourdough", nil, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var p productDTO
	s.decode(rec, &p)
	s.Require().Equal("34.00", p.Variants[0].Price)
}

func (s *RouterSuite) TestAssistantTools() {
	rec := s.do(http.MethodPost, "/assistant/tools", gin.H{"tool": "launch_rocket"}, nil)
	s.Require().Equal(http.StatusBadRequest, rec.Code)
	s.Require().Equal(CodeUnknownTool, s.errorCode(rec))

	rec = s.do(http.MethodPost, "/assistant/tools", gin.H{
		"tool":  "add_to_cart",
		"input": gin.H{"variantId": testkit.CroissantVariant, "quantity": 2, "sessionId": "sess-7"},
	}, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var reply struct {
		Tool string `json:"tool"`
	}
	s.decode(rec, &reply)
	s.Require().Equal("add_to_cart", reply.Tool)
}

func (s *RouterSuite) TestMalformedBodyAndUnknownRoute() {
	req := httptest.NewRequest(http.MethodPost, "/cart/items", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Require().Equal(http.StatusBadRequest, rec.Code)
	s.Require().Equal(CodeValidation, s.errorCode(rec))

	rec = s.do(http.MethodGet, "/nope", nil, nil)
	s.Require().Equal(http.StatusNotFound, rec.Code)
	s.Require().Equal(CodeNotFound, s.errorCode(rec))
}

func (s *RouterSuite) TestPanicBecomesInternalError() {
	s.router.GET("/boom", func(*gin.Context) { panic("kaboom") })
	rec := s.do(http.MethodGet, "/boom", nil, nil)
	s.Require().Equal(http.StatusInternalServerError, rec.Code)
	s.Require().Equal(CodeInternal, s.errorCode(rec))
	s.Require().NotEmpty(rec.Header().Get(headerRequestID))
}
