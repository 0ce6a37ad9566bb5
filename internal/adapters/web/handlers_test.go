package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ricemill-inventory/internal/app"
	"ricemill-inventory/internal/config"
	"ricemill-inventory/internal/core"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

// fakeService implements the handful of ApplicationService methods the tests
// drive; anything else panics through the nil embedded interface.
type fakeService struct {
	app.ApplicationService

	pingErr     error
	moveErr     error
	lastMove    app.MoveStockRequest
	orderErr    error
	shipment    *app.ShipmentStatusResult
	lastFilter  core.LedgerFilter
	lastFulfill string
}

func (f *fakeService) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeService) MoveStock(ctx context.Context, req app.MoveStockRequest) (*core.MoveResult, error) {
	f.lastMove = req
	if f.moveErr != nil {
		return nil, f.moveErr
	}
	return &core.MoveResult{
		Out: core.InventoryTransaction{ID: 1, Kind: core.KindStockOut, Quantity: req.Quantity},
		In:  core.InventoryTransaction{ID: 2, Kind: core.KindStockIn, Quantity: req.Quantity},
	}, nil
}

func (f *fakeService) GetOrder(ctx context.Context, id int) (*core.Order, error) {
	if f.orderErr != nil {
		return nil, f.orderErr
	}
	return &core.Order{ID: id, CustomerName: "Aling Nena", Status: "Pending"}, nil
}

func (f *fakeService) AdvanceDeliveryShipmentStatus(ctx context.Context, deliveryID int, status string) (*app.ShipmentStatusResult, error) {
	return f.shipment, nil
}

func (f *fakeService) ListLedger(ctx context.Context, filter core.LedgerFilter) (*app.LedgerResult, error) {
	f.lastFilter = filter
	return &app.LedgerResult{Entries: []core.InventoryTransaction{}}, nil
}

func (f *fakeService) FulfillDelivery(ctx context.Context, deliveryID int, fulfilledBy string) (*core.FulfillmentResult, error) {
	f.lastFulfill = fulfilledBy
	return &core.FulfillmentResult{DeliveryID: deliveryID, Status: "Completed"}, nil
}

func newTestHandler(svc app.ApplicationService) http.Handler {
	return NewHandler(svc, config.ServerConfig{MaxBodyBytes: 1 << 10}, testSecret, nil, nil)
}

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims jwtClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func validToken(t *testing.T) string {
	return signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwtClaims{
		Username: "ops",
		Role:     "warehouse",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
}

func do(t *testing.T, h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	svc := &fakeService{}
	rec := do(t, newTestHandler(svc), http.MethodGet, "/api/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	svc.pingErr = errors.New("connection refused")
	rec = do(t, newTestHandler(svc), http.MethodGet, "/api/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequestIDIsEchoedOrGenerated(t *testing.T) {
	h := newTestHandler(&fakeService{})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "<script>")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Len(t, rec.Header().Get("X-Request-ID"), 36)
}

func TestMutationsRequireValidToken(t *testing.T) {
	h := newTestHandler(&fakeService{})
	body := `{"product_id":1,"source_location_id":1,"target_location_id":2,"quantity":"10"}`

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"garbage", "not-a-jwt"},
		{"wrong secret", signToken(t, jwt.SigningMethodHS256, []byte("other"), jwtClaims{Username: "ops"})},
		{"unsigned", signToken(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwtClaims{Username: "ops"})},
		{"expired", signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwtClaims{
			Username:         "ops",
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
		})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/inventory/moves", body, tt.token)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "UNAUTHORIZED", decodeError(t, rec).Code)
		})
	}
}

func TestMoveStockRecordsActor(t *testing.T) {
	svc := &fakeService{}
	body := `{"product_id":1,"source_location_id":1,"target_location_id":2,"quantity":"25.5"}`

	rec := do(t, newTestHandler(svc), http.MethodPost, "/api/inventory/moves", body, validToken(t))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "ops", svc.lastMove.CreatedBy)
	assert.Equal(t, 2, svc.lastMove.TargetLocationID)
	assert.True(t, svc.lastMove.Quantity.Equal(decimal.RequireFromString("25.5")))
}

func TestServiceErrorsMapToStatus(t *testing.T) {
	shortfall := &core.ShortfallError{
		Err:         core.ErrInsufficientStock,
		ProductID:   1,
		ProductCode: "RICE",
		LocationID:  2,
		Needed:      decimal.NewFromInt(350),
		Available:   decimal.NewFromInt(300),
	}
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"shortfall", fmt.Errorf("move stock: %w", shortfall), http.StatusUnprocessableEntity, "INSUFFICIENT_STOCK"},
		{"inactive location", core.ErrLocationInactiveOrMissing, http.StatusUnprocessableEntity, "LOCATION_INACTIVE_OR_MISSING"},
		{"bad quantity", core.ErrInvalidQuantity, http.StatusBadRequest, "INVALID_QUANTITY"},
		{"not found", fmt.Errorf("product 9: %w", core.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"internal", errors.New("pq: connection reset"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{moveErr: tt.err}
			body := `{"product_id":1,"source_location_id":1,"target_location_id":2,"quantity":"350"}`
			rec := do(t, newTestHandler(svc), http.MethodPost, "/api/inventory/moves", body, validToken(t))

			assert.Equal(t, tt.status, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, tt.code, resp.Code)
			assert.NotEmpty(t, resp.RequestID)
		})
	}

	t.Run("shortfall message names product and location", func(t *testing.T) {
		svc := &fakeService{moveErr: shortfall}
		body := `{"product_id":1,"source_location_id":2,"target_location_id":1,"quantity":"350"}`
		rec := do(t, newTestHandler(svc), http.MethodPost, "/api/inventory/moves", body, validToken(t))
		assert.Contains(t, decodeError(t, rec).Error, "product RICE at location 2: needed 350, available 300")
	})

	t.Run("internal details are not leaked", func(t *testing.T) {
		svc := &fakeService{moveErr: errors.New("pq: connection reset")}
		body := `{"product_id":1,"source_location_id":2,"target_location_id":1,"quantity":"1"}`
		rec := do(t, newTestHandler(svc), http.MethodPost, "/api/inventory/moves", body, validToken(t))
		assert.NotContains(t, rec.Body.String(), "connection reset")
	})
}

func TestStatusForStateConflicts(t *testing.T) {
	for _, err := range []error{
		core.ErrPurchaseOrderNotOpen,
		core.ErrInvalidStatusTransition,
		core.ErrDeliveryNotReady,
		core.ErrAlreadyFulfilled,
		core.ErrNothingToBackorder,
	} {
		assert.Equal(t, http.StatusConflict, statusFor(fmt.Errorf("wrapped: %w", err)), err.Error())
	}
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(core.ErrOverReceipt))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(core.ErrNegativeResultNotAllowed))
}

func TestRejectsBadRequests(t *testing.T) {
	h := newTestHandler(&fakeService{})
	token := validToken(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"non-numeric id", http.MethodGet, "/api/orders/abc", "", http.StatusBadRequest},
		{"zero id", http.MethodGet, "/api/orders/0", "", http.StatusBadRequest},
		{"malformed json", http.MethodPost, "/api/inventory/moves", `{"product_id":`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/inventory/moves", `{"product_id":1,"sku":"x"}`, http.StatusBadRequest},
		{"missing locations", http.MethodPost, "/api/inventory/moves", `{"product_id":1,"quantity":"5"}`, http.StatusBadRequest},
		{"body too large", http.MethodPost, "/api/inventory/moves", `{"note":"` + strings.Repeat("x", 2<<10) + `"}`, http.StatusRequestEntityTooLarge},
		{"unknown ledger kind", http.MethodGet, "/api/ledger?kind=GIFT", "", http.StatusBadRequest},
		{"negative ledger limit", http.MethodGet, "/api/ledger?limit=-1", "", http.StatusBadRequest},
		{"fifo without quantity", http.MethodGet, "/api/products/1/fifo", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body, token)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestGetOrderNotFound(t *testing.T) {
	svc := &fakeService{orderErr: fmt.Errorf("order 99: %w", core.ErrNotFound)}
	rec := do(t, newTestHandler(svc), http.MethodGet, "/api/orders/99", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListLedgerFilters(t *testing.T) {
	svc := &fakeService{}
	rec := do(t, newTestHandler(svc), http.MethodGet, "/api/ledger?product_id=3&kind=stock_out&limit=20", "", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, svc.lastFilter.ProductID)
	assert.Equal(t, core.KindStockOut, svc.lastFilter.Kind)
	assert.Equal(t, 20, svc.lastFilter.Limit)
}

func TestAdvanceShipmentStatusGate(t *testing.T) {
	svc := &fakeService{shipment: &app.ShipmentStatusResult{
		Accepted: false,
		Reason:   "Milled Rice: needed 200, available 0",
	}}
	h := newTestHandler(svc)

	rec := do(t, h, http.MethodPost, "/api/deliveries/5/shipment-status", `{"status":"In Transit"}`, validToken(t))
	assert.Equal(t, http.StatusConflict, rec.Code)
	var resp app.ShipmentStatusResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Accepted)
	assert.Contains(t, resp.Reason, "Milled Rice")

	svc.shipment = &app.ShipmentStatusResult{Accepted: true, Update: &core.ShipmentUpdate{DeliveryID: 5, ShipmentStatus: core.ShipmentInTransit}}
	rec = do(t, h, http.MethodPost, "/api/deliveries/5/shipment-status", `{"status":"In Transit"}`, validToken(t))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestFulfillDeliveryUsesCookieToken(t *testing.T) {
	svc := &fakeService{}
	req := httptest.NewRequest(http.MethodPost, "/api/deliveries/7/fulfill", nil)
	req.AddCookie(&http.Cookie{Name: "auth_token", Value: validToken(t)})
	rec := httptest.NewRecorder()
	newTestHandler(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "ops", svc.lastFulfill)
}

func TestSchemas(t *testing.T) {
	h := newTestHandler(&fakeService{})

	rec := do(t, h, http.MethodGet, "/api/schemas/move", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var schema struct {
		Properties           map[string]map[string]any `json:"properties"`
		AdditionalProperties any                       `json:"additionalProperties"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &schema))
	assert.Equal(t, "string", schema.Properties["quantity"]["type"])
	assert.Equal(t, false, schema.AdditionalProperties)

	rec = do(t, h, http.MethodGet, "/api/schemas", "", "")
	assert.Contains(t, rec.Body.String(), `"place_order"`)

	rec = do(t, h, http.MethodGet, "/api/schemas/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORS(t *testing.T) {
	h := NewHandler(&fakeService{}, config.ServerConfig{AllowedOrigins: "https://mill.example"}, testSecret, nil, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/inventory/moves", nil)
	req.Header.Set("Origin", "https://mill.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://mill.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
