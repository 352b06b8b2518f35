package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edutrack/commerce-backend/api/middleware"
	checkoutsvc "github.com/edutrack/commerce-backend/internal/checkout"
	"github.com/edutrack/commerce-backend/internal/orders"
	"github.com/edutrack/commerce-backend/pkg/config"
	pkgerrors "github.com/edutrack/commerce-backend/pkg/errors"
	"github.com/edutrack/commerce-backend/pkg/logger"
	"github.com/edutrack/commerce-backend/pkg/types"
)

type stubCheckout struct {
	got checkoutsvc.Input
	err error
}

func (s *stubCheckout) Checkout(_ context.Context, in checkoutsvc.Input) (*orders.OrderSummary, error) {
	s.got = in
	if s.err != nil {
		return nil, s.err
	}
	return &orders.OrderSummary{OrderNumber: "ORDFE-001-26100001", GrandTotal: decimal.NewFromInt(212000)}, nil
}

func authedRequest(method, target, body string, userID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	return req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) types.APIError {
	t.Helper()
	var env types.ErrorEnvelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env))
	return env.Error
}

func TestCheckoutCreatesOrder(t *testing.T) {
	svc := &stubCheckout{}
	userID := uuid.New()
	productID := uuid.New()
	body := `{"product_ids":["` + productID.String() + `"],"promo":"10000"}`

	resp := httptest.NewRecorder()
	Checkout(svc, logger.Nop()).ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/checkout", body, userID))

	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, userID, svc.got.UserID)
	assert.Equal(t, []uuid.UUID{productID}, svc.got.ProductIDs)
	assert.True(t, svc.got.Promo.Equal(decimal.NewFromInt(10000)))
	assert.Contains(t, resp.Body.String(), "ORDFE-001-26100001")
}

func TestCheckoutDefaultsPromoToZero(t *testing.T) {
	svc := &stubCheckout{}
	body := `{"product_ids":["` + uuid.NewString() + `"]}`

	resp := httptest.NewRecorder()
	Checkout(svc, logger.Nop()).ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/checkout", body, uuid.New()))

	require.Equal(t, http.StatusCreated, resp.Code)
	assert.True(t, svc.got.Promo.IsZero())
}

func TestCheckoutRejectsEmptySelection(t *testing.T) {
	resp := httptest.NewRecorder()
	Checkout(&stubCheckout{}, logger.Nop()).ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/checkout", `{"product_ids":[]}`, uuid.New()))

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, string(pkgerrors.CodeValidation), decodeError(t, resp).Code)
}

func TestCheckoutRequiresAuthenticatedUser(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{}`))
	resp := httptest.NewRecorder()
	Checkout(&stubCheckout{}, logger.Nop()).ServeHTTP(resp, req)

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestCheckoutMapsServiceErrors(t *testing.T) {
	cases := map[pkgerrors.Code]int{
		pkgerrors.CodeConflict:   http.StatusConflict,
		pkgerrors.CodeDependency: http.StatusBadGateway,
		pkgerrors.CodeNotFound:   http.StatusNotFound,
	}
	for code, status := range cases {
		svc := &stubCheckout{err: pkgerrors.New(code, "failed")}
		body := `{"product_ids":["` + uuid.NewString() + `"]}`
		resp := httptest.NewRecorder()
		Checkout(svc, logger.Nop()).ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/checkout", body, uuid.New()))
		assert.Equal(t, status, resp.Code, "code %s", code)
	}
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	resp := httptest.NewRecorder()
	HealthReady(cfg, logger.Nop(), map[string]Pinger{"postgres": ok, "redis": ok}).
		ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = httptest.NewRecorder()
	HealthReady(cfg, logger.Nop(), map[string]Pinger{"postgres": ok, "redis": down}).
		ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusBadGateway, resp.Code)
	assert.Equal(t, "test", resp.Header().Get("X-Edutrack-Env"))
}

func TestHealthLive(t *testing.T) {
	resp := httptest.NewRecorder()
	HealthLive(&config.Config{}).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
}
