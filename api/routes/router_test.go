package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalcatalog "github.com/edutrack/commerce-backend/internal/catalog"
	internalorders "github.com/edutrack/commerce-backend/internal/orders"
	midtranswebhook "github.com/edutrack/commerce-backend/internal/webhooks/midtrans"
	pkgauth "github.com/edutrack/commerce-backend/pkg/auth"
	"github.com/edutrack/commerce-backend/pkg/config"
	"github.com/edutrack/commerce-backend/pkg/enums"
	"github.com/edutrack/commerce-backend/pkg/logger"
	"github.com/edutrack/commerce-backend/pkg/pagination"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubOrders struct{}

func (stubOrders) Get(_ context.Context, _ uuid.UUID, orderNumber string) (*internalorders.OrderSummary, error) {
	return &internalorders.OrderSummary{OrderNumber: orderNumber}, nil
}

func (stubOrders) List(_ context.Context, _ uuid.UUID, params pagination.Params) (*internalorders.OrderList, error) {
	return &internalorders.OrderList{Orders: []internalorders.OrderSummary{}, Meta: pagination.NewMeta(params, 0)}, nil
}

type stubCatalog struct{}

func (stubCatalog) Get(_ context.Context, productID uuid.UUID) (*internalcatalog.ProductDTO, error) {
	return &internalcatalog.ProductDTO{ID: productID}, nil
}

func (stubCatalog) Create(context.Context, uuid.UUID, internalcatalog.ProductInput) (*internalcatalog.EditResult, error) {
	return &internalcatalog.EditResult{}, nil
}

func (stubCatalog) Update(context.Context, uuid.UUID, uuid.UUID, internalcatalog.ProductInput) (*internalcatalog.EditResult, error) {
	return &internalcatalog.EditResult{}, nil
}

type stubSettlement struct{}

func (stubSettlement) Process(context.Context, midtranswebhook.Notification) (midtranswebhook.Result, error) {
	return midtranswebhook.Result{}, nil
}

type stubGuard struct{}

func (stubGuard) CheckAndMark(context.Context, string) (bool, error) {
	return true, nil
}

func (stubGuard) Release(context.Context, string) error {
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		App:      config.AppConfig{Env: "test"},
		JWT:      config.JWTConfig{Secret: "router-test-secret", Issuer: "edutrack-test", ExpirationMinutes: 15},
		Midtrans: config.MidtransConfig{ServerKey: "SB-Mid-server-test", VerifySignature: true},
	}
}

func newTestRouter(t *testing.T) (http.Handler, *config.Config) {
	t.Helper()
	cfg := testConfig()
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "edutrack_router_test_total", Help: "test counter"}))
	return NewRouter(Dependencies{
		Config:       cfg,
		Logger:       logger.Nop(),
		DB:           stubPinger{},
		Redis:        stubPinger{},
		Gatherer:     reg,
		Orders:       stubOrders{},
		Catalog:      stubCatalog{},
		Settlement:   stubSettlement{},
		WebhookGuard: stubGuard{},
	}), cfg
}

func bearer(t *testing.T, cfg *config.Config, role enums.Role) string {
	t.Helper()
	token, err := pkgauth.MintAccessToken(cfg.JWT, time.Now(), pkgauth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   role,
		JTI:    uuid.NewString(),
	})
	require.NoError(t, err)
	return "Bearer " + token
}

func serve(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func TestHealthRoutes(t *testing.T) {
	router, _ := newTestRouter(t)

	resp := serve(router, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.NotEmpty(t, resp.Header().Get("X-Request-Id"))

	resp = serve(router, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestMetricsRouteServesRegistry(t *testing.T) {
	router, _ := newTestRouter(t)
	resp := serve(router, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "edutrack_router_test_total")
}

func TestAPIRequiresToken(t *testing.T) {
	router, _ := newTestRouter(t)
	resp := serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestOrdersReachableWithToken(t *testing.T) {
	router, cfg := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/ORDFE-001-26100001", nil)
	req.Header.Set("Authorization", bearer(t, cfg, enums.RoleStudent))

	resp := serve(router, req)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "ORDFE-001-26100001")
}

func TestAdminProductsRequireAdminRole(t *testing.T) {
	router, cfg := newTestRouter(t)
	target := "/api/v1/admin/products/" + uuid.NewString()

	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("Authorization", bearer(t, cfg, enums.RoleStudent))
	assert.Equal(t, http.StatusForbidden, serve(router, req).Code)

	req = httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("Authorization", bearer(t, cfg, enums.RoleAdmin))
	assert.Equal(t, http.StatusOK, serve(router, req).Code)
}

func TestMidtransWebhookSkipsAuth(t *testing.T) {
	router, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/midtrans", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")

	resp := serve(router, req)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"status":"ok"}`, resp.Body.String())
}
