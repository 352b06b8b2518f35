package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edutrack/commerce-backend/api/controllers"
	cartcontrollers "github.com/edutrack/commerce-backend/api/controllers/cart"
	catalogcontrollers "github.com/edutrack/commerce-backend/api/controllers/catalog"
	ordercontrollers "github.com/edutrack/commerce-backend/api/controllers/orders"
	webhookcontrollers "github.com/edutrack/commerce-backend/api/controllers/webhooks"
	"github.com/edutrack/commerce-backend/api/middleware"
	"github.com/edutrack/commerce-backend/pkg/config"
	"github.com/edutrack/commerce-backend/pkg/enums"
	"github.com/edutrack/commerce-backend/pkg/logger"
	pkgredis "github.com/edutrack/commerce-backend/pkg/redis"
)

// Dependencies are the services the HTTP surface is built from.
type Dependencies struct {
	Config       *config.Config
	Logger       *logger.Logger
	DB           controllers.Pinger
	Redis        controllers.Pinger
	Idempotency  pkgredis.IdempotencyStore
	Gatherer     prometheus.Gatherer
	Checkout     controllers.CheckoutService
	Orders       ordercontrollers.Service
	Cart         cartcontrollers.Service
	Catalog      catalogcontrollers.Service
	Settlement   webhookcontrollers.SettlementProcessor
	WebhookGuard webhookcontrollers.DeliveryGuard
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Recoverer(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"postgres": deps.DB,
			"redis":    deps.Redis,
		}))
	})
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/midtrans", webhookcontrollers.MidtransNotification(cfg.Midtrans, deps.Settlement, deps.WebhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(deps.Idempotency, logg))

		r.Post("/checkout", controllers.Checkout(deps.Checkout, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(deps.Orders, logg))
			r.Get("/{orderNumber}", ordercontrollers.Detail(deps.Orders, logg))
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartcontrollers.CartFetch(deps.Cart, logg))
			r.Put("/items", cartcontrollers.CartSetItem(deps.Cart, logg))
		})

		r.Route("/admin/products", func(r chi.Router) {
			r.Use(middleware.RequireRole(enums.RoleAdmin, logg))
			r.Post("/", catalogcontrollers.AdminCreateProduct(deps.Catalog, logg))
			r.Get("/{productId}", catalogcontrollers.AdminGetProduct(deps.Catalog, logg))
			r.Put("/{productId}", catalogcontrollers.AdminUpdateProduct(deps.Catalog, logg))
		})
	})

	return r
}
