package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-cart/api/controllers"
	cartcontrollers "github.com/angelmondragon/storefront-cart/api/controllers/cart"
	ordercontrollers "github.com/angelmondragon/storefront-cart/api/controllers/orders"
	"github.com/angelmondragon/storefront-cart/api/middleware"
	"github.com/angelmondragon/storefront-cart/internal/auth"
	"github.com/angelmondragon/storefront-cart/internal/cart"
	"github.com/angelmondragon/storefront-cart/internal/catalog"
	checkoutsvc "github.com/angelmondragon/storefront-cart/internal/checkout"
	"github.com/angelmondragon/storefront-cart/internal/identity"
	"github.com/angelmondragon/storefront-cart/internal/orders"
	"github.com/angelmondragon/storefront-cart/internal/pricing"
	"github.com/angelmondragon/storefront-cart/pkg/config"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
	pkgredis "github.com/angelmondragon/storefront-cart/pkg/redis"
)

type ownerResolver interface {
	Resolve(ctx context.Context, credential, guestID string) identity.Resolution
}

type cartPricer interface {
	Price(ctx context.Context, c *cart.Cart) (*pricing.PricedCart, error)
}

// Dependencies carries everything the HTTP surface is wired to. Redis backed
// stores are nil when Redis is not configured; rate limiting and replay are
// then skipped.
type Dependencies struct {
	Resolver    ownerResolver
	Carts       cart.Service
	Pricer      cartPricer
	Checkout    checkoutsvc.Service
	Orders      orders.Service
	Catalog     catalog.Service
	Auth        auth.Service
	Idempotency pkgredis.ReplyStore
	RateLimits  middleware.WindowCounter
	Readiness   map[string]controllers.Pinger
	Gatherer    prometheus.Gatherer
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins, cfg.App.IsDev()),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Readiness))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Get("/products/{productId}", controllers.ProductDetail(deps.Catalog, logg))

	if token := cfg.Fulfillment.Token; token != "" {
		r.Route("/internal/orders", func(r chi.Router) {
			r.Use(middleware.RequireServiceToken(token, logg))
			r.Patch("/{orderId}/status", ordercontrollers.UpdateStatus(deps.Orders, logg))
		})
	}

	limits := cfg.AuthRateLimit
	loginPolicy := middleware.RateLimitPolicy{
		Name:     "login",
		Window:   limits.LoginWindow,
		PerIP:    limits.LoginIPLimit,
		PerOwner: limits.LoginOwnerLimit,
		PerEmail: limits.LoginEmailLimit,
	}
	registerPolicy := middleware.RateLimitPolicy{
		Name:     "register",
		Window:   limits.RegisterWindow,
		PerIP:    limits.RegisterIPLimit,
		PerOwner: limits.RegisterOwnerLimit,
		PerEmail: limits.RegisterEmailLimit,
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.CartIdentity(deps.Resolver, logg))
		r.Use(middleware.Idempotency(deps.Idempotency, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartcontrollers.Get(deps.Carts, deps.Pricer, logg))
			r.Delete("/", cartcontrollers.Clear(deps.Carts, deps.Pricer, logg))
			r.Post("/add", cartcontrollers.Add(deps.Carts, deps.Pricer, logg))
			r.Post("/update", cartcontrollers.Update(deps.Carts, deps.Pricer, logg))
			r.Post("/remove", cartcontrollers.Remove(deps.Carts, deps.Pricer, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(deps.Orders, logg))
			r.Post("/", ordercontrollers.Place(deps.Checkout, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
		})

		r.With(middleware.RateLimit(registerPolicy, deps.RateLimits, logg)).Post("/users", controllers.AuthRegister(deps.Auth, logg))
		r.With(middleware.RateLimit(loginPolicy, deps.RateLimits, logg)).Post("/login", controllers.AuthLogin(deps.Auth, logg))
	})

	return r
}
