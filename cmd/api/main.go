package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-cart/api/controllers"
	"github.com/angelmondragon/storefront-cart/api/routes"
	"github.com/angelmondragon/storefront-cart/internal/auth"
	"github.com/angelmondragon/storefront-cart/internal/cart"
	"github.com/angelmondragon/storefront-cart/internal/catalog"
	"github.com/angelmondragon/storefront-cart/internal/checkout"
	"github.com/angelmondragon/storefront-cart/internal/identity"
	"github.com/angelmondragon/storefront-cart/internal/orders"
	"github.com/angelmondragon/storefront-cart/internal/pricing"
	"github.com/angelmondragon/storefront-cart/internal/users"
	pkgauth "github.com/angelmondragon/storefront-cart/pkg/auth"
	"github.com/angelmondragon/storefront-cart/pkg/config"
	"github.com/angelmondragon/storefront-cart/pkg/db"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
	"github.com/angelmondragon/storefront-cart/pkg/metrics"
	"github.com/angelmondragon/storefront-cart/pkg/migrate"
	"github.com/angelmondragon/storefront-cart/pkg/outbox"
	"github.com/angelmondragon/storefront-cart/pkg/redis"
	"github.com/angelmondragon/storefront-cart/pkg/security"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	cartMetrics := metrics.NewCartMetrics(prometheus.DefaultRegisterer)
	deps := routes.Dependencies{
		Readiness: map[string]controllers.Pinger{"postgres": dbClient},
		Gatherer:  prometheus.DefaultGatherer,
	}

	var locker cart.Locker
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()

		redisLocker, err := cart.NewRedisLocker(redisClient, cfg.Cart.LockTTL, cfg.Cart.LockWait, logg, cartMetrics)
		if err != nil {
			logg.Error(context.Background(), "failed to create cart locker", err)
			os.Exit(1)
		}
		locker = redisLocker
		deps.Idempotency = redisClient
		deps.RateLimits = redisClient
		deps.Readiness["redis"] = redisClient
	} else {
		// single replica only: serialization is process local
		logg.Warn(context.Background(), "redis not configured, using in-process cart locks")
		locker = cart.NewKeyedMutex(cartMetrics)
	}

	tokens, err := pkgauth.NewTokens(cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to configure access tokens", err)
		os.Exit(1)
	}
	resolver, err := identity.NewResolver(tokens, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create identity resolver", err)
		os.Exit(1)
	}
	deps.Resolver = resolver

	events := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	cartRepo := cart.NewRepository(dbClient.DB())

	cartService, err := cart.NewService(cartRepo, dbClient, locker, events, cartMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}
	deps.Carts = cartService

	catalogService, err := catalog.NewService(catalog.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog service", err)
		os.Exit(1)
	}
	deps.Catalog = catalogService

	pricer, err := pricing.NewAggregator(catalogService, cfg.Cart.PricingItemTimeout, cfg.Cart.PricingConcurrency, cartMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create pricing aggregator", err)
		os.Exit(1)
	}
	deps.Pricer = pricer

	ordersRepo := orders.NewRepository(dbClient.DB())
	ordersService, err := orders.NewService(ordersRepo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}
	deps.Orders = ordersService

	checkoutService, err := checkout.NewService(checkout.Params{
		Tx:           dbClient,
		Carts:        cartService,
		Clearer:      cartRepo,
		Locker:       locker,
		Pricer:       pricer,
		Orders:       ordersRepo,
		Events:       events,
		Metrics:      cartMetrics,
		Logger:       logg,
		ClearRetries: cfg.Cart.ClearRetries,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}
	deps.Checkout = checkoutService

	hasher, err := security.NewHasher(cfg.Password)
	if err != nil {
		logg.Error(context.Background(), "failed to create password hasher", err)
		os.Exit(1)
	}
	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:  users.NewRepository(dbClient.DB()),
		Hasher:    hasher,
		Carts:     cartService,
		Tokens:    tokens,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}
	deps.Auth = authService

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}
