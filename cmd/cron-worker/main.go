package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-cart/internal/cart"
	"github.com/angelmondragon/storefront-cart/internal/cron"
	"github.com/angelmondragon/storefront-cart/pkg/config"
	"github.com/angelmondragon/storefront-cart/pkg/db"
	"github.com/angelmondragon/storefront-cart/pkg/instance"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
	"github.com/angelmondragon/storefront-cart/pkg/metrics"
	"github.com/angelmondragon/storefront-cart/pkg/migrate"
	"github.com/angelmondragon/storefront-cart/pkg/outbox"
	"github.com/angelmondragon/storefront-cart/pkg/redis"
)

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		os.Exit(1)
	}
}

func run() error {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		return err
	}
	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"service":  "cron-worker",
		"instance": instance.GetID(),
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		return err
	}
	defer closeWith(ctx, logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		return err
	}
	defer closeWith(ctx, logg, "redis", redisClient.Close)

	locker, err := cart.NewRedisLocker(redisClient, cfg.Cart.LockTTL, cfg.Cart.LockWait, logg,
		metrics.NewCartMetrics(prometheus.DefaultRegisterer))
	if err != nil {
		logg.Error(ctx, "failed to create cart locker", err)
		return err
	}

	jobMetrics := metrics.NewJobMetrics(prometheus.DefaultRegisterer)
	jobs, err := buildJobs(cfg, logg, jobMetrics, cart.NewRepository(dbClient.DB()), locker, outbox.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(ctx, "failed to build cron jobs", err)
		return err
	}

	env := cfg.App.Env
	if env == "" {
		env = "local"
	}
	scheduler, err := cron.NewScheduler(cron.SchedulerParams{
		Logger: logg,
		Locks:  redisClient,
		LockKey: func(job string) string {
			return redisClient.WorkerLockKey("cron:" + env + ":" + job)
		},
		Metrics:  jobMetrics,
		Interval: cfg.Cron.Interval,
		LockTTL:  cfg.Cron.LockTTL,
		Jobs:     jobs,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cron scheduler", err)
		return err
	}

	logg.Info(ctx, "starting cron worker")
	if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		return err
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
	return nil
}

func buildJobs(cfg *config.Config, logg *logger.Logger, m *metrics.JobMetrics, carts *cart.Repository, locker cart.Locker, events *outbox.Repository) ([]cron.Job, error) {
	cartClear, err := cron.NewCartClearJob(cron.CartClearJobParams{
		Logger:     logg,
		Repository: carts,
		Locker:     locker,
	})
	if err != nil {
		return nil, fmt.Errorf("cart clear job: %w", err)
	}
	guestCleanup, err := cron.NewGuestCartCleanupJob(cron.GuestCartCleanupJobParams{
		Logger:     logg,
		Repository: carts,
		Metrics:    m,
		TTL:        cfg.Cart.GuestCartTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("guest cart cleanup job: %w", err)
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: events,
		Metrics:    m,
		Retention:  cfg.Outbox.Retention,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}
	return []cron.Job{cartClear, guestCleanup, retention}, nil
}

func closeWith(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, "failed to close "+name, err)
	}
}
