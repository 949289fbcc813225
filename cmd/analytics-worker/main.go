package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-cart/internal/analytics"
	"github.com/angelmondragon/storefront-cart/pkg/bigquery"
	"github.com/angelmondragon/storefront-cart/pkg/config"
	"github.com/angelmondragon/storefront-cart/pkg/instance"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
	"github.com/angelmondragon/storefront-cart/pkg/pubsub"
	"github.com/angelmondragon/storefront-cart/pkg/redis"
)

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		os.Exit(1)
	}
}

func run() error {
	logg := logger.New(logger.Options{ServiceName: "analytics-worker"})
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		return err
	}
	logg = logger.New(logger.Options{
		ServiceName: "analytics-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"service":  "analytics-worker",
		"instance": instance.GetID(),
	})

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to connect redis", err)
		return err
	}
	defer closeWith(ctx, logg, "redis", redisClient.Close)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, pubsub.RoleConsumer, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap pubsub", err)
		return err
	}
	defer closeWith(ctx, logg, "pubsub", pubsubClient.Close)

	subscription := pubsubClient.OrdersSubscription()
	if subscription == nil {
		err := errors.New("orders subscription not configured")
		logg.Error(ctx, "analytics subscription missing", err)
		return err
	}

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap bigquery", err)
		return err
	}
	defer closeWith(ctx, logg, "bigquery", bqClient.Close)

	sink, err := analytics.NewSink(bqClient, cfg.BigQuery.InsertAttempts, 0)
	if err != nil {
		logg.Error(ctx, "failed to build analytics sink", err)
		return err
	}
	consumer, err := analytics.NewConsumer(analytics.ConsumerParams{
		Logger:  logg,
		Marks:   redisClient,
		MarkTTL: cfg.Eventing.IdempotencyTTL,
		Tables: analytics.Tables{
			OrderEvents: cfg.BigQuery.OrderEventsTable,
			CartMerges:  cfg.BigQuery.CartMergesTable,
		},
		Sink: sink,
	})
	if err != nil {
		logg.Error(ctx, "failed to build analytics consumer", err)
		return err
	}

	logg.Info(ctx, "analytics worker ready")
	if err := consumer.Run(ctx, subscription); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "analytics worker stopped unexpectedly", err)
		return err
	}
	logg.Info(ctx, "analytics worker shutting down")
	return nil
}

func closeWith(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, "failed to close "+name, err)
	}
}
