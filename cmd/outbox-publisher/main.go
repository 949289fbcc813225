package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-cart/pkg/config"
	"github.com/angelmondragon/storefront-cart/pkg/db"
	"github.com/angelmondragon/storefront-cart/pkg/instance"
	"github.com/angelmondragon/storefront-cart/pkg/kafka"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
	"github.com/angelmondragon/storefront-cart/pkg/migrate"
	"github.com/angelmondragon/storefront-cart/pkg/outbox"
	"github.com/angelmondragon/storefront-cart/pkg/outbox/catalog"
	"github.com/angelmondragon/storefront-cart/pkg/pubsub"
)

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		os.Exit(1)
	}
}

func run() error {
	logg := logger.New(logger.Options{ServiceName: "outbox-publisher"})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		return err
	}
	logg = logger.New(logger.Options{
		ServiceName: "outbox-publisher",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"service":  "outbox-publisher",
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

	sender, topic, closeSender, err := openTransport(ctx, cfg, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap event transport", err)
		return err
	}
	defer closeWith(ctx, logg, sender.Name(), closeSender)
	ctx = logg.WithField(ctx, "transport", sender.Name())

	routes, err := catalog.New(topic)
	if err != nil {
		logg.Error(ctx, "failed to build event catalog", err)
		return err
	}
	publisher, err := NewPublisher(PublisherDeps{
		Outbox:      cfg.Outbox,
		Logger:      logg,
		DB:          dbClient,
		Transport:   sender,
		Rows:        outbox.NewRepository(dbClient.DB()),
		Catalog:     routes,
		DeadLetters: outbox.NewDLQRepository(dbClient.DB()),
	})
	if err != nil {
		logg.Error(ctx, "failed to create outbox publisher", err)
		return err
	}

	logg.Info(ctx, "starting outbox publisher")
	if err := publisher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		return err
	}
	logg.Info(ctx, "outbox publisher shutting down gracefully")
	return nil
}

// openTransport picks kafka or pubsub from STOREFRONT_EVENTING_TRANSPORT and returns the
// orders topic on that transport.
func openTransport(ctx context.Context, cfg *config.Config, logg *logger.Logger) (transport, string, func() error, error) {
	if cfg.Eventing.UsesKafka() {
		client, err := kafka.NewClient(ctx, cfg.Kafka, logg)
		if err != nil {
			return nil, "", nil, err
		}
		return newKafkaTransport(client), cfg.Kafka.OrdersTopic, client.Close, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, pubsub.RolePublisher, logg)
	if err != nil {
		return nil, "", nil, err
	}
	return newPubSubTransport(client), cfg.PubSub.OrdersTopic, client.Close, nil
}

func closeWith(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, "failed to close "+name, err)
	}
}
