package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-cart/pkg/config"
	"github.com/angelmondragon/storefront-cart/pkg/db"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
)

// MaybeRunDev brings the schema up to date on boot, but only in dev with
// the auto-migrate flag on. Other environments run cmd/migrate explicitly.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	pool, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("unwrapping sql pool: %w", err)
	}
	migrator, err := New(pool, DefaultDir)
	if err != nil {
		return err
	}

	ctx = logg.WithField(ctx, "event", "migrate.autorun")
	results, err := migrator.Up(ctx)
	if err != nil {
		return err
	}
	for _, res := range results {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"version":     res.Source.Version,
			"duration_ms": res.Duration.Milliseconds(),
		}), "migration applied")
	}
	if len(results) == 0 {
		logg.Debug(ctx, "schema already current")
	}
	return nil
}
