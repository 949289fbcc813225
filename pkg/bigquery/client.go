package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/googleapi"

	"github.com/angelmondragon/storefront-cart/pkg/config"
	"github.com/angelmondragon/storefront-cart/pkg/gcp"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
)

const metadataTimeout = 10 * time.Second

var (
	ErrNotConfigured = errors.New("bigquery target incomplete")
	errClosed        = errors.New("bigquery client not open")
)

// target is the project, dataset and tables the analytics worker writes to.
type target struct {
	project string
	dataset string
	tables  []string
}

func targetFrom(gcpCfg config.GCPConfig, cfg config.BigQueryConfig) (target, error) {
	t := target{
		project: strings.TrimSpace(gcpCfg.ProjectID),
		dataset: strings.TrimSpace(cfg.Dataset),
	}
	for _, name := range []string{cfg.OrderEventsTable, cfg.CartMergesTable} {
		if name = strings.TrimSpace(name); name != "" {
			t.tables = append(t.tables, name)
		}
	}

	var missing error
	if t.project == "" {
		missing = multierr.Append(missing, fmt.Errorf("%w: gcp project id", ErrNotConfigured))
	}
	if t.dataset == "" {
		missing = multierr.Append(missing, fmt.Errorf("%w: dataset", ErrNotConfigured))
	}
	if len(t.tables) == 0 {
		missing = multierr.Append(missing, fmt.Errorf("%w: no tables", ErrNotConfigured))
	}
	return t, missing
}

// Client streams rows into existing tables. Schema is owned elsewhere, so a
// missing dataset or table fails startup instead of being created.
type Client struct {
	bq     *bigquery.Client
	target target
}

func NewClient(ctx context.Context, gcpCfg config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	t, err := targetFrom(gcpCfg, cfg)
	if err != nil {
		return nil, err
	}
	opts, err := gcp.ClientOptions(gcpCfg)
	if err != nil {
		return nil, err
	}
	bq, err := bigquery.NewClient(ctx, t.project, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}

	c := &Client{bq: bq, target: t}
	if err := c.Ping(ctx); err != nil {
		return nil, multierr.Append(err, bq.Close())
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"dataset": t.dataset, "tables": t.tables}), "bigquery client initialized")
	}
	return c, nil
}

// Ping reads dataset and table metadata. Tables are checked concurrently.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.bq == nil {
		return errClosed
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	ds := c.bq.Dataset(c.target.dataset)
	if _, err := ds.Metadata(ctx); err != nil {
		return lookupFailed("dataset", c.target.dataset, err)
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range c.target.tables {
		g.Go(func() error {
			if _, err := ds.Table(name).Metadata(gctx); err != nil {
				return lookupFailed("table", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func lookupFailed(kind, name string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return fmt.Errorf("%s %q does not exist", kind, name)
	}
	return fmt.Errorf("reading %s %q: %w", kind, name, err)
}

// InsertRows streams rows into table. Rows may be structs or ValueSavers;
// an empty batch is a no-op.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.bq == nil {
		return errClosed
	}
	if table = strings.TrimSpace(table); table == "" {
		return fmt.Errorf("%w: table name", ErrNotConfigured)
	}
	if len(rows) == 0 {
		return nil
	}
	return c.bq.Dataset(c.target.dataset).Table(table).Inserter().Put(ctx, rows)
}

func (c *Client) Close() error {
	if c == nil || c.bq == nil {
		return nil
	}
	return c.bq.Close()
}
