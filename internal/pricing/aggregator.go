package pricing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/storefront-cart/internal/cart"
	"github.com/angelmondragon/storefront-cart/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
	"github.com/angelmondragon/storefront-cart/pkg/metrics"
)

// Reasons a line is priced as missing.
const (
	ReasonNotFound = "not_found"
	ReasonInactive = "inactive"
	ReasonTimeout  = "timeout"
	ReasonError    = "lookup_error"
)

const (
	defaultItemTimeout = 2 * time.Second
	defaultConcurrency = 8
)

// Catalog resolves a product by id. Inactive products are returned as-is.
type Catalog interface {
	Lookup(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// Aggregator prices carts against the live catalog. Nothing is cached
// between calls.
type Aggregator struct {
	catalog     Catalog
	itemTimeout time.Duration
	concurrency int
	metrics     *metrics.CartMetrics
	logg        *logger.Logger
}

func NewAggregator(catalog Catalog, itemTimeout time.Duration, concurrency int, m *metrics.CartMetrics, logg *logger.Logger) (*Aggregator, error) {
	if catalog == nil {
		return nil, fmt.Errorf("catalog required")
	}
	if itemTimeout <= 0 {
		itemTimeout = defaultItemTimeout
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Aggregator{
		catalog:     catalog,
		itemTimeout: itemTimeout,
		concurrency: concurrency,
		metrics:     m,
		logg:        logg,
	}, nil
}

type lookupResult struct {
	product *models.Product
	reason  string
}

// Price looks up every distinct product of c concurrently. Lines whose
// product cannot be priced are flagged missing and left out of Total.
// The only error is the caller's context being done.
func (a *Aggregator) Price(ctx context.Context, c *cart.Cart) (*PricedCart, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("cart required")
	}

	ids := distinctProducts(c.Items)
	results := make(map[uuid.UUID]lookupResult, len(ids))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			res := a.lookup(ctx, id)
			mu.Lock()
			results[id] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	priced := &PricedCart{
		CartID: c.ID,
		Owner:  c.Owner,
		Items:  make([]Line, 0, len(c.Items)),
		Total:  decimal.Zero,
	}
	if c.Persisted() {
		updatedAt := c.UpdatedAt
		priced.UpdatedAt = &updatedAt
	}

	for _, item := range c.Items {
		line := Line{ProductID: item.ProductID, Quantity: item.Quantity}
		res := results[item.ProductID]
		priced.TotalCount += item.Quantity

		if res.reason != "" {
			line.Missing = true
			line.MissingReason = res.reason
			if res.product != nil {
				line.Name = res.product.Name
			}
			priced.Items = append(priced.Items, line)
			a.metrics.IncPricingMissing(res.reason)
			continue
		}

		unit := res.product.Price.Round(2)
		subtotal := unit.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2)
		line.Name = res.product.Name
		line.UnitPrice = &unit
		line.LineSubtotal = &subtotal
		priced.Items = append(priced.Items, line)
		priced.Total = priced.Total.Add(subtotal)
		priced.PricedCount++
	}
	priced.Total = priced.Total.Round(2)

	return priced, nil
}

func (a *Aggregator) lookup(ctx context.Context, id uuid.UUID) lookupResult {
	itemCtx, cancel := context.WithTimeout(ctx, a.itemTimeout)
	defer cancel()

	product, err := a.catalog.Lookup(itemCtx, id)
	if err == nil && product == nil {
		err = pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if err != nil {
		reason := classify(err, itemCtx)
		if reason != ReasonNotFound && a.logg != nil {
			logCtx := a.logg.WithFields(ctx, map[string]any{
				"product_id": id.String(),
				"reason":     reason,
			})
			a.logg.Warn(logCtx, "catalog lookup failed, pricing line as missing")
		}
		return lookupResult{reason: reason}
	}
	if !product.IsActive {
		return lookupResult{product: product, reason: ReasonInactive}
	}
	return lookupResult{product: product}
}

func classify(err error, itemCtx context.Context) string {
	switch {
	case pkgerrors.HasCode(err, pkgerrors.CodeNotFound):
		return ReasonNotFound
	case errors.Is(err, context.DeadlineExceeded), errors.Is(itemCtx.Err(), context.DeadlineExceeded):
		return ReasonTimeout
	default:
		return ReasonError
	}
}

func distinctProducts(items []cart.Item) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(items))
	out := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		out = append(out, item.ProductID)
	}
	return out
}
