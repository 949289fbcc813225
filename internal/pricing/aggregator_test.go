package pricing

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-cart/internal/cart"
	"github.com/angelmondragon/storefront-cart/internal/identity"
	"github.com/angelmondragon/storefront-cart/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
	"github.com/angelmondragon/storefront-cart/pkg/metrics"
)

type stubCatalog struct {
	mu       sync.Mutex
	products map[uuid.UUID]*models.Product
	errs     map[uuid.UUID]error
	slow     map[uuid.UUID]bool
	delay    time.Duration
	inFlight int32
	maxSeen  int32
	calls    int32
}

func newStubCatalog() *stubCatalog {
	return &stubCatalog{
		products: map[uuid.UUID]*models.Product{},
		errs:     map[uuid.UUID]error{},
		slow:     map[uuid.UUID]bool{},
	}
}

func (s *stubCatalog) add(name, price string, active bool) uuid.UUID {
	id := uuid.New()
	s.products[id] = &models.Product{ID: id, Name: name, Price: decimal.RequireFromString(price), IsActive: active}
	return id
}

func (s *stubCatalog) Lookup(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	atomic.AddInt32(&s.calls, 1)
	current := atomic.AddInt32(&s.inFlight, 1)
	defer atomic.AddInt32(&s.inFlight, -1)
	for {
		seen := atomic.LoadInt32(&s.maxSeen)
		if current <= seen || atomic.CompareAndSwapInt32(&s.maxSeen, seen, current) {
			break
		}
	}

	s.mu.Lock()
	slow := s.slow[id]
	err := s.errs[id]
	product := s.products[id]
	s.mu.Unlock()

	if slow {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return product, nil
}

func cartOf(items ...cart.Item) *cart.Cart {
	for i := range items {
		items[i].Position = i + 1
	}
	return &cart.Cart{ID: uuid.New(), Owner: identity.Guest("g-1"), Items: items, UpdatedAt: time.Now()}
}

func TestPriceComputesTotals(t *testing.T) {
	catalog := newStubCatalog()
	tea := catalog.add("Tea", "4.50", true)
	mug := catalog.add("Mug", "12.00", true)

	agg, err := NewAggregator(catalog, time.Second, 4, nil, nil)
	require.NoError(t, err)

	priced, err := agg.Price(context.Background(), cartOf(
		cart.Item{ProductID: tea, Quantity: 3},
		cart.Item{ProductID: mug, Quantity: 1},
	))
	require.NoError(t, err)

	require.Equal(t, "25.50", priced.Total.StringFixed(2))
	require.Equal(t, 4, priced.TotalCount)
	require.Equal(t, 2, priced.PricedCount)
	require.Equal(t, "13.50", priced.Items[0].LineSubtotal.StringFixed(2))
	require.Equal(t, tea, priced.Items[0].ProductID)
	require.Equal(t, mug, priced.Items[1].ProductID)
	require.NotNil(t, priced.UpdatedAt)
}

func TestPriceExcludesMissingFromTotal(t *testing.T) {
	catalog := newStubCatalog()
	tea := catalog.add("Tea", "4.50", true)
	retired := catalog.add("Retired", "99.00", false)
	broken := uuid.New()
	catalog.errs[broken] = pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("boom"), "lookup product")
	unknown := uuid.New()

	m := metrics.NewCartMetrics(prometheus.NewRegistry())
	agg, err := NewAggregator(catalog, time.Second, 4, m, nil)
	require.NoError(t, err)

	priced, err := agg.Price(context.Background(), cartOf(
		cart.Item{ProductID: tea, Quantity: 2},
		cart.Item{ProductID: retired, Quantity: 1},
		cart.Item{ProductID: broken, Quantity: 5},
		cart.Item{ProductID: unknown, Quantity: 1},
	))
	require.NoError(t, err)

	require.Equal(t, "9.00", priced.Total.StringFixed(2))
	require.Equal(t, 9, priced.TotalCount)
	require.Equal(t, 1, priced.PricedCount)
	require.Len(t, priced.Items, 4)

	reasons := map[uuid.UUID]string{}
	for _, line := range priced.Items[1:] {
		require.True(t, line.Missing)
		require.Nil(t, line.UnitPrice)
		require.Nil(t, line.LineSubtotal)
		reasons[line.ProductID] = line.MissingReason
	}
	require.Equal(t, ReasonInactive, reasons[retired])
	require.Equal(t, ReasonError, reasons[broken])
	require.Equal(t, ReasonNotFound, reasons[unknown])
	require.Equal(t, "Retired", priced.Items[1].Name)

	require.Len(t, priced.PricedLines(), 1)
	require.Equal(t, 2, priced.PricedUnits())
}

func TestPriceTimesOutSlowLookups(t *testing.T) {
	catalog := newStubCatalog()
	tea := catalog.add("Tea", "4.50", true)
	slow := catalog.add("Slow", "1.00", true)
	catalog.slow[slow] = true

	agg, err := NewAggregator(catalog, 30*time.Millisecond, 4, nil, nil)
	require.NoError(t, err)

	start := time.Now()
	priced, err := agg.Price(context.Background(), cartOf(
		cart.Item{ProductID: tea, Quantity: 1},
		cart.Item{ProductID: slow, Quantity: 1},
	))
	require.NoError(t, err)
	require.Less(t, time.Since(start), time.Second)

	require.Equal(t, "4.50", priced.Total.StringFixed(2))
	require.True(t, priced.Items[1].Missing)
	require.Equal(t, ReasonTimeout, priced.Items[1].MissingReason)
}

func TestPriceRoundsToCents(t *testing.T) {
	catalog := newStubCatalog()
	odd := catalog.add("Odd", "0.333", true)

	agg, err := NewAggregator(catalog, time.Second, 1, nil, nil)
	require.NoError(t, err)

	priced, err := agg.Price(context.Background(), cartOf(cart.Item{ProductID: odd, Quantity: 3}))
	require.NoError(t, err)
	require.Equal(t, "0.33", priced.Items[0].UnitPrice.StringFixed(2))
	require.Equal(t, "0.99", priced.Total.StringFixed(2))
}

func TestPriceHonoursConcurrencyLimit(t *testing.T) {
	catalog := newStubCatalog()
	catalog.delay = 10 * time.Millisecond
	items := make([]cart.Item, 0, 12)
	for i := 0; i < 12; i++ {
		items = append(items, cart.Item{ProductID: catalog.add("p", "1.00", true), Quantity: 1})
	}

	agg, err := NewAggregator(catalog, time.Second, 3, nil, nil)
	require.NoError(t, err)

	priced, err := agg.Price(context.Background(), cartOf(items...))
	require.NoError(t, err)
	require.Equal(t, "12.00", priced.Total.StringFixed(2))
	require.LessOrEqual(t, atomic.LoadInt32(&catalog.maxSeen), int32(3))
	require.Equal(t, int32(12), atomic.LoadInt32(&catalog.calls))
}

func TestPriceEmptyCart(t *testing.T) {
	agg, err := NewAggregator(newStubCatalog(), time.Second, 2, nil, nil)
	require.NoError(t, err)

	priced, err := agg.Price(context.Background(), &cart.Cart{Owner: identity.Guest("g"), Items: []cart.Item{}})
	require.NoError(t, err)
	require.True(t, priced.Total.IsZero())
	require.Zero(t, priced.TotalCount)
	require.Zero(t, priced.PricedCount)
	require.Nil(t, priced.UpdatedAt)
}

func TestPriceFailsOnlyWhenCallerIsDone(t *testing.T) {
	catalog := newStubCatalog()
	tea := catalog.add("Tea", "4.50", true)
	agg, err := NewAggregator(catalog, time.Second, 2, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = agg.Price(ctx, cartOf(cart.Item{ProductID: tea, Quantity: 1}))
	require.ErrorIs(t, err, context.Canceled)
}

func TestMissingLinesAreCounted(t *testing.T) {
	catalog := newStubCatalog()
	reg := prometheus.NewRegistry()
	m := metrics.NewCartMetrics(reg)
	agg, err := NewAggregator(catalog, time.Second, 2, m, nil)
	require.NoError(t, err)

	_, err = agg.Price(context.Background(), cartOf(cart.Item{ProductID: uuid.New(), Quantity: 1}))
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != "cart_pricing_missing_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
	}
	require.Equal(t, float64(1), total)
}
