package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared by the cart and checkout counters.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeEmpty   = "empty_cart"
	OutcomeInvalid = "invalid"
)

// CartMetrics records cart mutations, lock waits, pricing degradation and checkout outcomes.
type CartMetrics struct {
	mutations      *prometheus.CounterVec
	lockWait       prometheus.Histogram
	pricingMissing *prometheus.CounterVec
	checkouts      *prometheus.CounterVec
	clearRetries   prometheus.Counter
}

// NewCartMetrics registers the cart metrics on the provided registerer. A nil
// registerer yields a no-op recorder.
func NewCartMetrics(reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		return &CartMetrics{}
	}
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_total",
		Help: "Cart mutations by operation and outcome.",
	}, []string{"op", "outcome"})
	lockWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cart_lock_wait_seconds",
		Help:    "Time spent waiting for the per-owner cart lock.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})
	pricingMissing := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_pricing_missing_total",
		Help: "Cart lines priced as missing, by reason.",
	}, []string{"reason"})
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_total",
		Help: "Checkout attempts by outcome.",
	}, []string{"outcome"})
	clearRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "checkout_cart_clear_retries_total",
		Help: "Retries of the post-order cart clear.",
	})
	reg.MustRegister(mutations, lockWait, pricingMissing, checkouts, clearRetries)
	return &CartMetrics{
		mutations:      mutations,
		lockWait:       lockWait,
		pricingMissing: pricingMissing,
		checkouts:      checkouts,
		clearRetries:   clearRetries,
	}
}

func (m *CartMetrics) IncMutation(op, outcome string) {
	if m == nil || m.mutations == nil {
		return
	}
	m.mutations.WithLabelValues(normalizeLabel(op), normalizeLabel(outcome)).Inc()
}

func (m *CartMetrics) ObserveLockWait(d time.Duration) {
	if m == nil || m.lockWait == nil {
		return
	}
	m.lockWait.Observe(d.Seconds())
}

func (m *CartMetrics) IncPricingMissing(reason string) {
	if m == nil || m.pricingMissing == nil {
		return
	}
	m.pricingMissing.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *CartMetrics) IncCheckout(outcome string) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *CartMetrics) IncClearRetry() {
	if m == nil || m.clearRetries == nil {
		return
	}
	m.clearRetries.Inc()
}
