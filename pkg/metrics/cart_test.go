package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCartMetricsExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCartMetrics(reg)
	m.IncMutation("add", OutcomeSuccess)
	m.IncMutation("add", OutcomeSuccess)
	m.IncPricingMissing("timeout")
	m.IncCheckout(OutcomeEmpty)
	m.ObserveLockWait(20 * time.Millisecond)
	m.IncClearRetry()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "cart_mutations_total", map[string]string{"op": "add"}); err != nil || got != 2 {
		t.Fatalf("expected add mutations=2, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "cart_pricing_missing_total", map[string]string{"reason": "timeout"}); err != nil || got != 1 {
		t.Fatalf("expected missing=1, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "checkout_total", map[string]string{"outcome": OutcomeEmpty}); err != nil || got != 1 {
		t.Fatalf("expected empty checkout=1, got %f (%v)", got, err)
	}
	if mf := findMetricFamily(mfs, "cart_lock_wait_seconds"); mf == nil || mf.GetMetric()[0].GetHistogram().GetSampleCount() != 1 {
		t.Fatalf("expected one lock wait observation")
	}
}

func TestCartMetricsNilSafe(t *testing.T) {
	var m *CartMetrics
	m.IncMutation("add", OutcomeSuccess)
	m.ObserveLockWait(time.Second)
	m.IncCheckout(OutcomeFailure)

	noop := NewCartMetrics(nil)
	noop.IncPricingMissing("not_found")
	noop.IncClearRetry()
}
