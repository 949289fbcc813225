package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-cart/internal/identity"
	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
)

type windowCounts struct {
	mu      sync.Mutex
	counts  map[string]int64
	windows map[string]time.Duration
	err     error
}

func newWindowCounts() *windowCounts {
	return &windowCounts{counts: map[string]int64{}, windows: map[string]time.Duration{}}
}

func (w *windowCounts) HitWindow(_ context.Context, key string, window time.Duration) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return 0, w.err
	}
	w.counts[key]++
	w.windows[key] = window
	return w.counts[key], nil
}

func (w *windowCounts) RateLimitKey(policy, dimension, value string) string {
	return "rl:" + policy + ":" + dimension + ":" + value
}

func (w *windowCounts) keysFor(dimension string) []string {
	var keys []string
	for key := range w.counts {
		if strings.Contains(key, ":"+dimension+":") {
			keys = append(keys, key)
		}
	}
	return keys
}

func loginRequest(remote, email string, owner identity.Owner) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"`+email+`","password":"hunter22"}`))
	req.RemoteAddr = remote
	if owner.ID != "" {
		req = req.WithContext(WithResolution(req.Context(), identity.Resolution{Owner: owner}))
	}
	return req
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
}

func TestRateLimitEmailDimensionIgnoresCaseAndSpacing(t *testing.T) {
	counts := newWindowCounts()
	policy := RateLimitPolicy{Name: "login", Window: 15 * time.Minute, PerEmail: 2}
	handler := RateLimit(policy, counts, nil)(okHandler())

	emails := []string{"ada@example.com", " ADA@example.com", "Ada@Example.com "}
	codes := make([]int, 0, len(emails))
	for _, email := range emails {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, loginRequest("10.0.0.1:443", email, identity.Owner{}))
		codes = append(codes, resp.Code)
		if resp.Code == http.StatusTooManyRequests {
			assert.Equal(t, string(pkgerrors.CodeRateLimit), errorCode(t, resp))
			assert.Equal(t, "900", resp.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	keys := counts.keysFor(dimensionEmail)
	require.Len(t, keys, 1)
	assert.NotContains(t, keys[0], "ada", "raw email must not reach redis")
	assert.Equal(t, 15*time.Minute, counts.windows[keys[0]])
}

func TestRateLimitOwnerDimensionSeparatesCarts(t *testing.T) {
	counts := newWindowCounts()
	policy := RateLimitPolicy{Name: "register", Window: time.Hour, PerOwner: 1}
	handler := RateLimit(policy, counts, nil)(okHandler())

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, loginRequest("10.0.0.1:1", "a@example.com", identity.Guest("guest-a")))
	again := httptest.NewRecorder()
	handler.ServeHTTP(again, loginRequest("10.0.0.1:1", "b@example.com", identity.Guest("guest-a")))
	other := httptest.NewRecorder()
	handler.ServeHTTP(other, loginRequest("10.0.0.1:1", "c@example.com", identity.Guest("guest-b")))

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, again.Code)
	assert.Equal(t, http.StatusOK, other.Code)
	assert.ElementsMatch(t, []string{"rl:register:owner:guest:guest-a", "rl:register:owner:guest:guest-b"}, counts.keysFor(dimensionOwner))
}

func TestRateLimitIPDimensionUsesFirstForwardedHop(t *testing.T) {
	counts := newWindowCounts()
	policy := RateLimitPolicy{Name: "login", Window: time.Minute, PerIP: 1}
	handler := RateLimit(policy, counts, nil)(okHandler())

	for range 2 {
		req := loginRequest("192.0.2.10:8080", "x@example.com", identity.Owner{})
		req.Header.Set("X-Forwarded-For", "203.0.113.7, 192.0.2.10")
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, int64(2), counts.counts["rl:login:ip:203.0.113.7"])
}

func TestRateLimitKeepsBodyForHandler(t *testing.T) {
	counts := newWindowCounts()
	var body string
	handler := RateLimit(RateLimitPolicy{Name: "login", Window: time.Minute, PerEmail: 5}, counts, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, _ := io.ReadAll(r.Body)
			body = string(raw)
		}))

	handler.ServeHTTP(httptest.NewRecorder(), loginRequest("10.0.0.1:1", "ada@example.com", identity.Owner{}))
	assert.Contains(t, body, `"password":"hunter22"`)
}

func TestRateLimitCounterOutage(t *testing.T) {
	counts := newWindowCounts()
	counts.err = errors.New("redis timeout")
	handler := RateLimit(RateLimitPolicy{Name: "login", Window: time.Minute, PerIP: 3}, counts, nil)(okHandler())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, loginRequest("10.0.0.1:1", "ada@example.com", identity.Owner{}))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestRateLimitInactivePolicyPassesThrough(t *testing.T) {
	counts := newWindowCounts()
	handler := RateLimit(RateLimitPolicy{Name: "login", PerIP: 1}, counts, nil)(okHandler())
	for range 3 {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, loginRequest("10.0.0.1:1", "ada@example.com", identity.Owner{}))
		require.Equal(t, http.StatusOK, resp.Code)
	}
	assert.Empty(t, counts.counts)
}
