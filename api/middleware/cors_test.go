package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCORSExposesCartHeaders(t *testing.T) {
	handler := CORS(nil, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(GuestCartHeader, "guest-1")
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "http://localhost:3000", resp.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, strings.ToLower(resp.Header().Get("Access-Control-Expose-Headers")), "guest-cart-id")
}

func TestCORSPreflightAllowsIdempotencyKey(t *testing.T) {
	handler := CORS([]string{"https://shop.example.com"}, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("preflight must not reach the handler")
	}))

	req := httptest.NewRequest(http.MethodOptions, "/orders", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "idempotency-key,guest-cart-id")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	allowed := strings.ToLower(resp.Header().Get("Access-Control-Allow-Headers"))
	assert.Contains(t, allowed, "idempotency-key")
	assert.Contains(t, allowed, "guest-cart-id")
}

func TestCORSWithoutOriginsOutsideDev(t *testing.T) {
	handler := CORS(nil, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Empty(t, resp.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSRejectsUnlistedOrigin(t *testing.T) {
	handler := CORS([]string{"https://shop.example.com"}, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set("Origin", "https://evil.example.net")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	assert.Empty(t, resp.Header().Get("Access-Control-Allow-Origin"))
}
