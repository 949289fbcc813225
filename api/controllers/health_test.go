package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/angelmondragon/storefront-cart/pkg/config"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}
	healthy := pingerFunc(func(context.Context) error { return nil })
	broken := pingerFunc(func(context.Context) error { return errors.New("dial tcp: refused") })

	cases := []struct {
		name   string
		deps   map[string]Pinger
		status int
	}{
		{name: "all healthy", deps: map[string]Pinger{"postgres": healthy, "redis": healthy}, status: http.StatusOK},
		{name: "optional redis skipped", deps: map[string]Pinger{"postgres": healthy, "redis": nil}, status: http.StatusOK},
		{name: "redis down", deps: map[string]Pinger{"postgres": healthy, "redis": broken}, status: http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := httptest.NewRecorder()
			HealthReady(cfg, nil, tc.deps).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			if resp.Code != tc.status {
				t.Fatalf("expected %d got %d", tc.status, resp.Code)
			}
			if got := resp.Header().Get("X-Storefront-Env"); got != "dev" {
				t.Fatalf("expected env header dev got %q", got)
			}
		})
	}
}

func TestHealthLive(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "prod"}}
	resp := httptest.NewRecorder()
	HealthLive(cfg).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}
