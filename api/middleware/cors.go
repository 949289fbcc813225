package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// localStorefronts are the dev servers of the web storefront.
var localStorefronts = []string{"http://localhost:3000", "http://localhost:5173"}

// CORS applies the browser origin policy for the shopper routes. With no
// configured origins, dev allows the local storefronts and every other
// environment sends no CORS headers at all.
func CORS(origins []string, dev bool) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		if !dev {
			return func(next http.Handler) http.Handler { return next }
		}
		origins = localStorefronts
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", GuestCartHeader, "Idempotency-Key"},
		ExposedHeaders:   []string{GuestCartHeader, RequestIDHeader, "Retry-After", "Idempotent-Replayed"},
		AllowCredentials: true,
		MaxAge:           600,
	})
}
