package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront-cart/internal/identity"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
)

// requestTrace collects facts that inner middleware learns about a request
// so the single access line can report them.
type requestTrace struct {
	owner string
}

type traceKey struct{}

// noteOwner records the resolved cart owner for the access line.
func noteOwner(ctx context.Context, owner identity.Owner) {
	if trace, ok := ctx.Value(traceKey{}).(*requestTrace); ok {
		trace.owner = owner.Key()
	}
}

// Logging writes one access line per request once the handler is done.
// Server errors log at warn; health and metrics scrapes log at debug.
func Logging(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logg == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			trace := &requestTrace{}
			ctx := context.WithValue(r.Context(), traceKey{}, trace)
			rec := &statusRecorder{ResponseWriter: w}
			start := time.Now()

			next.ServeHTTP(rec, r.WithContext(ctx))

			fields := map[string]any{
				"method":      r.Method,
				"route":       routeLabel(r),
				"status":      rec.code(),
				"bytes":       rec.bytes,
				"duration_ms": time.Since(start).Milliseconds(),
			}
			if trace.owner != "" {
				fields["owner"] = trace.owner
			}
			lineCtx := logg.WithFields(ctx, fields)
			switch {
			case rec.code() >= http.StatusInternalServerError:
				logg.Warn(lineCtx, "http.request")
			case isScrape(r.URL.Path):
				logg.Debug(lineCtx, "http.request")
			default:
				logg.Info(lineCtx, "http.request")
			}
		})
	}
}

// routeLabel is the matched chi pattern so ids in paths do not explode log cardinality.
func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func isScrape(path string) bool {
	return path == "/metrics" || strings.HasPrefix(path, "/health/")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

func (s *statusRecorder) code() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}
