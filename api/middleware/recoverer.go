package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/angelmondragon/storefront-cart/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
)

// Recoverer answers a panicking handler with INTERNAL_ERROR. A panic with
// http.ErrAbortHandler is raised again so net/http drops the connection.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					recovered(w, r, logg, v)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func recovered(w http.ResponseWriter, r *http.Request, logg *logger.Logger, v any) {
	cause, ok := v.(error)
	if !ok {
		cause = fmt.Errorf("%v", v)
	}
	if errors.Is(cause, http.ErrAbortHandler) {
		panic(v)
	}
	err := pkgerrors.Wrap(pkgerrors.CodeInternal, cause, "handler panic")
	if logg != nil {
		logg.Error(logg.WithFields(r.Context(), map[string]any{
			"route":       routeLabel(r),
			"panic_stack": string(debug.Stack()),
		}), "handler panicked", err)
	}
	responses.WriteError(r.Context(), nil, w, err)
}
