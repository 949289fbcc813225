package middleware

import (
	"context"

	"github.com/angelmondragon/storefront-cart/internal/identity"
)

type contextKey string

const (
	ctxResolution contextKey = "cart_resolution"
)

// WithResolution stores the resolved cart owner on the context.
func WithResolution(ctx context.Context, res identity.Resolution) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxResolution, res)
}

func ResolutionFromContext(ctx context.Context) (identity.Resolution, bool) {
	if ctx == nil {
		return identity.Resolution{}, false
	}
	res, ok := ctx.Value(ctxResolution).(identity.Resolution)
	return res, ok
}

// OwnerFromContext returns the cart owner for the request, if resolved.
func OwnerFromContext(ctx context.Context) (identity.Owner, bool) {
	res, ok := ResolutionFromContext(ctx)
	if !ok {
		return identity.Owner{}, false
	}
	return res.Owner, true
}

// UserIDFromContext returns the authenticated user id or "".
func UserIDFromContext(ctx context.Context) string {
	res, ok := ResolutionFromContext(ctx)
	if !ok || !res.Authenticated() {
		return ""
	}
	return res.Owner.ID
}
