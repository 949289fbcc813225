package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-cart/internal/identity"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
)

// GuestCartHeader carries the anonymous cart id in both directions.
const GuestCartHeader = "Guest-Cart-ID"

type ownerResolver interface {
	Resolve(ctx context.Context, credential, guestID string) identity.Resolution
}

// CartIdentity resolves every request to exactly one cart owner. Guests get
// their id echoed back so a freshly minted one can be persisted by the client.
func CartIdentity(resolver ownerResolver, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := resolver.Resolve(r.Context(), bearerToken(r), r.Header.Get(GuestCartHeader))

			if res.Owner.IsGuest() {
				w.Header().Set(GuestCartHeader, res.Owner.ID)
			}

			noteOwner(r.Context(), res.Owner)
			ctx := WithResolution(r.Context(), res)
			if logg != nil {
				ctx = logg.WithOwner(ctx, string(res.Owner.Type), res.Owner.ID)
				if res.Minted {
					ctx = logg.WithField(ctx, "guest_minted", true)
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	token := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(token) >= 7 && strings.EqualFold(token[:7], "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}
