package cart

import (
	"context"
	"net/http"

	"github.com/angelmondragon/storefront-cart/api/middleware"
	"github.com/angelmondragon/storefront-cart/api/responses"
	cartsvc "github.com/angelmondragon/storefront-cart/internal/cart"
	"github.com/angelmondragon/storefront-cart/internal/identity"
	"github.com/angelmondragon/storefront-cart/internal/pricing"
	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
)

type cartPricer interface {
	Price(ctx context.Context, c *cartsvc.Cart) (*pricing.PricedCart, error)
}

// cartOp is one cart operation on behalf of the resolved owner.
type cartOp func(r *http.Request, owner identity.Owner) (*cartsvc.Cart, error)

// Get returns the caller's cart priced against the live catalog.
func Get(svc cartsvc.Service, pricer cartPricer, logg *logger.Logger) http.HandlerFunc {
	return priced(svc, pricer, logg, func(r *http.Request, owner identity.Owner) (*cartsvc.Cart, error) {
		return svc.GetCart(r.Context(), owner)
	})
}

// Add accumulates quantity on a cart line, creating the cart when needed.
func Add(svc cartsvc.Service, pricer cartPricer, logg *logger.Logger) http.HandlerFunc {
	return priced(svc, pricer, logg, func(r *http.Request, owner identity.Owner) (*cartsvc.Cart, error) {
		productID, quantity, err := decodeItem(r)
		if err != nil {
			return nil, err
		}
		return svc.AddItem(r.Context(), owner, productID, quantity)
	})
}

// Update sets the absolute quantity of a line. Zero or less removes it.
func Update(svc cartsvc.Service, pricer cartPricer, logg *logger.Logger) http.HandlerFunc {
	return priced(svc, pricer, logg, func(r *http.Request, owner identity.Owner) (*cartsvc.Cart, error) {
		productID, quantity, err := decodeItem(r)
		if err != nil {
			return nil, err
		}
		return svc.UpdateQuantity(r.Context(), owner, productID, quantity)
	})
}

func Remove(svc cartsvc.Service, pricer cartPricer, logg *logger.Logger) http.HandlerFunc {
	return priced(svc, pricer, logg, func(r *http.Request, owner identity.Owner) (*cartsvc.Cart, error) {
		productID, err := decodeRemoval(r)
		if err != nil {
			return nil, err
		}
		return svc.RemoveItem(r.Context(), owner, productID)
	})
}

func Clear(svc cartsvc.Service, pricer cartPricer, logg *logger.Logger) http.HandlerFunc {
	return priced(svc, pricer, logg, func(r *http.Request, owner identity.Owner) (*cartsvc.Cart, error) {
		return svc.Clear(r.Context(), owner)
	})
}

// priced runs op for the request's owner and answers with the priced cart.
func priced(svc cartsvc.Service, pricer cartPricer, logg *logger.Logger, op cartOp) http.HandlerFunc {
	if svc == nil || pricer == nil {
		return responses.Unavailable("cart", logg)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := middleware.OwnerFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart identity missing"))
			return
		}
		current, err := op(r, owner)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := pricer.Price(r.Context(), current)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPricedCartResponse(view))
	}
}
