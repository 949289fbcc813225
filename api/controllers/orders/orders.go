package orders

import (
	"errors"
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-cart/api/middleware"
	"github.com/angelmondragon/storefront-cart/api/responses"
	"github.com/angelmondragon/storefront-cart/api/validators"
	"github.com/angelmondragon/storefront-cart/internal/checkout"
	"github.com/angelmondragon/storefront-cart/internal/identity"
	internalorders "github.com/angelmondragon/storefront-cart/internal/orders"
	"github.com/angelmondragon/storefront-cart/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
	"github.com/angelmondragon/storefront-cart/pkg/pagination"
)

type placeOrderRequest struct {
	ContactName     string  `json:"contactName"`
	ContactPhone    string  `json:"contactPhone"`
	ShippingAddress string  `json:"shippingAddress"`
	City            *string `json:"city,omitempty"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=fulfilled cancelled"`
}

// Place converts the caller's cart into an order.
func Place(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return responses.Unavailable("checkout", logg)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := middleware.OwnerFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, errIdentityMissing)
			return
		}
		var body placeOrderRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Checkout(r.Context(), owner, checkout.Input{
			ContactName:     body.ContactName,
			ContactPhone:    body.ContactPhone,
			ShippingAddress: body.ShippingAddress,
			City:            body.City,
		})
		responses.Respond(r.Context(), logg, w, http.StatusCreated, order, err)
	}
}

// List pages through the caller's orders, newest first.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return responses.Unavailable("orders", logg)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		owner, err := knownOwner(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.QueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.List(r.Context(), owner, internalorders.ListParams{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		responses.Respond(r.Context(), logg, w, http.StatusOK, page, err)
	}
}

func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return responses.Unavailable("orders", logg)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		owner, err := knownOwner(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.PathUUID(r, "orderId", "order")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Get(r.Context(), owner, id)
		responses.Respond(r.Context(), logg, w, http.StatusOK, order, err)
	}
}

// UpdateStatus is the fulfillment callback moving a placed order to
// fulfilled or cancelled. Repeating the current status is a no-op.
func UpdateStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return responses.Unavailable("orders", logg)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "orderId", "order")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body statusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.UpdateStatus(r.Context(), id, enums.OrderStatus(body.Status))
		responses.Respond(r.Context(), logg, w, http.StatusOK, order, err)
	}
}

var errIdentityMissing = pkgerrors.New(pkgerrors.CodeInternal, "cart identity missing")

// knownOwner rejects callers whose bearer credential was presented but
// failed verification. Guests without a credential read their own orders.
func knownOwner(r *http.Request) (identity.Owner, error) {
	res, ok := middleware.ResolutionFromContext(r.Context())
	if !ok {
		return identity.Owner{}, errIdentityMissing
	}
	if res.CredentialErr != nil && !errors.Is(res.CredentialErr, identity.ErrNoCredential) {
		return identity.Owner{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, res.CredentialErr, "invalid or expired credential")
	}
	return res.Owner, nil
}
