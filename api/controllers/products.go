package controllers

import (
	"net/http"

	"github.com/angelmondragon/storefront-cart/api/responses"
	"github.com/angelmondragon/storefront-cart/api/validators"
	"github.com/angelmondragon/storefront-cart/internal/catalog"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
)

// ProductDetail returns an active catalog product by id.
func ProductDetail(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return responses.Unavailable("catalog", logg)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "productId", "product")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		product, err := svc.Get(r.Context(), id)
		responses.Respond(r.Context(), logg, w, http.StatusOK, product, err)
	}
}
