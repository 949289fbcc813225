package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-cart/api/middleware"
	"github.com/angelmondragon/storefront-cart/api/responses"
	"github.com/angelmondragon/storefront-cart/api/validators"
	"github.com/angelmondragon/storefront-cart/internal/auth"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
)

type signInCall[Req any] func(ctx context.Context, req Req, guestID string) (*auth.Response, error)

// AuthRegister creates an account, issues a token and merges the guest cart
// named by the Guest-Cart-ID header.
func AuthRegister(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return responses.Unavailable("auth", logg)
	}
	return signIn(http.StatusCreated, signInCall[auth.RegisterRequest](svc.Register), logg)
}

func AuthLogin(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return responses.Unavailable("auth", logg)
	}
	return signIn(http.StatusOK, signInCall[auth.LoginRequest](svc.Login), logg)
}

func signIn[Req any](status int, call signInCall[Req], logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body Req
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		guestID := strings.TrimSpace(r.Header.Get(middleware.GuestCartHeader))
		result, err := call(r.Context(), body, guestID)
		responses.Respond(r.Context(), logg, w, status, result, err)
	}
}
