package responses

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
)

func TestWriteSuccessStatusWrapsData(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]string{"orderId": "o-1"})

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"orderId":"o-1"}}`, w.Body.String())
}

func TestRespondPicksErrorOverData(t *testing.T) {
	ok := httptest.NewRecorder()
	Respond(context.Background(), nil, ok, http.StatusOK, []int{1}, nil)
	assert.JSONEq(t, `{"data":[1]}`, ok.Body.String())

	failed := httptest.NewRecorder()
	Respond(context.Background(), nil, failed, http.StatusCreated, []int{1}, pkgerrors.New(pkgerrors.CodeConflict, "order already placed"))
	assert.Equal(t, http.StatusConflict, failed.Code)
	assert.NotContains(t, failed.Body.String(), `"data"`)
}

func TestUnavailableNamesService(t *testing.T) {
	w := httptest.NewRecorder()
	Unavailable("checkout", nil).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/orders", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), string(pkgerrors.CodeInternal))
}

func TestWriteErrorShowsClientMessages(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		code    pkgerrors.Code
		message string
		details bool
	}{
		{
			name:    "invalid quantity",
			err:     pkgerrors.New(pkgerrors.CodeInvalidQuantity, "quantity would exceed the per-line limit").WithDetails(map[string]any{"field": "quantity"}),
			status:  http.StatusBadRequest,
			code:    pkgerrors.CodeInvalidQuantity,
			message: "quantity would exceed the per-line limit",
			details: true,
		},
		{
			name:    "empty cart",
			err:     fmt.Errorf("checkout: %w", pkgerrors.New(pkgerrors.CodeEmptyCart, "cart has no purchasable items")),
			status:  http.StatusUnprocessableEntity,
			code:    pkgerrors.CodeEmptyCart,
			message: "cart has no purchasable items",
		},
		{
			name:    "rate limited",
			err:     pkgerrors.New(pkgerrors.CodeRateLimit, "too many login attempts").WithDetails("hidden"),
			status:  http.StatusTooManyRequests,
			code:    pkgerrors.CodeRateLimit,
			message: "too many login attempts",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(t.Context(), nil, w, tc.err)

			require.Equal(t, tc.status, w.Code)
			var body ErrorEnvelope
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, string(tc.code), body.Error.Code)
			assert.Equal(t, tc.message, body.Error.Message)
			assert.Equal(t, tc.details, body.Error.Details != nil)
			assert.Empty(t, w.Header().Get("Retry-After"))
		})
	}
}

func TestWriteErrorHidesServerCauses(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "responses-test", Level: logger.ParseLevel("error")})

	w := httptest.NewRecorder()
	WriteError(t.Context(), logg, w, errors.New("pq: relation carts does not exist"))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	var body ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, string(pkgerrors.CodeInternal), body.Error.Code)
	assert.Equal(t, "internal server error", body.Error.Message)
	assert.NotContains(t, w.Body.String(), "relation carts")

	w = httptest.NewRecorder()
	WriteError(t.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "redis lock store down"))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "dependency unavailable", body.Error.Message)
}

func TestWriteErrorWithoutCause(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(t.Context(), nil, w, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
