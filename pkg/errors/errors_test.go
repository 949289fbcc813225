package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataContract(t *testing.T) {
	cases := map[Code]Metadata{
		CodeValidation:      {HTTPStatus: http.StatusBadRequest, DetailsAllowed: true},
		CodeInvalidQuantity: {HTTPStatus: http.StatusBadRequest, DetailsAllowed: true},
		CodeEmptyCart:       {HTTPStatus: http.StatusUnprocessableEntity},
		CodeUnauthorized:    {HTTPStatus: http.StatusUnauthorized},
		CodeNotFound:        {HTTPStatus: http.StatusNotFound},
		CodeStateConflict:   {HTTPStatus: http.StatusUnprocessableEntity, DetailsAllowed: true},
		CodeIdempotency:     {HTTPStatus: http.StatusConflict, DetailsAllowed: true},
		CodeRateLimit:       {HTTPStatus: http.StatusTooManyRequests},
		CodeInternal:        {HTTPStatus: http.StatusInternalServerError, Retryable: true},
		CodeDependency:      {HTTPStatus: http.StatusServiceUnavailable, Retryable: true, DetailsAllowed: true},
	}
	for code, want := range cases {
		got := MetadataFor(code)
		assert.NotEmpty(t, got.PublicMessage, code)
		got.PublicMessage = ""
		assert.Equal(t, want, got, code)
	}

	assert.Equal(t, MetadataFor(CodeInternal), MetadataFor("SOMETHING_UNKNOWN"))
}

func TestWrapKeepsCauseInChain(t *testing.T) {
	cause := stdErrors.New("connection reset")
	wrapped := Wrap(CodeDependency, cause, "load cart")

	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, "DEPENDENCY_ERROR: load cart: connection reset", wrapped.Error())
	assert.Equal(t, "NOT_FOUND: no cart", New(CodeNotFound, "no cart").Error())
	assert.Nil(t, Wrap(CodeInternal, nil, "x").Unwrap())
}

func TestFieldNamesTheField(t *testing.T) {
	err := Field("contactPhone", "is required")
	assert.Equal(t, CodeValidation, err.Code())
	assert.Equal(t, "contactPhone is required", err.Message())
	assert.Equal(t, map[string]any{"field": "contactPhone"}, err.Details())
}

func TestHasCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("checkout: %w", New(CodeEmptyCart, "empty"))
	assert.True(t, HasCode(err, CodeEmptyCart))
	assert.False(t, HasCode(err, CodeValidation))
	assert.False(t, HasCode(nil, CodeEmptyCart))
	assert.Nil(t, As(nil))
	assert.Nil(t, As(stdErrors.New("plain")))
}

func TestNilErrorIsSafe(t *testing.T) {
	var e *Error
	assert.Equal(t, CodeInternal, e.Code())
	assert.Empty(t, e.Error())
	assert.Nil(t, e.Details())
	require.Nil(t, e.WithDetails("x"))
}
