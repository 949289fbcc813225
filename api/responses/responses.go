package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
)

// Envelope is the body of every successful response.
type Envelope struct {
	Data any `json:"data"`
}

// ErrorBody is the public part of a failed response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope is the body of every failed response.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{Data: data})
}

// Respond writes data under status, or err when the call failed.
func Respond(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, status int, data any, err error) {
	if err != nil {
		WriteError(ctx, logg, w, err)
		return
	}
	WriteSuccessStatus(w, status, data)
}

// Unavailable stands in for a handler whose service was never wired.
func Unavailable(service string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, service+" service unavailable"))
	}
}

// WriteError renders err as an ErrorEnvelope. Untyped errors become
// INTERNAL_ERROR. Client errors carry the typed message; server errors only
// ever expose the code's public message.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("error written without cause")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	body := ErrorBody{Code: string(typed.Code()), Message: meta.PublicMessage}
	if meta.HTTPStatus < http.StatusInternalServerError && typed.Message() != "" {
		body.Message = typed.Message()
	}
	if meta.DetailsAllowed {
		body.Details = typed.Details()
	}
	if meta.Retryable {
		w.Header().Set("Retry-After", "1")
	}

	if logg != nil {
		logFailure(ctx, logg, meta.HTTPStatus, err)
	}
	writeJSON(w, meta.HTTPStatus, ErrorEnvelope{Error: body})
}

// logFailure logs server errors with their full cause chain. Client errors
// are expected traffic and only logged at debug.
func logFailure(ctx context.Context, logg *logger.Logger, status int, err error) {
	dump := pkgerrors.Dump(err)
	fields := map[string]any{
		"status":      status,
		"error_code":  dump.Code,
		"error_chain": dump.Chain,
	}
	if dump.Postgres != nil {
		for key, value := range dump.Postgres.LogFields() {
			fields[key] = value
		}
	}
	ctx = logg.WithFields(ctx, fields)
	if status >= http.StatusInternalServerError {
		logg.Error(ctx, "request failed", err)
		return
	}
	logg.Debug(logg.WithField(ctx, "error", dump.TopMessage), "request rejected")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Int("status", status).Msg("encode response body")
	}
}
