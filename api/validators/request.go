package validators

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
)

// MaxBodyBytes bounds every JSON request body. Cart and order payloads are tiny.
const MaxBodyBytes = 64 << 10

var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}()

// DecodeJSONBody reads exactly one JSON object into dest and runs its
// validate tags. Unknown fields are rejected so clients cannot smuggle
// prices or owners into cart writes.
func DecodeJSONBody(r *http.Request, dest any) error {
	raw, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
	_, _ = io.Copy(io.Discard, r.Body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "could not read request body")
	}
	if len(raw) > MaxBodyBytes {
		return pkgerrors.New(pkgerrors.CodeValidation, "request body too large").
			WithDetails(map[string]any{"maxBytes": MaxBodyBytes})
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "request body is required")
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body").
			WithDetails(map[string]any{"error": err.Error()})
	}
	if decoder.More() {
		return pkgerrors.New(pkgerrors.CodeValidation, "request body must hold a single JSON object")
	}
	return Struct(dest)
}

// Struct runs validate tags and reports failures per JSON field name.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
	}
	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = describe(fe)
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "is required"
	case "email":
		return "must be a valid email"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "min", "max":
		bound := "at least"
		if fe.Tag() == "max" {
			bound = "at most"
		}
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be %s %s characters", bound, fe.Param())
		}
		return fmt.Sprintf("must be %s %s", bound, fe.Param())
	}
	return "is invalid"
}

// QueryInt reads an optional integer query parameter bounded to [lo, hi].
func QueryInt(r *http.Request, key string, fallback, lo, hi int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.Field(key, "must be a whole number")
	}
	if value < lo || value > hi {
		return 0, pkgerrors.Field(key, fmt.Sprintf("must be between %d and %d", lo, hi))
	}
	return value, nil
}

// PathUUID reads a chi route parameter that must hold a UUID.
func PathUUID(r *http.Request, param, label string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, param)))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+label+" id")
	}
	return id, nil
}
