// Package errors carries the typed error kinds every storefront handler
// answers with, and the HTTP contract attached to each kind.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation      Code = "VALIDATION_ERROR"
	CodeInvalidQuantity Code = "INVALID_QUANTITY"
	CodeEmptyCart       Code = "EMPTY_CART"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeForbidden       Code = "FORBIDDEN"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeStateConflict   Code = "STATE_CONFLICT"
	CodeIdempotency     Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit       Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal        Code = "INTERNAL_ERROR"
	CodeDependency      Code = "DEPENDENCY_ERROR"
)

// Metadata is what a client learns about a code.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

type trait uint8

const (
	retryable trait = 1 << iota
	withDetails
)

func meta(status int, message string, traits trait) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  message,
		Retryable:      traits&retryable != 0,
		DetailsAllowed: traits&withDetails != 0,
	}
}

var catalog = map[Code]Metadata{
	CodeValidation:      meta(http.StatusBadRequest, "validation failed", withDetails),
	CodeInvalidQuantity: meta(http.StatusBadRequest, "quantity must be a positive integer", withDetails),
	CodeEmptyCart:       meta(http.StatusUnprocessableEntity, "cart has no purchasable items", 0),
	CodeUnauthorized:    meta(http.StatusUnauthorized, "authentication required", 0),
	CodeForbidden:       meta(http.StatusForbidden, "access denied", 0),
	CodeNotFound:        meta(http.StatusNotFound, "resource not found", 0),
	CodeConflict:        meta(http.StatusConflict, "conflict detected", 0),
	CodeStateConflict:   meta(http.StatusUnprocessableEntity, "state transition disallowed", withDetails),
	CodeIdempotency:     meta(http.StatusConflict, "idempotency key reused", withDetails),
	CodeRateLimit:       meta(http.StatusTooManyRequests, "rate limit exceeded", 0),
	CodeInternal:        meta(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:      meta(http.StatusServiceUnavailable, "dependency unavailable", retryable|withDetails),
}

// MetadataFor falls back to CodeInternal for codes it does not know.
func MetadataFor(code Code) Metadata {
	if m, ok := catalog[code]; ok {
		return m
	}
	return catalog[CodeInternal]
}

// Error is a coded failure. The message is for logs; clients only ever see
// the code's public message plus, where allowed, the details.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap attaches code to err. A nil err yields a plain New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

// Field builds a validation error that names the offending field.
func Field(field, message string) *Error {
	return New(CodeValidation, field+" "+message).WithDetails(map[string]any{"field": field})
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails sets details in place and returns e for chaining.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.cause == nil:
		return string(e.code) + ": " + e.message
	default:
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

func HasCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}
