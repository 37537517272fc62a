package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrInvalidListing    = errors.New("listing id is required")
	ErrRequestInFlight   = errors.New("a checkout request is already in progress")
	ErrInvalidTransition = errors.New("action not allowed in current checkout step")
	ErrStaleQuote        = errors.New("cart changed since the order was priced; go back and review delivery")
	ErrCartChanged       = errors.New("cart changed while the order was being priced; please try again")
	ErrNoCheckout        = errors.New("no checkout in progress")
	ErrSessionClosed     = errors.New("session closed")
	ErrCartUnavailable   = errors.New("cart storage unavailable")
)

// ValidationError is raised before any request is issued. It blocks only
// the offending transition.
type ValidationError struct {
	Fields  []string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Fields, ", "))
}

func newValidationError(fields ...string) *ValidationError {
	return &ValidationError{Fields: fields}
}

// IsValidationError reports whether err is (or wraps) a *ValidationError.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// GatewayError is a failed marketplace call made on the buyer's behalf.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}
