package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument marks malformed or missing request fields
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrSignatureInvalid marks a webhook signature mismatch
	ErrSignatureInvalid = errors.New("invalid webhook signature")

	// ErrMalformedPayload marks a webhook body that could not be decoded
	ErrMalformedPayload = errors.New("malformed webhook payload")

	// ErrNotFound marks a lookup that found nothing
	ErrNotFound = errors.New("not found")
)

// InvalidArgument returns an error wrapping ErrInvalidArgument
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// GatewayError is a transport failure or non-2xx response from the payment gateway
type GatewayError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// IsGatewayError reports whether err carries a *GatewayError
func IsGatewayError(err error) bool {
	var gerr *GatewayError
	return errors.As(err, &gerr)
}
