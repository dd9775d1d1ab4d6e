package payment

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput covers malformed or out-of-range purchase requests.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned when the buyer or an available listing cannot be resolved.
	ErrNotFound = errors.New("not found")
	// ErrSelfPurchase is returned when a buyer tries to pay for their own listing.
	ErrSelfPurchase = errors.New("cannot purchase your own listing")
	// ErrGatewayFailure wraps a *GatewayError raised during initiation.
	ErrGatewayFailure = errors.New("gateway failure")
	// ErrForbidden is returned when the requester does not own the payment.
	ErrForbidden = errors.New("access denied")
	// ErrPaymentNotFound is returned when no payment carries the reference.
	ErrPaymentNotFound = errors.New("transaction not found")
	// ErrNotConfigured is returned by zero-value services.
	ErrNotConfigured = errors.New("payment service not configured")

	// ErrListingUnavailable means the listing does not exist or is already sold.
	ErrListingUnavailable = fmt.Errorf("%w: listing not found or no longer available", ErrNotFound)
	// ErrBuyerNotFound means the authenticated buyer has no user record.
	ErrBuyerNotFound = fmt.Errorf("%w: user not found", ErrNotFound)
)

// InputError carries the message shown to the caller for ErrInvalidInput.
type InputError struct {
	Message string
}

func (e *InputError) Error() string { return e.Message }

func (e *InputError) Is(target error) bool { return target == ErrInvalidInput }

func invalid(msg string) error {
	return &InputError{Message: msg}
}

// GatewayErrorKind classifies outbound gateway failures.
type GatewayErrorKind int

const (
	// GatewayServiceUnavailable means the provider answered with a non-2xx status.
	GatewayServiceUnavailable GatewayErrorKind = iota + 1
	// GatewayRejected means the provider answered 2xx but reported a logical failure.
	GatewayRejected
	// GatewayUnreachable means the call failed on the network or timed out.
	GatewayUnreachable
)

func (k GatewayErrorKind) String() string {
	switch k {
	case GatewayServiceUnavailable:
		return "service_unavailable"
	case GatewayRejected:
		return "rejected"
	case GatewayUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// GatewayError describes why a gateway call did not succeed.
type GatewayError struct {
	Kind       GatewayErrorKind
	Message    string
	StatusCode int
	Err        error
}

func (e *GatewayError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("gateway %s: %s", e.Kind, msg)
}

func (e *GatewayError) Unwrap() error { return e.Err }
