package services

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the payment services. Handlers map these to
// HTTP responses; everything else surfaces as an internal error.
var (
	// ErrNotFound is returned for unknown payment/course/bundle ids.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a compare-and-swap transition lost the
	// race against a concurrent writer. The caller should re-read the
	// current state and decide whether to no-op.
	ErrConflict = errors.New("payment state conflict")

	// ErrCouponInvalid covers unknown, expired and redemption-exhausted
	// coupon codes. The reasons are deliberately collapsed into one error
	// so callers cannot enumerate codes or probe remaining slots.
	ErrCouponInvalid = errors.New("coupon code is not valid")

	// ErrCouponNotApplicable is returned when a valid coupon is restricted
	// to a different item than the one being purchased.
	ErrCouponNotApplicable = errors.New("coupon is not applicable to this item")
)

// ValidationError reports a user-correctable problem with the request.
// It is surfaced to the caller verbatim.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ExternalServiceError wraps a failure from the slip verifier or the card
// gateway. It is absorbed at the payment service boundary: the payment moves
// to failed, the detail is logged, and the user sees a generic message.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// IsExternalServiceError reports whether err is (or wraps) an
// ExternalServiceError.
func IsExternalServiceError(err error) bool {
	var ese *ExternalServiceError
	return errors.As(err, &ese)
}
