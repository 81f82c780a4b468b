/*
errors.go - Booking-level error taxonomy

Every business-rule failure here is typed, user-presentable, and leaves no
partial state behind. Seat and funds failures from the collaborating
packages pass through unwrapped so errors.Is keeps working on their
sentinels.
*/
package booking

import (
	"errors"
	"fmt"
	"time"

	"github.com/transitrail/booking-engine/inventory"
	"github.com/transitrail/booking-engine/ledger"
)

// =============================================================================
// SENTINEL ERRORS - use with errors.Is()
// =============================================================================

var (
	// ErrBookingNotFound is returned when a booking doesn't exist or isn't
	// owned by the requesting user. The two cases are deliberately
	// indistinguishable to the caller.
	ErrBookingNotFound = errors.New("booking not found")

	// ErrAlreadyCancelled is returned when cancelling a CANCELLED booking.
	ErrAlreadyCancelled = errors.New("booking already cancelled")

	// ErrCancellationNotAllowed is returned inside the cancellation window.
	ErrCancellationNotAllowed = errors.New("cancellation not allowed")

	// ErrValidationFailed is returned for malformed create input.
	ErrValidationFailed = errors.New("validation failed")

	// ErrPNRCollision is returned by the store when a generated PNR already
	// exists. The generator's space makes this vanishingly rare; the engine
	// retries a few times before giving up.
	ErrPNRCollision = errors.New("pnr already exists")

	// ErrTicketRender is returned when the rendering collaborator fails.
	// Non-fatal to booking state: the booking stays CONFIRMED.
	ErrTicketRender = errors.New("ticket rendering failed")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError reports which input field was malformed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }

// CancellationWindowError reports how close to departure the request came.
type CancellationWindowError struct {
	BookingID BookingID
	Departure time.Time
	Window    time.Duration
}

func (e *CancellationWindowError) Error() string {
	return fmt.Sprintf("cancellation not allowed within %s of departure (departs %s)",
		e.Window, e.Departure.Format(time.RFC3339))
}

func (e *CancellationWindowError) Unwrap() error { return ErrCancellationNotAllowed }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports whether err is a business-rule rejection the caller
// can present to the user, as opposed to an internal failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrBookingNotFound) ||
		errors.Is(err, ErrAlreadyCancelled) ||
		errors.Is(err, ErrCancellationNotAllowed) ||
		errors.Is(err, ErrValidationFailed) ||
		errors.Is(err, inventory.ErrInsufficientSeats) ||
		errors.Is(err, ledger.ErrInsufficientFunds)
}
