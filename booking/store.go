/*
store.go - Persistence contract for bookings

PURPOSE:
  Bookings are written twice in their whole life: once at creation and
  once when the status flips to CANCELLED. The store enforces both: Insert
  rejects duplicate PNRs, and MarkCancelled is conditional on the current
  status being CONFIRMED so a double-cancel can never slip through a race.

IMPLEMENTATIONS:
  - store/sqlite: production store
  - store/memory: in-memory store for tests
*/
package booking

import (
	"context"
	"time"

	"github.com/transitrail/booking-engine/directory"
)

// Store persists bookings and their passenger lists.
type Store interface {
	// Insert persists a new booking with its passengers, assigning its ID.
	// Fails with ErrPNRCollision if the PNR is taken.
	Insert(ctx context.Context, b Booking) (Booking, error)

	// Delete removes a booking that never completed its create flow. Only
	// the create rollback path calls this; a committed booking is never
	// deleted.
	Delete(ctx context.Context, id BookingID) error

	// Get returns a booking by ID, or ErrBookingNotFound.
	Get(ctx context.Context, id BookingID) (Booking, error)

	// GetOwned returns the booking only if it belongs to userID; otherwise
	// ErrBookingNotFound, indistinguishable from a missing booking.
	GetOwned(ctx context.Context, id BookingID, userID UserID) (Booking, error)

	// ListByUser returns a user's bookings, newest first.
	ListByUser(ctx context.Context, userID UserID) ([]Booking, error)

	// ListByRun returns all bookings on a run.
	ListByRun(ctx context.Context, runID directory.RunID) ([]Booking, error)

	// ListInRange returns bookings created in [from, to], oldest first.
	// Read path for reporting.
	ListInRange(ctx context.Context, from, to time.Time) ([]Booking, error)

	// MarkCancelled flips CONFIRMED -> CANCELLED. Fails with
	// ErrAlreadyCancelled if the booking is not currently CONFIRMED.
	MarkCancelled(ctx context.Context, id BookingID, at time.Time) error
}
