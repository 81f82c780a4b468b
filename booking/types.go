/*
Package booking orchestrates inventory, fare, and ledger into the booking
lifecycle.

PURPOSE:
  A booking is born CONFIRMED — seats reserved, fare debited, PNR issued,
  all in one logical unit — and can only ever move to CANCELLED, which
  refunds the exact fare and releases the exact seats, again as one unit.
  There is no other transition.

KEY CONCEPTS IN THIS FILE (types.go):
  - Booking: the reservation record, immutable except its status
  - Passenger: owned by the booking, no independent lifecycle
  - Identity: the resolved caller, supplied by the auth collaborator
  - CreateRequest: input to Engine.Create

STATE MACHINE:
  {none} -> CONFIRMED -> CANCELLED (terminal)

SEE ALSO:
  - engine.go: Create/Cancel flows with rollback
  - pnr.go: reference-code generation
*/
package booking

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/transitrail/booking-engine/directory"
	"github.com/transitrail/booking-engine/fare"
	"github.com/transitrail/booking-engine/ledger"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// BookingID aliases the ledger's type: a transaction links to a booking by
// this ID, and an alias keeps the two packages agreeing without imports in
// the wrong direction.
type BookingID = ledger.BookingID

type UserID = ledger.UserID

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

// =============================================================================
// ENTITIES
// =============================================================================

// Passenger travels on one booking. Passengers have no lifecycle of their
// own; they are created with the booking and only read afterwards.
type Passenger struct {
	Name       string
	Age        int
	Gender     string
	SeatNumber string // optional, assigned at boarding when empty
}

// Booking is one reservation.
//
// INVARIANTS:
//   - passenger count is fixed at creation
//   - TotalFare is fixed at creation and never recomputed
//   - Status only ever moves CONFIRMED -> CANCELLED
type Booking struct {
	ID          BookingID
	PNR         string
	UserID      UserID
	RunID       directory.RunID
	Class       fare.TravelClass
	JourneyDate time.Time
	Passengers  []Passenger
	TotalFare   decimal.Decimal
	Status      Status
	BookedAt    time.Time
	UpdatedAt   time.Time
}

// =============================================================================
// REQUESTS
// =============================================================================

// Identity is the resolved caller, supplied by the authentication
// collaborator. The core trusts it and never re-verifies credentials.
type Identity struct {
	UserID UserID
	Email  string
}

// CreateRequest is the input to Engine.Create.
type CreateRequest struct {
	User        Identity
	RunID       directory.RunID
	Class       fare.TravelClass
	JourneyDate time.Time
	Passengers  []Passenger
	Method      ledger.PaymentMethod
}
