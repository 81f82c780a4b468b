/*
Package directory holds the station/train/schedule reference data the
booking core reads.

PURPOSE:
  Stations, trains, and scheduled runs are administered outside the booking
  core (an operations backoffice owns their CRUD). The core only needs
  stable lookups: resolve a run before reserving seats, resolve the two
  stations of a route before pricing it, and search runs by route and
  travel day.

KEY CONCEPTS:
  - Station: a stop with a stable numeric ID. Station IDs double as fare
    keys (the fare model derives a synthetic distance from them).
  - ScheduledRun: one train's trip instance on a route. It carries the
    seat capacity that the inventory package guards.
  - Lookup: the read contract the core consumes. Implementations live in
    store/sqlite and store/memory.

SEE ALSO:
  - inventory: mutates a run's available-seat counter
  - fare: prices a route from its two station IDs
*/
package directory

import (
	"context"
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type StationID int64
type TrainID int64
type RunID int64

// =============================================================================
// ENTITIES
// =============================================================================

// Station is a stop on the network. IDs are assigned by the backoffice and
// never reused.
type Station struct {
	ID   StationID
	Code string // short code, e.g. "CSMT"
	Name string
	City string
}

// Train identifies rolling stock independent of any particular trip.
type Train struct {
	ID     TrainID
	Number string // operator-facing train number
	Name   string
}

// ScheduledRun is one train's trip instance on a route.
//
// INVARIANT: 0 <= AvailableSeats <= TotalSeats at all times. AvailableSeats
// is mutated exclusively through the inventory package; this struct is a
// read snapshot, not a live counter.
type ScheduledRun struct {
	ID            RunID
	TrainID       TrainID
	SourceID      StationID
	DestinationID StationID
	DepartureTime time.Duration // offset from midnight, local to the run
	ArrivalTime   time.Duration
	TotalSeats    int
	AvailableSeats int
	OperatingDays []time.Weekday
}

// OperatesOn reports whether the run operates on the given weekday.
func (r ScheduledRun) OperatesOn(day time.Weekday) bool {
	for _, d := range r.OperatingDays {
		if d == day {
			return true
		}
	}
	return false
}

// DepartureAt anchors the run's departure clock time onto a journey date.
func (r ScheduledRun) DepartureAt(journeyDate time.Time) time.Time {
	midnight := time.Date(journeyDate.Year(), journeyDate.Month(), journeyDate.Day(), 0, 0, 0, 0, journeyDate.Location())
	return midnight.Add(r.DepartureTime)
}

// =============================================================================
// LOOKUP - read contract consumed by the booking core
// =============================================================================

// Lookup resolves reference data by ID. The booking core trusts these IDs;
// a missing entity is a NotFound condition, not a validation failure.
type Lookup interface {
	StationByID(ctx context.Context, id StationID) (Station, error)

	TrainByID(ctx context.Context, id TrainID) (Train, error)

	RunByID(ctx context.Context, id RunID) (ScheduledRun, error)

	// SearchRuns returns runs from src to dst operating on the weekday of
	// the journey date, with at least one seat available.
	SearchRuns(ctx context.Context, src, dst StationID, journeyDate time.Time) ([]ScheduledRun, error)
}
