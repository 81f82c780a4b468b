/*
Package inventory guards the seat counter of every scheduled run.

PURPOSE:
  One counter per run: available seats. Reserve decrements it, Release
  increments it, and nothing else touches it. The invariant
  0 <= available <= total holds at all times, under any interleaving of
  concurrent callers.

CONCURRENCY:
  The read-check-decrement sequence for a run is a single logical unit.
  Two concurrent reserves against the last N seats must resolve so that
  total consumption never exceeds N, whichever one wins. A per-run lock
  provides that; the store's conditional update (available >= count) is
  the backstop underneath, so even a buggy caller bypassing the lock
  cannot oversell.

  Different runs never contend: a lock per run ID, not a global one.

RELEASE CONTRACT:
  Release always succeeds within bounds. Releasing more seats than the
  run's capacity can absorb is a programming-contract violation by the
  caller (releasing seats it never reserved) and is reported as an error
  rather than silently clamped.

SEE ALSO:
  - booking/engine.go: reserves on create, releases on cancel and on
    payment rollback
  - directory: owns the ScheduledRun record this counter belongs to
*/
package inventory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/transitrail/booking-engine/directory"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrInsufficientSeats is returned when a reserve exceeds availability.
	ErrInsufficientSeats = errors.New("insufficient seats")

	// ErrReleaseExceedsCapacity is returned when a release would push the
	// counter past total capacity. Callers releasing seats they never
	// reserved hit this.
	ErrReleaseExceedsCapacity = errors.New("release exceeds run capacity")

	// ErrNonPositiveCount is returned for zero or negative seat counts.
	ErrNonPositiveCount = errors.New("seat count must be positive")
)

// InsufficientSeatsError reports how many seats were left.
type InsufficientSeatsError struct {
	RunID     directory.RunID
	Available int
	Requested int
}

func (e *InsufficientSeatsError) Error() string {
	return fmt.Sprintf("insufficient seats on run %d: %d available, %d requested",
		e.RunID, e.Available, e.Requested)
}

func (e *InsufficientSeatsError) Unwrap() error {
	return ErrInsufficientSeats
}

// =============================================================================
// STORE - persistence contract
// =============================================================================

// Store persists run seat counters. AdjustSeats is conditional: it applies
// the delta only if the result stays within [0, total], and reports
// whether it applied.
type Store interface {
	// SeatCounts returns (available, total) for a run, or
	// directory.ErrRunNotFound.
	SeatCounts(ctx context.Context, runID directory.RunID) (available, total int, err error)

	// AdjustSeats applies delta to the run's available count if and only if
	// the result stays in [0, total]. Returns false, nil when the guard
	// rejects the change.
	AdjustSeats(ctx context.Context, runID directory.RunID, delta int) (applied bool, err error)
}

// =============================================================================
// INVENTORY
// =============================================================================

type Inventory struct {
	store Store

	// locks holds one mutex per run seen; entries are never evicted and
	// live for the process lifetime.
	mu    sync.Mutex
	locks map[directory.RunID]*sync.Mutex
}

func New(store Store) *Inventory {
	return &Inventory{
		store: store,
		locks: make(map[directory.RunID]*sync.Mutex),
	}
}

func (inv *Inventory) lock(id directory.RunID) *sync.Mutex {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	m, ok := inv.locks[id]
	if !ok {
		m = &sync.Mutex{}
		inv.locks[id] = m
	}
	return m
}

// Reserve takes count seats from the run. Fails with
// InsufficientSeatsError, mutating nothing, when fewer than count remain.
func (inv *Inventory) Reserve(ctx context.Context, runID directory.RunID, count int) error {
	if count <= 0 {
		return ErrNonPositiveCount
	}

	m := inv.lock(runID)
	m.Lock()
	defer m.Unlock()

	available, _, err := inv.store.SeatCounts(ctx, runID)
	if err != nil {
		return err
	}
	if available < count {
		return &InsufficientSeatsError{RunID: runID, Available: available, Requested: count}
	}

	applied, err := inv.store.AdjustSeats(ctx, runID, -count)
	if err != nil {
		return err
	}
	if !applied {
		// Lost a race with a writer outside this process; same outcome as
		// the check failing.
		available, _, _ := inv.store.SeatCounts(ctx, runID)
		return &InsufficientSeatsError{RunID: runID, Available: available, Requested: count}
	}
	return nil
}

// Release returns count seats to the run. Bounded by available <= total;
// exceeding it reports ErrReleaseExceedsCapacity.
func (inv *Inventory) Release(ctx context.Context, runID directory.RunID, count int) error {
	if count <= 0 {
		return ErrNonPositiveCount
	}

	m := inv.lock(runID)
	m.Lock()
	defer m.Unlock()

	applied, err := inv.store.AdjustSeats(ctx, runID, count)
	if err != nil {
		return err
	}
	if !applied {
		return ErrReleaseExceedsCapacity
	}
	return nil
}

// Available returns the current available-seat count for a run.
func (inv *Inventory) Available(ctx context.Context, runID directory.RunID) (int, error) {
	available, _, err := inv.store.SeatCounts(ctx, runID)
	return available, err
}
