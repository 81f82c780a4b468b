package booking_test

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transitrail/booking-engine/booking"
	"github.com/transitrail/booking-engine/directory"
	"github.com/transitrail/booking-engine/fare"
	"github.com/transitrail/booking-engine/inventory"
	"github.com/transitrail/booking-engine/ledger"
	"github.com/transitrail/booking-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// testNow is a fixed clock: Monday 2026-09-07 09:00 UTC.
var testNow = time.Date(2026, time.September, 7, 9, 0, 0, 0, time.UTC)

type fixture struct {
	engine *booking.Engine
	store  *memory.Store
	ledger *ledger.Ledger
	seats  *inventory.Inventory
	run    directory.ScheduledRun
	now    time.Time
}

func newFixture(t *testing.T, totalSeats int) *fixture {
	return newFixtureAt(t, totalSeats, testNow, nil)
}

func newFixtureAt(t *testing.T, totalSeats int, now time.Time, gen booking.PNRGenerator) *fixture {
	t.Helper()

	store := memory.New()
	store.PutStation(directory.Station{ID: 1, Code: "NDL", Name: "New Delhi", City: "Delhi"})
	store.PutStation(directory.Station{ID: 3, Code: "AGC", Name: "Agra Cantt", City: "Agra"})
	store.PutTrain(directory.Train{ID: 1, Number: "12002", Name: "Shatabdi Express"})

	run := store.PutRun(directory.ScheduledRun{
		TrainID:        1,
		SourceID:       1,
		DestinationID:  3,
		DepartureTime:  10 * time.Hour,
		ArrivalTime:    14 * time.Hour,
		TotalSeats:     totalSeats,
		AvailableSeats: totalSeats,
		OperatingDays: []time.Weekday{time.Sunday, time.Monday, time.Tuesday,
			time.Wednesday, time.Thursday, time.Friday, time.Saturday},
	})

	wallets := ledger.New(store, nil)
	seats := inventory.New(store)

	engine := booking.NewEngine(booking.Config{
		Directory: store,
		Inventory: seats,
		Ledger:    wallets,
		Bookings:  store,
		PNR:       gen,
		Now:       func() time.Time { return now },
	})

	return &fixture{
		engine: engine,
		store:  store,
		ledger: wallets,
		seats:  seats,
		run:    run,
		now:    now,
	}
}

// occupyPNR stores a booking under pnr so the next draw of that code
// collides.
func (f *fixture) occupyPNR(t *testing.T, pnr string) {
	t.Helper()
	_, err := f.store.Insert(context.Background(), booking.Booking{
		PNR:         pnr,
		UserID:      99,
		RunID:       f.run.ID,
		Class:       fare.SecondClass,
		JourneyDate: f.now.AddDate(0, 0, 10),
		Passengers:  []booking.Passenger{{Name: "Ravi Menon", Age: 41, Gender: "M"}},
		TotalFare:   decimal.RequireFromString("60.00"),
		Status:      booking.StatusConfirmed,
		BookedAt:    f.now,
		UpdatedAt:   f.now,
	})
	require.NoError(t, err)
}

// scriptedPNR hands out queued codes in order, repeating the last one once
// the script runs out.
type scriptedPNR struct {
	mu    sync.Mutex
	codes []string
	next  int
}

func (g *scriptedPNR) Next() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	code := g.codes[g.next]
	if g.next < len(g.codes)-1 {
		g.next++
	}
	return code, nil
}

func (f *fixture) fundUser(t *testing.T, userID booking.UserID, amount string) ledger.Wallet {
	t.Helper()
	w, err := f.ledger.AddFunds(context.Background(), userID, decimal.RequireFromString(amount), ledger.MethodUPI)
	require.NoError(t, err)
	return w
}

func (f *fixture) createRequest(userID booking.UserID, passengers ...booking.Passenger) booking.CreateRequest {
	if len(passengers) == 0 {
		passengers = []booking.Passenger{{Name: "Asha Rao", Age: 34, Gender: "F"}}
	}
	return booking.CreateRequest{
		User:        booking.Identity{UserID: userID, Email: "asha@example.com"},
		RunID:       f.run.ID,
		Class:       fare.SecondClass, // 60.00 per passenger on this route
		JourneyDate: f.now.AddDate(0, 0, 10),
		Passengers:  passengers,
		Method:      ledger.MethodWallet,
	}
}

var pnrPattern = regexp.MustCompile(`^PNR\d{9}$`)

// =============================================================================
// CREATE
// =============================================================================

func TestCreate_ConfirmsBooking(t *testing.T) {
	// GIVEN: a funded user and a run with seats
	// WHEN: booking two passengers in second class
	// THEN: booking is CONFIRMED, seats held, fare debited, debit linked

	ctx := context.Background()
	f := newFixture(t, 10)
	w := f.fundUser(t, 1, "500.00")

	b, err := f.engine.Create(ctx, f.createRequest(1,
		booking.Passenger{Name: "Asha Rao", Age: 34, Gender: "F"},
		booking.Passenger{Name: "Vikram Rao", Age: 36, Gender: "M"},
	))
	require.NoError(t, err)

	assert.Equal(t, booking.StatusConfirmed, b.Status)
	assert.Regexp(t, pnrPattern, b.PNR)
	assert.Equal(t, "120.00", b.TotalFare.StringFixed(2)) // 60.00 x 2
	assert.Len(t, b.Passengers, 2)

	available, err := f.seats.Available(ctx, f.run.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, available)

	after, err := f.ledger.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "380.00", after.Balance.StringFixed(2))

	// The debit entry must be linked to the booking it settled.
	txns, err := f.ledger.Transactions(ctx, w.ID)
	require.NoError(t, err)
	debit := txns[0]
	assert.Equal(t, ledger.TxDebit, debit.Type)
	require.NotNil(t, debit.BookingID)
	assert.Equal(t, b.ID, *debit.BookingID)
	assert.Contains(t, debit.Description, b.PNR)
}

func TestCreate_InsufficientSeats_NothingCharged(t *testing.T) {
	// GIVEN: a run with 1 seat
	// WHEN: booking two passengers
	// THEN: seat failure, wallet untouched, seat still available

	ctx := context.Background()
	f := newFixture(t, 1)
	f.fundUser(t, 1, "500.00")

	_, err := f.engine.Create(ctx, f.createRequest(1,
		booking.Passenger{Name: "Asha Rao", Age: 34},
		booking.Passenger{Name: "Vikram Rao", Age: 36},
	))
	require.Error(t, err)
	assert.ErrorIs(t, err, inventory.ErrInsufficientSeats)

	after, err := f.ledger.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "500.00", after.Balance.StringFixed(2))

	available, err := f.seats.Available(ctx, f.run.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, available)
}

func TestCreate_InsufficientFunds_SeatsReturned(t *testing.T) {
	// GIVEN: a user whose wallet cannot cover the fare
	// WHEN: the debit fails after seats were held
	// THEN: the reservation is rolled back, nothing booked

	ctx := context.Background()
	f := newFixture(t, 10)
	f.fundUser(t, 1, "10.00")

	_, err := f.engine.Create(ctx, f.createRequest(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	available, err := f.seats.Available(ctx, f.run.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, available)

	bookings, err := f.engine.ListForUser(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, bookings)
}

func TestCreate_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	f.fundUser(t, 1, "500.00")

	t.Run("empty passenger list", func(t *testing.T) {
		req := f.createRequest(1)
		req.Passengers = nil
		_, err := f.engine.Create(ctx, req)
		assert.ErrorIs(t, err, booking.ErrValidationFailed)
	})

	t.Run("nameless passenger", func(t *testing.T) {
		_, err := f.engine.Create(ctx, f.createRequest(1, booking.Passenger{Name: "", Age: 30}))
		assert.ErrorIs(t, err, booking.ErrValidationFailed)
	})

	t.Run("non-positive age", func(t *testing.T) {
		_, err := f.engine.Create(ctx, f.createRequest(1, booking.Passenger{Name: "Asha Rao", Age: 0}))
		assert.ErrorIs(t, err, booking.ErrValidationFailed)
	})

	t.Run("unknown travel class", func(t *testing.T) {
		req := f.createRequest(1)
		req.Class = "BUSINESS"
		_, err := f.engine.Create(ctx, req)
		assert.ErrorIs(t, err, booking.ErrValidationFailed)
	})

	t.Run("journey date in the past", func(t *testing.T) {
		req := f.createRequest(1)
		req.JourneyDate = f.now.AddDate(0, 0, -1)
		_, err := f.engine.Create(ctx, req)
		assert.ErrorIs(t, err, booking.ErrValidationFailed)
	})

	t.Run("validation failures charge nothing", func(t *testing.T) {
		after, err := f.ledger.Balance(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "500.00", after.Balance.StringFixed(2))

		available, err := f.seats.Available(ctx, f.run.ID)
		require.NoError(t, err)
		assert.Equal(t, 10, available)
	})
}

func TestCreate_UnknownRun_NotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	f.fundUser(t, 1, "500.00")

	req := f.createRequest(1)
	req.RunID = 999
	_, err := f.engine.Create(ctx, req)
	assert.True(t, directory.IsNotFound(err))
}

func TestCreate_PNRCollision_RedrawsAndConfirms(t *testing.T) {
	// GIVEN: a stored booking already holds the first code the generator draws
	// WHEN: creating a booking
	// THEN: the engine redraws and confirms under the fresh code

	ctx := context.Background()
	gen := &scriptedPNR{codes: []string{"PNR111111111", "PNR222222222"}}
	f := newFixtureAt(t, 10, testNow, gen)
	f.fundUser(t, 1, "500.00")
	f.occupyPNR(t, "PNR111111111")

	b, err := f.engine.Create(ctx, f.createRequest(1))
	require.NoError(t, err)
	assert.Equal(t, booking.StatusConfirmed, b.Status)
	assert.Equal(t, "PNR222222222", b.PNR)
}

func TestCreate_PNRCollision_ExhaustedDraws_RollsBack(t *testing.T) {
	// GIVEN: a generator stuck on a code another booking already holds
	// WHEN: every draw collides
	// THEN: create fails, the debit is reversed and the seats returned

	ctx := context.Background()
	gen := &scriptedPNR{codes: []string{"PNR111111111"}}
	f := newFixtureAt(t, 10, testNow, gen)
	f.fundUser(t, 1, "500.00")
	f.occupyPNR(t, "PNR111111111")

	_, err := f.engine.Create(ctx, f.createRequest(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, booking.ErrPNRCollision)

	after, err := f.ledger.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "500.00", after.Balance.StringFixed(2))

	available, err := f.seats.Available(ctx, f.run.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, available)

	mine, err := f.engine.ListForUser(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestCreate_JourneyToday_EveningClockInWesternZone(t *testing.T) {
	// GIVEN: a clock reading 20:00 in UTC-6, where the UTC date is already
	// tomorrow
	// WHEN: booking for the clock's own calendar date
	// THEN: accepted; the date floor follows the clock's zone

	ctx := context.Background()
	central := time.FixedZone("UTC-6", -6*60*60)
	evening := time.Date(2026, time.September, 7, 20, 0, 0, 0, central)
	f := newFixtureAt(t, 10, evening, nil)
	f.fundUser(t, 1, "500.00")

	req := f.createRequest(1)
	req.JourneyDate = time.Date(2026, time.September, 7, 0, 0, 0, 0, time.UTC)
	_, err := f.engine.Create(ctx, req)
	require.NoError(t, err)
}

func TestCreate_Concurrent_LastSeatsNotOversold(t *testing.T) {
	// GIVEN: 5 seats and 8 funded users booking one seat each concurrently
	// WHEN: all complete
	// THEN: exactly 5 bookings exist and the run is full

	ctx := context.Background()
	f := newFixture(t, 5)
	for u := booking.UserID(1); u <= 8; u++ {
		f.fundUser(t, u, "100.00")
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for u := booking.UserID(1); u <= 8; u++ {
		wg.Add(1)
		go func(userID booking.UserID) {
			defer wg.Done()
			req := f.createRequest(userID)
			req.User.UserID = userID
			if _, err := f.engine.Create(ctx, req); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(u)
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)

	available, err := f.seats.Available(ctx, f.run.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, available)
}

// =============================================================================
// CANCEL
// =============================================================================

func TestCancel_RefundsAndReleases(t *testing.T) {
	// GIVEN: a confirmed booking well outside the cancellation window
	// WHEN: the owner cancels
	// THEN: status flips, exact fare refunded as a REFUNDED entry, seats back

	ctx := context.Background()
	f := newFixture(t, 10)
	w := f.fundUser(t, 1, "500.00")

	b, err := f.engine.Create(ctx, f.createRequest(1))
	require.NoError(t, err)

	cancelled, err := f.engine.Cancel(ctx, b.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, cancelled.Status)

	after, err := f.ledger.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "500.00", after.Balance.StringFixed(2))

	available, err := f.seats.Available(ctx, f.run.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, available)

	// The refund is its own addressable entry, linked to the booking.
	txns, err := f.ledger.Transactions(ctx, w.ID)
	require.NoError(t, err)
	refund := txns[0]
	assert.Equal(t, ledger.TxCredit, refund.Type)
	assert.Equal(t, ledger.StatusRefunded, refund.Status)
	require.NotNil(t, refund.BookingID)
	assert.Equal(t, b.ID, *refund.BookingID)
	assert.True(t, refund.Amount.Equal(b.TotalFare))
}

func TestCancel_Twice_SecondRejected(t *testing.T) {
	// GIVEN: a cancelled booking
	// WHEN: cancelling again
	// THEN: rejected, no second refund

	ctx := context.Background()
	f := newFixture(t, 10)
	f.fundUser(t, 1, "500.00")

	b, err := f.engine.Create(ctx, f.createRequest(1))
	require.NoError(t, err)

	_, err = f.engine.Cancel(ctx, b.ID, 1)
	require.NoError(t, err)

	_, err = f.engine.Cancel(ctx, b.ID, 1)
	assert.ErrorIs(t, err, booking.ErrAlreadyCancelled)

	after, err := f.ledger.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "500.00", after.Balance.StringFixed(2))
}

func TestCancel_Concurrent_ExactlyOneRefund(t *testing.T) {
	// GIVEN: one confirmed booking and many concurrent cancel calls
	// WHEN: all complete
	// THEN: exactly one succeeds; balance shows a single refund

	ctx := context.Background()
	f := newFixture(t, 10)
	f.fundUser(t, 1, "500.00")

	b, err := f.engine.Create(ctx, f.createRequest(1))
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.engine.Cancel(ctx, b.ID, 1); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)

	after, err := f.ledger.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "500.00", after.Balance.StringFixed(2))
}

func TestCancel_InsideWindow_Rejected(t *testing.T) {
	// GIVEN: a booking departing today at 10:00, now 09:00 (window is 3h)
	// WHEN: cancelling
	// THEN: rejected with the window error; nothing refunded or released

	ctx := context.Background()
	f := newFixture(t, 10)
	f.fundUser(t, 1, "500.00")

	req := f.createRequest(1)
	req.JourneyDate = f.now.Truncate(24 * time.Hour) // today, departs 10:00
	b, err := f.engine.Create(ctx, req)
	require.NoError(t, err)

	_, err = f.engine.Cancel(ctx, b.ID, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, booking.ErrCancellationNotAllowed)

	var detail *booking.CancellationWindowError
	require.True(t, errors.As(err, &detail))
	assert.Equal(t, booking.CancellationWindow, detail.Window)

	got, err := f.engine.Get(ctx, b.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusConfirmed, got.Status)

	available, err := f.seats.Available(ctx, f.run.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, available)
}

func TestCancel_NotOwner_IndistinguishableFromMissing(t *testing.T) {
	// GIVEN: user 1's booking
	// WHEN: user 2 tries to cancel it
	// THEN: same error as for a booking that does not exist

	ctx := context.Background()
	f := newFixture(t, 10)
	f.fundUser(t, 1, "500.00")

	b, err := f.engine.Create(ctx, f.createRequest(1))
	require.NoError(t, err)

	_, err = f.engine.Cancel(ctx, b.ID, 2)
	assert.ErrorIs(t, err, booking.ErrBookingNotFound)

	_, err = f.engine.Cancel(ctx, 9999, 2)
	assert.ErrorIs(t, err, booking.ErrBookingNotFound)
}

// =============================================================================
// READS
// =============================================================================

func TestListForUser_NewestFirst_OwnBookingsOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	f.fundUser(t, 1, "500.00")
	f.fundUser(t, 2, "500.00")

	first, err := f.engine.Create(ctx, f.createRequest(1))
	require.NoError(t, err)
	second, err := f.engine.Create(ctx, f.createRequest(1))
	require.NoError(t, err)

	other := f.createRequest(2)
	other.User.UserID = 2
	_, err = f.engine.Create(ctx, other)
	require.NoError(t, err)

	mine, err := f.engine.ListForUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, second.ID, mine[0].ID)
	assert.Equal(t, first.ID, mine[1].ID)
}

func TestBookedSeats_ConfirmedAssignedOnly(t *testing.T) {
	// GIVEN: a confirmed booking with one assigned seat and one unassigned,
	// plus a cancelled booking with an assigned seat
	// WHEN: listing booked seats on the run
	// THEN: only the confirmed assigned seat appears

	ctx := context.Background()
	f := newFixture(t, 10)
	f.fundUser(t, 1, "500.00")

	b1, err := f.engine.Create(ctx, f.createRequest(1,
		booking.Passenger{Name: "Asha Rao", Age: 34, SeatNumber: "A1"},
		booking.Passenger{Name: "Vikram Rao", Age: 36},
	))
	require.NoError(t, err)
	_ = b1

	b2, err := f.engine.Create(ctx, f.createRequest(1,
		booking.Passenger{Name: "Meera Iyer", Age: 28, SeatNumber: "B2"},
	))
	require.NoError(t, err)
	_, err = f.engine.Cancel(ctx, b2.ID, 1)
	require.NoError(t, err)

	seats, err := f.engine.BookedSeats(ctx, f.run.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"A1"}, seats)
}
