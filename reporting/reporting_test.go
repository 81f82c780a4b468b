package reporting_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transitrail/booking-engine/booking"
	"github.com/transitrail/booking-engine/fare"
	"github.com/transitrail/booking-engine/ledger"
	"github.com/transitrail/booking-engine/reporting"
	"github.com/transitrail/booking-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	rangeFrom = time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)
	rangeTo   = time.Date(2026, time.August, 31, 23, 59, 59, 0, time.UTC)
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seedBooking(t *testing.T, store *memory.Store, pnr string, class fare.TravelClass, fareAmount string, status booking.Status, bookedAt time.Time) booking.Booking {
	t.Helper()
	b, err := store.Insert(context.Background(), booking.Booking{
		PNR:         pnr,
		UserID:      1,
		RunID:       1,
		Class:       class,
		JourneyDate: bookedAt.AddDate(0, 0, 14),
		Passengers:  []booking.Passenger{{Name: "Asha Rao", Age: 34}},
		TotalFare:   dec(fareAmount),
		Status:      booking.StatusConfirmed,
		BookedAt:    bookedAt,
		UpdatedAt:   bookedAt,
	})
	require.NoError(t, err)
	if status == booking.StatusCancelled {
		require.NoError(t, store.MarkCancelled(context.Background(), b.ID, bookedAt.Add(time.Hour)))
	}
	return b
}

func seedRefund(t *testing.T, store *memory.Store, w ledger.Wallet, bookingID booking.BookingID, amount string, at time.Time) {
	t.Helper()
	id := bookingID
	_, err := store.Apply(context.Background(), ledger.Transaction{
		TxnRef:    ledger.NewTxnRef(ledger.TxCredit),
		WalletID:  w.ID,
		Amount:    dec(amount),
		Type:      ledger.TxCredit,
		Method:    ledger.MethodWallet,
		Status:    ledger.StatusRefunded,
		BookingID: &id,
		CreatedAt: at,
		UpdatedAt: at,
	}, w.Balance.Add(dec(amount)))
	require.NoError(t, err)
}

// =============================================================================
// REVENUE
// =============================================================================

func TestRevenue_SeparatesRevenueAndRefunds(t *testing.T) {
	// GIVEN: two confirmed bookings, one cancelled booking with its refund
	// WHEN: reporting over the month
	// THEN: revenue counts confirmed fares only, the refund shows on its own
	// line, and net = revenue - refunds

	ctx := context.Background()
	store := memory.New()

	day1 := rangeFrom.Add(9 * time.Hour)
	day2 := rangeFrom.AddDate(0, 0, 4).Add(11 * time.Hour)

	seedBooking(t, store, "PNR100000001", fare.SecondClass, "120.00", booking.StatusConfirmed, day1)
	seedBooking(t, store, "PNR100000002", fare.FirstClass, "360.00", booking.StatusConfirmed, day2)
	cancelled := seedBooking(t, store, "PNR100000003", fare.Sleeper, "60.00", booking.StatusCancelled, day2)

	w, err := store.CreateWallet(ctx, ledger.Wallet{UserID: 1, Balance: decimal.Zero, CreatedAt: day1, UpdatedAt: day1})
	require.NoError(t, err)
	seedRefund(t, store, w, cancelled.ID, "60.00", day2.Add(2*time.Hour))

	svc := reporting.New(store, store)
	report, err := svc.Revenue(ctx, rangeFrom, rangeTo)
	require.NoError(t, err)

	assert.Equal(t, "480.00", report.TotalRevenue.StringFixed(2))
	assert.Equal(t, "60.00", report.TotalRefunds.StringFixed(2))
	assert.Equal(t, "420.00", report.NetRevenue.StringFixed(2))
	assert.Equal(t, 2, report.TotalBookings)
	assert.Equal(t, 1, report.CancelledBookings)
}

func TestRevenue_GroupsByClassAndDay(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	day1 := rangeFrom.Add(9 * time.Hour)
	day2 := rangeFrom.AddDate(0, 0, 1).Add(9 * time.Hour)

	seedBooking(t, store, "PNR100000011", fare.SecondClass, "120.00", booking.StatusConfirmed, day1)
	seedBooking(t, store, "PNR100000012", fare.SecondClass, "60.00", booking.StatusConfirmed, day2)
	seedBooking(t, store, "PNR100000013", fare.FirstClass, "180.00", booking.StatusConfirmed, day2)

	svc := reporting.New(store, store)
	report, err := svc.Revenue(ctx, rangeFrom, rangeTo)
	require.NoError(t, err)

	assert.Equal(t, "180.00", report.RevenueByClass[fare.SecondClass].StringFixed(2))
	assert.Equal(t, "180.00", report.RevenueByClass[fare.FirstClass].StringFixed(2))
	assert.Equal(t, "120.00", report.DailyRevenue["2026-08-01"].StringFixed(2))
	assert.Equal(t, "240.00", report.DailyRevenue["2026-08-02"].StringFixed(2))
}

func TestRevenue_IgnoresRecordsOutsideRange(t *testing.T) {
	// GIVEN: a booking before the range and a refund after it
	// WHEN: reporting
	// THEN: neither contributes

	ctx := context.Background()
	store := memory.New()

	seedBooking(t, store, "PNR100000021", fare.SecondClass, "120.00", booking.StatusConfirmed, rangeFrom.AddDate(0, 0, -3))

	w, err := store.CreateWallet(ctx, ledger.Wallet{UserID: 1, Balance: decimal.Zero, CreatedAt: rangeFrom, UpdatedAt: rangeFrom})
	require.NoError(t, err)
	seedRefund(t, store, w, 1, "120.00", rangeTo.AddDate(0, 0, 2))

	svc := reporting.New(store, store)
	report, err := svc.Revenue(ctx, rangeFrom, rangeTo)
	require.NoError(t, err)

	assert.True(t, report.TotalRevenue.IsZero())
	assert.True(t, report.TotalRefunds.IsZero())
	assert.Equal(t, 0, report.TotalBookings)
}

func TestRevenue_NonRefundCreditsExcluded(t *testing.T) {
	// GIVEN: a wallet top-up (PAID credit, no booking link) in range
	// WHEN: reporting
	// THEN: it never counts as a refund

	ctx := context.Background()
	store := memory.New()

	at := rangeFrom.Add(time.Hour)
	w, err := store.CreateWallet(ctx, ledger.Wallet{UserID: 1, Balance: decimal.Zero, CreatedAt: at, UpdatedAt: at})
	require.NoError(t, err)

	_, err = store.Apply(ctx, ledger.Transaction{
		TxnRef:    ledger.NewTxnRef(ledger.TxCredit),
		WalletID:  w.ID,
		Amount:    dec("300.00"),
		Type:      ledger.TxCredit,
		Method:    ledger.MethodUPI,
		Status:    ledger.StatusPaid,
		CreatedAt: at,
		UpdatedAt: at,
	}, dec("300.00"))
	require.NoError(t, err)

	svc := reporting.New(store, store)
	report, err := svc.Revenue(ctx, rangeFrom, rangeTo)
	require.NoError(t, err)
	assert.True(t, report.TotalRefunds.IsZero())
}
