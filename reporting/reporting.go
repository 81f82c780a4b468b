/*
Package reporting aggregates booking and ledger records for a date range.

PURPOSE:
  Read-only. Revenue is the sum of CONFIRMED booking fares in the range;
  refunds are the sum of REFUNDED credits in the range. The two are
  reported as separate lines so net revenue is derivable (net = revenue -
  refunds) and a cancelled booking's fare is never silently double-counted
  as revenue after its refund went out.

SEE ALSO:
  - booking/store.go, ledger/store.go: the read paths this consumes
*/
package reporting

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/transitrail/booking-engine/booking"
	"github.com/transitrail/booking-engine/fare"
	"github.com/transitrail/booking-engine/ledger"
)

// =============================================================================
// REPORT TYPES
// =============================================================================

// RevenueReport summarizes a date range. Revenue and refunds are separate
// sums; NetRevenue = TotalRevenue - TotalRefunds.
type RevenueReport struct {
	From              time.Time
	To                time.Time
	TotalRevenue      decimal.Decimal
	TotalRefunds      decimal.Decimal
	NetRevenue        decimal.Decimal
	TotalBookings     int
	CancelledBookings int
	RevenueByClass    map[fare.TravelClass]decimal.Decimal
	DailyRevenue      map[string]decimal.Decimal // keyed yyyy-mm-dd
}

// =============================================================================
// SERVICE
// =============================================================================

// Service reads booking and ledger stores; it never mutates either.
type Service struct {
	Bookings booking.Store
	Ledger   ledger.Store
}

func New(bookings booking.Store, lstore ledger.Store) *Service {
	return &Service{Bookings: bookings, Ledger: lstore}
}

// Revenue aggregates bookings created in [from, to].
//
// A booking counts toward revenue while CONFIRMED. Once cancelled it drops
// out of the revenue line and its refund shows up in TotalRefunds instead,
// keeping the two lines independently auditable.
func (s *Service) Revenue(ctx context.Context, from, to time.Time) (RevenueReport, error) {
	report := RevenueReport{
		From:           from,
		To:             to,
		TotalRevenue:   decimal.Zero,
		TotalRefunds:   decimal.Zero,
		RevenueByClass: make(map[fare.TravelClass]decimal.Decimal),
		DailyRevenue:   make(map[string]decimal.Decimal),
	}

	bookings, err := s.Bookings.ListInRange(ctx, from, to)
	if err != nil {
		return RevenueReport{}, err
	}

	for _, b := range bookings {
		switch b.Status {
		case booking.StatusConfirmed:
			report.TotalBookings++
			report.TotalRevenue = report.TotalRevenue.Add(b.TotalFare)

			byClass := report.RevenueByClass[b.Class]
			report.RevenueByClass[b.Class] = byClass.Add(b.TotalFare)

			day := b.BookedAt.Format("2006-01-02")
			report.DailyRevenue[day] = report.DailyRevenue[day].Add(b.TotalFare)

		case booking.StatusCancelled:
			report.CancelledBookings++
		}
	}

	txns, err := s.Ledger.TransactionsInRange(ctx, from, to)
	if err != nil {
		return RevenueReport{}, err
	}

	for _, t := range txns {
		if t.Type == ledger.TxCredit && t.Status == ledger.StatusRefunded && t.BookingID != nil {
			report.TotalRefunds = report.TotalRefunds.Add(t.Amount)
		}
	}

	report.NetRevenue = report.TotalRevenue.Sub(report.TotalRefunds)
	return report, nil
}

// Transactions returns all ledger movements in [from, to], oldest first.
func (s *Service) Transactions(ctx context.Context, from, to time.Time) ([]ledger.Transaction, error) {
	return s.Ledger.TransactionsInRange(ctx, from, to)
}

// Bookings returns all bookings created in [from, to], oldest first.
func (s *Service) BookingsInRange(ctx context.Context, from, to time.Time) ([]booking.Booking, error) {
	return s.Bookings.ListInRange(ctx, from, to)
}
