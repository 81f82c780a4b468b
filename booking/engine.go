/*
engine.go - Create and Cancel, the two multi-step flows of the core

PURPOSE:
  The Engine owns the booking lifecycle. Each flow is a single function
  that performs every step and undoes completed steps in reverse on any
  failure, so callers never observe partial application: no seat held
  against a failed payment, no refund without a released seat.

CREATE FLOW:
  reserve seats -> compute fare -> debit wallet -> insert booking ->
  link debit to booking. A funds failure releases the reservation; a
  later failure refunds the debit and releases the reservation.

CANCEL FLOW:
  ownership check -> window check (3 hours before departure) ->
  refund credit -> seat release -> status flip. Double-cancels serialize
  on a per-booking lock; the store's conditional status flip is the
  backstop.

TICKETS:
  After create commits, the ticket renders and dispatches asynchronously.
  Failures there are logged and counted, never unwound into the booking.

SEE ALSO:
  - inventory, ledger: the per-key-serialized resources this orchestrates
  - reporting: the read-only consumer of what this writes
*/
package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/transitrail/booking-engine/directory"
	"github.com/transitrail/booking-engine/fare"
	"github.com/transitrail/booking-engine/inventory"
	"github.com/transitrail/booking-engine/ledger"
	"github.com/transitrail/booking-engine/logging"
	"github.com/transitrail/booking-engine/metrics"
	"github.com/transitrail/booking-engine/notify"
	"github.com/transitrail/booking-engine/ticket"
)

// CancellationWindow is how close to departure a booking may no longer be
// cancelled.
const CancellationWindow = 3 * time.Hour

// pnrAttempts bounds the retry loop on the (vanishingly rare) PNR
// collision before giving up.
const pnrAttempts = 3

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	directory directory.Lookup
	inventory *inventory.Inventory
	ledger    *ledger.Ledger
	bookings  Store
	pnr       PNRGenerator
	renderer  ticket.Renderer
	dispatch  *notify.AsyncDispatcher
	log       logging.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	// cancelLocks holds one mutex per booking a cancel has touched;
	// entries are never evicted and live for the process lifetime.
	cancelMu    sync.Mutex
	cancelLocks map[BookingID]*sync.Mutex
}

// Config wires the engine's collaborators explicitly. Directory,
// Inventory, Ledger and Bookings are required; the rest default to
// no-ops.
type Config struct {
	Directory directory.Lookup
	Inventory *inventory.Inventory
	Ledger    *ledger.Ledger
	Bookings  Store

	PNR        PNRGenerator            // default: CryptoPNR
	Renderer   ticket.Renderer         // optional: no rendering when nil
	Dispatcher *notify.AsyncDispatcher // optional: no delivery when nil
	Log        logging.Logger          // default: no-op
	Metrics    *metrics.Metrics        // optional
	Now        func() time.Time        // default: time.Now
}

func NewEngine(cfg Config) *Engine {
	if cfg.PNR == nil {
		cfg.PNR = CryptoPNR{}
	}
	if cfg.Log == nil {
		cfg.Log = logging.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		directory:   cfg.Directory,
		inventory:   cfg.Inventory,
		ledger:      cfg.Ledger,
		bookings:    cfg.Bookings,
		pnr:         cfg.PNR,
		renderer:    cfg.Renderer,
		dispatch:    cfg.Dispatcher,
		log:         cfg.Log,
		metrics:     cfg.Metrics,
		now:         cfg.Now,
		cancelLocks: make(map[BookingID]*sync.Mutex),
	}
}

// =============================================================================
// CREATE
// =============================================================================

// Create books seats on a run, settling the fare from the user's wallet.
// All steps succeed together or none does.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*Booking, error) {
	if err := e.validateCreate(req); err != nil {
		e.countFailure("validation")
		return nil, err
	}

	run, err := e.directory.RunByID(ctx, req.RunID)
	if err != nil {
		e.countFailure("run_not_found")
		return nil, err
	}

	wallet, err := e.ledger.Balance(ctx, req.User.UserID)
	if err != nil {
		e.countFailure("wallet_not_found")
		return nil, err
	}

	count := len(req.Passengers)

	// (a) hold the seats
	if err := e.inventory.Reserve(ctx, req.RunID, count); err != nil {
		e.countFailure("insufficient_seats")
		return nil, err
	}

	// (b) price the journey
	perPassenger := fare.Calculate(run.SourceID, run.DestinationID, req.Class)
	totalFare := perPassenger.Mul(decimal.NewFromInt(int64(count)))

	// (c) settle from the wallet; a funds failure must hand the seats back
	txn, err := e.ledger.Debit(ctx, wallet.ID, totalFare, req.Method, nil,
		"Booking payment")
	if err != nil {
		e.rollbackReserve(ctx, req.RunID, count)
		e.countFailure("insufficient_funds")
		return nil, err
	}

	// (d) persist the booking, retrying the PNR draw on collision
	booked, err := e.insertWithPNR(ctx, req, totalFare)
	if err != nil {
		e.rollbackDebit(ctx, wallet.ID, txn, totalFare)
		e.rollbackReserve(ctx, req.RunID, count)
		return nil, err
	}

	// (e) link the debit to its booking
	if err := e.ledger.LinkBooking(ctx, txn.ID, booked.ID,
		fmt.Sprintf("Booking payment for PNR: %s", booked.PNR)); err != nil {
		if derr := e.bookings.Delete(ctx, booked.ID); derr != nil {
			e.log.Error("rollback failed: orphan booking row", "booking_id", booked.ID, "error", derr)
		}
		e.rollbackDebit(ctx, wallet.ID, txn, totalFare)
		e.rollbackReserve(ctx, req.RunID, count)
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.BookingsCreated.Inc()
		e.metrics.FareCharged.Observe(totalFare.InexactFloat64())
	}
	e.log.Info("booking confirmed",
		"pnr", booked.PNR, "run_id", req.RunID, "passengers", count,
		"fare", totalFare.StringFixed(2))

	e.dispatchTicket(booked, run, req.User.Email)

	return &booked, nil
}

func (e *Engine) validateCreate(req CreateRequest) error {
	if len(req.Passengers) == 0 {
		return &ValidationError{Field: "passengers", Message: "must not be empty"}
	}
	for _, p := range req.Passengers {
		if p.Name == "" {
			return &ValidationError{Field: "passengers", Message: "name must not be empty"}
		}
		if p.Age <= 0 {
			return &ValidationError{Field: "passengers", Message: "age must be positive"}
		}
	}
	if !req.Class.Valid() {
		return &ValidationError{Field: "travelClass", Message: fmt.Sprintf("unknown class %q", req.Class)}
	}
	// Compare calendar dates so "today" follows the clock's zone rather
	// than UTC epoch-day boundaries.
	now := e.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	jy, jm, jd := req.JourneyDate.Date()
	if time.Date(jy, jm, jd, 0, 0, 0, 0, time.UTC).Before(today) {
		return &ValidationError{Field: "journeyDate", Message: "must not be in the past"}
	}
	return nil
}

func (e *Engine) insertWithPNR(ctx context.Context, req CreateRequest, totalFare decimal.Decimal) (Booking, error) {
	now := e.now().UTC()
	for attempt := 0; attempt < pnrAttempts; attempt++ {
		pnr, err := e.pnr.Next()
		if err != nil {
			return Booking{}, err
		}
		booked, err := e.bookings.Insert(ctx, Booking{
			PNR:         pnr,
			UserID:      req.User.UserID,
			RunID:       req.RunID,
			Class:       req.Class,
			JourneyDate: req.JourneyDate,
			Passengers:  req.Passengers,
			TotalFare:   totalFare,
			Status:      StatusConfirmed,
			BookedAt:    now,
			UpdatedAt:   now,
		})
		if err == nil {
			return booked, nil
		}
		if !errors.Is(err, ErrPNRCollision) {
			return Booking{}, err
		}
		e.log.Warn("pnr collision, redrawing", "pnr", pnr, "attempt", attempt+1)
	}
	return Booking{}, fmt.Errorf("gave up after %d pnr collisions: %w", pnrAttempts, ErrPNRCollision)
}

// rollbackReserve hands seats back after a later step failed. A failure
// here means a leaked reservation, which is worth an error log: the seats
// recover only when the run's bookings are reconciled by hand.
func (e *Engine) rollbackReserve(ctx context.Context, runID directory.RunID, count int) {
	if err := e.inventory.Release(ctx, runID, count); err != nil {
		e.log.Error("rollback failed: seats not released", "run_id", runID, "count", count, "error", err)
	}
}

// rollbackDebit refunds a debit whose booking never materialized.
func (e *Engine) rollbackDebit(ctx context.Context, walletID ledger.WalletID, txn ledger.Transaction, amount decimal.Decimal) {
	_, err := e.ledger.Credit(ctx, walletID, amount, ledger.MethodWallet, ledger.StatusRefunded, nil,
		fmt.Sprintf("Reversal of failed booking payment %s", txn.TxnRef))
	if err != nil {
		e.log.Error("rollback failed: debit not reversed", "txn_ref", txn.TxnRef, "error", err)
	}
}

// =============================================================================
// CANCEL
// =============================================================================

// Cancel refunds a booking and releases its seats. Fails with
// ErrBookingNotFound unless the booking exists and belongs to the user,
// and with a CancellationWindowError inside the window.
func (e *Engine) Cancel(ctx context.Context, id BookingID, userID UserID) (*Booking, error) {
	m := e.cancelLock(id)
	m.Lock()
	defer m.Unlock()

	b, err := e.bookings.GetOwned(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if b.Status == StatusCancelled {
		return nil, ErrAlreadyCancelled
	}

	run, err := e.directory.RunByID(ctx, b.RunID)
	if err != nil {
		return nil, err
	}

	departure := run.DepartureAt(b.JourneyDate)
	if e.now().After(departure.Add(-CancellationWindow)) {
		e.countFailure("cancellation_window")
		return nil, &CancellationWindowError{BookingID: id, Departure: departure, Window: CancellationWindow}
	}

	wallet, err := e.ledger.Balance(ctx, b.UserID)
	if err != nil {
		return nil, err
	}

	// Refund exactly the original fare, as its own addressable entry.
	bookingID := b.ID
	refund, err := e.ledger.Credit(ctx, wallet.ID, b.TotalFare, ledger.MethodWallet, ledger.StatusRefunded, &bookingID,
		fmt.Sprintf("Cancellation refund for PNR: %s", b.PNR))
	if err != nil {
		return nil, err
	}

	count := len(b.Passengers)
	if err := e.inventory.Release(ctx, b.RunID, count); err != nil {
		e.rollbackCredit(ctx, wallet.ID, refund, b.TotalFare)
		return nil, err
	}

	if err := e.bookings.MarkCancelled(ctx, id, e.now().UTC()); err != nil {
		e.rollbackRelease(ctx, b.RunID, count)
		e.rollbackCredit(ctx, wallet.ID, refund, b.TotalFare)
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.BookingsCancelled.Inc()
	}
	e.log.Info("booking cancelled", "pnr", b.PNR, "refund", b.TotalFare.StringFixed(2))

	cancelled, err := e.bookings.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &cancelled, nil
}

func (e *Engine) cancelLock(id BookingID) *sync.Mutex {
	e.cancelMu.Lock()
	defer e.cancelMu.Unlock()
	m, ok := e.cancelLocks[id]
	if !ok {
		m = &sync.Mutex{}
		e.cancelLocks[id] = m
	}
	return m
}

func (e *Engine) rollbackCredit(ctx context.Context, walletID ledger.WalletID, refund ledger.Transaction, amount decimal.Decimal) {
	_, err := e.ledger.Debit(ctx, walletID, amount, ledger.MethodWallet, nil,
		fmt.Sprintf("Reversal of failed refund %s", refund.TxnRef))
	if err != nil {
		e.log.Error("rollback failed: refund not reversed", "txn_ref", refund.TxnRef, "error", err)
	}
}

func (e *Engine) rollbackRelease(ctx context.Context, runID directory.RunID, count int) {
	if err := e.inventory.Reserve(ctx, runID, count); err != nil {
		e.log.Error("rollback failed: seats not re-reserved", "run_id", runID, "count", count, "error", err)
	}
}

// =============================================================================
// READS
// =============================================================================

// Get returns a booking the user owns.
func (e *Engine) Get(ctx context.Context, id BookingID, userID UserID) (*Booking, error) {
	b, err := e.bookings.GetOwned(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ListForUser returns the user's bookings, newest first.
func (e *Engine) ListForUser(ctx context.Context, userID UserID) ([]Booking, error) {
	return e.bookings.ListByUser(ctx, userID)
}

// BookedSeats returns the assigned seat numbers of CONFIRMED bookings on a
// run. Passengers without an assignment are skipped.
func (e *Engine) BookedSeats(ctx context.Context, runID directory.RunID) ([]string, error) {
	bs, err := e.bookings.ListByRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	var seats []string
	for _, b := range bs {
		if b.Status != StatusConfirmed {
			continue
		}
		for _, p := range b.Passengers {
			if p.SeatNumber != "" {
				seats = append(seats, p.SeatNumber)
			}
		}
	}
	return seats, nil
}

// =============================================================================
// TICKETS
// =============================================================================

// Ticket renders the e-ticket for a booking the user owns.
func (e *Engine) Ticket(ctx context.Context, id BookingID, userID UserID) (ticket.Ticket, error) {
	if e.renderer == nil {
		return ticket.Ticket{}, ErrTicketRender
	}

	b, err := e.bookings.GetOwned(ctx, id, userID)
	if err != nil {
		return ticket.Ticket{}, err
	}

	run, err := e.directory.RunByID(ctx, b.RunID)
	if err != nil {
		return ticket.Ticket{}, err
	}

	data, err := e.ticketData(ctx, b, run)
	if err != nil {
		return ticket.Ticket{}, err
	}

	t, err := e.renderer.Render(ctx, data)
	if err != nil {
		if e.metrics != nil {
			e.metrics.TicketFailures.Inc()
		}
		return ticket.Ticket{}, fmt.Errorf("%w: %v", ErrTicketRender, err)
	}
	return t, nil
}

// dispatchTicket renders and delivers the e-ticket off the booking path.
// Rendering or delivery failure never affects the committed booking.
func (e *Engine) dispatchTicket(b Booking, run directory.ScheduledRun, email string) {
	if e.renderer == nil || e.dispatch == nil || email == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		data, err := e.ticketData(ctx, b, run)
		if err != nil {
			e.log.Error("ticket data lookup failed", "pnr", b.PNR, "error", err)
			return
		}

		t, err := e.renderer.Render(ctx, data)
		if err != nil {
			if e.metrics != nil {
				e.metrics.TicketFailures.Inc()
			}
			e.log.Error("ticket render failed", "pnr", b.PNR, "error", err)
			return
		}

		e.dispatch.Dispatch(notify.Delivery{
			To:         email,
			Subject:    fmt.Sprintf("Your ticket %s", b.PNR),
			Body:       fmt.Sprintf("Your booking %s is confirmed for %s.", b.PNR, b.JourneyDate.Format("02 Jan 2006")),
			Attachment: t.PDF,
			Filename:   fmt.Sprintf("ticket-%s.pdf", b.PNR),
		})
	}()
}

func (e *Engine) ticketData(ctx context.Context, b Booking, run directory.ScheduledRun) (ticket.Data, error) {
	train, err := e.directory.TrainByID(ctx, run.TrainID)
	if err != nil {
		return ticket.Data{}, err
	}
	src, err := e.directory.StationByID(ctx, run.SourceID)
	if err != nil {
		return ticket.Data{}, err
	}
	dst, err := e.directory.StationByID(ctx, run.DestinationID)
	if err != nil {
		return ticket.Data{}, err
	}

	lines := make([]ticket.PassengerLine, 0, len(b.Passengers))
	for _, p := range b.Passengers {
		lines = append(lines, ticket.PassengerLine{
			Name: p.Name, Age: p.Age, Gender: p.Gender, SeatNumber: p.SeatNumber,
		})
	}

	return ticket.Data{
		PNR:         b.PNR,
		TrainName:   train.Name,
		TrainNumber: train.Number,
		Source:      src.Name,
		Destination: dst.Name,
		JourneyDate: b.JourneyDate,
		Class:       string(b.Class),
		Passengers:  lines,
		TotalFare:   b.TotalFare,
	}, nil
}

func (e *Engine) countFailure(reason string) {
	if e.metrics != nil {
		e.metrics.BookingFailures.WithLabelValues(reason).Inc()
	}
}
