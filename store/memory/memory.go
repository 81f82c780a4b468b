/*
Package memory provides in-memory implementations of every store contract
(ledger, booking, inventory, directory). Used by tests; the sqlite store
is the production twin.

The whole store shares one RWMutex. That is coarser than the per-key
serialization the ledger and inventory layers already provide, but a
memory map needs a lock of its own anyway and tests are not a throughput
concern.
*/
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/transitrail/booking-engine/booking"
	"github.com/transitrail/booking-engine/directory"
	"github.com/transitrail/booking-engine/ledger"
)

// Store implements ledger.Store, booking.Store, inventory.Store and
// directory.Lookup in memory.
type Store struct {
	mu sync.RWMutex

	stations map[directory.StationID]directory.Station
	trains   map[directory.TrainID]directory.Train
	runs     map[directory.RunID]directory.ScheduledRun

	wallets      map[ledger.WalletID]ledger.Wallet
	walletByUser map[ledger.UserID]ledger.WalletID
	transactions []ledger.Transaction

	bookings map[booking.BookingID]booking.Booking
	pnrs     map[string]booking.BookingID

	nextStation directory.StationID
	nextTrain   directory.TrainID
	nextRun     directory.RunID
	nextWallet  ledger.WalletID
	nextTxn     int64
	nextBooking booking.BookingID
}

func New() *Store {
	return &Store{
		stations:     make(map[directory.StationID]directory.Station),
		trains:       make(map[directory.TrainID]directory.Train),
		runs:         make(map[directory.RunID]directory.ScheduledRun),
		wallets:      make(map[ledger.WalletID]ledger.Wallet),
		walletByUser: make(map[ledger.UserID]ledger.WalletID),
		bookings:     make(map[booking.BookingID]booking.Booking),
		pnrs:         make(map[string]booking.BookingID),
	}
}

// =============================================================================
// DIRECTORY - seeding and lookup
// =============================================================================

// PutStation stores a station, assigning an ID when zero.
func (s *Store) PutStation(st directory.Station) directory.Station {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.ID == 0 {
		s.nextStation++
		st.ID = s.nextStation
	} else if st.ID > s.nextStation {
		s.nextStation = st.ID
	}
	s.stations[st.ID] = st
	return st
}

// PutTrain stores a train, assigning an ID when zero.
func (s *Store) PutTrain(t directory.Train) directory.Train {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == 0 {
		s.nextTrain++
		t.ID = s.nextTrain
	} else if t.ID > s.nextTrain {
		s.nextTrain = t.ID
	}
	s.trains[t.ID] = t
	return t
}

// PutRun stores a scheduled run, assigning an ID when zero.
func (s *Store) PutRun(r directory.ScheduledRun) directory.ScheduledRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		s.nextRun++
		r.ID = s.nextRun
	} else if r.ID > s.nextRun {
		s.nextRun = r.ID
	}
	s.runs[r.ID] = r
	return r
}

func (s *Store) StationByID(_ context.Context, id directory.StationID) (directory.Station, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stations[id]
	if !ok {
		return directory.Station{}, &directory.NotFoundError{Kind: "station", ID: int64(id)}
	}
	return st, nil
}

func (s *Store) TrainByID(_ context.Context, id directory.TrainID) (directory.Train, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trains[id]
	if !ok {
		return directory.Train{}, &directory.NotFoundError{Kind: "train", ID: int64(id)}
	}
	return t, nil
}

func (s *Store) RunByID(_ context.Context, id directory.RunID) (directory.ScheduledRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return directory.ScheduledRun{}, &directory.NotFoundError{Kind: "run", ID: int64(id)}
	}
	return r, nil
}

func (s *Store) SearchRuns(_ context.Context, src, dst directory.StationID, journeyDate time.Time) ([]directory.ScheduledRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day := journeyDate.Weekday()
	var out []directory.ScheduledRun
	for _, r := range s.runs {
		if r.SourceID == src && r.DestinationID == dst && r.OperatesOn(day) && r.AvailableSeats > 0 {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DepartureTime < out[j].DepartureTime })
	return out, nil
}

// =============================================================================
// INVENTORY (inventory.Store)
// =============================================================================

func (s *Store) SeatCounts(_ context.Context, runID directory.RunID) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[runID]
	if !ok {
		return 0, 0, &directory.NotFoundError{Kind: "run", ID: int64(runID)}
	}
	return r.AvailableSeats, r.TotalSeats, nil
}

func (s *Store) AdjustSeats(_ context.Context, runID directory.RunID, delta int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return false, &directory.NotFoundError{Kind: "run", ID: int64(runID)}
	}
	next := r.AvailableSeats + delta
	if next < 0 || next > r.TotalSeats {
		return false, nil
	}
	r.AvailableSeats = next
	s.runs[runID] = r
	return true, nil
}

// =============================================================================
// LEDGER (ledger.Store)
// =============================================================================

func (s *Store) CreateWallet(_ context.Context, w ledger.Wallet) (ledger.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.walletByUser[w.UserID]; exists {
		return ledger.Wallet{}, ledger.ErrWalletExists
	}
	s.nextWallet++
	w.ID = s.nextWallet
	s.wallets[w.ID] = w
	s.walletByUser[w.UserID] = w.ID
	return w, nil
}

func (s *Store) Wallet(_ context.Context, id ledger.WalletID) (ledger.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.wallets[id]
	if !ok {
		return ledger.Wallet{}, ledger.ErrWalletNotFound
	}
	return w, nil
}

func (s *Store) WalletByUser(_ context.Context, userID ledger.UserID) (ledger.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.walletByUser[userID]
	if !ok {
		return ledger.Wallet{}, ledger.ErrWalletNotFound
	}
	return s.wallets[id], nil
}

func (s *Store) Apply(_ context.Context, txn ledger.Transaction, newBalance decimal.Decimal) (ledger.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[txn.WalletID]
	if !ok {
		return ledger.Transaction{}, ledger.ErrWalletNotFound
	}
	if newBalance.IsNegative() {
		return ledger.Transaction{}, ledger.ErrInsufficientFunds
	}

	s.nextTxn++
	txn.ID = s.nextTxn
	s.transactions = append(s.transactions, txn)

	w.Balance = newBalance
	w.UpdatedAt = txn.CreatedAt
	s.wallets[w.ID] = w
	return txn, nil
}

func (s *Store) LinkBooking(_ context.Context, txnID int64, bookingID ledger.BookingID, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.transactions {
		if s.transactions[i].ID == txnID {
			id := bookingID
			s.transactions[i].BookingID = &id
			s.transactions[i].Description = description
			s.transactions[i].UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return fmt.Errorf("transaction %d not found", txnID)
}

func (s *Store) Transactions(_ context.Context, walletID ledger.WalletID) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ledger.Transaction
	for _, t := range s.transactions {
		if t.WalletID == walletID {
			out = append(out, t)
		}
	}
	// newest first
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) TransactionsInRange(_ context.Context, from, to time.Time) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ledger.Transaction
	for _, t := range s.transactions {
		if !t.CreatedAt.Before(from) && !t.CreatedAt.After(to) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// BOOKINGS (booking.Store)
// =============================================================================

func (s *Store) Insert(_ context.Context, b booking.Booking) (booking.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.pnrs[b.PNR]; taken {
		return booking.Booking{}, booking.ErrPNRCollision
	}

	s.nextBooking++
	b.ID = s.nextBooking
	b.Passengers = append([]booking.Passenger(nil), b.Passengers...)
	s.bookings[b.ID] = b
	s.pnrs[b.PNR] = b.ID
	return copyBooking(b), nil
}

func (s *Store) Delete(_ context.Context, id booking.BookingID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return booking.ErrBookingNotFound
	}
	delete(s.pnrs, b.PNR)
	delete(s.bookings, id)
	return nil
}

func (s *Store) Get(_ context.Context, id booking.BookingID) (booking.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return booking.Booking{}, booking.ErrBookingNotFound
	}
	return copyBooking(b), nil
}

func (s *Store) GetOwned(_ context.Context, id booking.BookingID, userID booking.UserID) (booking.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok || b.UserID != userID {
		return booking.Booking{}, booking.ErrBookingNotFound
	}
	return copyBooking(b), nil
}

func (s *Store) ListByUser(_ context.Context, userID booking.UserID) ([]booking.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []booking.Booking
	for _, b := range s.bookings {
		if b.UserID == userID {
			out = append(out, copyBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) ListByRun(_ context.Context, runID directory.RunID) ([]booking.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []booking.Booking
	for _, b := range s.bookings {
		if b.RunID == runID {
			out = append(out, copyBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListInRange(_ context.Context, from, to time.Time) ([]booking.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []booking.Booking
	for _, b := range s.bookings {
		if !b.BookedAt.Before(from) && !b.BookedAt.After(to) {
			out = append(out, copyBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) MarkCancelled(_ context.Context, id booking.BookingID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return booking.ErrBookingNotFound
	}
	if b.Status != booking.StatusConfirmed {
		return booking.ErrAlreadyCancelled
	}
	b.Status = booking.StatusCancelled
	b.UpdatedAt = at
	s.bookings[id] = b
	return nil
}

func copyBooking(b booking.Booking) booking.Booking {
	b.Passengers = append([]booking.Passenger(nil), b.Passengers...)
	return b
}
