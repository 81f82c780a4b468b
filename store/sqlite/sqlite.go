/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements all persistence contracts against one database file. In
  production the same patterns apply to PostgreSQL; only minor SQL dialect
  differences.

INTERFACES IMPLEMENTED:
  directory.Lookup: station/train/run reference data
  inventory.Store:  guarded seat counter on runs
  ledger.Store:     wallets + append-only transaction log
  booking.Store:    bookings and their passengers

APPEND-ONLY ENFORCEMENT:
  The transaction log has no UPDATE path except the one LinkBooking carve-
  out and no DELETE path at all. Refunds are new credit rows, never edits.

KEY TABLES:
  stations, trains, runs:  reference data, seeded by the backoffice
  wallets:                 one per user, balance column for fast reads
  transactions:            immutable log of wallet movements
  bookings, passengers:    reservations; passengers have no lifecycle of
                           their own

CONDITIONAL WRITES:
  The two races that matter are guarded in SQL, not just in Go:
  - AdjustSeats updates only when the result stays within [0, total]
  - MarkCancelled updates only rows still CONFIRMED
  The callers hold per-key locks already; these guards are the backstop.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/booking.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - store/memory: in-memory twin used by tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/transitrail/booking-engine/booking"
	"github.com/transitrail/booking-engine/directory"
	"github.com/transitrail/booking-engine/ledger"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Reference data
	CREATE TABLE IF NOT EXISTS stations (
		id INTEGER PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		city TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trains (
		id INTEGER PRIMARY KEY,
		number TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY,
		train_id INTEGER NOT NULL REFERENCES trains(id),
		source_id INTEGER NOT NULL REFERENCES stations(id),
		destination_id INTEGER NOT NULL REFERENCES stations(id),
		departure_sec INTEGER NOT NULL,
		arrival_sec INTEGER NOT NULL,
		total_seats INTEGER NOT NULL,
		available_seats INTEGER NOT NULL,
		operating_days TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_route
		ON runs(source_id, destination_id);

	-- Wallets
	CREATE TABLE IF NOT EXISTS wallets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL UNIQUE,
		balance TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Transactions (append-only ledger)
	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		txn_ref TEXT NOT NULL UNIQUE,
		wallet_id INTEGER NOT NULL REFERENCES wallets(id),
		amount TEXT NOT NULL,
		type TEXT NOT NULL,
		method TEXT NOT NULL,
		status TEXT NOT NULL,
		booking_id INTEGER,
		description TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_wallet
		ON transactions(wallet_id, id DESC);
	CREATE INDEX IF NOT EXISTS idx_transactions_created_at
		ON transactions(created_at);
	CREATE INDEX IF NOT EXISTS idx_transactions_booking
		ON transactions(booking_id) WHERE booking_id IS NOT NULL;

	-- Bookings
	CREATE TABLE IF NOT EXISTS bookings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		pnr TEXT NOT NULL UNIQUE,
		user_id INTEGER NOT NULL,
		run_id INTEGER NOT NULL REFERENCES runs(id),
		class TEXT NOT NULL,
		journey_date TEXT NOT NULL,
		total_fare TEXT NOT NULL,
		status TEXT NOT NULL,
		booked_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_bookings_user
		ON bookings(user_id, id DESC);
	CREATE INDEX IF NOT EXISTS idx_bookings_run
		ON bookings(run_id);
	CREATE INDEX IF NOT EXISTS idx_bookings_booked_at
		ON bookings(booked_at);

	CREATE TABLE IF NOT EXISTS passengers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		booking_id INTEGER NOT NULL REFERENCES bookings(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		age INTEGER NOT NULL,
		gender TEXT,
		seat_number TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_passengers_booking
		ON passengers(booking_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// DIRECTORY (directory.Lookup + seeding)
// =============================================================================

// PutStation upserts a station. The backoffice seed path; not part of the
// Lookup contract.
func (s *Store) PutStation(ctx context.Context, st directory.Station) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO stations (id, code, name, city)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code,
			name = excluded.name,
			city = excluded.city
	`
	_, err := s.db.ExecContext(ctx, query, st.ID, st.Code, st.Name, st.City)
	return err
}

// PutTrain upserts a train.
func (s *Store) PutTrain(ctx context.Context, t directory.Train) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO trains (id, number, name)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			number = excluded.number,
			name = excluded.name
	`
	_, err := s.db.ExecContext(ctx, query, t.ID, t.Number, t.Name)
	return err
}

// PutRun upserts a scheduled run, including its seat counters.
func (s *Store) PutRun(ctx context.Context, r directory.ScheduledRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO runs (id, train_id, source_id, destination_id, departure_sec,
			arrival_sec, total_seats, available_seats, operating_days)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			train_id = excluded.train_id,
			source_id = excluded.source_id,
			destination_id = excluded.destination_id,
			departure_sec = excluded.departure_sec,
			arrival_sec = excluded.arrival_sec,
			total_seats = excluded.total_seats,
			available_seats = excluded.available_seats,
			operating_days = excluded.operating_days
	`
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.TrainID, r.SourceID, r.DestinationID,
		int64(r.DepartureTime.Seconds()), int64(r.ArrivalTime.Seconds()),
		r.TotalSeats, r.AvailableSeats, encodeDays(r.OperatingDays),
	)
	return err
}

func (s *Store) StationByID(ctx context.Context, id directory.StationID) (directory.Station, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st directory.Station
	err := s.db.QueryRowContext(ctx,
		"SELECT id, code, name, city FROM stations WHERE id = ?", id,
	).Scan(&st.ID, &st.Code, &st.Name, &st.City)

	if err == sql.ErrNoRows {
		return directory.Station{}, &directory.NotFoundError{Kind: "station", ID: int64(id)}
	}
	if err != nil {
		return directory.Station{}, err
	}
	return st, nil
}

func (s *Store) TrainByID(ctx context.Context, id directory.TrainID) (directory.Train, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var t directory.Train
	err := s.db.QueryRowContext(ctx,
		"SELECT id, number, name FROM trains WHERE id = ?", id,
	).Scan(&t.ID, &t.Number, &t.Name)

	if err == sql.ErrNoRows {
		return directory.Train{}, &directory.NotFoundError{Kind: "train", ID: int64(id)}
	}
	if err != nil {
		return directory.Train{}, err
	}
	return t, nil
}

func (s *Store) RunByID(ctx context.Context, id directory.RunID) (directory.ScheduledRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs, err := s.queryRuns(ctx, runSelect+" WHERE id = ?", id)
	if err != nil {
		return directory.ScheduledRun{}, err
	}
	if len(runs) == 0 {
		return directory.ScheduledRun{}, &directory.NotFoundError{Kind: "run", ID: int64(id)}
	}
	return runs[0], nil
}

// SearchRuns returns runs on the route with seats left, operating on the
// journey date's weekday. The weekday filter happens in Go; operating days
// are stored as an encoded list, not rows.
func (s *Store) SearchRuns(ctx context.Context, src, dst directory.StationID, journeyDate time.Time) ([]directory.ScheduledRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs, err := s.queryRuns(ctx,
		runSelect+" WHERE source_id = ? AND destination_id = ? AND available_seats > 0 ORDER BY departure_sec ASC",
		src, dst)
	if err != nil {
		return nil, err
	}

	day := journeyDate.Weekday()
	var out []directory.ScheduledRun
	for _, r := range runs {
		if r.OperatesOn(day) {
			out = append(out, r)
		}
	}
	return out, nil
}

const runSelect = `
	SELECT id, train_id, source_id, destination_id, departure_sec, arrival_sec,
	       total_seats, available_seats, operating_days
	FROM runs`

func (s *Store) queryRuns(ctx context.Context, query string, args ...any) ([]directory.ScheduledRun, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []directory.ScheduledRun
	for rows.Next() {
		var r directory.ScheduledRun
		var depSec, arrSec int64
		var days string
		if err := rows.Scan(&r.ID, &r.TrainID, &r.SourceID, &r.DestinationID,
			&depSec, &arrSec, &r.TotalSeats, &r.AvailableSeats, &days); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.DepartureTime = time.Duration(depSec) * time.Second
		r.ArrivalTime = time.Duration(arrSec) * time.Second
		r.OperatingDays = decodeDays(days)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func encodeDays(days []time.Weekday) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(int(d))
	}
	return strings.Join(parts, ",")
}

func decodeDays(encoded string) []time.Weekday {
	if encoded == "" {
		return nil
	}
	var days []time.Weekday
	for _, p := range strings.Split(encoded, ",") {
		n, err := strconv.Atoi(p)
		if err != nil {
			continue
		}
		days = append(days, time.Weekday(n))
	}
	return days
}

// =============================================================================
// INVENTORY (inventory.Store)
// =============================================================================

func (s *Store) SeatCounts(ctx context.Context, runID directory.RunID) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var available, total int
	err := s.db.QueryRowContext(ctx,
		"SELECT available_seats, total_seats FROM runs WHERE id = ?", runID,
	).Scan(&available, &total)

	if err == sql.ErrNoRows {
		return 0, 0, &directory.NotFoundError{Kind: "run", ID: int64(runID)}
	}
	if err != nil {
		return 0, 0, err
	}
	return available, total, nil
}

// AdjustSeats applies delta only when the result stays within [0, total].
// The bounds check lives in the WHERE clause so two writers can never
// combine into an out-of-range counter.
func (s *Store) AdjustSeats(ctx context.Context, runID directory.RunID, delta int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET available_seats = available_seats + ?
		WHERE id = ?
		  AND available_seats + ? >= 0
		  AND available_seats + ? <= total_seats
	`, delta, runID, delta, delta)
	if err != nil {
		return false, fmt.Errorf("failed to adjust seats: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}

	// Not applied: out of bounds, or the run doesn't exist at all.
	var exists int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM runs WHERE id = ?", runID).Scan(&exists); err != nil {
		return false, err
	}
	if exists == 0 {
		return false, &directory.NotFoundError{Kind: "run", ID: int64(runID)}
	}
	return false, nil
}

// =============================================================================
// LEDGER (ledger.Store)
// =============================================================================

func (s *Store) CreateWallet(ctx context.Context, w ledger.Wallet) (ledger.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO wallets (user_id, balance, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, w.UserID, w.Balance.String(),
		w.CreatedAt.Format(time.RFC3339Nano), w.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.Wallet{}, ledger.ErrWalletExists
		}
		return ledger.Wallet{}, fmt.Errorf("failed to create wallet: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return ledger.Wallet{}, err
	}
	w.ID = ledger.WalletID(id)
	return w, nil
}

func (s *Store) Wallet(ctx context.Context, id ledger.WalletID) (ledger.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.walletWhere(ctx, "id = ?", id)
}

func (s *Store) WalletByUser(ctx context.Context, userID ledger.UserID) (ledger.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.walletWhere(ctx, "user_id = ?", userID)
}

func (s *Store) walletWhere(ctx context.Context, where string, arg any) (ledger.Wallet, error) {
	var w ledger.Wallet
	var balance, createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, balance, created_at, updated_at FROM wallets WHERE "+where, arg,
	).Scan(&w.ID, &w.UserID, &balance, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return ledger.Wallet{}, ledger.ErrWalletNotFound
	}
	if err != nil {
		return ledger.Wallet{}, err
	}

	w.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return ledger.Wallet{}, fmt.Errorf("corrupt balance for wallet %d: %w", w.ID, err)
	}
	w.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	w.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return w, nil
}

// Apply commits one transaction row and the wallet's new balance in a single
// SQL transaction. Rejects negative balances regardless of what the caller
// computed.
func (s *Store) Apply(ctx context.Context, txn ledger.Transaction, newBalance decimal.Decimal) (ledger.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if newBalance.IsNegative() {
		return ledger.Transaction{}, ledger.ErrInsufficientFunds
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	res, err := sqlTx.ExecContext(ctx, `
		UPDATE wallets SET balance = ?, updated_at = ? WHERE id = ?
	`, newBalance.String(), txn.CreatedAt.Format(time.RFC3339Nano), txn.WalletID)
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("failed to update balance: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return ledger.Transaction{}, err
	} else if n == 0 {
		return ledger.Transaction{}, ledger.ErrWalletNotFound
	}

	var bookingID any
	if txn.BookingID != nil {
		bookingID = int64(*txn.BookingID)
	}

	ins, err := sqlTx.ExecContext(ctx, `
		INSERT INTO transactions (txn_ref, wallet_id, amount, type, method, status,
			booking_id, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, txn.TxnRef, txn.WalletID, txn.Amount.String(), txn.Type, txn.Method, txn.Status,
		bookingID, txn.Description,
		txn.CreatedAt.Format(time.RFC3339Nano), txn.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("failed to append transaction: %w", err)
	}

	id, err := ins.LastInsertId()
	if err != nil {
		return ledger.Transaction{}, err
	}

	if err := sqlTx.Commit(); err != nil {
		return ledger.Transaction{}, err
	}

	txn.ID = id
	return txn, nil
}

// LinkBooking is the single permitted edit to a written transaction; see
// the interface doc for the contract.
func (s *Store) LinkBooking(ctx context.Context, txnID int64, bookingID ledger.BookingID, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET booking_id = ?, description = ?, updated_at = ?
		WHERE id = ?
	`, int64(bookingID), description, time.Now().UTC().Format(time.RFC3339Nano), txnID)
	if err != nil {
		return fmt.Errorf("failed to link booking: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("transaction %d not found", txnID)
	}
	return nil
}

const txnSelect = `
	SELECT id, txn_ref, wallet_id, amount, type, method, status, booking_id,
	       description, created_at, updated_at
	FROM transactions`

func (s *Store) Transactions(ctx context.Context, walletID ledger.WalletID) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryTransactions(ctx, txnSelect+" WHERE wallet_id = ? ORDER BY id DESC", walletID)
}

func (s *Store) TransactionsInRange(ctx context.Context, from, to time.Time) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryTransactions(ctx,
		txnSelect+" WHERE created_at >= ? AND created_at <= ? ORDER BY id ASC",
		from.Format(time.RFC3339Nano), to.Format(time.RFC3339Nano))
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]ledger.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txns []ledger.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

func scanTransaction(rows *sql.Rows) (ledger.Transaction, error) {
	var (
		txn         ledger.Transaction
		amount      string
		bookingID   sql.NullInt64
		description sql.NullString
		createdAt   string
		updatedAt   string
	)

	err := rows.Scan(
		&txn.ID, &txn.TxnRef, &txn.WalletID, &amount, &txn.Type, &txn.Method,
		&txn.Status, &bookingID, &description, &createdAt, &updatedAt,
	)
	if err != nil {
		return txn, fmt.Errorf("failed to scan transaction: %w", err)
	}

	txn.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return txn, fmt.Errorf("corrupt amount for transaction %d: %w", txn.ID, err)
	}
	if bookingID.Valid {
		id := ledger.BookingID(bookingID.Int64)
		txn.BookingID = &id
	}
	txn.Description = description.String
	txn.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	txn.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return txn, nil
}

// =============================================================================
// BOOKINGS (booking.Store)
// =============================================================================

// Insert writes the booking and its passengers in one SQL transaction. A
// PNR collision maps to booking.ErrPNRCollision so the engine can retry
// with a fresh code.
func (s *Store) Insert(ctx context.Context, b booking.Booking) (booking.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return booking.Booking{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	res, err := sqlTx.ExecContext(ctx, `
		INSERT INTO bookings (pnr, user_id, run_id, class, journey_date,
			total_fare, status, booked_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, b.PNR, b.UserID, b.RunID, b.Class,
		b.JourneyDate.Format(time.RFC3339Nano), b.TotalFare.String(), b.Status,
		b.BookedAt.Format(time.RFC3339Nano), b.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		if isUniqueConstraintError(err) {
			return booking.Booking{}, booking.ErrPNRCollision
		}
		return booking.Booking{}, fmt.Errorf("failed to insert booking: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return booking.Booking{}, err
	}

	for _, p := range b.Passengers {
		if _, err := sqlTx.ExecContext(ctx, `
			INSERT INTO passengers (booking_id, name, age, gender, seat_number)
			VALUES (?, ?, ?, ?, ?)
		`, id, p.Name, p.Age, p.Gender, p.SeatNumber); err != nil {
			return booking.Booking{}, fmt.Errorf("failed to insert passenger: %w", err)
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return booking.Booking{}, err
	}

	b.ID = booking.BookingID(id)
	return b, nil
}

// Delete removes a booking. Rollback path only; a cancelled booking stays
// on record forever.
func (s *Store) Delete(ctx context.Context, id booking.BookingID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM bookings WHERE id = ?", int64(id))
	if err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return booking.ErrBookingNotFound
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id booking.BookingID) (booking.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bookingWhere(ctx, "id = ?", int64(id))
}

func (s *Store) GetOwned(ctx context.Context, id booking.BookingID, userID booking.UserID) (booking.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bookingWhere(ctx, "id = ? AND user_id = ?", int64(id), int64(userID))
}

func (s *Store) bookingWhere(ctx context.Context, where string, args ...any) (booking.Booking, error) {
	bs, err := s.queryBookings(ctx, bookingSelect+" WHERE "+where, args...)
	if err != nil {
		return booking.Booking{}, err
	}
	if len(bs) == 0 {
		return booking.Booking{}, booking.ErrBookingNotFound
	}
	return bs[0], nil
}

func (s *Store) ListByUser(ctx context.Context, userID booking.UserID) ([]booking.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryBookings(ctx, bookingSelect+" WHERE user_id = ? ORDER BY id DESC", int64(userID))
}

func (s *Store) ListByRun(ctx context.Context, runID directory.RunID) ([]booking.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryBookings(ctx, bookingSelect+" WHERE run_id = ? ORDER BY id ASC", int64(runID))
}

func (s *Store) ListInRange(ctx context.Context, from, to time.Time) ([]booking.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryBookings(ctx,
		bookingSelect+" WHERE booked_at >= ? AND booked_at <= ? ORDER BY id ASC",
		from.Format(time.RFC3339Nano), to.Format(time.RFC3339Nano))
}

// MarkCancelled flips CONFIRMED to CANCELLED. The status condition in the
// WHERE clause makes a double cancel lose even if two callers get here.
func (s *Store) MarkCancelled(ctx context.Context, id booking.BookingID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE bookings SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, booking.StatusCancelled, at.Format(time.RFC3339Nano), int64(id), booking.StatusConfirmed)
	if err != nil {
		return fmt.Errorf("failed to cancel booking: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM bookings WHERE id = ?", int64(id)).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return booking.ErrBookingNotFound
	}
	return booking.ErrAlreadyCancelled
}

const bookingSelect = `
	SELECT id, pnr, user_id, run_id, class, journey_date, total_fare, status,
	       booked_at, updated_at
	FROM bookings`

func (s *Store) queryBookings(ctx context.Context, query string, args ...any) ([]booking.Booking, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []booking.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range bookings {
		passengers, err := s.loadPassengers(ctx, bookings[i].ID)
		if err != nil {
			return nil, err
		}
		bookings[i].Passengers = passengers
	}
	return bookings, nil
}

func scanBooking(rows *sql.Rows) (booking.Booking, error) {
	var (
		b           booking.Booking
		journeyDate string
		totalFare   string
		bookedAt    string
		updatedAt   string
	)

	err := rows.Scan(&b.ID, &b.PNR, &b.UserID, &b.RunID, &b.Class,
		&journeyDate, &totalFare, &b.Status, &bookedAt, &updatedAt)
	if err != nil {
		return b, fmt.Errorf("failed to scan booking: %w", err)
	}

	b.TotalFare, err = decimal.NewFromString(totalFare)
	if err != nil {
		return b, fmt.Errorf("corrupt fare for booking %d: %w", b.ID, err)
	}
	b.JourneyDate, _ = time.Parse(time.RFC3339Nano, journeyDate)
	b.BookedAt, _ = time.Parse(time.RFC3339Nano, bookedAt)
	b.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return b, nil
}

func (s *Store) loadPassengers(ctx context.Context, bookingID booking.BookingID) ([]booking.Passenger, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, age, gender, seat_number FROM passengers
		WHERE booking_id = ? ORDER BY id ASC
	`, int64(bookingID))
	if err != nil {
		return nil, fmt.Errorf("failed to query passengers: %w", err)
	}
	defer rows.Close()

	var passengers []booking.Passenger
	for rows.Next() {
		var p booking.Passenger
		var gender, seat sql.NullString
		if err := rows.Scan(&p.Name, &p.Age, &gender, &seat); err != nil {
			return nil, fmt.Errorf("failed to scan passenger: %w", err)
		}
		p.Gender = gender.String
		p.SeatNumber = seat.String
		passengers = append(passengers, p)
	}
	return passengers, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"passengers", "bookings", "transactions", "wallets", "runs", "trains", "stations"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
