/*
store.go - Persistence contract for wallets and their transaction logs

PURPOSE:
  Defines the interface between the ledger and the database. The log is
  APPEND-ONLY: there is no way to update or delete a transaction through
  this interface. The single write that matters, Apply, commits one new
  log entry together with the wallet's new balance as one unit.

APPEND-ONLY CONTRACT:
  - Apply(): insert one transaction + update one balance, atomically
  - NO update or delete exists; once PAID or REFUNDED an entry only ever
    changes its UpdatedAt stamp, and that happens at Apply time

IMPLEMENTATIONS:
  - store/sqlite: production store, Apply runs in a SQL transaction
  - store/memory: in-memory store for tests

SEE ALSO:
  - ledger.go: the Ledger serializes per-wallet before calling Apply
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store persists wallets and their append-only transaction logs.
type Store interface {
	// CreateWallet inserts a new wallet. Fails with ErrWalletExists if the
	// user already has one.
	CreateWallet(ctx context.Context, w Wallet) (Wallet, error)

	// Wallet returns a wallet by ID, or ErrWalletNotFound.
	Wallet(ctx context.Context, id WalletID) (Wallet, error)

	// WalletByUser returns the user's wallet, or ErrWalletNotFound.
	WalletByUser(ctx context.Context, userID UserID) (Wallet, error)

	// Apply commits one transaction and the wallet's resulting balance as a
	// single unit. newBalance must be non-negative; the store rejects the
	// write otherwise as a backstop against races the caller missed.
	Apply(ctx context.Context, txn Transaction, newBalance decimal.Decimal) (Transaction, error)

	// LinkBooking attaches a booking to a just-created transaction as the
	// final step of the booking-create flow, replacing the description and
	// stamping UpdatedAt. It is the only permitted change to a written
	// entry; amount, type, and status stay frozen.
	LinkBooking(ctx context.Context, txnID int64, bookingID BookingID, description string) error

	// Transactions returns a wallet's log, newest first.
	Transactions(ctx context.Context, walletID WalletID) ([]Transaction, error)

	// TransactionsInRange returns all transactions across wallets created in
	// [from, to], oldest first. Read path for reporting.
	TransactionsInRange(ctx context.Context, from, to time.Time) ([]Transaction, error)
}
