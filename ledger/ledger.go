/*
ledger.go - Debit/Credit with per-wallet serialization

PURPOSE:
  The Ledger is the only writer of wallet state. Each movement appends
  exactly one Transaction and updates the balance as one unit. Concurrent
  movements on the same wallet serialize on a per-wallet lock, so the
  balance never reflects a partial update and a debit can never race the
  balance check.

WHY A LOCK PER WALLET, NOT A GLOBAL ONE:
  Two bookings funded by different wallets have no ordering relationship.
  A global mutex would be correct but would serialize the whole system
  through one point. The keyed lock serializes only same-wallet callers;
  the store's non-negative guard on Apply is the backstop underneath.

TRANSACTION REFERENCES:
  TxnRef is a two-letter type prefix plus a UUID ("DE-..." / "CR-...").
  Uniqueness comes from the UUID space; the store's unique index exists
  only to catch programming errors. The refs appear on user receipts, so
  the opacity of a UUID is welcome even though only uniqueness is required.

SEE ALSO:
  - booking/engine.go: calls Debit on create and Credit on cancel
  - store.go: Apply, the single atomic write
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/transitrail/booking-engine/metrics"
)

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	store   Store
	metrics *metrics.Metrics // optional

	// locks holds one mutex per wallet seen; entries are never evicted
	// and live for the process lifetime.
	mu    sync.Mutex
	locks map[WalletID]*sync.Mutex
}

// New creates a ledger over the store. m may be nil.
func New(store Store, m *metrics.Metrics) *Ledger {
	return &Ledger{
		store:   store,
		metrics: m,
		locks:   make(map[WalletID]*sync.Mutex),
	}
}

// lock returns the mutex guarding one wallet, creating it on first use.
func (l *Ledger) lock(id WalletID) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	return m
}

// =============================================================================
// WALLET LIFECYCLE
// =============================================================================

// Open creates a zero-balance wallet for a user.
func (l *Ledger) Open(ctx context.Context, userID UserID) (Wallet, error) {
	now := time.Now().UTC()
	return l.store.CreateWallet(ctx, Wallet{
		UserID:    userID,
		Balance:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// Balance returns the current balance of a user's wallet.
func (l *Ledger) Balance(ctx context.Context, userID UserID) (Wallet, error) {
	return l.store.WalletByUser(ctx, userID)
}

// Transactions returns a wallet's log, newest first.
func (l *Ledger) Transactions(ctx context.Context, walletID WalletID) ([]Transaction, error) {
	return l.store.Transactions(ctx, walletID)
}

// =============================================================================
// MOVEMENTS
// =============================================================================

// Debit removes amount from the wallet, appending one PAID debit entry.
// Fails with InsufficientFundsError, mutating nothing, when the balance is
// short. The check and the write are serialized per wallet.
func (l *Ledger) Debit(ctx context.Context, walletID WalletID, amount decimal.Decimal, method PaymentMethod, bookingID *BookingID, description string) (Transaction, error) {
	if !amount.IsPositive() {
		return Transaction{}, ErrNonPositiveAmount
	}

	m := l.lock(walletID)
	m.Lock()
	defer m.Unlock()

	w, err := l.store.Wallet(ctx, walletID)
	if err != nil {
		return Transaction{}, err
	}

	if w.Balance.LessThan(amount) {
		return Transaction{}, &InsufficientFundsError{
			WalletID:  walletID,
			Available: w.Balance,
			Requested: amount,
		}
	}

	txn := newTransaction(walletID, amount, TxDebit, method, StatusPaid, bookingID, description)
	applied, err := l.store.Apply(ctx, txn, w.Balance.Sub(amount))
	if err == nil && l.metrics != nil {
		l.metrics.WalletDebits.Inc()
	}
	return applied, err
}

// Credit adds amount to the wallet, appending one credit entry with the
// given status (PAID for top-ups, REFUNDED for cancellation refunds).
func (l *Ledger) Credit(ctx context.Context, walletID WalletID, amount decimal.Decimal, method PaymentMethod, status TransactionStatus, bookingID *BookingID, description string) (Transaction, error) {
	if !amount.IsPositive() {
		return Transaction{}, ErrNonPositiveAmount
	}

	m := l.lock(walletID)
	m.Lock()
	defer m.Unlock()

	w, err := l.store.Wallet(ctx, walletID)
	if err != nil {
		return Transaction{}, err
	}

	txn := newTransaction(walletID, amount, TxCredit, method, status, bookingID, description)
	applied, err := l.store.Apply(ctx, txn, w.Balance.Add(amount))
	if err == nil && l.metrics != nil {
		l.metrics.WalletCredits.Inc()
	}
	return applied, err
}

// LinkBooking attaches a booking to a freshly written transaction. Part of
// the booking-create unit; see Store.LinkBooking for the contract.
func (l *Ledger) LinkBooking(ctx context.Context, txnID int64, bookingID BookingID, description string) error {
	return l.store.LinkBooking(ctx, txnID, bookingID, description)
}

// AddFunds tops up a user's wallet, creating the wallet on first use.
func (l *Ledger) AddFunds(ctx context.Context, userID UserID, amount decimal.Decimal, method PaymentMethod) (Wallet, error) {
	if !amount.IsPositive() {
		return Wallet{}, ErrNonPositiveAmount
	}

	w, err := l.store.WalletByUser(ctx, userID)
	if err != nil {
		w, err = l.Open(ctx, userID)
		if errors.Is(err, ErrWalletExists) {
			// Lost a first-use race; the winner's wallet is there now.
			w, err = l.store.WalletByUser(ctx, userID)
		}
		if err != nil {
			return Wallet{}, err
		}
	}

	if _, err := l.Credit(ctx, w.ID, amount, method, StatusPaid, nil, "Funds added to wallet"); err != nil {
		return Wallet{}, err
	}
	return l.store.Wallet(ctx, w.ID)
}

// =============================================================================
// HELPERS
// =============================================================================

func newTransaction(walletID WalletID, amount decimal.Decimal, txType TransactionType, method PaymentMethod, status TransactionStatus, bookingID *BookingID, description string) Transaction {
	now := time.Now().UTC()
	return Transaction{
		TxnRef:      NewTxnRef(txType),
		WalletID:    walletID,
		Amount:      amount,
		Type:        txType,
		Method:      method,
		Status:      status,
		BookingID:   bookingID,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NewTxnRef builds a globally unique transaction reference: a two-letter
// type prefix plus a UUID.
func NewTxnRef(txType TransactionType) string {
	prefix := strings.ToUpper(string(txType))
	if len(prefix) > 2 {
		prefix = prefix[:2]
	}
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}
