/*
Package ledger owns the wallet: a non-negative balance plus the ordered,
append-only log of every movement against it.

PURPOSE:
  Every fare paid and every refund issued is one immutable Transaction in a
  wallet's log. The balance column exists for fast reads, but the log is
  the source of truth: at any point, balance == sum of applied signed
  transaction amounts, and it never goes negative.

KEY CONCEPTS IN THIS FILE (types.go):
  - Wallet: one per user, holds the balance
  - Transaction: an immutable ledger entry (credit or debit)
  - PaymentMethod / TransactionStatus: how money moved and where it stands

DESIGN PRINCIPLES:
  1. Immutability: once PAID or REFUNDED, only UpdatedAt may change
  2. Precision: decimal.Decimal for money, never float64
  3. Two entries per cancelled booking: the original debit and the refund
     credit are separately addressable rows linked to the same booking

SEE ALSO:
  - ledger.go: Debit/Credit with per-wallet serialization
  - errors.go: InsufficientFundsError and friends
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID int64
type WalletID int64
type BookingID int64

// =============================================================================
// WALLET
// =============================================================================

// Wallet holds one user's funds.
//
// INVARIANT: Balance >= 0, and Balance equals the sum of signed amounts of
// all applied transactions in log order.
type Wallet struct {
	ID        WalletID
	UserID    UserID
	Balance   decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// TRANSACTION - immutable record of one balance movement
// =============================================================================

type TransactionType string

const (
	TxCredit TransactionType = "CREDIT"
	TxDebit  TransactionType = "DEBIT"
)

type PaymentMethod string

const (
	MethodWallet     PaymentMethod = "WALLET"
	MethodUPI        PaymentMethod = "UPI"
	MethodCard       PaymentMethod = "CARD"
	MethodNetBanking PaymentMethod = "NET_BANKING"
)

type TransactionStatus string

const (
	StatusPending  TransactionStatus = "PENDING"
	StatusPaid     TransactionStatus = "PAID"
	StatusFailed   TransactionStatus = "FAILED"
	StatusRefunded TransactionStatus = "REFUNDED"
)

// Transaction is one movement against a wallet. Amount is always positive;
// Type carries the sign.
type Transaction struct {
	ID          int64
	TxnRef      string // globally unique, user-facing reference
	WalletID    WalletID
	Amount      decimal.Decimal
	Type        TransactionType
	Method      PaymentMethod
	Status      TransactionStatus
	BookingID   *BookingID // set when the movement settles a booking
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Signed returns the amount with the sign implied by Type: credits are
// positive, debits negative.
func (t Transaction) Signed() decimal.Decimal {
	if t.Type == TxDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}
