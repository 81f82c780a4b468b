/*
errors.go - Centralized error types for the wallet ledger

ERROR CATEGORIES:
  1. Funds errors - debit would take the balance negative
  2. Lookup errors - wallet missing
  3. Input errors - non-positive amounts

Business-rule failures carry no partial state change: a failed Debit leaves
both balance and log untouched.
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - use with errors.Is()
// =============================================================================

var (
	// ErrInsufficientFunds is returned when a debit exceeds the balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrWalletNotFound is returned when a wallet ID resolves to nothing.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrWalletExists is returned when opening a second wallet for a user.
	ErrWalletExists = errors.New("wallet already exists for user")

	// ErrNonPositiveAmount is returned for zero or negative movement amounts.
	ErrNonPositiveAmount = errors.New("amount must be positive")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// InsufficientFundsError reports how short the wallet was.
type InsufficientFundsError struct {
	WalletID  WalletID
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds in wallet %d: available %s, requested %s",
		e.WalletID, e.Available.StringFixed(2), e.Requested.StringFixed(2))
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// IsClientError reports whether err is caused by the caller's request
// rather than an internal failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrNonPositiveAmount) ||
		errors.Is(err, ErrWalletExists)
}
