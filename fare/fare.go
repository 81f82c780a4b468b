/*
Package fare prices a journey from its route and travel class.

PURPOSE:
  One pure function: (source station, destination station, travel class)
  -> per-passenger price. No lookups, no clocks, no side effects. The
  booking engine multiplies by passenger count; this package never sees a
  booking.

PRICING MODEL:
  The distance model is synthetic: station IDs stand in for positions on
  the line, so distance is |destID - srcID| scaled by a constant, floored
  to a minimum when the two stations coincide. Base fare is linear in
  distance and a per-class multiplier is applied, rounded half-up to cent
  precision.

  The numbers are placeholders, not real tariff policy. The contract that
  must survive any replacement formula:
    - deterministic
    - monotonic in distance
    - class-ordered: first >= second >= sleeper/AC
    - rounds to two decimal places

EXAMPLE:
  Same-station route floors to distance 20:
    base = 20 * 1.5 = 30, second class *2.0 = 60.00 per passenger.

SEE ALSO:
  - booking/engine.go: the only caller
*/
package fare

import (
	"github.com/shopspring/decimal"

	"github.com/transitrail/booking-engine/directory"
)

// =============================================================================
// TRAVEL CLASS
// =============================================================================

type TravelClass string

const (
	FirstClass  TravelClass = "FIRST_CLASS"
	SecondClass TravelClass = "SECOND_CLASS"
	Sleeper     TravelClass = "SLEEPER"
	ACCoach     TravelClass = "AC_COACH"
)

// Valid reports whether c is a known travel class.
func (c TravelClass) Valid() bool {
	switch c {
	case FirstClass, SecondClass, Sleeper, ACCoach:
		return true
	}
	return false
}

// =============================================================================
// PRICING CONSTANTS
// =============================================================================

var (
	distanceScale   = decimal.NewFromInt(10) // km per unit of station-ID gap
	minimumDistance = decimal.NewFromInt(20) // floor when src == dst resolve equal
	ratePerKm       = decimal.NewFromFloat(1.5)

	classMultipliers = map[TravelClass]decimal.Decimal{
		FirstClass:  decimal.NewFromFloat(3.0),
		SecondClass: decimal.NewFromFloat(2.0),
		Sleeper:     decimal.NewFromFloat(1.0),
		ACCoach:     decimal.NewFromFloat(1.0),
	}
)

// =============================================================================
// CALCULATION
// =============================================================================

// Calculate returns the per-passenger fare for a route and class, rounded
// to two decimal places. Pure and deterministic.
func Calculate(src, dst directory.StationID, class TravelClass) decimal.Decimal {
	distance := decimal.NewFromInt(int64(gap(src, dst))).Mul(distanceScale)
	if distance.IsZero() {
		distance = minimumDistance
	}

	base := distance.Mul(ratePerKm)
	multiplier, ok := classMultipliers[class]
	if !ok {
		multiplier = classMultipliers[Sleeper]
	}

	return base.Mul(multiplier).Round(2)
}

func gap(src, dst directory.StationID) int64 {
	d := int64(dst) - int64(src)
	if d < 0 {
		return -d
	}
	return d
}
