package directory

import (
	"errors"
	"fmt"
)

var (
	// ErrStationNotFound is returned when a station ID resolves to nothing.
	ErrStationNotFound = errors.New("station not found")

	// ErrTrainNotFound is returned when a train ID resolves to nothing.
	ErrTrainNotFound = errors.New("train not found")

	// ErrRunNotFound is returned when a scheduled run ID resolves to nothing.
	ErrRunNotFound = errors.New("scheduled run not found")
)

// NotFoundError carries which entity was missing. Unwraps to the matching
// sentinel so callers can use errors.Is.
type NotFoundError struct {
	Kind string // "station", "train", "run"
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	switch e.Kind {
	case "station":
		return ErrStationNotFound
	case "train":
		return ErrTrainNotFound
	default:
		return ErrRunNotFound
	}
}

// IsNotFound reports whether err is any directory not-found condition.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrStationNotFound) ||
		errors.Is(err, ErrTrainNotFound) ||
		errors.Is(err, ErrRunNotFound)
}
