package power

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceIO marks a failure talking to a strip: unreachable, timed
	// out, empty or malformed reply, or a command the device rejected.
	ErrDeviceIO = errors.New("power: device I/O error")

	// ErrInvalidOutlet is returned when the outlet number is outside
	// 1..len(outlets).
	ErrInvalidOutlet = errors.New("power: invalid outlet number")

	// ErrInvalidState is returned for a desired state other than on or off.
	ErrInvalidState = errors.New("power: invalid outlet state")
)

// OutletIndexError reports an out-of-range outlet number together with the
// number of outlets the strip actually has.
type OutletIndexError struct {
	Index int
	Count int
}

func (e *OutletIndexError) Error() string {
	return fmt.Sprintf("%s: %d (strip has %d outlets)", ErrInvalidOutlet, e.Index, e.Count)
}

// Unwrap lets errors.Is(err, ErrInvalidOutlet) match.
func (e *OutletIndexError) Unwrap() error {
	return ErrInvalidOutlet
}

// deviceError wraps err as ErrDeviceIO unless it already is one.
func deviceError(op string, err error) error {
	if errors.Is(err, ErrDeviceIO) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrDeviceIO, op, err)
}
