package delta

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport is returned when the ledger could not be reached or
	// answered with an error. The underlying cause stays in the chain.
	ErrTransport = errors.New("ledger transport failure")

	// ErrStartingPointUnavailable is returned when the ledger head is below
	// the height the caller has already seen.
	ErrStartingPointUnavailable = errors.New("starting point is above the ledger head")

	// ErrTooManyBlocks is returned when the delta cannot be held in memory.
	// It is detected before any block is requested.
	ErrTooManyBlocks = errors.New("too many blocks in delta")

	// ErrMissingBlock is returned when the ledger has no block at a height at
	// or below the head it just reported.
	ErrMissingBlock = errors.New("ledger has no block at height")

	// ErrIncompleteBlock is returned when a block lacks its hash or number,
	// or reports a number other than the one requested.
	ErrIncompleteBlock = errors.New("incomplete block")
)

// HeightError ties a delta failure to the height that caused it.
type HeightError struct {
	Height uint64
	Err    error // one of the sentinels above
	Cause  error // transport error, if any
}

func (e *HeightError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("height %d: %v: %v", e.Height, e.Err, e.Cause)
	}
	return fmt.Sprintf("height %d: %v", e.Height, e.Err)
}

func (e *HeightError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

// IsRecoverable reports whether polling again later may succeed without
// intervention. Transport failures and incomplete blocks are transient;
// the remaining kinds indicate an inconsistent ledger or a cursor that can
// never catch up.
func IsRecoverable(err error) bool {
	switch {
	case errors.Is(err, ErrMissingBlock),
		errors.Is(err, ErrStartingPointUnavailable),
		errors.Is(err, ErrTooManyBlocks):
		return false
	case errors.Is(err, ErrTransport), errors.Is(err, ErrIncompleteBlock):
		return true
	default:
		return false
	}
}
