package market

import (
	"errors"
	"fmt"
)

// Error taxonomy. Every failure returned by an Engine operation wraps
// exactly one of these sentinels so callers can classify with errors.Is.
// All errors abort the triggering operation atomically; retries are the
// caller's responsibility.
var (
	// ErrTiming: action attempted outside its valid window.
	ErrTiming = errors.New("outside valid window")

	// ErrState: wrong lifecycle state (not started, already locked, already
	// resolved, already claimed, duplicate wager).
	ErrState = errors.New("wrong lifecycle state")

	// ErrValidation: malformed input (amount out of bounds, zero account,
	// fee above the allowed maximum).
	ErrValidation = errors.New("invalid input")

	// ErrUnauthorized: caller lacks the required capability.
	ErrUnauthorized = errors.New("caller not authorized")

	// ErrTransfer: a fund transfer failed. Always fatal to the operation;
	// no ledger mutation is committed.
	ErrTransfer = errors.New("fund transfer failed")

	// ErrBatchAbort: a pull-claim batch contained one invalid entry. The
	// whole batch is rejected; the caller must retry a proper subset.
	ErrBatchAbort = errors.New("claim batch aborted")

	// ErrNotFound: the requested round or wager does not exist. Read-path
	// only; mutating operations report ErrState instead.
	ErrNotFound = errors.New("not found")
)

func timingf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTiming, fmt.Sprintf(format, args...))
}

func statef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrState, fmt.Sprintf(format, args...))
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func transferErr(err error) error {
	return fmt.Errorf("%w: %v", ErrTransfer, err)
}

func batchAbort(roundID string, cause error) error {
	return fmt.Errorf("%w: round %s: %v", ErrBatchAbort, roundID, cause)
}
