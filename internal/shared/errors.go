package shared

import "errors"

var (
	// ErrNotFound indicates the ledger store has no such record.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates the ledger store refused a state change.
	ErrConflict = errors.New("conflict")
	// ErrRemoteUnavailable indicates the ledger store could not be reached.
	ErrRemoteUnavailable = errors.New("ledger store unavailable")

	// ErrCompensationFailed wraps an undo action that errored. The status
	// transition that triggered it has already been committed and stands.
	ErrCompensationFailed = errors.New("compensation undo action failed")
	// ErrUnresolvedOrigin indicates a tagged entry carries no resolvable
	// origin ref, so its undo action cannot be dispatched.
	ErrUnresolvedOrigin = errors.New("origin ref missing for tagged entry")
)
