package interfaces

import (
	"errors"
	"fmt"
)

// User-facing error kinds. Every mutating operation fails with exactly one of these
// (optionally wrapped), or with a defect.
var (
	// ErrEmptyInput is returned when an event id or proof payload is empty.
	ErrEmptyInput = errors.New("empty input")

	// ErrEmptyEventID is returned by submitProof for an empty event id.
	ErrEmptyEventID = fmt.Errorf("%w: event id", ErrEmptyInput)

	// ErrEmptyPayload is returned by submitProof for empty proof data.
	ErrEmptyPayload = fmt.Errorf("%w: proof data", ErrEmptyInput)

	// ErrDuplicateCommitment is returned when a proof with the same commitment already exists.
	ErrDuplicateCommitment = errors.New("duplicate commitment")

	// ErrInvalidProofID is returned when a proof id is out of range.
	ErrInvalidProofID = errors.New("invalid proof id")

	// ErrUnauthorized is returned when the caller lacks validator or owner rights.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound is returned by reads for absent entities (credentials, metadata).
	ErrNotFound = errors.New("not found")

	// ErrLedgerUnavailable is a transient, retryable ledger failure.
	ErrLedgerUnavailable = errors.New("ledger unavailable")

	// ErrInsufficientResources is returned when a broadcast is rejected for lack of funds or quota.
	ErrInsufficientResources = errors.New("insufficient resources")

	// ErrSubmissionRejected is returned when the principal declined to authorize a broadcast.
	ErrSubmissionRejected = errors.New("submission rejected by caller")

	// ErrTerminalFailure is returned when the ledger reports the operation aborted.
	ErrTerminalFailure = errors.New("terminal failure")

	// ErrPollingTimeout is returned when a caller deadline expires before a terminal outcome.
	ErrPollingTimeout = errors.New("polling timeout")
)

// Defects. These indicate a bug and are never user-triggerable.
var (
	// ErrInvariantViolation is the root of all internal consistency faults.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrAlreadyMinted is raised when the minter is asked to bind a second credential to a proof.
	ErrAlreadyMinted = fmt.Errorf("%w: credential already minted", ErrInvariantViolation)

	// ErrIDAllocation is raised when a sequence id would be allocated twice.
	ErrIDAllocation = fmt.Errorf("%w: id already allocated", ErrInvariantViolation)
)

// IsDefect reports whether err is an internal invariant violation.
func IsDefect(err error) bool {
	return errors.Is(err, ErrInvariantViolation)
}

// IsTransient reports whether err may succeed when retried.
func IsTransient(err error) bool {
	return errors.Is(err, ErrLedgerUnavailable)
}
