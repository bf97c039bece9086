package domain

import "errors"

// Sentinel errors surfaced by the engine and mapped to API error codes.
var (
	ErrNotFound                 = errors.New("not found")
	ErrCapacityExceeded         = errors.New("participant capacity exceeded")
	ErrDuplicateParticipant     = errors.New("participant already present")
	ErrInsufficientParticipants = errors.New("not enough active participants")
	ErrInvalidStateTransition   = errors.New("invalid state transition")
	ErrAgreementFinalized       = errors.New("agreement already finalized")
	ErrConcurrencyConflict      = errors.New("concurrent modification")
)
