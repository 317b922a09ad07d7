package approval

import "errors"

// Claim workflow errors. None of these are retryable with the same
// actor and arguments.
var (
	// ErrClaimNotFound is returned when the claim identifier is unknown
	ErrClaimNotFound = errors.New("claim not found")

	// ErrUnauthorized is returned when the actor is not the approver
	// configured for the claim's current level.
	ErrUnauthorized = errors.New("actor is not the approver for the current level")

	// ErrRemarksRequired is returned by Reject when remarks are empty
	ErrRemarksRequired = errors.New("rejection requires remarks")

	// ErrClaimConflict is returned when the claim's status changed
	// between read and update: the caller lost a race and must re-fetch
	// before acting again.
	ErrClaimConflict = errors.New("claim was modified concurrently")

	// ErrInvalidChain is returned at submission when the approval chain
	// is empty, missing its L1 approver, or otherwise malformed.
	ErrInvalidChain = errors.New("invalid approval chain")
)
