package trip

import "errors"

// Session-state errors. These indicate caller misuse, not transient
// conditions: retrying with the same arguments repeats the failure.
var (
	// ErrAlreadyActive is returned by StartTrip when the employee
	// already has an ACTIVE session.
	ErrAlreadyActive = errors.New("employee already has an active trip")

	// ErrSessionNotFound is returned when the session identifier is
	// unknown.
	ErrSessionNotFound = errors.New("trip session not found")

	// ErrSessionNotActive is returned by mutating operations on a
	// session that is not ACTIVE.
	ErrSessionNotActive = errors.New("trip session is not active")
)
