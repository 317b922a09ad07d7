package repository

import "errors"

// Sentinel errors surfaced by repositories so that services can map
// store-level outcomes onto domain errors without parsing driver errors.
var (
	// ErrDuplicateActiveSession is returned when the partial unique
	// index on active trip sessions rejects an insert. Exactly one of
	// two concurrent start attempts for the same employee sees this.
	ErrDuplicateActiveSession = errors.New("employee already has an active session")

	// ErrStaleStatus is returned when a conditional status update
	// matched zero rows: the record moved on since it was read.
	ErrStaleStatus = errors.New("record status changed since read")
)
