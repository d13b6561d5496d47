package records

import "errors"

var (
	// ErrNotFound indicates no record exists for the requested remote_id.
	ErrNotFound = errors.New("record not found")
	// ErrIllegalTransition indicates a status change the lifecycle does not allow.
	ErrIllegalTransition = errors.New("illegal status transition")
	// ErrNotClaimable indicates a record exists but is not in a claimable upload state.
	ErrNotClaimable = errors.New("record is not claimable")
)
