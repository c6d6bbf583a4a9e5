package contracts

import "errors"

var (
	// ErrInvalidRequest marks degenerate input (capital, risk tolerance, snapshot)
	ErrInvalidRequest = errors.New("invalid optimization request")

	// ErrMalformedPlan marks an upstream body that does not have the AllocationPlan shape
	ErrMalformedPlan = errors.New("malformed allocation plan")

	// ErrAllTiersFailed is returned when no tier produced a plan
	ErrAllTiersFailed = errors.New("all allocation tiers failed")
)
