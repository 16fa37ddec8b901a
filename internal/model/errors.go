package model

import "github.com/pkg/errors"

// Error taxonomy. Callers match with errors.Is; wrapping keeps cause chains.
var (
	// ErrDataUnavailable marks a required external dataset that could not be
	// fetched or decoded. Signal layers degrade on it; the network loader
	// treats it as fatal.
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrDegenerateInput marks malformed geometry or impossible values
	// rejected at ingestion.
	ErrDegenerateInput = errors.New("degenerate input")

	// ErrNoFeasibleRoute means no closed loop from the start fits the budget.
	ErrNoFeasibleRoute = errors.New("no feasible route")

	// ErrConfiguration marks invalid weights, budgets or session parameters.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrNotFound is returned for unknown session or node IDs.
	ErrNotFound = errors.New("not found")
)
