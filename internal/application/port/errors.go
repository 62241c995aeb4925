package port

import "errors"

// Typed outcomes for the pipeline and its collaborators. Callers branch with
// errors.Is; upstream library errors are wrapped behind these at the
// infrastructure boundary and never leak further.
var (
	// ErrUpstream: the provider answered with a non-success status.
	ErrUpstream = errors.New("upstream provider error")

	// ErrUpstreamTimeout: the provider call exceeded its request timeout.
	ErrUpstreamTimeout = errors.New("upstream provider timeout")

	// ErrNoData: neither the store nor the provider has data for the key.
	// A normal, distinguishable absence, not a failure.
	ErrNoData = errors.New("no data found")

	// ErrStoreUnavailable: connection acquisition exhausted its retries.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrOrderExecution: the broker call failed; never retried automatically.
	ErrOrderExecution = errors.New("order execution failed")
)
