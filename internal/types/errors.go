package types

import "errors"

// Domain error taxonomy. Gateway and repository boundaries translate low-level
// failures into these before they reach session/state logic.
var (
	// ErrNotFound signals a missing route or POI row.
	ErrNotFound = errors.New("resource not found")

	// ErrForbidden signals an ownership violation. Callers surface it as a
	// generic failure, not a permission explanation.
	ErrForbidden = errors.New("operation not permitted")

	// ErrSynthesisFailed covers gateway errors, empty results and unparsable
	// output from route synthesis. The in-progress skeleton is discarded.
	ErrSynthesisFailed = errors.New("route synthesis failed")

	// ErrEnrichmentFailed covers a failed or empty content enrichment call.
	// The POI reverts to a retryable stub.
	ErrEnrichmentFailed = errors.New("content enrichment failed")

	// ErrSaveFailed covers persistence write failures; the route stays usable
	// in the local session even though unsaved.
	ErrSaveFailed = errors.New("route save failed")
)
