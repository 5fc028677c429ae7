package schemas

import "errors"

// -- Error Taxonomy --
// Failures are wrapped with fmt.Errorf("...: %w") and matched with errors.Is.
// Partial extraction is not an error: degraded data is returned as-is.

var (
	// ErrValidation marks missing or malformed input, rejected before submission.
	ErrValidation = errors.New("validation error")
	// ErrNavigationTimeout marks a page load that failed or did not finish in time.
	ErrNavigationTimeout = errors.New("navigation timeout")
	// ErrControlNotFound marks a required input field or button that never appeared.
	ErrControlNotFound = errors.New("control not found")
	// ErrResultTimeout marks a strict wait for rendered results that expired.
	ErrResultTimeout = errors.New("result timeout")
	// ErrPoolUnavailable marks a session pool that could not be started. It is fatal at startup.
	ErrPoolUnavailable = errors.New("session pool unavailable")
	// ErrPoolClosed is returned to submitters once the pool is shutting down.
	ErrPoolClosed = errors.New("session pool closed")
	// ErrSessionBroken marks a session that can no longer be driven and must be replaced.
	ErrSessionBroken = errors.New("session broken")
)
