// Package syncerr defines the error kinds shared by the sync engine.
//
// Every failure crossing a component boundary is classified as one of
// these kinds so that callers can decide between retrying, suppressing,
// and surfacing, instead of each call site hard-coding that decision.
package syncerr

import "errors"

// Sentinel error kinds.
//
// Check with errors.Is():
//
//	if errors.Is(err, syncerr.ErrNetworkUnavailable) {
//	    // suppress further attempts until connectivity returns
//	}
var (
	// ErrNetworkUnavailable is returned when the server could not be
	// reached at all (DNS failure, connection refused, timeout).
	// Retryable: the next connectivity-restored event re-triggers sync.
	ErrNetworkUnavailable = errors.New("network unavailable")

	// ErrServerRejected is returned when the server was reached but
	// refused the request. Not retryable; surfaced to the user only
	// on explicit actions, never on background passes.
	ErrServerRejected = errors.New("server rejected request")

	// ErrStorageCorrupt is returned when a local document file exists
	// but cannot be read or parsed. The engine treats the document as
	// not found for reconciliation purposes and never repairs it by
	// writing an empty document in its place.
	ErrStorageCorrupt = errors.New("local storage corrupt")

	// ErrNotFound is returned when a document or record does not exist,
	// locally or on the server.
	ErrNotFound = errors.New("not found")

	// ErrSyncInProgress is returned when a pass is requested while
	// another pass holds the single-flight token.
	ErrSyncInProgress = errors.New("sync already in progress")
)

// IsRetryable reports whether the error is expected to succeed on a
// later attempt without user intervention.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetworkUnavailable)
}

// IsNotFound reports whether the error indicates a missing document or
// record, including documents hidden behind local corruption.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrStorageCorrupt)
}
