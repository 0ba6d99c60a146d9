package remote

import "errors"

// Common errors returned by Store operations.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, remote.ErrNotFound) {
//	    // Handle missing document
//	}
var (
	// ErrNotFound is returned when the requested document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrConflict is returned when a transaction lost an optimistic
	// concurrency race or the database was busy.
	ErrConflict = errors.New("transaction conflict")

	// ErrNetwork is returned for transport-level failures talking to the store.
	ErrNetwork = errors.New("network error")

	// ErrData is returned when a document cannot be encoded or decoded.
	ErrData = errors.New("data error")

	// ErrNotSupported is returned when a backend is not compiled in.
	ErrNotSupported = errors.New("operation not supported by this store")
)

// IsRetryable returns true if the error is likely to succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrNetwork)
}
