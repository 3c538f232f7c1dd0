package ir

import "errors"

// Collaborator error taxonomy. Stores and configuration loaders wrap these
// sentinels with fmt.Errorf("...: %w", ...) so callers can classify a failure
// with errors.Is regardless of which implementation produced it.
var (
	// ErrStoreUnavailable marks a transient store failure. Tree construction
	// failures carrying it are retried through the delay queue.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrWriteRejected marks a write refused by the index, typically because
	// it carries an older source version than the stored target document.
	// Never retried automatically.
	ErrWriteRejected = errors.New("write rejected")

	// ErrConfigurationInvalid marks a configuration that failed to load or
	// validate.
	ErrConfigurationInvalid = errors.New("configuration invalid")

	// ErrNotFound marks a missing document.
	ErrNotFound = errors.New("not found")
)

// IsStoreUnavailable reports whether err is (or wraps) ErrStoreUnavailable.
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// IsWriteRejected reports whether err is (or wraps) ErrWriteRejected.
func IsWriteRejected(err error) bool {
	return errors.Is(err, ErrWriteRejected)
}

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
