// Package codes holds the error codes shared by every searchodm package.
package codes

import "github.com/cockroachdb/errors"

// Code represents a specific error code for mapping, conversion and search operations.
type Code int

const (
	// Mapping is returned when entity metadata cannot be resolved.
	Mapping Code = iota + 1000

	// Conversion is returned when a value has no applicable converter.
	Conversion

	// Translation is returned when a query cannot be translated into an engine request.
	Translation

	// Timeout is returned when a search operation times out.
	Timeout

	// Canceled is returned when a search operation is canceled.
	Canceled

	// NotImplemented is returned when a feature is not implemented by a transport.
	NotImplemented

	// BackendUnavailable is returned when the search backend is unavailable.
	BackendUnavailable

	// NotFound is returned when a document does not exist.
	NotFound
)

// String returns the human-readable string representation of the error code.
func (c Code) String() string {
	switch c {
	case Mapping:
		return "mapping error"
	case Conversion:
		return "conversion error"
	case Translation:
		return "translation error"
	case Timeout:
		return "operation timed out"
	case Canceled:
		return "operation canceled"
	case NotImplemented:
		return "not implemented"
	case BackendUnavailable:
		return "backend unavailable"
	case NotFound:
		return "not found"
	default:
		return "unknown error"
	}
}

// New creates a new error carrying a code as its secondary error.
func New(c Code, msg string) error {
	err := errors.New(msg)
	return errors.WithSecondaryError(err, errors.Newf("code: %d", int(c)))
}
