package searchodm

import (
	"github.com/letmevibethatforyou/searchodm/convert"
	"github.com/letmevibethatforyou/searchodm/internal/codes"
	"github.com/letmevibethatforyou/searchodm/mapping"
)

// ErrorCode represents specific error codes for mapping and search operations.
type ErrorCode = codes.Code

const (
	// ErrCodeMapping is returned when entity metadata cannot be resolved.
	ErrCodeMapping = codes.Mapping

	// ErrCodeConversion is returned when a field value has no applicable converter.
	ErrCodeConversion = codes.Conversion

	// ErrCodeTranslation is returned when a query is malformed or contradictory.
	ErrCodeTranslation = codes.Translation

	// ErrCodeTimeout is returned when a search operation times out.
	ErrCodeTimeout = codes.Timeout

	// ErrCodeCanceled is returned when a search operation is canceled.
	ErrCodeCanceled = codes.Canceled

	// ErrCodeNotImplemented is returned when a feature is not implemented.
	ErrCodeNotImplemented = codes.NotImplemented

	// ErrCodeBackendUnavailable is returned when the search backend is unavailable.
	ErrCodeBackendUnavailable = codes.BackendUnavailable

	// ErrCodeNotFound is returned when a document does not exist.
	ErrCodeNotFound = codes.NotFound
)

// Errors returned by mapping, translation and transport operations.
// None of them is retried internally.
var (
	// ErrMapping is returned when entity metadata cannot be resolved.
	ErrMapping = mapping.ErrMapping

	// ErrConversion is returned when a value cannot be converted; no partial document is produced.
	ErrConversion = convert.ErrConversion

	// ErrTranslation is returned when query state is rejected before dispatch.
	ErrTranslation = codes.New(codes.Translation, "searchodm: translation error")

	// ErrTimeout is returned when a search operation times out.
	ErrTimeout = codes.New(codes.Timeout, "searchodm: operation timed out")

	// ErrCanceled is returned when a search operation is canceled.
	ErrCanceled = codes.New(codes.Canceled, "searchodm: operation canceled")

	// ErrNotImplemented is returned when a transport does not support a feature.
	ErrNotImplemented = codes.New(codes.NotImplemented, "searchodm: not implemented")

	// ErrBackendUnavailable is returned when the search backend is unavailable.
	ErrBackendUnavailable = codes.New(codes.BackendUnavailable, "searchodm: backend unavailable")

	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = codes.New(codes.NotFound, "searchodm: document not found")
)
