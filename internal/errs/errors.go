// Package errs provides the unified error type used across rowsource.
//
// Every subsystem (sources, database drivers, filestore, …) wraps its native
// errors into *errs.Error before returning them to callers. Callers use the Is*
// predicates to handle errors without importing driver-specific packages.
//
// Usage:
//
//	// In a source, reject misuse of the lifecycle:
//	return errs.New(errs.ErrKindInvalidState, "source is not open")
//
//	// In a caller, check the error kind:
//	if errs.IsNotFound(err) {
//	    http.Error(w, "not found", http.StatusNotFound)
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing subsystem-specific codes.
// All backends (spreadsheets, Postgres, MySQL, MinIO, …) map their native
// errors to one of these kinds, giving callers a single consistent API.
type ErrKind int

const (
	ErrKindUnknown          ErrKind = iota
	ErrKindNotFound                 // no file, no sheet, no object, no table
	ErrKindConnectionFailed         // cannot reach the backend
	ErrKindTimeout                  // context deadline / cancellation
	ErrKindQueryFailed              // SQL or storage operation error
	ErrKindInvalidInput             // bad or conflicting arguments from the caller
	ErrKindPermissionDenied         // access denied / unreadable resource
	ErrKindUnsupported              // capability exists in the API but is not implemented
	ErrKindInvalidState             // lifecycle misuse: read or close before open, after close
	ErrKindShapeMismatch            // physical row width differs from the table model
	ErrKindParse                    // a cell or value could not be parsed by its column
	ErrKindResourceFailed           // the backing resource exists but cannot be opened or decoded
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindQueryFailed:
		return "query_failed"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindPermissionDenied:
		return "permission_denied"
	case ErrKindUnsupported:
		return "unsupported"
	case ErrKindInvalidState:
		return "invalid_state"
	case ErrKindShapeMismatch:
		return "shape_mismatch"
	case ErrKindParse:
		return "parse"
	case ErrKindResourceFailed:
		return "resource_failed"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all rowsource subsystems.
// Producers create it; callers inspect it via the Is* predicates below.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error // original driver-level error, preserved for logging
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf is New with a formatted message.
func Newf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(kind ErrKind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// --- Predicates ---

// IsNotFound reports whether err represents a "not found" result
// (missing file, sheet, object, table, …).
func IsNotFound(err error) bool {
	return KindOf(err) == ErrKindNotFound
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return KindOf(err) == ErrKindTimeout
}

// IsConnectionFailed reports whether err is a connectivity or auth failure.
func IsConnectionFailed(err error) bool {
	return KindOf(err) == ErrKindConnectionFailed
}

// IsQueryFailed reports whether err is a backend operation failure
// (SQL execution error, storage I/O error, …).
func IsQueryFailed(err error) bool {
	return KindOf(err) == ErrKindQueryFailed
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return KindOf(err) == ErrKindInvalidInput
}

// IsPermissionDenied reports whether err is an access control failure.
func IsPermissionDenied(err error) bool {
	return KindOf(err) == ErrKindPermissionDenied
}

// IsUnsupported reports whether err rejects a configuration value that is
// accepted by the API but not implemented.
func IsUnsupported(err error) bool {
	return KindOf(err) == ErrKindUnsupported
}

// IsInvalidState reports whether err is a lifecycle protocol violation.
func IsInvalidState(err error) bool {
	return KindOf(err) == ErrKindInvalidState
}

// IsShapeMismatch reports whether err is a row width / model mismatch.
func IsShapeMismatch(err error) bool {
	return KindOf(err) == ErrKindShapeMismatch
}

// IsParse reports whether err came from a column parser.
func IsParse(err error) bool {
	return KindOf(err) == ErrKindParse
}

// IsResourceFailed reports whether err is a failure to open or decode a
// backing resource that was otherwise found.
func IsResourceFailed(err error) bool {
	return KindOf(err) == ErrKindResourceFailed
}

// KindOf extracts the ErrKind from the outermost *Error in the chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
