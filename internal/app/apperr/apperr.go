// Package apperr defines the structured error taxonomy shared by all
// application services. Every failed operation surfaces exactly one *Error;
// transport adapters map Kind to their own status vocabulary.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for handling policy, not for user wording.
type Kind int

const (
	// KindValidation is malformed input. Recoverable, nothing was mutated.
	KindValidation Kind = iota + 1
	// KindConflict is a uniqueness or state conflict. Recoverable, nothing
	// was mutated.
	KindConflict
	// KindNotFound is an unknown identifier.
	KindNotFound
	// KindForbidden is insufficient privilege. Kept distinct from NotFound
	// for audit purposes even when user-facing text is similar.
	KindForbidden
	// KindTransport is an outbound delivery failure. Recovered locally,
	// never propagated to the triggering mutation's caller.
	KindTransport
	// KindStorage is an unexpected persistence failure. Fatal for the
	// request, not for the process.
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindTransport:
		return "transport"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// Error is the structured error returned by application services.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any

	// Err is the underlying cause, set for storage and transport kinds.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(code, message string, details map[string]any) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message, Details: details}
}

func Conflict(code, message string, details map[string]any) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message, Details: details}
}

func NotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

func Forbidden(code, message string) *Error {
	return &Error{Kind: KindForbidden, Code: code, Message: message}
}

func Transport(message string, err error) *Error {
	return &Error{Kind: KindTransport, Code: "TRANSPORT_FAILED", Message: message, Err: err}
}

func Storage(message string, err error) *Error {
	return &Error{Kind: KindStorage, Code: "STORAGE_FAILED", Message: message, Err: err}
}

// KindOf extracts the Kind from an error chain; zero when err is not an
// application error.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return 0
}

// CodeOf extracts the Code from an error chain; empty when err is not an
// application error.
func CodeOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, k Kind) bool { return KindOf(err) == k }
