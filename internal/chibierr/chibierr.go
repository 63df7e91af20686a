// Package chibierr provides the error-kind vocabulary shared across the
// agentic core (spec §7). Kinds are not Go types per callsite; they are a
// closed enum carried by a single wrapping Error type, grounded on the
// teacher's typed-error-with-Unwrap idiom (internal/net/ssrf.SSRFBlockedError,
// internal/gateway.GatewayLockError).
package chibierr

import "fmt"

// Kind is one of the error kinds named in spec §7.
type Kind string

const (
	NotFound         Kind = "not_found"
	InvalidInput     Kind = "invalid_input"
	InvalidData      Kind = "invalid_data"
	PermissionDenied Kind = "permission_denied"
	AlreadyExists    Kind = "already_exists"
	InternalError    Kind = "internal_error"
	Unavailable      Kind = "unavailable"
)

// Error is a chibi-core error carrying a closed-enum Kind plus an optional
// wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error of the given kind with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if ce, ok := err.(*Error); ok {
			e = ce
			break
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return e != nil && e.Kind == kind
}

// KindOf extracts the Kind of err, returning InternalError if err is not a
// *Error (or wraps one).
func KindOf(err error) Kind {
	var e *Error
	cur := err
	for cur != nil {
		if ce, ok := cur.(*Error); ok {
			e = ce
			break
		}
		unwrapper, ok := cur.(interface{ Unwrap() error })
		if !ok {
			break
		}
		cur = unwrapper.Unwrap()
	}
	if e == nil {
		return InternalError
	}
	return e.Kind
}
