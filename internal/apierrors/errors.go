// Package apierrors defines the error taxonomy shared by every core
// component and the HTTP boundary that translates it into status codes.
package apierrors

import (
	"errors"
	"fmt"
)

// Kind identifies which branch of the error taxonomy an error belongs to.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindUnauthorized Kind = "unauthorized"
	KindBadRequest   Kind = "bad_request"
	KindConflict     Kind = "conflict"
	KindStateError   Kind = "state_error"
	KindInternal     Kind = "internal"
)

// Error is a taxonomy-tagged error. Components construct one through the
// Kind-named constructors below rather than building this type directly.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func NotFound(msg string) error     { return &Error{Kind: KindNotFound, Msg: msg} }
func Unauthorized(msg string) error { return &Error{Kind: KindUnauthorized, Msg: msg} }
func BadRequest(msg string) error   { return &Error{Kind: KindBadRequest, Msg: msg} }
func Conflict(msg string) error     { return &Error{Kind: KindConflict, Msg: msg} }
func StateError(msg string) error   { return &Error{Kind: KindStateError, Msg: msg} }
func Internal(msg string) error     { return &Error{Kind: KindInternal, Msg: msg} }

// Wrap tags an existing error with a taxonomy kind, preserving it for
// errors.Is/As and for logging the original cause.
func Wrap(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// NotFoundf, Internalf, etc. would be mechanical; callers that need
// formatting call fmt.Sprintf before handing the message in.

// KindOf walks the error chain looking for a tagged *Error and returns its
// Kind. An error with no tagged ancestor is treated as internal: something
// escaped the taxonomy and should be logged as unexpected.
func KindOf(err error) Kind {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
