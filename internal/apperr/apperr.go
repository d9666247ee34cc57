// Package apperr defines the error kinds shared by the dictation services.
// Handlers map them to HTTP status codes with utils.HandleError.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation error")
)

// Error carries a kind and a human readable message.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Kind }

func newf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing entity.
func NotFound(format string, args ...any) error { return newf(ErrNotFound, format, args...) }

// Forbidden reports an actor outside the allowed set.
func Forbidden(format string, args ...any) error { return newf(ErrForbidden, format, args...) }

// Conflict reports a uniqueness violation such as a second note for a voice.
func Conflict(format string, args ...any) error { return newf(ErrConflict, format, args...) }

// Validation reports malformed input.
func Validation(format string, args ...any) error { return newf(ErrValidation, format, args...) }

// Is reports whether err is of the given kind.
func Is(err, kind error) bool { return errors.Is(err, kind) }
