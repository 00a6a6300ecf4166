package engine

import (
	"errors"
	"fmt"

	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/repo"
)

type Kind string

const (
	KindForbidden         Kind = "forbidden"
	KindInvalidState      Kind = "invalid_state"
	KindInvalidInput      Kind = "invalid_input"
	KindNotFound          Kind = "not_found"
	KindResourceExhausted Kind = "resource_exhausted"
)

// Error is the caller-visible failure of an engine operation.
type Error struct {
	Kind    Kind
	Code    string
	Reason  string
	Details map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrForbidden) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Code == "" || t.Code == e.Code)
}

// Sentinels for errors.Is.
var (
	ErrForbidden         = &Error{Kind: KindForbidden}
	ErrInvalidState      = &Error{Kind: KindInvalidState}
	ErrInvalidInput      = &Error{Kind: KindInvalidInput}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrResourceExhausted = &Error{Kind: KindResourceExhausted}
)

func newError(kind Kind, code, format string, args ...any) *Error {
	if code == "" {
		code = string(kind)
	}
	return &Error{Kind: kind, Code: code, Reason: fmt.Sprintf(format, args...)}
}

func forbidden(format string, args ...any) *Error {
	return newError(KindForbidden, "", format, args...)
}

func invalidState(format string, args ...any) *Error {
	return newError(KindInvalidState, "", format, args...)
}

func invalidInput(format string, args ...any) *Error {
	return newError(KindInvalidInput, "", format, args...)
}

func notFound(format string, args ...any) *Error {
	return newError(KindNotFound, "", format, args...)
}

func (e *Error) with(key string, value any) *Error {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

// KindOf returns the kind of err, or "" if it is not an engine error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// lookupErr turns a repository miss into a NotFound naming what was missing.
func lookupErr(err error, what, id string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return notFound("%s %s not found", what, id).with(what+"_id", id)
	}
	return err
}
