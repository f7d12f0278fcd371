package memory

import (
	"errors"
	"fmt"
)

// Kind identifies a class of domain failure. These are local, non-retried
// failures surfaced verbatim to the caller.
type Kind string

const (
	KindNotFound             Kind = "not_found"
	KindAlreadyExists        Kind = "already_exists"
	KindForbidden            Kind = "forbidden"
	KindConfirmationRequired Kind = "confirmation_required"
	KindValidation           Kind = "validation"
)

// Error is a domain failure with a machine-readable kind and human-readable
// message.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

// Errorf creates a domain error of the given kind.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is a domain error of the given kind.
func IsKind(err error, kind Kind) bool {
	var me *Error
	return errors.As(err, &me) && me.Kind == kind
}

func IsNotFound(err error) bool      { return IsKind(err, KindNotFound) }
func IsAlreadyExists(err error) bool { return IsKind(err, KindAlreadyExists) }
func IsForbidden(err error) bool     { return IsKind(err, KindForbidden) }
func IsValidation(err error) bool    { return IsKind(err, KindValidation) }

// IsConfirmationRequired reports whether err demands an explicit confirm flag.
func IsConfirmationRequired(err error) bool { return IsKind(err, KindConfirmationRequired) }
