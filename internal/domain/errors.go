package domain

import "errors"

// ErrorKind classifies a failure for calling layers.
type ErrorKind string

const (
	KindNotFound           ErrorKind = "NOT_FOUND"
	KindInvalidInput       ErrorKind = "INVALID_INPUT"
	KindConflict           ErrorKind = "CONFLICT"
	KindPreconditionFailed ErrorKind = "PRECONDITION_FAILED"
	KindInternal           ErrorKind = "INTERNAL"
)

// Error is a recoverable, caller-facing failure. Reason is a stable
// machine-readable string; values are compared by identity with errors.Is.
type Error struct {
	Kind    ErrorKind
	Reason  string
	Message string
}

// NewError creates a sentinel error of the given kind.
func NewError(kind ErrorKind, reason, message string) *Error {
	return &Error{Kind: kind, Reason: reason, Message: message}
}

func (e *Error) Error() string {
	return e.Message
}

// KindOf returns the kind of the first *Error in err's chain,
// or KindInternal when there is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ReasonOf returns the stable reason string of err, or "internal".
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return "internal"
}
