package extract

import "errors"

// Kind classifies why a run failed.
type Kind string

const (
	KindConfiguration   Kind = "ConfigurationError"
	KindInvalidRequest  Kind = "InvalidRequest"
	KindOutputCollision Kind = "OutputCollision"
	KindSchemaMismatch  Kind = "SchemaMismatch"
	KindExternalCommand Kind = "ExternalCommandFailure"
	KindLocked          Kind = "Locked"
	KindDelivery        Kind = "DeliveryFailure"
)

var exitCodes = map[Kind]int{
	KindConfiguration:   1,
	KindInvalidRequest:  2,
	KindOutputCollision: 3,
	KindSchemaMismatch:  4,
	KindExternalCommand: 5,
	KindLocked:          6,
	KindDelivery:        7,
}

// Error is a classified run failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ExitCode is the process exit status for this failure.
func (e *Error) ExitCode() int {
	if code, ok := exitCodes[e.Kind]; ok {
		return code
	}
	return 1
}

func fail(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// ExitCode maps any error to a process exit status: 0 for nil, the kind's
// code for an *Error, and 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.ExitCode()
	}
	return 1
}

// KindOf returns the failure kind of err, or "" when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
