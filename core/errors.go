package core

import "github.com/pkg/errors"

// Error kinds. Domain errors wrap one of these so callers (e.g. the HTTP layer)
// can classify them with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("permission denied")
	ErrConflict          = errors.New("conflict")
	ErrDependencyFailure = errors.New("dependency failure")
)

type kindError struct {
	kind error
	msg  string
}

// NewKindError returns a sentinel error reading `msg` that unwraps to `kind`.
func NewKindError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

func (err *kindError) Error() string { return err.msg }
func (err *kindError) Unwrap() error { return err.kind }

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
