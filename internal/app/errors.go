package app

import (
	"errors"

	"docqa/internal/rag"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrDuplicate  = errors.New("duplicate")
	ErrInternal   = errors.New("internal error")
	ErrIngestion  = rag.ErrIngestion
	ErrAnswer     = rag.ErrAnswer
)

// Error classifies a service failure. Detail is safe to return to clients;
// Err keeps the underlying cause for logs.
type Error struct {
	Op     string
	Kind   error
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Detail
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(op string, kind error, detail string, cause error) *Error {
	return &Error{Op: op, Kind: kind, Detail: detail, Err: cause}
}

// Detail returns the client-facing message for err.
func Detail(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Detail != "" {
		return appErr.Detail
	}
	return "Internal server error"
}
