package service

import (
	"errors"
	"fmt"

	"BucketDash/internal/repo"
	"BucketDash/internal/storage"
)

// Kind classifies service errors for callers and the HTTP layer.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindAuthorization
	KindNotFound
	KindConflict
	KindBackend
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindBackend:
		return "backend_unavailable"
	default:
		return "unknown"
	}
}

// Error is returned by every service operation that fails as a whole.
// Partial batch failures are reported in result values instead.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
	// Unauthenticated distinguishes a missing actor from an insufficient role.
	Unauthenticated bool
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may retry the same request unchanged.
func (e *Error) Retryable() bool {
	return e.Kind == KindBackend
}

// KindOf returns the Kind of err, or 0 when err is not a service error.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func validationError(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func unauthenticated(op string) *Error {
	return &Error{Kind: KindAuthorization, Op: op, Msg: "authentication required", Unauthenticated: true}
}

func forbidden(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindAuthorization, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func notFound(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func conflict(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func backendError(op string, err error) *Error {
	return &Error{Kind: KindBackend, Op: op, Err: err}
}

// classify maps store and repository sentinels onto service kinds.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	switch {
	case errors.Is(err, storage.ErrConflict), errors.Is(err, repo.ErrDuplicateKey):
		return &Error{Kind: KindConflict, Op: op, Msg: "already exists", Err: err}
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, repo.ErrNotFound):
		return &Error{Kind: KindNotFound, Op: op, Msg: "not found", Err: err}
	default:
		return backendError(op, err)
	}
}

// Errorf builds an error of kind for layers above this package.
func Errorf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Classify is classify for layers above this package.
func Classify(op string, err error) error {
	return classify(op, err)
}
