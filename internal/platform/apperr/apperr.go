// Package apperr defines the error taxonomy shared by every repository,
// service and coordinator. Every error returned across a package boundary
// either is an *Error or wraps one, so callers classify failures with
// KindOf instead of string matching.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Kind classifies an error for propagation and presentation.
type Kind int

const (
	Internal Kind = iota
	// Validation: malformed or missing input, detected before any write.
	Validation
	// InvalidTransition: the appointment state machine refused the move.
	InvalidTransition
	// PermissionDenied: the caller's role lacks the capability.
	PermissionDenied
	// TransientIO: store or channel unreachable; retried by re-pull.
	TransientIO
	// ReferentialGap: a row references a patient, doctor or user that no
	// longer exists.
	ReferentialGap
	NotFound
	Conflict
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case InvalidTransition:
		return "invalid_transition"
	case PermissionDenied:
		return "permission_denied"
	case TransientIO:
		return "transient_io"
	case ReferentialGap:
		return "referential_gap"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	default:
		return "internal"
	}
}

// HTTPStatus is the status code a handler answers with for this kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case Validation:
		return http.StatusBadRequest
	case PermissionDenied:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case InvalidTransition, Conflict:
		return http.StatusConflict
	case ReferentialGap:
		return http.StatusUnprocessableEntity
	case TransientIO:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified error. Op names the failing operation
// ("appointment.transition"), Msg is safe to show to a user.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	default:
		return e.Msg
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets sentinel *Error values match by identity through wrapping, and
// lets a bare &Error{Kind: k} act as a kind matcher.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t == e {
		return true
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind. A nil err returns nil.
func Wrap(err error, kind Kind, op, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the user-facing message of err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	return err.Error()
}

// PG classifies an error coming out of pgx. Unknown errors pass through
// wrapped as Internal so KindOf keeps working.
func PG(err error, op string) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &Error{Kind: NotFound, Op: op, Msg: "not found", Err: err}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return &Error{Kind: Conflict, Op: op, Msg: "already exists", Err: err}
		case "23503":
			return &Error{Kind: ReferentialGap, Op: op, Msg: "referenced row does not exist", Err: err}
		case "23514", "22P02", "22007", "22008":
			return &Error{Kind: Validation, Op: op, Msg: "invalid value", Err: err}
		}
		return &Error{Kind: Internal, Op: op, Msg: "database error", Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) || pgconn.SafeToRetry(err) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: TransientIO, Op: op, Msg: "store unreachable", Err: err}
	}
	return &Error{Kind: Internal, Op: op, Msg: "database error", Err: err}
}
