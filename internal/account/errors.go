package account

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/ovaphlow/pitchfork/service-account-go/internal/account/repo"
)

// sentinel errors classifying every failure returned by this package
var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrBadRequest         = errors.New("bad request")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInfrastructure     = errors.New("infrastructure failure")
)

// Error carries an actionable message and matches one of the sentinel kinds via errors.Is.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Is(target error) bool { return target == e.Kind }
func (e *Error) Unwrap() error        { return e.Err }

func notFound(format string, args ...any) error {
	return &Error{Kind: ErrNotFound, Msg: fmt.Sprintf(format, args...)}
}

func conflict(format string, args ...any) error {
	return &Error{Kind: ErrConflict, Msg: fmt.Sprintf(format, args...)}
}

func badRequest(format string, args ...any) error {
	return &Error{Kind: ErrBadRequest, Msg: fmt.Sprintf(format, args...)}
}

func infra(op string, err error) error {
	return &Error{Kind: ErrInfrastructure, Msg: op, Err: err}
}

// storeErr classifies an error coming back from the Store. Unique violations raised by the
// database become Conflict so a lost race reads the same as a failed pre-check.
func storeErr(op, what string, err error) error {
	var dup *repo.DuplicateError
	switch {
	case errors.As(err, &dup):
		return conflict("%s already exists", dup.Field)
	case errors.Is(err, sql.ErrNoRows):
		return notFound("%s not found", what)
	default:
		return infra(op, err)
	}
}
