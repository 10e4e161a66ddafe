package service

import (
	"errors"
	"fmt"

	"gestoria/internal/repository"

	"github.com/google/uuid"
)

// Sentinel errors. Handlers map them to HTTP status codes with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// CodedError carries a machine readable code for the response envelope.
type CodedError struct {
	Err     error
	Code    string
	Message string
}

func (e *CodedError) Error() string { return e.Message }
func (e *CodedError) Unwrap() error { return e.Err }

func notFound(what string) error {
	return fmt.Errorf("%s %w", what, ErrNotFound)
}

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func conflictf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

func forbidden(code, message string) error {
	return &CodedError{Err: ErrForbidden, Code: code, Message: message}
}

// lookupErr turns a missing row into ErrNotFound and wraps anything else.
func lookupErr(err error, what string) error {
	if repository.IsNotFound(err) {
		return notFound(what)
	}
	return fmt.Errorf("failed to fetch %s: %w", what, err)
}

func parseID(id, what string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, invalidf("invalid %s id", what)
	}
	return parsed, nil
}
