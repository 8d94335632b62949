// File: internal/domain/errors.go
package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures the way callers need to react to them.
type ErrorKind string

const (
	ErrKindNotFound        ErrorKind = "NOT_FOUND"
	ErrKindInvalidArgument ErrorKind = "INVALID_ARGUMENT"
	ErrKindInvalidState    ErrorKind = "INVALID_STATE"
	ErrKindStorageFailure  ErrorKind = "STORAGE_FAILURE"
)

// Error is the shared failure type for store, repository and service
// operations.
type Error struct {
	Kind      ErrorKind
	Operation string
	Message   string
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error in %s: %s (caused by: %v)", e.Kind, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error in %s: %s", e.Kind, e.Operation, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func NewNotFoundError(operation, msg string) *Error {
	return &Error{Kind: ErrKindNotFound, Operation: operation, Message: msg}
}

func NewInvalidArgumentError(operation, msg string) *Error {
	return &Error{Kind: ErrKindInvalidArgument, Operation: operation, Message: msg}
}

func NewInvalidStateError(operation, msg string) *Error {
	return &Error{Kind: ErrKindInvalidState, Operation: operation, Message: msg}
}

func NewStorageError(operation, msg string, cause error) *Error {
	return &Error{Kind: ErrKindStorageFailure, Operation: operation, Message: msg, Cause: cause}
}

func kindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

func IsNotFound(err error) bool        { return kindOf(err) == ErrKindNotFound }
func IsInvalidArgument(err error) bool { return kindOf(err) == ErrKindInvalidArgument }
func IsInvalidState(err error) bool    { return kindOf(err) == ErrKindInvalidState }
func IsStorageFailure(err error) bool  { return kindOf(err) == ErrKindStorageFailure }
