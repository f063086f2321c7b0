package chat

import (
	"errors"
	"fmt"

	"github.com/haasonsaas/huddle/internal/storage"
)

// Code is the wire-level error code returned to the originating connection.
type Code string

const (
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeNotMember       Code = "NOT_MEMBER"
	CodeUserBlocked     Code = "USER_BLOCKED"
	CodeNotFound        Code = "NOT_FOUND"
	CodeForbidden       Code = "FORBIDDEN"
	CodeValidation      Code = "VALIDATION"
	CodeRateLimited     Code = "RATE_LIMITED"
	CodeInternal        Code = "INTERNAL"
)

// Error is a command failure that is reported to the actor and never
// broadcast.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an *Error with a formatted client-facing message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf maps err to a wire code. Storage misses become NOT_FOUND and
// anything unrecognised becomes INTERNAL.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var chatErr *Error
	if errors.As(err, &chatErr) {
		return chatErr.Code
	}
	if errors.Is(err, storage.ErrNotFound) {
		return CodeNotFound
	}
	return CodeInternal
}

// PublicMessage returns text that is safe to show the client. Internal
// failures are never described.
func PublicMessage(err error) string {
	var chatErr *Error
	if errors.As(err, &chatErr) && chatErr.Code != CodeInternal {
		return chatErr.Message
	}
	switch CodeOf(err) {
	case CodeNotFound:
		return "not found"
	default:
		return "internal error"
	}
}

// storeErr converts a storage failure into a command error.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var chatErr *Error
	if errors.As(err, &chatErr) {
		return err
	}
	if errors.Is(err, storage.ErrNotFound) {
		return &Error{Code: CodeNotFound, Message: "not found", Err: err}
	}
	return &Error{Code: CodeInternal, Message: op, Err: err}
}
