package domain

import "fmt"

type ErrorCode string

const (
	CodeUnauthenticated ErrorCode = "Unauthenticated"
	CodeRejected        ErrorCode = "Rejected"
	CodeUnknownTarget   ErrorCode = "UnknownTarget"
	CodeForbidden       ErrorCode = "Forbidden"
	CodeSessionEnded    ErrorCode = "SessionEnded"
)

// Error is delivered to the originating connection as a typed failure payload.
type Error struct {
	Code   ErrorCode
	Reason string
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

// Is matches on code only, so errors.Is(Rejected("x"), ErrRejected) holds.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrUnauthenticated = &Error{Code: CodeUnauthenticated}
	ErrRejected        = &Error{Code: CodeRejected}
	ErrUnknownTarget   = &Error{Code: CodeUnknownTarget}
	ErrForbidden       = &Error{Code: CodeForbidden}
	ErrSessionEnded    = &Error{Code: CodeSessionEnded}
)

func Rejected(reason string) error {
	return &Error{Code: CodeRejected, Reason: reason}
}

func Unauthenticated(reason string) error {
	return &Error{Code: CodeUnauthenticated, Reason: reason}
}
