package apperr

import (
	"errors"
	"fmt"
	"time"
)

// Kinds the rest of the system branches on with errors.Is.
var (
	ErrValidation    = errors.New("validation failed")
	ErrAuthInvalid   = errors.New("credential rejected")
	ErrRateLimited   = errors.New("rate limited")
	ErrQuotaExceeded = errors.New("quota exceeded")
	ErrNotFound      = errors.New("not found")
	ErrUpstream      = errors.New("upstream error")
)

type Error struct {
	kind       error
	msg        string
	retryAfter time.Duration
	cause      error
}

func (e *Error) Error() string {
	switch {
	case e.msg != "" && e.cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.kind.Error(), e.msg, e.cause)
	case e.msg != "":
		return fmt.Sprintf("%s: %s", e.kind.Error(), e.msg)
	case e.cause != nil:
		return fmt.Sprintf("%s: %v", e.kind.Error(), e.cause)
	}
	return e.kind.Error()
}

func (e *Error) Is(target error) bool { return target == e.kind }

func (e *Error) Unwrap() error { return e.cause }

func Validation(msg string) error {
	return &Error{kind: ErrValidation, msg: msg}
}

func NotFound(msg string) error {
	return &Error{kind: ErrNotFound, msg: msg}
}

func AuthInvalid(msg string, cause error) error {
	return &Error{kind: ErrAuthInvalid, msg: msg, cause: cause}
}

func RateLimited(retryAfter time.Duration, cause error) error {
	return &Error{kind: ErrRateLimited, retryAfter: retryAfter, cause: cause}
}

func QuotaExceeded(msg string, cause error) error {
	return &Error{kind: ErrQuotaExceeded, msg: msg, cause: cause}
}

func Upstream(msg string, cause error) error {
	return &Error{kind: ErrUpstream, msg: msg, cause: cause}
}

// RetryAfter reports the suggested wait carried by a rate-limit error,
// or zero when err is not rate limiting.
func RetryAfter(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) && e.kind == ErrRateLimited {
		return e.retryAfter
	}
	return 0
}
