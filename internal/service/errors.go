package service

import (
	"errors"
	"time"
)

var (
	ErrInputInvalid  = errors.New("invalid input")
	ErrDenied        = errors.New("invalid verification code")
	ErrLocked        = errors.New("verification locked")
	ErrInvalidToken  = errors.New("invalid or already used token")
	ErrExpired       = errors.New("token expired")
	ErrPathViolation = errors.New("access not permitted")
	ErrNotFound      = errors.New("file not found")
)

// VerifyError is a refused verification. Message is safe to show to the
// client; Kind is one of the sentinel errors above.
type VerifyError struct {
	Kind       error
	Message    string
	Remaining  int
	RetryAfter time.Duration
}

func (e *VerifyError) Error() string {
	return e.Kind.Error() + ": " + e.Message
}

func (e *VerifyError) Unwrap() error {
	return e.Kind
}
