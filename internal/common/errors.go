// Package common defines shared constants, sentinel errors and the typed
// domain error used across the auth backend. Callers should use errors.Is to
// match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound    = errors.New("not found")
	ErrAlreadyExists = errors.New("user with same email already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal  = errors.New("internal error")
	ErrValidation  = errors.New("validation error")
	ErrRateLimited = errors.New("too many attempts")

	// Credential errors. The message never tells which part was wrong.
	ErrAuthentication  = errors.New("the username or password is incorrect")
	ErrExpiredPassword = errors.New("ExpiredPasswordError")

	// Access token errors.
	ErrMissingToken       = errors.New("missing token")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrInvalidTokenHeader = errors.New("invalid token header")
	ErrMissingRole        = errors.New("this user is not having expected role to access this API")

	// Signed payload (reset token) errors.
	ErrBadSignature     = errors.New("bad signature")
	ErrSignatureExpired = errors.New("signature expired")
)

// Error is a domain error tagged with one of the sentinel kinds above. It
// carries an optional human readable message and a payload that is safe to
// hand to the caller (for example the remaining cooldown days).
type Error struct {
	Kind    error
	Message string
	Payload any
}

// NewError builds an *Error of the given kind.
func NewError(kind error, msg string, payload any) *Error {
	return &Error{Kind: kind, Message: msg, Payload: payload}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Message)
}

func (e *Error) Unwrap() error { return e.Kind }

// PayloadOf returns the payload carried by the first *Error in err's chain.
func PayloadOf(err error) any {
	var de *Error
	if errors.As(err, &de) {
		return de.Payload
	}
	return nil
}

// MessageOf returns the message carried by the first *Error in err's chain,
// falling back to the sentinel text.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		if de.Message != "" {
			return de.Message
		}
		return de.Kind.Error()
	}
	return err.Error()
}
