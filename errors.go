package auth

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeConflict              = "EMAIL_ALREADY_REGISTERED"
	TextCodeInvalidCreds          = "INVALID_CREDENTIALS"
	TextCodeEmailNotVerified      = "EMAIL_NOT_VERIFIED"
	TextCodeInvalidToken          = "INVALID_TOKEN"
	TextCodeInvalidOrExpiredToken = "INVALID_OR_EXPIRED_TOKEN"
	TextCodeNotFound              = "NOT_FOUND"
	TextCodeForbidden             = "FORBIDDEN"
	TextCodeUnauthenticated       = "UNAUTHENTICATED"
	TextCodeSessionNotFound       = "SESSION_NOT_FOUND"
	TextCodeEmptyPassword         = "EMPTY_PASSWORD"
	TextCodeInternal              = "INTERNAL_ERROR"
	TextCodeFederationDisabled    = "FEDERATION_DISABLED"
)

// ErrConflict is returned when registering an email that already exists.
// The boundary reports it as a 400.
var ErrConflict = goerrors.New("user already exists", goerrors.CategoryConflict).
	WithCode(goerrors.CodeBadRequest).
	WithTextCode(TextCodeConflict)

// ErrInvalidCredentials covers both unknown emails and wrong passwords.
var ErrInvalidCredentials = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeInvalidCreds)

// ErrEmailNotVerified is returned for a correct password on an unverified account.
var ErrEmailNotVerified = goerrors.New("please verify your email first", goerrors.CategoryAuthz).
	WithCode(goerrors.CodeForbidden).
	WithTextCode(TextCodeEmailNotVerified)

// ErrInvalidToken is returned when a verification token is unknown or used.
var ErrInvalidToken = goerrors.New("invalid or expired token", goerrors.CategoryBadInput).
	WithCode(goerrors.CodeBadRequest).
	WithTextCode(TextCodeInvalidToken)

// ErrInvalidOrExpiredToken is returned when a reset token is unknown, used or expired.
var ErrInvalidOrExpiredToken = goerrors.New("invalid or expired token", goerrors.CategoryBadInput).
	WithCode(goerrors.CodeBadRequest).
	WithTextCode(TextCodeInvalidOrExpiredToken)

// ErrNotFound is the generic lookup failure.
var ErrNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
	WithCode(goerrors.CodeNotFound).
	WithTextCode(TextCodeNotFound)

// ErrForbidden is returned by the access policy. It never says whether the
// target resource exists.
var ErrForbidden = goerrors.New("access denied", goerrors.CategoryAuthz).
	WithCode(goerrors.CodeForbidden).
	WithTextCode(TextCodeForbidden)

// ErrUnauthenticated is returned when a route needs a principal and has none.
var ErrUnauthenticated = goerrors.New("not authenticated", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeUnauthenticated)

// ErrSessionNotFound is returned when a session id does not resolve to a live user.
var ErrSessionNotFound = goerrors.New("unable to find session", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeSessionNotFound)

// ErrNoEmptyString is returned when hashing an empty password.
var ErrNoEmptyString = goerrors.New("password can not be empty", goerrors.CategoryValidation).
	WithCode(goerrors.CodeBadRequest).
	WithTextCode(TextCodeEmptyPassword)

// ErrFederationDisabled is returned when no federated provider is configured
var ErrFederationDisabled = goerrors.New("federated login is not available", goerrors.CategoryNotFound).
	WithCode(goerrors.CodeNotFound).
	WithTextCode(TextCodeFederationDisabled)

// HasTextCode reports whether err is a structured error carrying code.
func HasTextCode(err error, code string) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}

// IsNotFound reports whether err is a lookup failure.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if HasTextCode(err, TextCodeNotFound) {
		return true
	}
	return goerrors.IsNotFound(err)
}

// internalError wraps storage and driver faults. The message is generic, the
// source is kept for logs.
func internalError(err error, message string) error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Category != goerrors.CategoryInternal {
		return richErr
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, message).
		WithCode(goerrors.CodeInternal).
		WithTextCode(TextCodeInternal)
}
