package common

import "errors"

// Repository level sentinels. Repositories return these (possibly wrapped)
// and services translate them into the tagged errors below.
var (
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")
	ErrorConflict      = errors.New("conflict")
)

// Kind groups service errors by how a caller is expected to react.
type Kind string

const (
	KindValidation       Kind = "validation"
	KindNotFound         Kind = "not_found"
	KindInactiveToken    Kind = "inactive_token"
	KindAuth             Kind = "auth"
	KindForbidden        Kind = "forbidden"
	KindDelivery         Kind = "delivery"
	KindStoreUnavailable Kind = "store_unavailable"
	KindInternal         Kind = "internal"
)

// Error is a tagged service error. Message is safe to show to a caller;
// Cause carries the underlying failure for logs and error reporting only.
type Error struct {
	Kind    Kind
	Reason  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on Kind and Reason so that a wrapped copy of a sentinel still
// satisfies errors.Is against the sentinel itself.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Reason == t.Reason
}

// Wrap returns a copy of sentinel that carries cause.
func Wrap(sentinel *Error, cause error) *Error {
	return &Error{
		Kind:    sentinel.Kind,
		Reason:  sentinel.Reason,
		Message: sentinel.Message,
		Cause:   cause,
	}
}

// WithMessage returns a copy of e with a more specific caller-facing message.
// The copy still matches e under errors.Is.
func (e *Error) WithMessage(message string) *Error {
	c := *e
	c.Message = message
	return &c
}

// KindOf reports the Kind of err. Untagged errors are KindInternal; nil has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func newError(kind Kind, reason, message string) *Error {
	return &Error{Kind: kind, Reason: reason, Message: message}
}

// Service level sentinels.
var (
	ErrEmailTaken      = newError(KindValidation, "email_taken", "email is already registered")
	ErrWeakPassword    = newError(KindValidation, "weak_password", "password must be at least 8 characters and contain a letter and a digit")
	ErrInvalidInput    = newError(KindValidation, "invalid_input", "invalid input")
	ErrAlreadyVerified = newError(KindValidation, "already_verified", "account is already verified")

	ErrInvalidVerificationToken = newError(KindNotFound, "invalid_verification_token", "verification failed")
	ErrInvalidResetToken        = newError(KindNotFound, "invalid_reset_token", "invalid token")
	ErrAccountNotFound          = newError(KindNotFound, "account_not_found", "account not found")
	ErrRefreshTokenNotFound     = newError(KindNotFound, "refresh_token_not_found", "invalid token")

	ErrTokenInactive = newError(KindInactiveToken, "token_inactive", "invalid token")

	ErrInvalidCredentials = newError(KindAuth, "invalid_credentials", "email or password is incorrect")
	ErrAccountNotVerified = newError(KindAuth, "account_not_verified", "account is not verified")
	ErrUnauthenticated    = newError(KindAuth, "unauthenticated", "unauthorized")
	ErrInvalidAccessToken = newError(KindAuth, "invalid_access_token", "unauthorized")
	ErrAccessTokenExpired = newError(KindAuth, "access_token_expired", "access token expired")

	ErrForbidden = newError(KindForbidden, "forbidden", "forbidden")

	ErrDeliveryFailed   = newError(KindDelivery, "delivery_failed", "email delivery failed")
	ErrStoreUnavailable = newError(KindStoreUnavailable, "store_unavailable", "service temporarily unavailable")
	ErrorInternal       = newError(KindInternal, "internal", "internal error")
)
