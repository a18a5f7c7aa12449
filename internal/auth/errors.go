package auth

import "errors"

var (
	// ErrEmailTaken indicates the email is already registered.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials is returned when login fails, without revealing
	// whether the email or the password was wrong.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrUserNotFound signals that the user could not be located.
	ErrUserNotFound = errors.New("user not found")
	// ErrMissingToken is returned when a refresh request carries no token.
	ErrMissingToken = errors.New("refresh token required")
	// ErrInvalidToken covers forged, expired and superseded tokens alike.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrResetInvalid is returned for an unknown, expired or already consumed
	// reset token; callers must not distinguish the cases.
	ErrResetInvalid = errors.New("invalid or expired reset token")
	// ErrStoreUnavailable signals a credential-store timeout or outage. It
	// maps to 503, never to an auth failure.
	ErrStoreUnavailable = errors.New("credential store unavailable")
)
