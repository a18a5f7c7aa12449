package auth

import (
	"time"

	"github.com/google/uuid"
)

// Role controls access to administrative resources.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// User represents a storefront account. At most one refresh token is valid
// per user at any time; RefreshToken holds it verbatim. The reset fields are
// populated only while a password-reset window is open and hold the sha256
// of the raw challenge, never the challenge itself.
type User struct {
	ID                   uuid.UUID
	Name                 string
	Email                string
	Phone                *string
	Role                 Role
	PasswordHash         string
	RefreshToken         *string
	PasswordResetToken   *string
	PasswordResetExpires *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// SafeUser strips credential material for response payloads.
func (u User) SafeUser() User {
	u.PasswordHash = ""
	u.RefreshToken = nil
	u.PasswordResetToken = nil
	u.PasswordResetExpires = nil
	return u
}

// TokenPair bundles access and refresh tokens.
type TokenPair struct {
	AccessToken        string
	AccessTokenExpiry  time.Time
	RefreshToken       string
	RefreshTokenExpiry time.Time
}
