package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/brightforge/storefront/internal/config"
)

// tokenIssuer mints and verifies the two token kinds. Access and refresh
// tokens are signed with distinct secrets so a leaked access secret cannot
// forge refresh tokens. Verifying a refresh token here proves signature and
// expiry only; the service must additionally compare it against the stored
// User.RefreshToken to detect rotation.
type tokenIssuer struct {
	cfg     config.AuthConfig
	parser  *jwt.Parser
	nowFunc func() time.Time
}

func newTokenIssuer(cfg config.AuthConfig) *tokenIssuer {
	return &tokenIssuer{
		cfg:     cfg,
		parser:  jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name})),
		nowFunc: time.Now,
	}
}

// IssueAccess signs a short-lived access token for the user.
func (t *tokenIssuer) IssueAccess(userID uuid.UUID) (string, time.Time, error) {
	return t.sign(userID, t.cfg.AccessTokenSecret, t.cfg.AccessTokenTTL)
}

// IssueRefresh signs a long-lived refresh token for the user.
func (t *tokenIssuer) IssueRefresh(userID uuid.UUID) (string, time.Time, error) {
	return t.sign(userID, t.cfg.RefreshTokenSecret, t.cfg.RefreshTokenTTL)
}

// VerifyAccess validates signature and expiry and returns the subject.
func (t *tokenIssuer) VerifyAccess(token string) (uuid.UUID, error) {
	return t.verify(token, t.cfg.AccessTokenSecret)
}

// VerifyRefresh validates signature and expiry and returns the subject.
// Callers must still byte-compare the token against the stored one.
func (t *tokenIssuer) VerifyRefresh(token string) (uuid.UUID, error) {
	return t.verify(token, t.cfg.RefreshTokenSecret)
}

func (t *tokenIssuer) sign(userID uuid.UUID, secret string, ttl time.Duration) (string, time.Time, error) {
	now := t.nowFunc()
	expiresAt := now.Add(ttl)

	// The jti keeps two tokens minted within the same second distinct, which
	// rotation's byte-equality check depends on.
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		ID:        uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

func (t *tokenIssuer) verify(tokenString, secret string) (uuid.UUID, error) {
	if tokenString == "" {
		return uuid.Nil, ErrInvalidToken
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := t.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !parsed.Valid {
		return uuid.Nil, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}

	return userID, nil
}
