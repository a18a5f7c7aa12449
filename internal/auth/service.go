package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brightforge/storefront/internal/config"
	"github.com/brightforge/storefront/internal/logger"
	"github.com/brightforge/storefront/internal/mail"
)

const resetTokenLength = 32

// userStore abstracts the persistence layer. SwapRefreshToken is the only
// operation with a cross-request ordering requirement: it must atomically
// replace the stored refresh token only while it still equals the presented
// one, so that of two concurrent refresh calls at most one rotation wins.
type userStore interface {
	CreateUser(ctx context.Context, name, email, passwordHash string, phone *string) (User, error)
	FindUserByEmail(ctx context.Context, email string) (User, error)
	FindUserByID(ctx context.Context, id uuid.UUID) (User, error)
	SetRefreshToken(ctx context.Context, id uuid.UUID, token string) error
	SwapRefreshToken(ctx context.Context, id uuid.UUID, oldToken, newToken string) error
	ClearRefreshToken(ctx context.Context, id uuid.UUID) error
	UpdateProfile(ctx context.Context, user User) (User, error)
	SetPasswordReset(ctx context.Context, id uuid.UUID, challengeHash string, expires time.Time) error
	ConsumePasswordReset(ctx context.Context, challengeHash, newPasswordHash string) error
}

// Service implements the session and password-reset protocols.
type Service struct {
	store     userStore
	mailer    mail.Mailer
	tokens    *tokenIssuer
	cfg       config.AuthConfig
	clientURL string
	nowFunc   func() time.Time
	spawn     func(func())
	log       *zap.Logger
}

// NewService creates a Service with dependencies.
func NewService(store userStore, mailer mail.Mailer, cfg config.AuthConfig, clientURL string) *Service {
	return &Service{
		store:     store,
		mailer:    mailer,
		tokens:    newTokenIssuer(cfg),
		cfg:       cfg,
		clientURL: clientURL,
		nowFunc:   time.Now,
		spawn:     func(f func()) { go f() },
		log:       logger.Named("auth"),
	}
}

// RegisterInput carries data for user registration.
type RegisterInput struct {
	Name     string
	Email    string
	Phone    *string
	Password string
}

// LoginInput carries login credentials.
type LoginInput struct {
	Email    string
	Password string
}

// UpdateProfileInput patches non-credential fields; nil means unchanged.
type UpdateProfileInput struct {
	Name     *string
	Email    *string
	Phone    *string
	Password *string
}

// AuthResult contains the user and the issued token pair.
type AuthResult struct {
	User   User
	Tokens TokenPair
}

// Register creates a new customer account and opens a session.
func (s *Service) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	passwordHash, err := HashPassword(input.Password, s.cfg.BcryptCost)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, strings.TrimSpace(input.Name), normalizeEmail(input.Email), passwordHash, input.Phone)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) || errors.Is(err, ErrStoreUnavailable) {
			return AuthResult{}, err
		}
		return AuthResult{}, fmt.Errorf("create user: %w", err)
	}

	return s.openSession(ctx, user)
}

// Login authenticates credentials and issues a fresh token pair, replacing
// any previously stored refresh token.
func (s *Service) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	user, err := s.store.FindUserByEmail(ctx, normalizeEmail(input.Email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		if errors.Is(err, ErrStoreUnavailable) {
			return AuthResult{}, err
		}
		return AuthResult{}, fmt.Errorf("find user: %w", err)
	}

	if !CheckPassword(input.Password, user.PasswordHash) {
		return AuthResult{}, ErrInvalidCredentials
	}

	return s.openSession(ctx, user)
}

// Refresh exchanges a valid refresh token for a new token pair, rotating the
// stored token. A token that is signature-valid but no longer stored (rotated
// away or cleared by logout) is rejected the same way as a forged one.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if refreshToken == "" {
		return TokenPair{}, ErrMissingToken
	}

	userID, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return TokenPair{}, ErrInvalidToken
	}

	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			return TokenPair{}, err
		}
		return TokenPair{}, ErrInvalidToken
	}

	if user.RefreshToken == nil || *user.RefreshToken != refreshToken {
		return TokenPair{}, ErrInvalidToken
	}

	pair, err := s.issuePair(user.ID)
	if err != nil {
		return TokenPair{}, err
	}

	// Conditional write keyed on the presented token: under concurrent
	// refreshes with the same token exactly one swap succeeds.
	if err := s.store.SwapRefreshToken(ctx, user.ID, refreshToken, pair.RefreshToken); err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			return TokenPair{}, err
		}
		return TokenPair{}, ErrInvalidToken
	}

	return pair, nil
}

// Logout invalidates the user's refresh token. Idempotent; outstanding
// access tokens stay valid until they expire.
func (s *Service) Logout(ctx context.Context, userID uuid.UUID) error {
	if err := s.store.ClearRefreshToken(ctx, userID); err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			return err
		}
		return fmt.Errorf("clear refresh token: %w", err)
	}
	return nil
}

// GetProfile returns the user's account with credential fields stripped.
func (s *Service) GetProfile(ctx context.Context, userID uuid.UUID) (User, error) {
	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return User{}, err
	}
	return user.SafeUser(), nil
}

// UpdateProfile patches name, email, phone and password. The password is
// re-hashed only when one is supplied; the refresh token is never touched.
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, input UpdateProfileInput) (User, error) {
	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return User{}, err
	}

	if input.Name != nil {
		user.Name = strings.TrimSpace(*input.Name)
	}
	if input.Email != nil {
		user.Email = normalizeEmail(*input.Email)
	}
	if input.Phone != nil {
		user.Phone = input.Phone
	}
	if input.Password != nil {
		hash, err := HashPassword(*input.Password, s.cfg.BcryptCost)
		if err != nil {
			return User{}, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = hash
	}

	updated, err := s.store.UpdateProfile(ctx, user)
	if err != nil {
		return User{}, err
	}
	return updated.SafeUser(), nil
}

// RequestPasswordReset opens a time-boxed reset window and emails the raw
// challenge to the account. It reveals nothing about account existence: the
// unknown-email case returns nil without sending anything. Email delivery is
// fire-and-forget; failures are logged and never surfaced.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.store.FindUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		if errors.Is(err, ErrStoreUnavailable) {
			return err
		}
		return fmt.Errorf("find user: %w", err)
	}

	raw := make([]byte, resetTokenLength)
	if _, err := rand.Read(raw); err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	rawToken := hex.EncodeToString(raw)

	expires := s.nowFunc().Add(s.cfg.ResetTokenTTL)
	if err := s.store.SetPasswordReset(ctx, user.ID, hashResetToken(rawToken), expires); err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			return err
		}
		return fmt.Errorf("store reset challenge: %w", err)
	}

	to := user.Email
	s.spawn(func() {
		subject, html := mail.PasswordResetMessage(s.clientURL, rawToken)
		if err := s.mailer.Send(to, subject, html); err != nil {
			s.log.Error("send password reset email", zap.String("to", to), zap.Error(err))
		}
	})

	return nil
}

// ResetPassword redeems a reset challenge: the presented raw token must hash
// to the stored challenge and the window must still be open. Redemption is
// single-use and clears both reset fields. The user is not logged in and any
// existing refresh token is left untouched.
func (s *Service) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	if rawToken == "" {
		return ErrResetInvalid
	}

	passwordHash, err := HashPassword(newPassword, s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.store.ConsumePasswordReset(ctx, hashResetToken(rawToken), passwordHash); err != nil {
		if errors.Is(err, ErrResetInvalid) || errors.Is(err, ErrStoreUnavailable) {
			return err
		}
		return fmt.Errorf("consume reset challenge: %w", err)
	}
	return nil
}

// Authenticate resolves an access token to a live user record. Tokens for
// deleted accounts fail even while signature-valid.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (User, error) {
	userID, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		return User{}, ErrInvalidToken
	}

	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			return User{}, err
		}
		return User{}, ErrInvalidToken
	}

	return user, nil
}

func (s *Service) openSession(ctx context.Context, user User) (AuthResult, error) {
	pair, err := s.issuePair(user.ID)
	if err != nil {
		return AuthResult{}, err
	}

	if err := s.store.SetRefreshToken(ctx, user.ID, pair.RefreshToken); err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			return AuthResult{}, err
		}
		return AuthResult{}, fmt.Errorf("store refresh token: %w", err)
	}

	return AuthResult{User: user.SafeUser(), Tokens: pair}, nil
}

func (s *Service) issuePair(userID uuid.UUID) (TokenPair, error) {
	accessToken, accessExpiry, err := s.tokens.IssueAccess(userID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}

	refreshToken, refreshExpiry, err := s.tokens.IssueRefresh(userID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
	}

	return TokenPair{
		AccessToken:        accessToken,
		AccessTokenExpiry:  accessExpiry,
		RefreshToken:       refreshToken,
		RefreshTokenExpiry: refreshExpiry,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func hashResetToken(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return hex.EncodeToString(sum[:])
}
