package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/brightforge/storefront/internal/config"
)

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		AccessTokenSecret:  "access-secret",
		RefreshTokenSecret: "refresh-secret",
		AccessTokenTTL:     time.Minute,
		RefreshTokenTTL:    time.Hour,
		ResetTokenTTL:      time.Hour,
		BcryptCost:         4,
	}
}

// newTestService builds a Service with synchronous email delivery so tests
// can assert on the recorder immediately.
func newTestService(store *memoryStore, mailer *recorderMailer, cfg config.AuthConfig) *Service {
	service := NewService(store, mailer, cfg, "http://localhost:3000")
	service.spawn = func(f func()) { f() }
	return service
}

func mustRegister(t *testing.T, service *Service, email, password string) AuthResult {
	t.Helper()
	result, err := service.Register(context.Background(), RegisterInput{
		Name:     "Test User",
		Email:    email,
		Password: password,
	})
	if err != nil {
		t.Fatalf("register returned error: %v", err)
	}
	return result
}

func TestRegisterSuccess(t *testing.T) {
	store := newMemoryStore()
	service := newTestService(store, newRecorderMailer(), testAuthConfig())

	result := mustRegister(t, service, "user@example.com", "StrongPass1!")

	if result.User.PasswordHash != "" {
		t.Fatalf("expected password hash to be stripped from response")
	}
	if result.User.RefreshToken != nil {
		t.Fatalf("expected refresh token to be stripped from response")
	}
	if result.User.Role != RoleCustomer {
		t.Fatalf("expected default role customer, got %q", result.User.Role)
	}
	if result.Tokens.AccessToken == "" || result.Tokens.RefreshToken == "" {
		t.Fatalf("expected tokens to be issued")
	}

	stored, err := store.FindUserByEmail(context.Background(), "user@example.com")
	if err != nil {
		t.Fatalf("expected user stored: %v", err)
	}
	if stored.RefreshToken == nil || *stored.RefreshToken != result.Tokens.RefreshToken {
		t.Fatalf("expected issued refresh token persisted on the user")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	store := newMemoryStore()
	service := newTestService(store, newRecorderMailer(), testAuthConfig())

	mustRegister(t, service, "user@example.com", "StrongPass1!")

	_, err := service.Register(context.Background(), RegisterInput{
		Name:     "Other",
		Email:    "User@Example.com",
		Password: "AnotherPass2!",
	})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestLoginIsCaseInsensitiveOnEmail(t *testing.T) {
	store := newMemoryStore()
	service := newTestService(store, newRecorderMailer(), testAuthConfig())

	mustRegister(t, service, "User@Example.com", "StrongPass1!")

	result, err := service.Login(context.Background(), LoginInput{
		Email:    "user@EXAMPLE.com",
		Password: "StrongPass1!",
	})
	if err != nil {
		t.Fatalf("login returned error: %v", err)
	}
	if result.User.Email != "user@example.com" {
		t.Fatalf("expected normalized email, got %q", result.User.Email)
	}
}

func TestLoginGenericErrorForUnknownEmailAndBadPassword(t *testing.T) {
	store := newMemoryStore()
	service := newTestService(store, newRecorderMailer(), testAuthConfig())

	mustRegister(t, service, "user@example.com", "StrongPass1!")

	_, errWrongPassword := service.Login(context.Background(), LoginInput{Email: "user@example.com", Password: "WrongPass1!"})
	_, errUnknownEmail := service.Login(context.Background(), LoginInput{Email: "nobody@example.com", Password: "StrongPass1!"})

	if !errors.Is(errWrongPassword, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", errWrongPassword)
	}
	if !errors.Is(errUnknownEmail, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", errUnknownEmail)
	}
	if errWrongPassword.Error() != errUnknownEmail.Error() {
		t.Fatalf("expected identical errors for both failure modes")
	}
}

func TestLoginReplacesStoredRefreshToken(t *testing.T) {
	store := newMemoryStore()
	service := newTestService(store, newRecorderMailer(), testAuthConfig())

	first := mustRegister(t, service, "user@example.com", "StrongPass1!")

	_, err := service.Login(context.Background(), LoginInput{Email: "user@example.com", Password: "StrongPass1!"})
	if err != nil {
		t.Fatalf("login returned error: %v", err)
	}

	if _, err := service.Refresh(context.Background(), first.Tokens.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected pre-login refresh token to be rejected, got %v", err)
	}
}

func TestRefreshRotationIsSingleUse(t *testing.T) {
	store := newMemoryStore()
	service := newTestService(store, newRecorderMailer(), testAuthConfig())

	result := mustRegister(t, service, "user@example.com", "StrongPass1!")
	oldToken := result.Tokens.RefreshToken

	pair, err := service.Refresh(context.Background(), oldToken)
	if err != nil {
		t.Fatalf("first refresh returned error: %v", err)
	}
	if pair.RefreshToken == oldToken {
		t.Fatalf("expected rotation to issue a distinct refresh token")
	}

	if _, err := service.Refresh(context.Background(), oldToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected superseded token to be rejected, got %v", err)
	}

	// The rotated token remains usable.
	if _, err := service.Refresh(context.Background(), pair.RefreshToken); err != nil {
		t.Fatalf("rotated token should refresh: %v", err)
	}
}

func TestRefreshMissingToken(t *testing.T) {
	service := newTestService(newMemoryStore(), newRecorderMailer(), testAuthConfig())

	if _, err := service.Refresh(context.Background(), ""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
}

func TestRefreshRejectsForgedToken(t *testing.T) {
	store := newMemoryStore()
	service := newTestService(store, newRecorderMailer(), testAuthConfig())
	result := mustRegister(t, service, "user@example.com", "StrongPass1!")

	// Token signed with the access secret must not pass refresh verification.
	if _, err := service.Refresh(context.Background(), result.Tokens.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected cross-domain token to be rejected, got %v", err)
	}
}

func TestConcurrentRefreshExactlyOneWins(t *testing.T) {
	store := newMemoryStore()
	service := newTestService(store, newRecorderMailer(), testAuthConfig())
	result := mustRegister(t, service, "user@example.com", "StrongPass1!")

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = service.Refresh(context.Background(), result.Tokens.RefreshToken)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else if !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one rotation to win, got %d", successes)
	}
}

func TestLogoutInvalidatesRefreshToken(t *testing.T) {
	store := newMemoryStore()
	service := newTestService(store, newRecorderMailer(), testAuthConfig())
	result := mustRegister(t, service, "user@example.com", "StrongPass1!")

	if err := service.Logout(context.Background(), result.User.ID); err != nil {
		t.Fatalf("logout returned error: %v", err)
	}

	if _, err := service.Refresh(context.Background(), result.Tokens.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected pre-logout refresh token to be rejected, got %v", err)
	}

	// Logout is idempotent.
	if err := service.Logout(context.Background(), result.User.ID); err != nil {
		t.Fatalf("repeated logout returned error: %v", err)
	}
}

func TestRequestPasswordResetUnknownEmailIsSilent(t *testing.T) {
	store := newMemoryStore()
	mailer := newRecorderMailer()
	service := newTestService(store, mailer, testAuthConfig())

	if err := service.RequestPasswordReset(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("expected generic success for unknown email, got %v", err)
	}
	if len(mailer.sent()) != 0 {
		t.Fatalf("expected no email for unknown account")
	}
}

func TestPasswordResetFlow(t *testing.T) {
	store := newMemoryStore()
	mailer := newRecorderMailer()
	service := newTestService(store, mailer, testAuthConfig())

	mustRegister(t, service, "user@example.com", "OldPass123!")

	if err := service.RequestPasswordReset(context.Background(), "user@example.com"); err != nil {
		t.Fatalf("request reset returned error: %v", err)
	}

	messages := mailer.sent()
	if len(messages) != 1 {
		t.Fatalf("expected one email, got %d", len(messages))
	}
	if messages[0].to != "user@example.com" {
		t.Fatalf("email sent to %q", messages[0].to)
	}

	rawToken := extractResetToken(t, messages[0].html)

	stored, _ := store.FindUserByEmail(context.Background(), "user@example.com")
	if stored.PasswordResetToken == nil || *stored.PasswordResetToken == rawToken {
		t.Fatalf("expected hashed challenge stored, never the raw token")
	}
	if stored.PasswordResetExpires == nil || !stored.PasswordResetExpires.After(time.Now()) {
		t.Fatalf("expected reset expiry in the future")
	}

	if err := service.ResetPassword(context.Background(), rawToken, "NewPass456!"); err != nil {
		t.Fatalf("reset password returned error: %v", err)
	}

	// Challenge is single-use.
	if err := service.ResetPassword(context.Background(), rawToken, "Again789!"); !errors.Is(err, ErrResetInvalid) {
		t.Fatalf("expected consumed challenge to be rejected, got %v", err)
	}

	if _, err := service.Login(context.Background(), LoginInput{Email: "user@example.com", Password: "NewPass456!"}); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
	if _, err := service.Login(context.Background(), LoginInput{Email: "user@example.com", Password: "OldPass123!"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected old password to be rejected, got %v", err)
	}

	stored, _ = store.FindUserByEmail(context.Background(), "user@example.com")
	if stored.PasswordResetToken != nil || stored.PasswordResetExpires != nil {
		t.Fatalf("expected reset fields cleared after redemption")
	}
}

func TestPasswordResetExpiredChallenge(t *testing.T) {
	store := newMemoryStore()
	mailer := newRecorderMailer()
	cfg := testAuthConfig()
	cfg.ResetTokenTTL = -time.Minute
	service := newTestService(store, mailer, cfg)

	mustRegister(t, service, "user@example.com", "OldPass123!")

	if err := service.RequestPasswordReset(context.Background(), "user@example.com"); err != nil {
		t.Fatalf("request reset returned error: %v", err)
	}
	rawToken := extractResetToken(t, mailer.sent()[0].html)

	if err := service.ResetPassword(context.Background(), rawToken, "NewPass456!"); !errors.Is(err, ErrResetInvalid) {
		t.Fatalf("expected expired challenge to be rejected, got %v", err)
	}
}

func TestPasswordResetLeavesSessionIntact(t *testing.T) {
	store := newMemoryStore()
	mailer := newRecorderMailer()
	service := newTestService(store, mailer, testAuthConfig())

	result := mustRegister(t, service, "user@example.com", "OldPass123!")

	if err := service.RequestPasswordReset(context.Background(), "user@example.com"); err != nil {
		t.Fatalf("request reset returned error: %v", err)
	}
	rawToken := extractResetToken(t, mailer.sent()[0].html)
	if err := service.ResetPassword(context.Background(), rawToken, "NewPass456!"); err != nil {
		t.Fatalf("reset password returned error: %v", err)
	}

	// The existing refresh token survives a password reset.
	if _, err := service.Refresh(context.Background(), result.Tokens.RefreshToken); err != nil {
		t.Fatalf("expected refresh token to survive reset, got %v", err)
	}
}

func TestResetEmailFailureIsNotSurfaced(t *testing.T) {
	store := newMemoryStore()
	mailer := newRecorderMailer()
	mailer.fail = true
	service := newTestService(store, mailer, testAuthConfig())

	mustRegister(t, service, "user@example.com", "OldPass123!")

	if err := service.RequestPasswordReset(context.Background(), "user@example.com"); err != nil {
		t.Fatalf("expected send failure to be swallowed, got %v", err)
	}
}

func TestUpdateProfileEmailConflict(t *testing.T) {
	store := newMemoryStore()
	service := newTestService(store, newRecorderMailer(), testAuthConfig())

	mustRegister(t, service, "a@example.com", "StrongPass1!")
	second := mustRegister(t, service, "b@example.com", "StrongPass1!")

	email := "a@example.com"
	_, err := service.UpdateProfile(context.Background(), second.User.ID, UpdateProfileInput{Email: &email})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestUpdateProfileWithoutPasswordKeepsHashAndSession(t *testing.T) {
	store := newMemoryStore()
	service := newTestService(store, newRecorderMailer(), testAuthConfig())
	result := mustRegister(t, service, "user@example.com", "StrongPass1!")

	before, _ := store.FindUserByID(context.Background(), result.User.ID)

	name := "Renamed"
	updated, err := service.UpdateProfile(context.Background(), result.User.ID, UpdateProfileInput{Name: &name})
	if err != nil {
		t.Fatalf("update profile returned error: %v", err)
	}
	if updated.Name != "Renamed" {
		t.Fatalf("expected name updated, got %q", updated.Name)
	}

	after, _ := store.FindUserByID(context.Background(), result.User.ID)
	if after.PasswordHash != before.PasswordHash {
		t.Fatalf("expected password hash untouched when no password supplied")
	}
	if after.RefreshToken == nil || *after.RefreshToken != *before.RefreshToken {
		t.Fatalf("expected refresh token untouched by profile update")
	}
}

func TestUpdateProfilePasswordIsRehashed(t *testing.T) {
	store := newMemoryStore()
	service := newTestService(store, newRecorderMailer(), testAuthConfig())
	result := mustRegister(t, service, "user@example.com", "StrongPass1!")

	password := "BrandNew99!"
	if _, err := service.UpdateProfile(context.Background(), result.User.ID, UpdateProfileInput{Password: &password}); err != nil {
		t.Fatalf("update profile returned error: %v", err)
	}

	if _, err := service.Login(context.Background(), LoginInput{Email: "user@example.com", Password: "BrandNew99!"}); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}

	stored, _ := store.FindUserByID(context.Background(), result.User.ID)
	if stored.PasswordHash == "BrandNew99!" {
		t.Fatalf("expected hashed password, found plaintext")
	}
}

func extractResetToken(t *testing.T, html string) string {
	t.Helper()
	const marker = "/reset-password/"
	idx := strings.Index(html, marker)
	if idx < 0 {
		t.Fatalf("reset link not found in email body")
	}
	rest := html[idx+len(marker):]
	end := strings.IndexAny(rest, `"<`)
	if end < 0 {
		t.Fatalf("malformed reset link in email body")
	}
	return rest[:end]
}

// memoryStore implements userStore for tests. The mutex gives SwapRefreshToken
// the same check-and-set atomicity the SQL conditional update provides.
type memoryStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]User
}

func newMemoryStore() *memoryStore {
	return &memoryStore{users: make(map[uuid.UUID]User)}
}

func (m *memoryStore) CreateUser(ctx context.Context, name, email, passwordHash string, phone *string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return User{}, ErrEmailTaken
		}
	}
	now := time.Now()
	user := User{
		ID:           uuid.New(),
		Name:         name,
		Email:        email,
		Phone:        phone,
		Role:         RoleCustomer,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.users[user.ID] = user
	return user, nil
}

func (m *memoryStore) FindUserByEmail(ctx context.Context, email string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (m *memoryStore) FindUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (m *memoryStore) SetRefreshToken(ctx context.Context, id uuid.UUID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	user.RefreshToken = &token
	m.users[id] = user
	return nil
}

func (m *memoryStore) SwapRefreshToken(ctx context.Context, id uuid.UUID, oldToken, newToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok || user.RefreshToken == nil || *user.RefreshToken != oldToken {
		return ErrInvalidToken
	}
	user.RefreshToken = &newToken
	m.users[id] = user
	return nil
}

func (m *memoryStore) ClearRefreshToken(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return nil
	}
	user.RefreshToken = nil
	m.users[id] = user
	return nil
}

func (m *memoryStore) UpdateProfile(ctx context.Context, in User) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[in.ID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	for id, u := range m.users {
		if id != in.ID && u.Email == in.Email {
			return User{}, ErrEmailTaken
		}
	}
	user.Name = in.Name
	user.Email = in.Email
	user.Phone = in.Phone
	user.PasswordHash = in.PasswordHash
	user.UpdatedAt = time.Now()
	m.users[in.ID] = user
	return user, nil
}

func (m *memoryStore) SetPasswordReset(ctx context.Context, id uuid.UUID, challengeHash string, expires time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	user.PasswordResetToken = &challengeHash
	user.PasswordResetExpires = &expires
	m.users[id] = user
	return nil
}

func (m *memoryStore) ConsumePasswordReset(ctx context.Context, challengeHash, newPasswordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, u := range m.users {
		if u.PasswordResetToken != nil && *u.PasswordResetToken == challengeHash &&
			u.PasswordResetExpires != nil && u.PasswordResetExpires.After(time.Now()) {
			u.PasswordHash = newPasswordHash
			u.PasswordResetToken = nil
			u.PasswordResetExpires = nil
			u.UpdatedAt = time.Now()
			m.users[id] = u
			return nil
		}
	}
	return ErrResetInvalid
}

// recorderMailer records outbound messages for assertions.
type recorderMailer struct {
	mu       sync.Mutex
	fail     bool
	messages []recordedMessage
}

type recordedMessage struct {
	to      string
	subject string
	html    string
}

func newRecorderMailer() *recorderMailer {
	return &recorderMailer{}
}

func (r *recorderMailer) Send(to, subject, html string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("smtp unavailable")
	}
	r.messages = append(r.messages, recordedMessage{to: to, subject: subject, html: html})
	return nil
}

func (r *recorderMailer) sent() []recordedMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]recordedMessage, len(r.messages))
	copy(out, r.messages)
	return out
}
