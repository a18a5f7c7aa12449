package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultQueryTimeout = 5 * time.Second

const userColumns = `id, name, email, phone, role, password_hash, refresh_token, password_reset_token, password_reset_expires, created_at, updated_at`

// Repository provides database access for authentication concerns.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a new Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateUser persists a new user record with the default customer role.
func (r *Repository) CreateUser(ctx context.Context, name, email, passwordHash string, phone *string) (User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	query := `
INSERT INTO users (name, email, phone, password_hash)
VALUES ($1, $2, $3, $4)
RETURNING ` + userColumns + `;`

	user, err := scanUser(r.pool.QueryRow(ctx, query, name, email, phone, passwordHash))
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrEmailTaken
		}
		return User{}, storeErr("create user", err)
	}

	return user, nil
}

// FindUserByEmail fetches a user by email. Emails are stored lowercase.
func (r *Repository) FindUserByEmail(ctx context.Context, email string) (User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1;`

	user, err := scanUser(r.pool.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, storeErr("find user by email", err)
	}

	return user, nil
}

// FindUserByID fetches a user by identifier.
func (r *Repository) FindUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1;`

	user, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, storeErr("find user by id", err)
	}

	return user, nil
}

// SetRefreshToken overwrites the stored refresh token, invalidating any
// previously issued one.
func (r *Repository) SetRefreshToken(ctx context.Context, id uuid.UUID, token string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	query := `UPDATE users SET refresh_token = $2, updated_at = now() WHERE id = $1;`

	tag, err := r.pool.Exec(ctx, query, id, token)
	if err != nil {
		return storeErr("set refresh token", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SwapRefreshToken replaces the stored refresh token only while it still
// equals oldToken. The conditional update serializes concurrent rotations:
// the row predicate makes the read-check-write atomic, so a superseded token
// can never rotate again.
func (r *Repository) SwapRefreshToken(ctx context.Context, id uuid.UUID, oldToken, newToken string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	query := `UPDATE users SET refresh_token = $3, updated_at = now() WHERE id = $1 AND refresh_token = $2;`

	tag, err := r.pool.Exec(ctx, query, id, oldToken, newToken)
	if err != nil {
		return storeErr("swap refresh token", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidToken
	}
	return nil
}

// ClearRefreshToken nulls the stored refresh token. Idempotent.
func (r *Repository) ClearRefreshToken(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	query := `UPDATE users SET refresh_token = NULL, updated_at = now() WHERE id = $1;`

	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return storeErr("clear refresh token", err)
	}
	return nil
}

// UpdateProfile writes name, email, phone and password hash. The refresh
// token and reset fields are deliberately outside this statement.
func (r *Repository) UpdateProfile(ctx context.Context, user User) (User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	query := `
UPDATE users
SET name = $2, email = $3, phone = $4, password_hash = $5, updated_at = now()
WHERE id = $1
RETURNING ` + userColumns + `;`

	updated, err := scanUser(r.pool.QueryRow(ctx, query, user.ID, user.Name, user.Email, user.Phone, user.PasswordHash))
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrEmailTaken
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, storeErr("update profile", err)
	}

	return updated, nil
}

// SetPasswordReset stores the hashed reset challenge and its expiry,
// replacing any open window.
func (r *Repository) SetPasswordReset(ctx context.Context, id uuid.UUID, challengeHash string, expires time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	query := `
UPDATE users
SET password_reset_token = $2, password_reset_expires = $3, updated_at = now()
WHERE id = $1;`

	tag, err := r.pool.Exec(ctx, query, id, challengeHash, expires)
	if err != nil {
		return storeErr("set password reset", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ConsumePasswordReset redeems a reset challenge in a single statement:
// the hash must match and the window must be open, and redemption sets the
// new password hash while clearing both reset fields, making the challenge
// single-use.
func (r *Repository) ConsumePasswordReset(ctx context.Context, challengeHash, newPasswordHash string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	query := `
UPDATE users
SET password_hash = $2, password_reset_token = NULL, password_reset_expires = NULL, updated_at = now()
WHERE password_reset_token = $1 AND password_reset_expires > now();`

	tag, err := r.pool.Exec(ctx, query, challengeHash, newPasswordHash)
	if err != nil {
		return storeErr("consume password reset", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrResetInvalid
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var user User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Phone,
		&user.Role,
		&user.PasswordHash,
		&user.RefreshToken,
		&user.PasswordResetToken,
		&user.PasswordResetExpires,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// storeErr wraps a database error, surfacing timeouts as ErrStoreUnavailable
// so a slow store reads as 503 rather than an auth failure.
func storeErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, ErrStoreUnavailable)
	}
	return fmt.Errorf("%s: %w", op, err)
}
