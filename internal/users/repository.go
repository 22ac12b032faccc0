package users

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/posadmin/posadmin/internal/platform/db"
)

// TxStore is the subset of Store usable inside a transaction.
type TxStore interface {
	MarkVerified(ctx context.Context, verificationID int64) error
	SetEmailVerified(ctx context.Context, email string) (int64, error)
}

// Store is the persistence port of the users service.
type Store interface {
	ListUsers(ctx context.Context) ([]User, error)
	ToggleStatus(ctx context.Context, id int64) (string, error)
	MaxCodeSuffix(ctx context.Context, prefix string) (int, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	CreateUser(ctx context.Context, u NewUser) (int64, error)
	UserIDByEmail(ctx context.Context, email string) (*int64, error)
	LastIssuedAt(ctx context.Context, email string) (time.Time, error)
	CreateVerification(ctx context.Context, v Verification) (int64, error)
	DeleteVerification(ctx context.Context, id int64) error
	LatestPendingVerification(ctx context.Context, email string) (Verification, error)
	ReserveAttempt(ctx context.Context, id int64, limit int) (int, error)
	VerifiedSince(ctx context.Context, email string, since time.Time) (bool, error)
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
}

// Repository implements Store on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	db   db.DBTX
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, db: pool}
}

// WithTx runs fn inside a transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &Repository{pool: r.pool, db: tx})
	})
}

// ListUsers returns all users with their role names.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.db.Query(ctx, `SELECT u.id, u.user_code, u.name, u.email, COALESCE(u.role_id, 0), COALESCE(ro.name, ''),
       u.status, u.email_verified_at, u.last_login_at, u.created_at
FROM users u
LEFT JOIN roles ro ON ro.id = u.role_id
ORDER BY u.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.UserCode, &u.Name, &u.Email, &u.RoleID, &u.RoleName,
			&u.Status, &u.EmailVerifiedAt, &u.LastLoginAt, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ToggleStatus flips active/inactive for one row and returns the new status.
func (r *Repository) ToggleStatus(ctx context.Context, id int64) (string, error) {
	var status string
	err := r.db.QueryRow(ctx, `UPDATE users
SET status = CASE WHEN status = 'active' THEN 'inactive' ELSE 'active' END, updated_at = NOW()
WHERE id = $1
RETURNING status`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrUserNotFound
	}
	return status, err
}

// MaxCodeSuffix returns the highest numeric suffix among codes with prefix.
func (r *Repository) MaxCodeSuffix(ctx context.Context, prefix string) (int, error) {
	pattern := "^" + regexp.QuoteMeta(prefix) + "[0-9]+$"
	var max int
	err := r.db.QueryRow(ctx, `SELECT COALESCE(MAX(CAST(substring(user_code FROM char_length($1) + 1) AS BIGINT)), 0)
FROM users WHERE user_code ~ $2`, prefix, pattern).Scan(&max)
	return max, err
}

// CodeExists reports whether a user code is taken.
func (r *Repository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE user_code = $1)`, code).Scan(&exists)
	return exists, err
}

// EmailExists reports whether an account uses the address.
func (r *Repository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE lower(email) = $1)`, normalizeEmail(email)).Scan(&exists)
	return exists, err
}

// UserIDByEmail returns the account id for email, or nil.
func (r *Repository) UserIDByEmail(ctx context.Context, email string) (*int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `SELECT id FROM users WHERE lower(email) = $1`, normalizeEmail(email)).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// CreateUser inserts an account.
func (r *Repository) CreateUser(ctx context.Context, u NewUser) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO users (user_code, name, email, password_hash, role_id, status, email_verified_at)
VALUES ($1, $2, $3, $4, $5, 'active', CASE WHEN $6 THEN NOW() END)
RETURNING id`, u.UserCode, u.Name, normalizeEmail(u.Email), u.PasswordHash, u.RoleID, u.Verified).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, ErrEmailTaken
	}
	return id, err
}

// LastIssuedAt returns when the newest code for email was issued, or zero.
func (r *Repository) LastIssuedAt(ctx context.Context, email string) (time.Time, error) {
	var at *time.Time
	err := r.db.QueryRow(ctx, `SELECT MAX(created_at) FROM email_verifications WHERE email = $1`, normalizeEmail(email)).Scan(&at)
	if err != nil || at == nil {
		return time.Time{}, err
	}
	return *at, nil
}

// CreateVerification stores a hashed code.
func (r *Repository) CreateVerification(ctx context.Context, v Verification) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO email_verifications (user_id, email, code_hash, attempts, expires_at, created_at)
VALUES ($1, $2, $3, 0, $4, $5)
RETURNING id`, v.UserID, normalizeEmail(v.Email), v.CodeHash, v.ExpiresAt, v.CreatedAt).Scan(&id)
	return id, err
}

// DeleteVerification removes a code that was never delivered.
func (r *Repository) DeleteVerification(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM email_verifications WHERE id = $1`, id)
	return err
}

// LatestPendingVerification returns the newest unverified code for email.
func (r *Repository) LatestPendingVerification(ctx context.Context, email string) (Verification, error) {
	var v Verification
	err := r.db.QueryRow(ctx, `SELECT id, user_id, email, code_hash, attempts, expires_at, verified_at, created_at
FROM email_verifications
WHERE email = $1 AND verified_at IS NULL
ORDER BY created_at DESC, id DESC
LIMIT 1`, normalizeEmail(email)).
		Scan(&v.ID, &v.UserID, &v.Email, &v.CodeHash, &v.Attempts, &v.ExpiresAt, &v.VerifiedAt, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Verification{}, ErrOTPNotFound
	}
	return v, err
}

// ReserveAttempt counts a guess against a code before it is compared and
// returns the new attempt count. Once limit guesses are used it returns
// ErrOTPLocked.
func (r *Repository) ReserveAttempt(ctx context.Context, id int64, limit int) (int, error) {
	var attempts int
	err := r.db.QueryRow(ctx, `UPDATE email_verifications SET attempts = attempts + 1
WHERE id = $1 AND attempts < $2
RETURNING attempts`, id, limit).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrOTPLocked
	}
	return attempts, err
}

// MarkVerified stamps verified_at on a code.
func (r *Repository) MarkVerified(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE email_verifications SET verified_at = NOW() WHERE id = $1 AND verified_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOTPNotFound
	}
	return nil
}

// SetEmailVerified stamps email_verified_at on the account using email.
func (r *Repository) SetEmailVerified(ctx context.Context, email string) (int64, error) {
	tag, err := r.db.Exec(ctx, `UPDATE users SET email_verified_at = NOW(), updated_at = NOW() WHERE lower(email) = $1`, normalizeEmail(email))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// VerifiedSince reports whether email passed OTP verification after since.
func (r *Repository) VerifiedSince(ctx context.Context, email string, since time.Time) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM email_verifications WHERE email = $1 AND verified_at >= $2)`,
		normalizeEmail(email), since).Scan(&ok)
	return ok, err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var _ Store = (*Repository)(nil)
