package postgres

import (
	"context"
	"errors"
	"time"

	domain "docshare/backend/internal/domain/auth"

	"github.com/jackc/pgx/v5"
)

// UserRepository persists users in PostgreSQL.
type UserRepository struct {
	q querier
}

var _ domain.UserRepository = (*UserRepository)(nil)

const userColumns = `id, email, username, full_name, avatar_url, role, password_hash, is_verified,
two_factor_enabled, two_factor_method, created_at, updated_at`

// Create inserts a new user record.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
INSERT INTO users (` + userColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`
	_, err := r.q.Exec(ctx, query,
		user.ID,
		user.Email,
		user.Username,
		user.FullName,
		user.AvatarURL,
		user.Role,
		user.PasswordHash,
		user.Verified,
		user.TwoFactorEnabled,
		user.TwoFactorMethod,
		user.CreatedAt,
		user.UpdatedAt,
	)
	return mapUserConstraint(err)
}

// GetByEmail fetches a user by email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.getOne(ctx, query, email)
}

// GetByID retrieves a user by id.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByLogin retrieves a user whose email or username equals login.
func (r *UserRepository) GetByLogin(ctx context.Context, login string) (*domain.User, error) {
	const query = `
SELECT ` + userColumns + ` FROM users
WHERE email = $1 OR username = $1
ORDER BY (email = $1) DESC
LIMIT 1
`
	return r.getOne(ctx, query, login)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	user, err := scanUser(r.q.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// List returns users filtered by the provided criteria.
func (r *UserRepository) List(ctx context.Context, filter domain.UserFilter) ([]*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users `
	var args []any
	if filter.Role != "" {
		query += "WHERE role = $1 "
		args = append(args, filter.Role)
	}
	query += "ORDER BY created_at DESC"

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// SetVerified marks the user's email as verified.
func (r *UserRepository) SetVerified(ctx context.Context, id string, updatedAt time.Time) error {
	const query = `UPDATE users SET is_verified = TRUE, updated_at = $2 WHERE id = $1`
	return r.execOne(ctx, query, id, updatedAt)
}

// UpdatePassword updates the stored password hash for a user.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	const query = `
UPDATE users
SET password_hash = $2, updated_at = $3
WHERE id = $1
`
	return r.execOne(ctx, query, id, passwordHash, updatedAt)
}

// UpdateTwoFactor changes the user's 2FA enrolment.
func (r *UserRepository) UpdateTwoFactor(ctx context.Context, id string, enabled bool, method domain.TwoFactorMethod, updatedAt time.Time) error {
	const query = `
UPDATE users
SET two_factor_enabled = $2, two_factor_method = $3, updated_at = $4
WHERE id = $1
`
	return r.execOne(ctx, query, id, enabled, method, updatedAt)
}

// UpdateProfile rewrites the editable profile columns of user.
func (r *UserRepository) UpdateProfile(ctx context.Context, user *domain.User) error {
	const query = `
UPDATE users
SET email = $2, username = $3, full_name = $4, avatar_url = $5, is_verified = $6, updated_at = $7
WHERE id = $1
`
	err := r.execOne(ctx, query,
		user.ID,
		user.Email,
		user.Username,
		user.FullName,
		user.AvatarURL,
		user.Verified,
		user.UpdatedAt,
	)
	return mapUserConstraint(err)
}

func mapUserConstraint(err error) error {
	if constraint, ok := constraintViolated(err); ok {
		if constraint == "users_username_key" {
			return domain.ErrUsernameExists
		}
		return domain.ErrEmailExists
	}
	return err
}

func (r *UserRepository) execOne(ctx context.Context, query string, args ...any) error {
	ct, err := r.q.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Username,
		&u.FullName,
		&u.AvatarURL,
		&u.Role,
		&u.PasswordHash,
		&u.Verified,
		&u.TwoFactorEnabled,
		&u.TwoFactorMethod,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
