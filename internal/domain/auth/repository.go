package auth

import (
	"context"
	"time"

	"docshare/backend/internal/domain/token"
)

// UserRepository defines persistence operations for auth users.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	// GetByLogin matches either the email or the username.
	GetByLogin(ctx context.Context, login string) (*User, error)
	List(ctx context.Context, filter UserFilter) ([]*User, error)
	SetVerified(ctx context.Context, id string, updatedAt time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
	UpdateTwoFactor(ctx context.Context, id string, enabled bool, method TwoFactorMethod, updatedAt time.Time) error
	// UpdateProfile writes the email, username, full name, avatar and
	// verified flag of user. Uniqueness is enforced like Create.
	UpdateProfile(ctx context.Context, user *User) error
}

// UserFilter allows narrowing user queries.
type UserFilter struct {
	Role UserRole
}

// Tx groups repositories that share one storage transaction.
type Tx struct {
	Users  UserRepository
	Tokens token.Repository
}

// Transactor runs fn atomically. When fn returns an error every write made
// through tx is discarded.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
