package auth

import (
	"errors"
	"time"
)

var (
	// ErrInvalidCredentials indicates a login failure. Unknown accounts and
	// wrong passwords both map to it.
	ErrInvalidCredentials = errors.New("account or credentials invalid")
	// ErrEmailExists signals a duplicate email registration.
	ErrEmailExists = errors.New("email already registered")
	// ErrUsernameExists signals a duplicate username.
	ErrUsernameExists = errors.New("username already taken")
	// ErrTokenInvalid means a supplied token cannot be validated.
	ErrTokenInvalid = errors.New("token invalid or expired")
	// ErrChallengeInvalid is returned for any failed 2FA verification.
	ErrChallengeInvalid = errors.New("verification session invalid or expired")
	// ErrRateLimited indicates the 2FA resend budget is exhausted.
	ErrRateLimited = errors.New("too many resend attempts, please sign in again")
	// ErrUserNotFound indicates missing user.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidRole indicates the provided role is not supported.
	ErrInvalidRole = errors.New("invalid role")
	// ErrInvalidTwoFactorMethod indicates an unsupported 2FA method.
	ErrInvalidTwoFactorMethod = errors.New("invalid two-factor method")
	// ErrValidation marks malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrForbidden indicates an authenticated caller lacks privileges.
	ErrForbidden = errors.New("insufficient privileges")
	// ErrDependency wraps cache, store and notification failures.
	ErrDependency = errors.New("dependency unavailable")
)

// UserRole identifies the privileges assigned to a user.
type UserRole string

const (
	// RoleUser represents a standard application user.
	RoleUser UserRole = "user"
	// RoleAdmin represents an administrative user.
	RoleAdmin UserRole = "admin"
)

// TwoFactorMethod is the channel a user enrolled for one-time codes.
type TwoFactorMethod string

const (
	TwoFactorNone  TwoFactorMethod = ""
	TwoFactorEmail TwoFactorMethod = "email"
	TwoFactorSMS   TwoFactorMethod = "sms"
	TwoFactorApp   TwoFactorMethod = "app"
)

// ParseTwoFactorMethod normalises raw input into a known method.
func ParseTwoFactorMethod(raw string) (TwoFactorMethod, error) {
	switch m := TwoFactorMethod(raw); m {
	case TwoFactorEmail, TwoFactorSMS, TwoFactorApp:
		return m, nil
	default:
		return TwoFactorNone, ErrInvalidTwoFactorMethod
	}
}

// User models the authentication entity persisted in storage.
type User struct {
	ID               string          `json:"id"`
	Email            string          `json:"email"`
	Username         string          `json:"username"`
	FullName         string          `json:"fullName,omitempty"`
	AvatarURL        string          `json:"avatarUrl,omitempty"`
	Role             UserRole        `json:"role"`
	PasswordHash     string          `json:"-"`
	Verified         bool            `json:"isVerified"`
	TwoFactorEnabled bool            `json:"twoFactorEnabled"`
	TwoFactorMethod  TwoFactorMethod `json:"twoFactorMethod,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// DisplayName is the name used when addressing the user in messages.
func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

// Credentials captures raw credential input for login.
type Credentials struct {
	Login    string
	Password string
	Device   string
}

// ExternalIdentity is a user asserted by a third-party identity provider.
type ExternalIdentity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// Identity is the caller identity decoded from a bearer token.
type Identity struct {
	UserID string
	Role   UserRole
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
