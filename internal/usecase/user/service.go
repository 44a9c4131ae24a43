package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "docshare/backend/internal/domain/auth"
)

// Service provides profile use cases for signed-in users and administrators.
type Service struct {
	repo    domain.UserRepository
	nowFunc func() time.Time
}

// NewService constructs a user service around the provided repository.
func NewService(repo domain.UserRepository) *Service {
	return &Service{
		repo:    repo,
		nowFunc: time.Now,
	}
}

// Filter captures supported filters for listing users.
type Filter struct {
	Role string
}

// TwoFactorInput changes a user's 2FA enrolment.
type TwoFactorInput struct {
	Enabled bool
	Method  string
}

// ProfileInput edits a user's own profile. Empty fields keep their current
// value.
type ProfileInput struct {
	Email     string
	Username  string
	FullName  string
	AvatarURL string
}

// Profile returns the user record for id.
func (s *Service) Profile(ctx context.Context, id string) (*domain.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return sanitizeUser(user), nil
}

// IsVerified reports whether the user's email has been confirmed.
func (s *Service) IsVerified(ctx context.Context, id string) (bool, error) {
	user, err := s.Profile(ctx, id)
	if err != nil {
		return false, err
	}
	return user.Verified, nil
}

// List returns users matching the supplied filter. Only administrators may
// list users.
func (s *Service) List(ctx context.Context, caller domain.Identity, filter Filter) ([]*domain.User, error) {
	if !caller.IsAdmin() {
		return nil, domain.ErrForbidden
	}

	domainFilter := domain.UserFilter{}
	if trimmed := strings.TrimSpace(strings.ToLower(filter.Role)); trimmed != "" {
		role, err := ensureRole(trimmed)
		if err != nil {
			return nil, err
		}
		domainFilter.Role = role
	}

	users, err := s.repo.List(ctx, domainFilter)
	if err != nil {
		return nil, err
	}
	return sanitizeUsers(users), nil
}

// UpdateTwoFactor enables or disables 2FA. Enabling requires a method;
// disabling clears it.
func (s *Service) UpdateTwoFactor(ctx context.Context, id string, input TwoFactorInput) (*domain.User, error) {
	method := domain.TwoFactorNone
	if input.Enabled {
		m, err := domain.ParseTwoFactorMethod(strings.TrimSpace(strings.ToLower(input.Method)))
		if err != nil {
			return nil, err
		}
		method = m
	}

	if err := s.repo.UpdateTwoFactor(ctx, id, input.Enabled, method, s.nowFunc().UTC()); err != nil {
		return nil, err
	}
	return s.Profile(ctx, id)
}

// UpdateProfile applies input to the user with id. Changing the email clears
// the verified flag.
func (s *Service) UpdateProfile(ctx context.Context, id string, input ProfileInput) (*domain.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := *user
	if email := strings.TrimSpace(strings.ToLower(input.Email)); email != "" {
		if !strings.Contains(email, "@") {
			return nil, fmt.Errorf("%w: a valid email is required", domain.ErrValidation)
		}
		if email != user.Email {
			updated.Email = email
			updated.Verified = false
		}
	}
	if username := strings.TrimSpace(input.Username); username != "" {
		updated.Username = username
	}
	if fullName := strings.TrimSpace(input.FullName); fullName != "" {
		updated.FullName = fullName
	}
	if avatar := strings.TrimSpace(input.AvatarURL); avatar != "" {
		updated.AvatarURL = avatar
	}
	updated.UpdatedAt = s.nowFunc().UTC()

	if err := s.repo.UpdateProfile(ctx, &updated); err != nil {
		return nil, err
	}
	return sanitizeUser(&updated), nil
}

func ensureRole(raw string) (domain.UserRole, error) {
	switch role := domain.UserRole(raw); role {
	case domain.RoleUser, domain.RoleAdmin:
		return role, nil
	default:
		return "", domain.ErrInvalidRole
	}
}

func sanitizeUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	copy := *u
	copy.PasswordHash = ""
	return &copy
}

func sanitizeUsers(items []*domain.User) []*domain.User {
	out := make([]*domain.User, 0, len(items))
	for _, item := range items {
		out = append(out, sanitizeUser(item))
	}
	return out
}

// IsNotFound reports whether err means the user does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrUserNotFound)
}
