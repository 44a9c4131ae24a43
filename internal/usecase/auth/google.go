package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "docshare/backend/internal/domain/auth"
	"docshare/backend/internal/domain/token"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LoginWithGoogle signs in the owner of a verified Google ID token, creating
// the account on first use. Earlier sessions on the same device are revoked.
// Google accounts skip the 2FA challenge.
func (s *Service) LoginWithGoogle(ctx context.Context, rawToken, device string) (_ *LoginResult, err error) {
	defer func() { s.observe("login_google", err) }()

	if s.google == nil {
		return nil, fmt.Errorf("%w: google sign-in is not configured", domain.ErrValidation)
	}
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, fmt.Errorf("%w: token is required", domain.ErrValidation)
	}

	ext, err := s.google.Verify(ctx, rawToken)
	if err != nil {
		s.logger.Info("google token rejected", zap.Error(err))
		return nil, domain.ErrTokenInvalid
	}
	if !ext.EmailVerified {
		return nil, domain.ErrTokenInvalid
	}

	user, err := s.userForGoogle(ctx, ext)
	if err != nil {
		return nil, err
	}

	device = strings.TrimSpace(device)
	var result *LoginResult
	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		if device != "" {
			if _, err := tx.Tokens.DeactivateByDevice(ctx, user.ID, device, token.TypeAccess); err != nil {
				return dependency("revoke device sessions", err)
			}
		}
		result, err = s.issueAccess(ctx, tx.Tokens, user, device)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// userForGoogle finds the account for ext by email or creates a verified,
// password-less one.
func (s *Service) userForGoogle(ctx context.Context, ext *domain.ExternalIdentity) (*domain.User, error) {
	email := normalizeEmail(ext.Email)
	user, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, dependency("load user", err)
	}

	local, _, _ := strings.Cut(email, "@")
	now := s.nowFunc().UTC()
	user = &domain.User{
		ID:        uuid.NewString(),
		Email:     email,
		Username:  local + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:6],
		FullName:  strings.TrimSpace(ext.Name),
		AvatarURL: strings.TrimSpace(ext.Picture),
		Role:      domain.RoleUser,
		Verified:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		// A concurrent sign-in may have created the account first.
		if errors.Is(err, domain.ErrEmailExists) {
			return s.users.GetByEmail(ctx, email)
		}
		return nil, dependency("create user", err)
	}

	s.logger.Info("user registered via google", zap.String("user_id", user.ID))
	return user, nil
}
