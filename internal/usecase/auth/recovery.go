package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "docshare/backend/internal/domain/auth"
	"docshare/backend/internal/domain/notification"
	"docshare/backend/internal/domain/token"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

type linkFlow struct {
	operation string
	typ       token.Type
	path      string
	kind      notification.Kind
}

var (
	verifyEmailFlow = linkFlow{
		operation: "request_email_verification",
		typ:       token.TypeEmailVerification,
		path:      "verify-email",
		kind:      notification.KindEmailVerification,
	}
	passwordResetFlow = linkFlow{
		operation: "request_password_reset",
		typ:       token.TypePasswordReset,
		path:      "reset-password",
		kind:      notification.KindPasswordReset,
	}
)

// RequestEmailVerification emails a verification link. Unknown and already
// verified addresses get the same silent success.
func (s *Service) RequestEmailVerification(ctx context.Context, email string) error {
	return s.requestLink(ctx, email, verifyEmailFlow, func(u *domain.User) bool { return !u.Verified })
}

// RequestPasswordReset emails a reset link. Unknown addresses get the same
// silent success.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	return s.requestLink(ctx, email, passwordResetFlow, func(*domain.User) bool { return true })
}

func (s *Service) requestLink(ctx context.Context, email string, flow linkFlow, eligible func(*domain.User) bool) (err error) {
	defer func() { s.observe(flow.operation, err) }()

	email = normalizeEmail(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", domain.ErrValidation)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil
		}
		return dependency("load user", err)
	}
	if !eligible(user) {
		return nil
	}

	secret, rec, err := s.newSingleUse(user.ID, flow.typ, s.opts.SingleUseTTL)
	if err != nil {
		return err
	}
	if err := s.issueSingleUse(ctx, rec); err != nil {
		return err
	}

	link := strings.TrimRight(s.opts.AppDomain, "/") + "/" + flow.path + "/" + secret
	err = s.notifier.Send(ctx, notification.Message{
		To:   user.Email,
		Name: user.DisplayName(),
		Kind: flow.kind,
		Variables: map[string]string{
			"verify_url":  link,
			"expire_time": minutes(s.opts.SingleUseTTL),
		},
	})
	if err != nil {
		return s.compensate(ctx, rec.ID, err)
	}

	s.logger.Info("link issued",
		zap.String("type", string(flow.typ)),
		zap.String("user_id", user.ID),
		zap.String("token_id", rec.ID),
	)
	return nil
}

// ConsumeEmailVerification marks the owner of secret as verified. The token
// is single use.
func (s *Service) ConsumeEmailVerification(ctx context.Context, secret string) (err error) {
	defer func() { s.observe("verify_email", err) }()

	secret = strings.TrimSpace(secret)
	if secret == "" {
		return fmt.Errorf("%w: token is required", domain.ErrValidation)
	}
	return s.consume(ctx, token.TypeEmailVerification, secret, func(ctx context.Context, tx domain.Tx, rec *token.Token) error {
		return tx.Users.SetVerified(ctx, rec.OwnerID, s.nowFunc().UTC())
	})
}

// ResetPassword replaces the owner's password and closes all of their
// sessions. The token is single use.
func (s *Service) ResetPassword(ctx context.Context, secret, newPassword string) (err error) {
	defer func() { s.observe("reset_password", err) }()

	secret = strings.TrimSpace(secret)
	newPassword = strings.TrimSpace(newPassword)
	if secret == "" {
		return fmt.Errorf("%w: token is required", domain.ErrValidation)
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	hashed, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	return s.consume(ctx, token.TypePasswordReset, secret, func(ctx context.Context, tx domain.Tx, rec *token.Token) error {
		if err := tx.Users.UpdatePassword(ctx, rec.OwnerID, hashed, s.nowFunc().UTC()); err != nil {
			return err
		}
		_, err := tx.Tokens.DeactivateByOwner(ctx, rec.OwnerID, token.TypeAccess)
		return err
	})
}

// CheckResetToken reports whether secret is a usable reset token without
// consuming it.
func (s *Service) CheckResetToken(ctx context.Context, secret string) (bool, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return false, nil
	}
	_, err := s.tokens.FindActiveByDigest(ctx, token.TypePasswordReset, s.codec.Digest(secret), s.nowFunc())
	if err != nil {
		if errors.Is(err, token.ErrNotFound) {
			return false, nil
		}
		return false, dependency("load reset token", err)
	}
	return true, nil
}

// consume claims the record for secret and applies effect in the same
// transaction, so a failed effect leaves the token usable.
func (s *Service) consume(ctx context.Context, typ token.Type, secret string, effect func(context.Context, domain.Tx, *token.Token) error) error {
	digest := s.codec.Digest(secret)
	var owner string
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		rec, err := tx.Tokens.ClaimByDigest(ctx, typ, digest, s.nowFunc())
		if err != nil {
			return err
		}
		owner = rec.OwnerID
		return effect(ctx, tx, rec)
	})
	switch {
	case err == nil:
		s.logger.Info("token consumed", zap.String("type", string(typ)), zap.String("user_id", owner))
		return nil
	case errors.Is(err, token.ErrNotFound), errors.Is(err, domain.ErrUserNotFound):
		return domain.ErrTokenInvalid
	default:
		return dependency("consume "+string(typ)+" token", err)
	}
}

// compensate undoes an issuance whose notification failed. The record is
// deleted and the given cache keys removed; every failure is reported.
func (s *Service) compensate(ctx context.Context, tokenID string, cause error, cacheKeys ...string) error {
	var result *multierror.Error
	result = multierror.Append(result, cause)
	if err := s.tokens.Delete(ctx, tokenID); err != nil && !errors.Is(err, token.ErrNotFound) {
		result = multierror.Append(result, fmt.Errorf("delete token %s: %w", tokenID, err))
	}
	for _, key := range cacheKeys {
		if err := s.cache.Remove(ctx, key); err != nil {
			result = multierror.Append(result, fmt.Errorf("remove %s: %w", key, err))
		}
	}

	combined := result.ErrorOrNil()
	s.logger.Error("issuance rolled back", zap.String("token_id", tokenID), zap.Error(combined))
	if errors.Is(cause, domain.ErrDependency) {
		return combined
	}
	return dependency("notify", combined)
}
