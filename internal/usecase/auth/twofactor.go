package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	domain "docshare/backend/internal/domain/auth"
	"docshare/backend/internal/domain/notification"
	"docshare/backend/internal/domain/token"

	"go.uber.org/zap"
)

const codeDigits = 6

// ResendResult describes a re-sent 2FA code.
type ResendResult struct {
	Method        domain.TwoFactorMethod
	MaskedContact string
	NextResendIn  time.Duration
}

func codeKey(userID string) string { return "2fa:code:" + userID }

func resendKey(challengeID string) string { return "2fa:resend:" + challengeID }

func attemptsKey(challengeID string) string { return "2fa:attempts:" + challengeID }

// openChallenge starts a 2FA challenge for user and delivers the first code.
// Any earlier challenge of the user is revoked.
func (s *Service) openChallenge(ctx context.Context, user *domain.User, device string) (*LoginResult, error) {
	secret, rec, err := s.newSingleUse(user.ID, token.TypeTwoFactor, s.opts.ChallengeTTL)
	if err != nil {
		return nil, err
	}
	rec.Device = strings.TrimSpace(device)
	if err := s.issueSingleUse(ctx, rec); err != nil {
		return nil, err
	}

	if err := s.deliverCode(ctx, user); err != nil {
		return nil, s.compensate(ctx, rec.ID, err, codeKey(user.ID))
	}

	s.logger.Info("2fa challenge opened", zap.String("user_id", user.ID), zap.String("token_id", rec.ID))
	return &LoginResult{
		RequiresTwoFactor: true,
		TempToken:         secret,
		Method:            user.TwoFactorMethod,
		MaskedContact:     maskContact(user),
	}, nil
}

// VerifyTwoFactor exchanges a temp token plus code for an access token. All
// mismatch causes return ErrChallengeInvalid. Too many wrong codes revoke the
// challenge.
func (s *Service) VerifyTwoFactor(ctx context.Context, tempToken, code string) (_ *LoginResult, err error) {
	defer func() { s.observe("verify_2fa", err) }()

	tempToken = strings.TrimSpace(tempToken)
	code = strings.TrimSpace(code)
	if tempToken == "" || code == "" {
		return nil, fmt.Errorf("%w: temp token and code are required", domain.ErrValidation)
	}

	rec, err := s.findChallenge(ctx, tempToken)
	if err != nil {
		return nil, err
	}

	cached, found, err := s.cache.Get(ctx, codeKey(rec.OwnerID))
	if err != nil {
		return nil, dependency("read code", err)
	}
	if !found || subtle.ConstantTimeCompare([]byte(cached), []byte(code)) != 1 {
		return nil, s.recordFailedAttempt(ctx, rec)
	}

	user, err := s.users.GetByID(ctx, rec.OwnerID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrChallengeInvalid
		}
		return nil, dependency("load user", err)
	}

	var result *LoginResult
	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		consumed, err := tx.Tokens.Deactivate(ctx, rec.ID)
		if err != nil {
			return dependency("consume challenge", err)
		}
		if !consumed {
			return domain.ErrChallengeInvalid
		}
		result, err = s.issueAccess(ctx, tx.Tokens, user, rec.Device)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.clearChallenge(ctx, rec)
	return result, nil
}

// recordFailedAttempt counts a wrong code against rec and revokes the
// challenge once MaxVerifyAttempts is reached.
func (s *Service) recordFailedAttempt(ctx context.Context, rec *token.Token) error {
	count, err := s.cache.Increment(ctx, attemptsKey(rec.ID), s.opts.ChallengeTTL)
	if err != nil {
		return dependency("count attempts", err)
	}
	if count < int64(s.opts.MaxVerifyAttempts) {
		return domain.ErrChallengeInvalid
	}

	if _, err := s.tokens.Deactivate(ctx, rec.ID); err != nil {
		return dependency("revoke challenge", err)
	}
	s.clearChallenge(ctx, rec)
	s.logger.Warn("2fa challenge revoked after failed attempts",
		zap.String("user_id", rec.OwnerID),
		zap.String("token_id", rec.ID),
		zap.Int64("attempts", count),
	)
	return domain.ErrChallengeInvalid
}

func (s *Service) clearChallenge(ctx context.Context, rec *token.Token) {
	for _, key := range []string{codeKey(rec.OwnerID), resendKey(rec.ID), attemptsKey(rec.ID)} {
		if err := s.cache.Remove(ctx, key); err != nil {
			s.logger.Warn("2fa cleanup failed", zap.String("user_id", rec.OwnerID), zap.Error(err))
		}
	}
}

// ResendTwoFactor replaces the pending code of an open challenge. At most
// ResendMax resends are allowed per ResendWindow.
func (s *Service) ResendTwoFactor(ctx context.Context, tempToken string) (_ *ResendResult, err error) {
	defer func() { s.observe("resend_2fa", err) }()

	tempToken = strings.TrimSpace(tempToken)
	if tempToken == "" {
		return nil, fmt.Errorf("%w: temp token is required", domain.ErrValidation)
	}

	rec, err := s.findChallenge(ctx, tempToken)
	if err != nil {
		return nil, err
	}

	count, err := s.cache.Increment(ctx, resendKey(rec.ID), s.opts.ResendWindow)
	if err != nil {
		return nil, dependency("count resend", err)
	}
	if count > int64(s.opts.ResendMax) {
		return nil, domain.ErrRateLimited
	}

	user, err := s.users.GetByID(ctx, rec.OwnerID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrChallengeInvalid
		}
		return nil, dependency("load user", err)
	}
	if err := s.deliverCode(ctx, user); err != nil {
		return nil, err
	}

	return &ResendResult{
		Method:        user.TwoFactorMethod,
		MaskedContact: maskContact(user),
		NextResendIn:  s.opts.ResendCooldown,
	}, nil
}

func (s *Service) findChallenge(ctx context.Context, tempToken string) (*token.Token, error) {
	rec, err := s.tokens.FindActiveByDigest(ctx, token.TypeTwoFactor, s.codec.Digest(tempToken), s.nowFunc())
	if err != nil {
		if errors.Is(err, token.ErrNotFound) {
			return nil, domain.ErrChallengeInvalid
		}
		return nil, dependency("load challenge", err)
	}
	return rec, nil
}

// deliverCode caches a fresh code for user, replacing any previous one, and
// sends it over the enrolled channel. Authenticator apps generate their own
// codes so nothing is sent for them.
func (s *Service) deliverCode(ctx context.Context, user *domain.User) error {
	code, err := newCode()
	if err != nil {
		return err
	}
	if err := s.cache.Set(ctx, codeKey(user.ID), code, s.opts.CodeTTL); err != nil {
		return dependency("store code", err)
	}
	if user.TwoFactorMethod == domain.TwoFactorApp {
		return nil
	}
	err = s.notifier.Send(ctx, notification.Message{
		To:   user.Email,
		Name: user.DisplayName(),
		Kind: notification.KindTwoFactorCode,
		Variables: map[string]string{
			"code":        code,
			"expire_time": minutes(s.opts.CodeTTL),
		},
	})
	if err != nil {
		return dependency("send code", err)
	}
	return nil
}

// newCode returns a uniformly random zero-padded decimal code.
func newCode() (string, error) {
	limit := big.NewInt(1)
	for i := 0; i < codeDigits; i++ {
		limit.Mul(limit, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

func minutes(d time.Duration) string {
	m := int(d.Round(time.Minute) / time.Minute)
	if m < 1 {
		m = 1
	}
	return strconv.Itoa(m)
}
