package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	domain "docshare/backend/internal/domain/auth"
	"docshare/backend/internal/domain/notification"
	"docshare/backend/internal/domain/token"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Options tune token lifetimes and the 2FA resend budget.
type Options struct {
	AccessTTL      time.Duration
	ChallengeTTL   time.Duration
	CodeTTL        time.Duration
	SingleUseTTL   time.Duration
	ResendMax      int
	ResendWindow   time.Duration
	ResendCooldown time.Duration
	// MaxVerifyAttempts is the number of wrong codes after which a
	// challenge is revoked.
	MaxVerifyAttempts int
	// AppDomain is the front-end origin used to build emailed links.
	AppDomain string
}

// DefaultOptions mirrors the production defaults.
func DefaultOptions() Options {
	return Options{
		AccessTTL:         72 * time.Hour,
		ChallengeTTL:      3 * time.Minute,
		CodeTTL:           2 * time.Minute,
		SingleUseTTL:      3 * time.Minute,
		ResendMax:         3,
		ResendWindow:      5 * time.Minute,
		ResendCooldown:    60 * time.Second,
		MaxVerifyAttempts: 5,
	}
}

// Dependencies are the collaborators of the auth service. Metrics may be nil.
type Dependencies struct {
	Users    domain.UserRepository
	Tokens   token.Repository
	Tx       domain.Transactor
	Codec    TokenCodec
	Hasher   PasswordHasher
	Cache    Cache
	Notifier notification.Sender
	// Google enables LoginWithGoogle when set.
	Google  IdentityVerifier
	Logger  *zap.Logger
	Metrics Recorder
}

// Service coordinates authentication workflows between domain and infrastructure.
type Service struct {
	users    domain.UserRepository
	tokens   token.Repository
	tx       domain.Transactor
	codec    TokenCodec
	hasher   PasswordHasher
	cache    Cache
	notifier notification.Sender
	google   IdentityVerifier
	logger   *zap.Logger
	metrics  Recorder
	opts     Options
	nowFunc  func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewService constructs an auth service. Zero option fields take defaults.
func NewService(deps Dependencies, opts Options) *Service {
	def := DefaultOptions()
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = def.AccessTTL
	}
	if opts.ChallengeTTL <= 0 {
		opts.ChallengeTTL = def.ChallengeTTL
	}
	if opts.CodeTTL <= 0 {
		opts.CodeTTL = def.CodeTTL
	}
	if opts.SingleUseTTL <= 0 {
		opts.SingleUseTTL = def.SingleUseTTL
	}
	if opts.ResendMax <= 0 {
		opts.ResendMax = def.ResendMax
	}
	if opts.ResendWindow <= 0 {
		opts.ResendWindow = def.ResendWindow
	}
	if opts.ResendCooldown <= 0 {
		opts.ResendCooldown = def.ResendCooldown
	}
	if opts.MaxVerifyAttempts <= 0 {
		opts.MaxVerifyAttempts = def.MaxVerifyAttempts
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var metrics Recorder = nopRecorder{}
	if deps.Metrics != nil {
		metrics = deps.Metrics
	}

	return &Service{
		users:    deps.Users,
		tokens:   deps.Tokens,
		tx:       deps.Tx,
		codec:    deps.Codec,
		hasher:   deps.Hasher,
		cache:    deps.Cache,
		notifier: deps.Notifier,
		google:   deps.Google,
		logger:   logger,
		metrics:  metrics,
		opts:     opts,
		nowFunc:  time.Now,
	}
}

// RegisterInput is the payload for self-service sign-up.
type RegisterInput struct {
	Email    string
	Username string
	FullName string
	Password string
}

// LoginResult carries either an access token or a pending 2FA challenge.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *domain.User

	RequiresTwoFactor bool
	TempToken         string
	Method            domain.TwoFactorMethod
	MaskedContact     string
}

// Session is an authenticated caller resolved from a bearer token.
type Session struct {
	Identity  domain.Identity
	TokenID   string
	ExpiresAt time.Time
}

// Register creates a new user and returns the persisted entity without a password hash.
func (s *Service) Register(ctx context.Context, input RegisterInput) (_ *domain.User, err error) {
	defer func() { s.observe("register", err) }()

	email := normalizeEmail(input.Email)
	password := strings.TrimSpace(input.Password)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: a valid email is required", domain.ErrValidation)
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	username := strings.TrimSpace(input.Username)
	if username == "" {
		username, _, _ = strings.Cut(email, "@")
	}

	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	now := s.nowFunc().UTC()
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		FullName:     strings.TrimSpace(input.FullName),
		Role:         domain.RoleUser,
		PasswordHash: hashed,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrEmailExists) || errors.Is(err, domain.ErrUsernameExists) {
			return nil, err
		}
		return nil, dependency("create user", err)
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID))
	return sanitizeUser(user), nil
}

// Login validates credentials and either issues an access token or opens a
// 2FA challenge.
func (s *Service) Login(ctx context.Context, creds domain.Credentials) (_ *LoginResult, err error) {
	defer func() { s.observe("login", err) }()

	login := strings.TrimSpace(creds.Login)
	if strings.Contains(login, "@") {
		login = strings.ToLower(login)
	}
	password := strings.TrimSpace(creds.Password)
	if login == "" || password == "" {
		return nil, fmt.Errorf("%w: login and password are required", domain.ErrValidation)
	}

	user, err := s.users.GetByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			// Spend the same hashing time as a real comparison.
			_, _ = s.hasher.Verify(password, s.dummyDigest())
			return nil, domain.ErrInvalidCredentials
		}
		return nil, dependency("load user", err)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil || !ok {
		return nil, domain.ErrInvalidCredentials
	}

	if !user.TwoFactorEnabled {
		return s.issueAccess(ctx, s.tokens, user, creds.Device)
	}
	return s.openChallenge(ctx, user, creds.Device)
}

// Authenticate resolves a bearer token to a live session. The token must
// decode and must match an active, unexpired Access record of its owner.
func (s *Service) Authenticate(ctx context.Context, bearer string) (*Session, error) {
	identity, err := s.codec.Decode(bearer)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTokenInvalid, err)
	}
	rec, err := s.resolveAccess(ctx, identity.UserID, bearer)
	if err != nil {
		return nil, err
	}
	return &Session{Identity: identity, TokenID: rec.ID, ExpiresAt: rec.ExpiresAt}, nil
}

// Logout deactivates the caller's Access record for bearer. A token that is
// already inactive or unknown still counts as logged out.
func (s *Service) Logout(ctx context.Context, caller domain.Identity, bearer string) (err error) {
	defer func() { s.observe("logout", err) }()

	rec, err := s.resolveAccess(ctx, caller.UserID, bearer)
	if err != nil {
		if errors.Is(err, domain.ErrTokenInvalid) {
			return nil
		}
		return err
	}
	if _, err := s.tokens.Deactivate(ctx, rec.ID); err != nil {
		return dependency("deactivate token", err)
	}
	s.logger.Info("session closed", zap.String("user_id", caller.UserID))
	return nil
}

func (s *Service) resolveAccess(ctx context.Context, ownerID, bearer string) (*token.Token, error) {
	records, err := s.tokens.ListActiveByOwner(ctx, ownerID, token.TypeAccess, s.nowFunc())
	if err != nil {
		return nil, dependency("list sessions", err)
	}
	for _, rec := range records {
		if s.codec.VerifyDigest(bearer, rec.Digest) {
			return rec, nil
		}
	}
	return nil, domain.ErrTokenInvalid
}

// issueAccess mints a signed token and records it in repo. Exactly one
// ledger insert happens per call.
func (s *Service) issueAccess(ctx context.Context, repo token.Repository, user *domain.User, device string) (*LoginResult, error) {
	signed, expiresAt, err := s.codec.Encode(user.ID, user.Role, s.opts.AccessTTL)
	if err != nil {
		return nil, err
	}
	rec := &token.Token{
		ID:        uuid.NewString(),
		OwnerID:   user.ID,
		Type:      token.TypeAccess,
		Digest:    s.codec.Digest(signed),
		Device:    strings.TrimSpace(device),
		CreatedAt: s.nowFunc().UTC(),
		ExpiresAt: expiresAt,
		Active:    true,
	}
	if err := repo.Create(ctx, rec); err != nil {
		return nil, dependency("record access token", err)
	}

	s.logger.Info("access token issued", zap.String("user_id", user.ID), zap.String("token_id", rec.ID))
	return &LoginResult{Token: signed, ExpiresAt: expiresAt, User: sanitizeUser(user)}, nil
}

// issueSingleUse revokes any active record of rec's type for the owner and
// inserts rec in one transaction. A concurrent issuance that wins the unique
// slot is revoked on a single retry so the latest request holds it.
func (s *Service) issueSingleUse(ctx context.Context, rec *token.Token) error {
	attempt := func() error {
		return s.tx.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
			if _, err := tx.Tokens.DeactivateByOwner(ctx, rec.OwnerID, rec.Type); err != nil {
				return err
			}
			return tx.Tokens.Create(ctx, rec)
		})
	}
	err := attempt()
	if errors.Is(err, token.ErrActiveExists) {
		err = attempt()
	}
	if err != nil {
		return dependency("issue "+string(rec.Type)+" token", err)
	}
	return nil
}

func (s *Service) newSingleUse(ownerID string, typ token.Type, ttl time.Duration) (string, *token.Token, error) {
	secret, err := s.codec.NewSecret()
	if err != nil {
		return "", nil, err
	}
	now := s.nowFunc().UTC()
	return secret, &token.Token{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Type:      typ,
		Digest:    s.codec.Digest(secret),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		Active:    true,
	}, nil
}

func (s *Service) dummyDigest() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash(uuid.NewString())
	})
	return s.dummyHash
}

func (s *Service) observe(operation string, err error) {
	s.metrics.RecordAuthEvent(operation, outcome(err))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrDependency):
		return "error"
	default:
		return "rejected"
	}
}

func dependency(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrDependency, op, err)
}

// maxPasswordBytes is the longest input bcrypt accepts.
const maxPasswordBytes = 72

func validatePassword(password string) error {
	switch {
	case password == "":
		return fmt.Errorf("%w: password is required", domain.ErrValidation)
	case len(password) > maxPasswordBytes:
		return fmt.Errorf("%w: password must be at most %d bytes", domain.ErrValidation, maxPasswordBytes)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func sanitizeUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	copy := *u
	copy.PasswordHash = ""
	return &copy
}
