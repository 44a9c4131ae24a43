package auth

import (
	"context"
	"time"

	domain "docshare/backend/internal/domain/auth"
)

// TokenCodec mints signed identity tokens and handles opaque ledger secrets.
type TokenCodec interface {
	Encode(userID string, role domain.UserRole, ttl time.Duration) (string, time.Time, error)
	Decode(token string) (domain.Identity, error)
	NewSecret() (string, error)
	Digest(secret string) []byte
	VerifyDigest(secret string, stored []byte) bool
}

// PasswordHasher abstracts the slow password hash.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) (bool, error)
}

// Cache stores short-lived values such as one-time codes and counters.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Remove(ctx context.Context, key string) error
	// Increment adds one to the counter at key. The ttl window starts on the
	// first increment.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// IdentityVerifier checks a third-party ID token and returns the identity it
// asserts. Any verification failure is an error.
type IdentityVerifier interface {
	Verify(ctx context.Context, rawToken string) (*domain.ExternalIdentity, error)
}

// Recorder counts auth outcomes.
type Recorder interface {
	RecordAuthEvent(operation, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordAuthEvent(string, string) {}
