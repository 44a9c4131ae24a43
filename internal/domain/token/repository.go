package token

import (
	"context"
	"time"
)

// Repository persists ledger records. Apart from the active flag, records
// are immutable after Create.
type Repository interface {
	Create(ctx context.Context, t *Token) error
	// FindActiveByDigest returns the usable record of the given type whose
	// digest matches, or ErrNotFound.
	FindActiveByDigest(ctx context.Context, typ Type, digest []byte, now time.Time) (*Token, error)
	ListActiveByOwner(ctx context.Context, ownerID string, typ Type, now time.Time) ([]*Token, error)
	// Deactivate flips active to false. It reports false when the record
	// was already inactive.
	Deactivate(ctx context.Context, id string) (bool, error)
	DeactivateByOwner(ctx context.Context, ownerID string, typ Type) (int64, error)
	// DeactivateByDevice flips the owner's active records of typ that were
	// issued to device.
	DeactivateByDevice(ctx context.Context, ownerID, device string, typ Type) (int64, error)
	// ClaimByDigest deactivates a usable record in a single statement and
	// returns it, or ErrNotFound when nothing was claimed.
	ClaimByDigest(ctx context.Context, typ Type, digest []byte, now time.Time) (*Token, error)
	Delete(ctx context.Context, id string) error
}
