package postgres

import (
	"context"
	"errors"
	"time"

	domain "docshare/backend/internal/domain/token"

	"github.com/jackc/pgx/v5"
)

// TokenRepository persists the token ledger in PostgreSQL.
type TokenRepository struct {
	q querier
}

var _ domain.Repository = (*TokenRepository)(nil)

const tokenColumns = `id, user_id, type, token_digest, COALESCE(user_device, ''), created_at, expires_at, is_active`

// Create inserts a ledger record.
func (r *TokenRepository) Create(ctx context.Context, t *domain.Token) error {
	const query = `
INSERT INTO tokens (id, user_id, type, token_digest, user_device, created_at, expires_at, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`
	_, err := r.q.Exec(ctx, query,
		t.ID,
		t.OwnerID,
		t.Type,
		t.Digest,
		nullIfEmpty(t.Device),
		t.CreatedAt,
		t.ExpiresAt,
		t.Active,
	)
	if err != nil {
		if constraint, ok := constraintViolated(err); ok && constraint == "tokens_single_use_active_idx" {
			return domain.ErrActiveExists
		}
		return err
	}
	return nil
}

// FindActiveByDigest returns the usable record matching digest.
func (r *TokenRepository) FindActiveByDigest(ctx context.Context, typ domain.Type, digest []byte, now time.Time) (*domain.Token, error) {
	const query = `
SELECT ` + tokenColumns + `
FROM tokens
WHERE token_digest = $1 AND type = $2 AND is_active AND expires_at > $3
LIMIT 1
`
	t, err := scanToken(r.q.QueryRow(ctx, query, digest, typ, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

// ListActiveByOwner returns the owner's usable records of one type.
func (r *TokenRepository) ListActiveByOwner(ctx context.Context, ownerID string, typ domain.Type, now time.Time) ([]*domain.Token, error) {
	const query = `
SELECT ` + tokenColumns + `
FROM tokens
WHERE user_id = $1 AND type = $2 AND is_active AND expires_at > $3
ORDER BY created_at DESC
`
	rows, err := r.q.Query(ctx, query, ownerID, typ, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []*domain.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// Deactivate flips a single record to inactive.
func (r *TokenRepository) Deactivate(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE tokens SET is_active = FALSE WHERE id = $1 AND is_active`
	ct, err := r.q.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// DeactivateByOwner flips every active record of a type for the owner.
func (r *TokenRepository) DeactivateByOwner(ctx context.Context, ownerID string, typ domain.Type) (int64, error) {
	const query = `UPDATE tokens SET is_active = FALSE WHERE user_id = $1 AND type = $2 AND is_active`
	ct, err := r.q.Exec(ctx, query, ownerID, typ)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

// DeactivateByDevice flips the owner's active records of typ issued to device.
func (r *TokenRepository) DeactivateByDevice(ctx context.Context, ownerID, device string, typ domain.Type) (int64, error) {
	const query = `
UPDATE tokens SET is_active = FALSE
WHERE user_id = $1 AND type = $2 AND COALESCE(user_device, '') = $3 AND is_active
`
	ct, err := r.q.Exec(ctx, query, ownerID, typ, device)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

// ClaimByDigest deactivates the usable record matching digest and returns it.
func (r *TokenRepository) ClaimByDigest(ctx context.Context, typ domain.Type, digest []byte, now time.Time) (*domain.Token, error) {
	const query = `
UPDATE tokens SET is_active = FALSE
WHERE id = (
    SELECT id FROM tokens
    WHERE token_digest = $1 AND type = $2 AND is_active AND expires_at > $3
    LIMIT 1
    FOR UPDATE
) AND is_active
RETURNING ` + tokenColumns
	t, err := scanToken(r.q.QueryRow(ctx, query, digest, typ, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

// Delete removes a record. Used only to compensate for a failed issuance.
func (r *TokenRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM tokens WHERE id = $1`
	ct, err := r.q.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanToken(row pgx.Row) (*domain.Token, error) {
	var t domain.Token
	err := row.Scan(
		&t.ID,
		&t.OwnerID,
		&t.Type,
		&t.Digest,
		&t.Device,
		&t.CreatedAt,
		&t.ExpiresAt,
		&t.Active,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
