package memory

import (
	"bytes"
	"context"
	"sort"
	"time"

	domain "docshare/backend/internal/domain/token"
)

// TokenRepository is the in-memory ledger.
type TokenRepository struct {
	exec func(fn func(st *state) error) error
}

var _ domain.Repository = (*TokenRepository)(nil)

// Create inserts t, enforcing one active single-use record per owner and type.
func (r *TokenRepository) Create(_ context.Context, t *domain.Token) error {
	return r.exec(func(st *state) error {
		if t.Type.SingleUse() && t.Active {
			for _, existing := range st.tokens {
				if existing.Active && existing.OwnerID == t.OwnerID && existing.Type == t.Type {
					return domain.ErrActiveExists
				}
			}
		}
		rec := *t
		rec.Digest = append([]byte(nil), t.Digest...)
		st.tokens[t.ID] = rec
		return nil
	})
}

func (r *TokenRepository) FindActiveByDigest(_ context.Context, typ domain.Type, digest []byte, now time.Time) (*domain.Token, error) {
	var out *domain.Token
	err := r.exec(func(st *state) error {
		rec, ok := findUsable(st, typ, digest, now)
		if !ok {
			return domain.ErrNotFound
		}
		out = &rec
		return nil
	})
	return out, err
}

func (r *TokenRepository) ListActiveByOwner(_ context.Context, ownerID string, typ domain.Type, now time.Time) ([]*domain.Token, error) {
	var out []*domain.Token
	err := r.exec(func(st *state) error {
		for _, rec := range st.tokens {
			if rec.OwnerID == ownerID && rec.Type == typ && rec.Usable(now) {
				rec := rec
				out = append(out, &rec)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, err
}

func (r *TokenRepository) Deactivate(_ context.Context, id string) (bool, error) {
	var flipped bool
	err := r.exec(func(st *state) error {
		rec, ok := st.tokens[id]
		if !ok || !rec.Active {
			return nil
		}
		rec.Active = false
		st.tokens[id] = rec
		flipped = true
		return nil
	})
	return flipped, err
}

func (r *TokenRepository) DeactivateByOwner(_ context.Context, ownerID string, typ domain.Type) (int64, error) {
	var n int64
	err := r.exec(func(st *state) error {
		for id, rec := range st.tokens {
			if rec.Active && rec.OwnerID == ownerID && rec.Type == typ {
				rec.Active = false
				st.tokens[id] = rec
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *TokenRepository) DeactivateByDevice(_ context.Context, ownerID, device string, typ domain.Type) (int64, error) {
	var n int64
	err := r.exec(func(st *state) error {
		for id, rec := range st.tokens {
			if rec.Active && rec.OwnerID == ownerID && rec.Type == typ && rec.Device == device {
				rec.Active = false
				st.tokens[id] = rec
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *TokenRepository) ClaimByDigest(_ context.Context, typ domain.Type, digest []byte, now time.Time) (*domain.Token, error) {
	var out *domain.Token
	err := r.exec(func(st *state) error {
		rec, ok := findUsable(st, typ, digest, now)
		if !ok {
			return domain.ErrNotFound
		}
		rec.Active = false
		st.tokens[rec.ID] = rec
		out = &rec
		return nil
	})
	return out, err
}

func (r *TokenRepository) Delete(_ context.Context, id string) error {
	return r.exec(func(st *state) error {
		if _, ok := st.tokens[id]; !ok {
			return domain.ErrNotFound
		}
		delete(st.tokens, id)
		return nil
	})
}

func findUsable(st *state, typ domain.Type, digest []byte, now time.Time) (domain.Token, bool) {
	for _, rec := range st.tokens {
		if rec.Type == typ && rec.Usable(now) && bytes.Equal(rec.Digest, digest) {
			return rec, true
		}
	}
	return domain.Token{}, false
}
