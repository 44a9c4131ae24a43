package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	authdomain "docshare/backend/internal/domain/auth"
	tokendomain "docshare/backend/internal/domain/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, s *Store) *authdomain.User {
	t.Helper()
	u := &authdomain.User{
		ID:        "u1",
		Email:     "ada@example.com",
		Username:  "ada",
		Role:      authdomain.RoleUser,
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.Users().Create(context.Background(), u))
	return u
}

func record(id, owner string, typ tokendomain.Type, digest string, expires time.Time) *tokendomain.Token {
	return &tokendomain.Token{
		ID:        id,
		OwnerID:   owner,
		Type:      typ,
		Digest:    []byte(digest),
		CreatedAt: time.Now(),
		ExpiresAt: expires,
		Active:    true,
	}
}

func TestUserRepository_UniqueAndLookup(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	seed(t, s)

	err := s.Users().Create(ctx, &authdomain.User{ID: "u2", Email: "ada@example.com", Username: "other"})
	assert.ErrorIs(t, err, authdomain.ErrEmailExists)
	err = s.Users().Create(ctx, &authdomain.User{ID: "u2", Email: "b@example.com", Username: "ada"})
	assert.ErrorIs(t, err, authdomain.ErrUsernameExists)

	u, err := s.Users().GetByLogin(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	u, err = s.Users().GetByLogin(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)

	_, err = s.Users().GetByLogin(ctx, "nobody")
	assert.ErrorIs(t, err, authdomain.ErrUserNotFound)
	assert.ErrorIs(t, s.Users().SetVerified(ctx, "missing", time.Now()), authdomain.ErrUserNotFound)
}

func TestUserRepository_ReturnsCopies(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	seed(t, s)

	u, err := s.Users().GetByID(ctx, "u1")
	require.NoError(t, err)
	u.Email = "mutated@example.com"

	again, err := s.Users().GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", again.Email)
}

func TestUserRepository_UpdateProfile(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	u := seed(t, s)
	require.NoError(t, s.Users().Create(ctx, &authdomain.User{ID: "u2", Email: "bob@example.com", Username: "bob"}))

	clash := *u
	clash.Email = "bob@example.com"
	assert.ErrorIs(t, s.Users().UpdateProfile(ctx, &clash), authdomain.ErrEmailExists)
	clash = *u
	clash.Username = "bob"
	assert.ErrorIs(t, s.Users().UpdateProfile(ctx, &clash), authdomain.ErrUsernameExists)
	assert.ErrorIs(t, s.Users().UpdateProfile(ctx, &authdomain.User{ID: "missing"}), authdomain.ErrUserNotFound)

	changed := *u
	changed.Username = "ada.l"
	changed.FullName = "Ada Lovelace"
	changed.AvatarURL = "https://img.test/ada.png"
	require.NoError(t, s.Users().UpdateProfile(ctx, &changed))

	got, err := s.Users().GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "ada.l", got.Username)
	assert.Equal(t, "Ada Lovelace", got.FullName)
	assert.Equal(t, "https://img.test/ada.png", got.AvatarURL)
	assert.Equal(t, "ada@example.com", got.Email)
}

func TestTokenRepository_DeactivateByDevice(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	phone := record("a1", "u1", tokendomain.TypeAccess, "a", exp)
	phone.Device = "phone"
	laptop := record("a2", "u1", tokendomain.TypeAccess, "b", exp)
	laptop.Device = "laptop"
	require.NoError(t, s.Tokens().Create(ctx, phone))
	require.NoError(t, s.Tokens().Create(ctx, laptop))

	n, err := s.Tokens().DeactivateByDevice(ctx, "u1", "phone", tokendomain.TypeAccess)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	list, err := s.Tokens().ListActiveByOwner(ctx, "u1", tokendomain.TypeAccess, time.Now())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a2", list[0].ID)
}

func TestTokenRepository_SingleActivePerOwnerAndType(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	require.NoError(t, s.Tokens().Create(ctx, record("t1", "u1", tokendomain.TypeTwoFactor, "a", exp)))
	err := s.Tokens().Create(ctx, record("t2", "u1", tokendomain.TypeTwoFactor, "b", exp))
	assert.ErrorIs(t, err, tokendomain.ErrActiveExists)

	// Access tokens may coexist.
	require.NoError(t, s.Tokens().Create(ctx, record("a1", "u1", tokendomain.TypeAccess, "c", exp)))
	require.NoError(t, s.Tokens().Create(ctx, record("a2", "u1", tokendomain.TypeAccess, "d", exp)))

	n, err := s.Tokens().DeactivateByOwner(ctx, "u1", tokendomain.TypeTwoFactor)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	require.NoError(t, s.Tokens().Create(ctx, record("t2", "u1", tokendomain.TypeTwoFactor, "b", exp)))

	list, err := s.Tokens().ListActiveByOwner(ctx, "u1", tokendomain.TypeAccess, time.Now())
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestTokenRepository_ExpiryIsDerived(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	exp := time.Now().Add(time.Minute)
	require.NoError(t, s.Tokens().Create(ctx, record("t1", "u1", tokendomain.TypeAccess, "a", exp)))

	_, err := s.Tokens().FindActiveByDigest(ctx, tokendomain.TypeAccess, []byte("a"), exp.Add(-time.Second))
	assert.NoError(t, err)
	_, err = s.Tokens().FindActiveByDigest(ctx, tokendomain.TypeAccess, []byte("a"), exp)
	assert.ErrorIs(t, err, tokendomain.ErrNotFound)
	_, err = s.Tokens().FindActiveByDigest(ctx, tokendomain.TypeAccess, []byte("a"), exp.Add(time.Second))
	assert.ErrorIs(t, err, tokendomain.ErrNotFound)
}

func TestTokenRepository_DeactivateIsOneWay(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.Tokens().Create(ctx, record("t1", "u1", tokendomain.TypeAccess, "a", time.Now().Add(time.Hour))))

	ok, err := s.Tokens().Deactivate(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Tokens().Deactivate(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = s.Tokens().Deactivate(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTokenRepository_ConcurrentClaimHasOneWinner(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.Tokens().Create(ctx, record("t1", "u1", tokendomain.TypePasswordReset, "a", time.Now().Add(time.Hour))))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Tokens().ClaimByDigest(ctx, tokendomain.TypePasswordReset, []byte("a"), time.Now()); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestStore_WithinTxCommitsAndRollsBack(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	seed(t, s)
	require.NoError(t, s.Tokens().Create(ctx, record("t1", "u1", tokendomain.TypeEmailVerification, "a", time.Now().Add(time.Hour))))

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(ctx context.Context, tx authdomain.Tx) error {
		if _, err := tx.Tokens.ClaimByDigest(ctx, tokendomain.TypeEmailVerification, []byte("a"), time.Now()); err != nil {
			return err
		}
		if err := tx.Users.SetVerified(ctx, "u1", time.Now()); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Tokens().FindActiveByDigest(ctx, tokendomain.TypeEmailVerification, []byte("a"), time.Now())
	require.NoError(t, err)
	u, err := s.Users().GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, u.Verified)

	err = s.WithinTx(ctx, func(ctx context.Context, tx authdomain.Tx) error {
		if _, err := tx.Tokens.ClaimByDigest(ctx, tokendomain.TypeEmailVerification, []byte("a"), time.Now()); err != nil {
			return err
		}
		return tx.Users.SetVerified(ctx, "u1", time.Now())
	})
	require.NoError(t, err)
	u, err = s.Users().GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, u.Verified)
	_, err = s.Tokens().FindActiveByDigest(ctx, tokendomain.TypeEmailVerification, []byte("a"), time.Now())
	assert.ErrorIs(t, err, tokendomain.ErrNotFound)
}
