// Package memory provides process-local repositories for development and
// tests. Data does not survive a restart.
package memory

import (
	"context"
	"sync"

	authdomain "docshare/backend/internal/domain/auth"
	tokendomain "docshare/backend/internal/domain/token"
)

type state struct {
	users  map[string]authdomain.User
	tokens map[string]tokendomain.Token
}

func newState() *state {
	return &state{
		users:  make(map[string]authdomain.User),
		tokens: make(map[string]tokendomain.Token),
	}
}

func (s *state) clone() *state {
	c := &state{
		users:  make(map[string]authdomain.User, len(s.users)),
		tokens: make(map[string]tokendomain.Token, len(s.tokens)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.tokens {
		v.Digest = append([]byte(nil), v.Digest...)
		c.tokens[k] = v
	}
	return c
}

// Store holds users and ledger records in maps. Writes made inside WithinTx
// go to a private copy that replaces the live state only on success.
type Store struct {
	mu   sync.Mutex
	data *state
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{data: newState()}
}

// run executes fn against the live state under the store lock.
func (s *Store) run(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

// Users returns a user repository over the live state.
func (s *Store) Users() *UserRepository {
	return &UserRepository{exec: s.run}
}

// Tokens returns a ledger repository over the live state.
func (s *Store) Tokens() *TokenRepository {
	return &TokenRepository{exec: s.run}
}

var _ authdomain.Transactor = (*Store)(nil)

// WithinTx runs fn with exclusive access to the store. Repositories passed
// to fn must not be used after it returns.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx authdomain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	exec := func(f func(st *state) error) error { return f(work) }
	if err := fn(ctx, authdomain.Tx{
		Users:  &UserRepository{exec: exec},
		Tokens: &TokenRepository{exec: exec},
	}); err != nil {
		return err
	}
	s.data = work
	return nil
}
