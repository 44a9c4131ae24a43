package memory

import (
	"context"
	"sort"
	"time"

	domain "docshare/backend/internal/domain/auth"
)

// UserRepository is the in-memory implementation of domain.UserRepository.
type UserRepository struct {
	exec func(fn func(st *state) error) error
}

var _ domain.UserRepository = (*UserRepository)(nil)

func (r *UserRepository) Create(_ context.Context, user *domain.User) error {
	return r.exec(func(st *state) error {
		for _, u := range st.users {
			if u.Email == user.Email {
				return domain.ErrEmailExists
			}
			if u.Username == user.Username {
				return domain.ErrUsernameExists
			}
		}
		st.users[user.ID] = *user
		return nil
	})
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return u.Email == email })
}

func (r *UserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	var out *domain.User
	err := r.exec(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return domain.ErrUserNotFound
		}
		out = &u
		return nil
	})
	return out, err
}

// GetByLogin prefers an email match over a username match.
func (r *UserRepository) GetByLogin(ctx context.Context, login string) (*domain.User, error) {
	u, err := r.GetByEmail(ctx, login)
	if err == nil {
		return u, nil
	}
	return r.find(func(u domain.User) bool { return u.Username == login })
}

func (r *UserRepository) find(match func(domain.User) bool) (*domain.User, error) {
	var out *domain.User
	err := r.exec(func(st *state) error {
		for _, u := range st.users {
			if match(u) {
				u := u
				out = &u
				return nil
			}
		}
		return domain.ErrUserNotFound
	})
	return out, err
}

func (r *UserRepository) List(_ context.Context, filter domain.UserFilter) ([]*domain.User, error) {
	var out []*domain.User
	err := r.exec(func(st *state) error {
		for _, u := range st.users {
			if filter.Role != "" && u.Role != filter.Role {
				continue
			}
			u := u
			out = append(out, &u)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, err
}

func (r *UserRepository) SetVerified(_ context.Context, id string, updatedAt time.Time) error {
	return r.update(id, func(u *domain.User) {
		u.Verified = true
		u.UpdatedAt = updatedAt
	})
}

func (r *UserRepository) UpdatePassword(_ context.Context, id, passwordHash string, updatedAt time.Time) error {
	return r.update(id, func(u *domain.User) {
		u.PasswordHash = passwordHash
		u.UpdatedAt = updatedAt
	})
}

func (r *UserRepository) UpdateTwoFactor(_ context.Context, id string, enabled bool, method domain.TwoFactorMethod, updatedAt time.Time) error {
	return r.update(id, func(u *domain.User) {
		u.TwoFactorEnabled = enabled
		u.TwoFactorMethod = method
		u.UpdatedAt = updatedAt
	})
}

func (r *UserRepository) UpdateProfile(_ context.Context, user *domain.User) error {
	return r.exec(func(st *state) error {
		current, ok := st.users[user.ID]
		if !ok {
			return domain.ErrUserNotFound
		}
		for id, u := range st.users {
			if id == user.ID {
				continue
			}
			if u.Email == user.Email {
				return domain.ErrEmailExists
			}
			if u.Username == user.Username {
				return domain.ErrUsernameExists
			}
		}
		current.Email = user.Email
		current.Username = user.Username
		current.FullName = user.FullName
		current.AvatarURL = user.AvatarURL
		current.Verified = user.Verified
		current.UpdatedAt = user.UpdatedAt
		st.users[user.ID] = current
		return nil
	})
}

func (r *UserRepository) update(id string, mutate func(u *domain.User)) error {
	return r.exec(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return domain.ErrUserNotFound
		}
		mutate(&u)
		st.users[id] = u
		return nil
	})
}
