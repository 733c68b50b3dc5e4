package fakeuserrepo

import (
	"context"
	"sync"

	"github.com/jrsteele09/auth-service/users"
)

var _ users.Repo = (*FakeUserRepo)(nil)

// FakeUserRepo is the in-memory credential store.
type FakeUserRepo struct {
	users map[users.Email]users.User
	lock  sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users: make(map[users.Email]users.User),
	}
}

func (ur *FakeUserRepo) Add(_ context.Context, user *users.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if _, ok := ur.users[user.Email]; ok {
		return users.ErrUserAlreadyExists
	}
	ur.users[user.Email] = *user
	return nil
}

func (ur *FakeUserRepo) Get(_ context.Context, email users.Email) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	user, ok := ur.users[email]
	if !ok {
		return nil, users.ErrUserNotFound
	}
	return &user, nil
}

func (ur *FakeUserRepo) Validate(ctx context.Context, email users.Email, password users.Password) error {
	user, err := ur.Get(ctx, email)
	if err != nil {
		return err
	}
	if !user.CheckPassword(password) {
		return users.ErrInvalidCredentials
	}
	return nil
}
