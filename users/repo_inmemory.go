package users

import (
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-token-broker/internal/errors"
)

var _ UserRepo = (*InMemoryRepo)(nil)

type InMemoryRepo struct {
	users       map[string]*User
	usernameIDs map[string]string // username to user id
	lock        sync.RWMutex
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		users:       make(map[string]*User),
		usernameIDs: make(map[string]string),
	}
}

func (ur *InMemoryRepo) Upsert(user *User) error {
	if user.Username == "" {
		return errors.Wrapf(errors.ErrInvalidRequest, "username is required")
	}

	ur.lock.Lock()
	defer ur.lock.Unlock()

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	ur.users[user.ID] = user.clone()
	ur.usernameIDs[user.Username] = user.ID
	return nil
}

func (ur *InMemoryRepo) GetByUsername(username string) (*User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.usernameIDs[username]
	if !ok {
		return nil, errors.ErrUserNotFound
	}
	return ur.users[id].clone(), nil
}

func (ur *InMemoryRepo) GetByID(id string) (*User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	user, ok := ur.users[id]
	if !ok {
		return nil, errors.ErrUserNotFound
	}
	return user.clone(), nil
}
