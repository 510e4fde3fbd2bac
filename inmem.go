package accountsvc

import (
	"context"
	"sync"
)

type userRepository struct {
	mu    sync.RWMutex
	users map[ID]*User
}

func NewUserRepository() Repository {
	return &userRepository{users: map[ID]*User{}}
}

func (repo *userRepository) FindByID(_ context.Context, id ID) (*User, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	if u, ok := repo.users[id]; ok {
		return u, nil
	}
	return nil, ErrNotFound
}

func (repo *userRepository) FindByEmail(_ context.Context, email string) (*User, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	for _, v := range repo.users {
		if v.Email == email {
			return v, nil
		}
	}
	return nil, ErrNotFound
}

func (repo *userRepository) FindByName(_ context.Context, username string) (*User, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	for _, v := range repo.users {
		if v.Username == username {
			return v, nil
		}
	}
	return nil, ErrNotFound
}

func (repo *userRepository) Store(_ context.Context, u *User) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	for _, v := range repo.users {
		if v.Email == u.Email {
			return ErrExistingEmail
		}
		if v.Username == u.Username {
			return ErrExistingUsername
		}
	}
	repo.users[u.ID] = u
	return nil
}

func (repo *userRepository) Update(_ context.Context, u *User) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if _, ok := repo.users[u.ID]; !ok {
		return ErrNotFound
	}
	repo.users[u.ID] = u
	return nil
}

// tokenRepository keeps both directions of the token binding so Resolve
// stays an exact-match lookup. One mutex guards both maps; issue must be
// get-or-create atomic under concurrent logins.
type tokenRepository struct {
	mu      sync.Mutex
	byUser  map[ID]string
	byToken map[string]ID
}

func NewTokenRepository() TokenRepository {
	return &tokenRepository{byUser: map[ID]string{}, byToken: map[string]ID{}}
}

func (repo *tokenRepository) IssueOrReuse(_ context.Context, userID ID, candidate string) (string, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if t, ok := repo.byUser[userID]; ok {
		return t, nil
	}
	repo.byUser[userID] = candidate
	repo.byToken[candidate] = userID
	return candidate, nil
}

func (repo *tokenRepository) Resolve(_ context.Context, token string) (ID, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if id, ok := repo.byToken[token]; ok {
		return id, nil
	}
	return "", ErrTokenNotFound
}

func (repo *tokenRepository) Revoke(_ context.Context, userID ID) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	t, ok := repo.byUser[userID]
	if !ok {
		return ErrTokenNotFound
	}
	delete(repo.byUser, userID)
	delete(repo.byToken, t)
	return nil
}
