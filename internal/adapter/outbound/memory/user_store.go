package memory

import (
	"context"
	"sync"
	"time"

	"github.com/voltigdev/voltig-turbo/internal/domain/auth"
)

// UserStore implements auth.UserStore with in-memory maps.
// Thread-safe for concurrent access. For development/testing only.
type UserStore struct {
	users    map[string]*auth.User    // ID -> User
	byEmail  map[string]string        // email -> ID
	accounts map[string]*auth.Account // userID -> credential Account
	mu       sync.RWMutex
}

// NewUserStore creates a new in-memory user store.
func NewUserStore() *UserStore {
	return &UserStore{
		users:    make(map[string]*auth.User),
		byEmail:  make(map[string]string),
		accounts: make(map[string]*auth.Account),
	}
}

// CreateUser stores a user together with its credential account.
func (s *UserStore) CreateUser(ctx context.Context, user *auth.User, account *auth.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[user.Email]; taken {
		return auth.ErrEmailTaken
	}
	s.users[user.ID] = copyUser(user)
	s.byEmail[user.Email] = user.ID
	if account != nil {
		accountCopy := *account
		s.accounts[user.ID] = &accountCopy
	}
	return nil
}

// GetUser retrieves a user by ID.
func (s *UserStore) GetUser(ctx context.Context, id string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return copyUser(user), nil
}

// GetUserByEmail retrieves a user by email.
func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return copyUser(s.users[id]), nil
}

// GetCredentialAccount retrieves the credential account of a user.
func (s *UserStore) GetCredentialAccount(ctx context.Context, userID string) (*auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[userID]
	if !ok {
		return nil, auth.ErrAccountNotFound
	}
	accountCopy := *account
	return &accountCopy, nil
}

// MarkEmailVerified sets EmailVerified on a user.
func (s *UserStore) MarkEmailVerified(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return auth.ErrUserNotFound
	}
	user.EmailVerified = true
	user.UpdatedAt = time.Now().UTC()
	return nil
}

// CountUsers returns the number of registered users.
func (s *UserStore) CountUsers(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}

// copyUser creates a deep copy of a user.
func copyUser(u *auth.User) *auth.User {
	userCopy := *u
	if u.Image != nil {
		image := *u.Image
		userCopy.Image = &image
	}
	if u.Role != nil {
		role := *u.Role
		userCopy.Role = &role
	}
	return &userCopy
}

// Compile-time interface verification.
var _ auth.UserStore = (*UserStore)(nil)
