// Package testutil provides in-memory store implementations for tests.
package testutil

import (
	"context"
	"strings"
	"sync"
	"time"

	apperrors "github.com/shoplane/accounts/internal/errors"
	"github.com/shoplane/accounts/internal/model"
	"gorm.io/gorm"
)

// FakeUserStore is a map-backed UserStore that enforces the same uniqueness
// semantics as the postgres repository, under a single lock so concurrent
// registration races resolve to exactly one winner.
type FakeUserStore struct {
	mu     sync.Mutex
	nextID uint
	users  map[uint]*model.User

	// Err, when set, is returned by every method to simulate a broken store
	Err error
	// LastLoginErr fails only UpdateLastLogin, for best-effort-path tests
	LastLoginErr error
}

func NewFakeUserStore() *FakeUserStore {
	return &FakeUserStore{
		nextID: 1,
		users:  make(map[uint]*model.User),
	}
}

func (s *FakeUserStore) FindByID(ctx context.Context, id uint) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	user, ok := s.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *FakeUserStore) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	for _, user := range s.users {
		if strings.EqualFold(user.Email, email) {
			copied := *user
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *FakeUserStore) FindByEmailOrUsername(ctx context.Context, identifier string) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	var matches []model.User
	for _, user := range s.users {
		if strings.EqualFold(user.Email, identifier) || strings.EqualFold(user.Username, identifier) {
			matches = append(matches, *user)
		}
	}
	return matches, nil
}

func (s *FakeUserStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}

	for _, user := range s.users {
		if strings.EqualFold(user.Username, username) {
			return true, nil
		}
	}
	return false, nil
}

func (s *FakeUserStore) conflicts(candidate *model.User) bool {
	for id, user := range s.users {
		if id == candidate.ID {
			continue
		}
		if strings.EqualFold(user.Email, candidate.Email) {
			return true
		}
		if strings.EqualFold(user.Username, candidate.Username) {
			return true
		}
		if user.Mobile != nil && candidate.Mobile != nil && *user.Mobile == *candidate.Mobile {
			return true
		}
	}
	return false
}

func (s *FakeUserStore) Create(ctx context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	if s.conflicts(user) {
		return apperrors.WrapError(apperrors.ErrUniquenessConflict, gorm.ErrDuplicatedKey)
	}

	user.ID = s.nextID
	s.nextID++
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt

	copied := *user
	s.users[user.ID] = &copied
	return nil
}

func (s *FakeUserStore) Save(ctx context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	if _, ok := s.users[user.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	if s.conflicts(user) {
		return apperrors.WrapError(apperrors.ErrUniquenessConflict, gorm.ErrDuplicatedKey)
	}

	user.UpdatedAt = time.Now()
	copied := *user
	s.users[user.ID] = &copied
	return nil
}

func (s *FakeUserStore) UpdateProfile(ctx context.Context, id uint, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	user, ok := s.users[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}

	for key, value := range fields {
		switch key {
		case "first_name":
			user.FirstName = value.(string)
		case "last_name":
			user.LastName = value.(string)
		case "address":
			user.Address = value.(string)
		case "pin_code":
			user.PinCode = value.(string)
		case "mobile":
			if value == nil {
				user.Mobile = nil
			} else {
				mobile := value.(string)
				user.Mobile = &mobile
			}
		}
	}
	user.UpdatedAt = time.Now()
	return nil
}

func (s *FakeUserStore) UpdateLastLogin(ctx context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if s.LastLoginErr != nil {
		return s.LastLoginErr
	}

	user, ok := s.users[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	now := time.Now()
	user.LastLogin = &now
	return nil
}

func (s *FakeUserStore) List(ctx context.Context) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	users := make([]model.User, 0, len(s.users))
	for id := uint(1); id < s.nextID; id++ {
		if user, ok := s.users[id]; ok {
			users = append(users, *user)
		}
	}
	return users, nil
}

// Deactivate flips a user's active flag, for disabled-account tests
func (s *FakeUserStore) Deactivate(id uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user, ok := s.users[id]; ok {
		user.IsActive = false
	}
}

// Promote grants the staff flag, for admin-endpoint tests
func (s *FakeUserStore) Promote(id uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user, ok := s.users[id]; ok {
		user.IsStaff = true
	}
}

// FakeTokenStore is a map-backed TokenStore keyed by jti.
type FakeTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*model.RefreshToken

	Err error
}

func NewFakeTokenStore() *FakeTokenStore {
	return &FakeTokenStore{tokens: make(map[string]*model.RefreshToken)}
}

func (s *FakeTokenStore) Create(ctx context.Context, token *model.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	copied := *token
	s.tokens[token.JTI] = &copied
	return nil
}

func (s *FakeTokenStore) FindByJTI(ctx context.Context, jti string) (*model.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	token, ok := s.tokens[jti]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *token
	return &copied, nil
}

func (s *FakeTokenStore) Revoke(ctx context.Context, jti string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	token, ok := s.tokens[jti]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if token.RevokedAt == nil {
		now := time.Now()
		token.RevokedAt = &now
	}
	return nil
}

func (s *FakeTokenStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}

	token, ok := s.tokens[jti]
	if !ok {
		// Unknown jti is treated as revoked, same as the repository
		return true, nil
	}
	return token.RevokedAt != nil, nil
}

func (s *FakeTokenStore) OutstandingForUser(ctx context.Context, userID uint) ([]model.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	var out []model.RefreshToken
	for _, token := range s.tokens {
		if token.UserID == userID && token.RevokedAt == nil && token.ExpiresAt.After(time.Now()) {
			out = append(out, *token)
		}
	}
	return out, nil
}

// Forget drops a record entirely, simulating an expired-token cleanup that
// removed a row while the signed token is still in circulation.
func (s *FakeTokenStore) Forget(jti string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, jti)
}

func (s *FakeTokenStore) DeleteExpired(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}

	var deleted int64
	for jti, token := range s.tokens {
		if token.ExpiresAt.Before(time.Now()) {
			delete(s.tokens, jti)
			deleted++
		}
	}
	return deleted, nil
}
