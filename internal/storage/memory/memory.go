// Package memory keeps users, refresh tokens and used-token marks in
// process memory. It backs the "memory" storage driver for local runs and
// the service-level tests; it offers the same guarantees as the Postgres
// repository (unique emails and tokens, atomic rotation).
package memory

import (
	"context"
	"sync"
	"time"

	"account_service/internal/models"
	"account_service/internal/storage"
)

type Storage struct {
	mu sync.Mutex

	now func() time.Time

	lastUserID  int64
	lastTokenID int64

	users        map[int64]models.User
	usersByEmail map[string]int64
	tokens       map[string]models.RefreshToken
	usedMarks    map[string]time.Time
}

func New() *Storage {
	return NewWithClock(time.Now)
}

func NewWithClock(now func() time.Time) *Storage {
	return &Storage{
		now:          now,
		users:        make(map[int64]models.User),
		usersByEmail: make(map[string]int64),
		tokens:       make(map[string]models.RefreshToken),
		usedMarks:    make(map[string]time.Time),
	}
}

func (s *Storage) SaveUser(_ context.Context, email, name, passHash string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.usersByEmail[email]; ok {
		return models.User{}, storage.ErrUserExists
	}

	s.lastUserID++

	u := models.User{
		ID:        s.lastUserID,
		Email:     email,
		Name:      name,
		PassHash:  passHash,
		CreatedAt: s.now().UTC(),
	}

	s.users[u.ID] = u
	s.usersByEmail[email] = u.ID

	return u, nil
}

func (s *Storage) User(_ context.Context, email string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.usersByEmail[email]
	if !ok {
		return models.User{}, storage.ErrUserNotFound
	}

	return s.users[id], nil
}

func (s *Storage) UserByID(_ context.Context, id int64) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return models.User{}, storage.ErrUserNotFound
	}

	return u, nil
}

func (s *Storage) SetEmailVerified(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return storage.ErrUserNotFound
	}

	u.IsVerified = true
	s.users[userID] = u

	return nil
}

func (s *Storage) SetPasswordHash(_ context.Context, userID int64, passHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return storage.ErrUserNotFound
	}

	u.PassHash = passHash
	s.users[userID] = u

	return nil
}

func (s *Storage) SaveRefreshToken(_ context.Context, userID int64, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertToken(userID, token, expiresAt)
}

func (s *Storage) insertToken(userID int64, token string, expiresAt time.Time) error {
	if _, ok := s.tokens[token]; ok {
		return storage.ErrRefreshTokenExists
	}

	s.lastTokenID++

	s.tokens[token] = models.RefreshToken{
		ID:        s.lastTokenID,
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: s.now().UTC(),
	}

	return nil
}

func (s *Storage) RefreshToken(_ context.Context, token string) (models.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rt, ok := s.tokens[token]
	if !ok {
		return models.RefreshToken{}, storage.ErrRefreshTokenNotFound
	}

	return rt, nil
}

func (s *Storage) RevokeRefreshToken(_ context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rt, ok := s.tokens[token]
	if !ok {
		return false, nil
	}

	rt.Revoked = true
	s.tokens[token] = rt

	return true, nil
}

func (s *Storage) RotateRefreshToken(_ context.Context, oldToken, newToken string, now, expiresAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rt, ok := s.tokens[oldToken]
	if !ok || !rt.IsActive(now) {
		return 0, storage.ErrRefreshTokenNotFound
	}

	if err := s.insertToken(rt.UserID, newToken, expiresAt); err != nil {
		return 0, err
	}

	rt.Revoked = true
	s.tokens[oldToken] = rt

	return rt.UserID, nil
}

func (s *Storage) RevokeUserRefreshTokens(_ context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64

	for token, rt := range s.tokens {
		if rt.UserID == userID && !rt.Revoked {
			rt.Revoked = true
			s.tokens[token] = rt
			n++
		}
	}

	return n, nil
}

func (s *Storage) DeleteExpiredRefreshTokens(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64

	for token, rt := range s.tokens {
		if rt.ExpiresAt.Before(before.UTC()) {
			delete(s.tokens, token)
			n++
		}
	}

	return n, nil
}

// MarkTokenUsed reports true the first time key is seen within ttl.
func (s *Storage) MarkTokenUsed(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	if until, ok := s.usedMarks[key]; ok && now.Before(until) {
		return false, nil
	}

	s.usedMarks[key] = now.Add(ttl)

	return true, nil
}
