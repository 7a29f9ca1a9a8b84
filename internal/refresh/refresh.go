// Package refresh manages persisted refresh tokens: issuing, validating,
// rotating, revoking and sweeping expired records.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sl "account_service/internal/lib/logger/sl"
	"account_service/internal/models"
	"account_service/internal/storage"

	"github.com/google/uuid"
)

// ErrTokenNotActive is returned by Rotate when the token is unknown,
// revoked or expired.
var ErrTokenNotActive = errors.New("refresh token is not active")

type Repository interface {
	SaveRefreshToken(ctx context.Context, userID int64, token string, expiresAt time.Time) error
	RefreshToken(ctx context.Context, token string) (models.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, token string) (bool, error)
	RotateRefreshToken(ctx context.Context, oldToken, newToken string, now, expiresAt time.Time) (int64, error)
	RevokeUserRefreshTokens(ctx context.Context, userID int64) (int64, error)
	DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error)
}

type Store struct {
	log      *slog.Logger
	repo     Repository
	ttl      time.Duration
	now      func() time.Time
	newToken func() string
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func WithTokenGenerator(gen func() string) Option {
	return func(s *Store) {
		s.newToken = gen
	}
}

func New(log *slog.Logger, repo Repository, ttl time.Duration, opts ...Option) *Store {
	s := &Store{
		log:      log,
		repo:     repo,
		ttl:      ttl,
		now:      time.Now,
		newToken: uuid.NewString,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Issue creates and persists a new token for userID. The token is only
// returned once the record is stored.
func (s *Store) Issue(ctx context.Context, userID int64) (models.RefreshToken, error) {
	const op = "refresh.Issue"

	rt := models.RefreshToken{
		UserID:    userID,
		Token:     s.newToken(),
		ExpiresAt: s.expiry(),
	}

	if err := s.repo.SaveRefreshToken(ctx, rt.UserID, rt.Token, rt.ExpiresAt); err != nil {
		return models.RefreshToken{}, fmt.Errorf("%s: %w", op, err)
	}

	return rt, nil
}

// Validate returns the owner of token when it exists, is not revoked and
// expires strictly after now.
func (s *Store) Validate(ctx context.Context, token string) (int64, bool, error) {
	const op = "refresh.Validate"

	rt, err := s.repo.RefreshToken(ctx, token)
	if err != nil {
		if errors.Is(err, storage.ErrRefreshTokenNotFound) {
			return 0, false, nil
		}

		return 0, false, fmt.Errorf("%s: %w", op, err)
	}

	if !rt.IsActive(s.now()) {
		return 0, false, nil
	}

	return rt.UserID, true, nil
}

// Revoke marks token revoked and reports whether it exists. Repeated calls
// keep reporting true.
func (s *Store) Revoke(ctx context.Context, token string) (bool, error) {
	const op = "refresh.Revoke"

	found, err := s.repo.RevokeRefreshToken(ctx, token)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return found, nil
}

// Rotate revokes token and issues its replacement atomically.
func (s *Store) Rotate(ctx context.Context, token string) (models.RefreshToken, error) {
	const op = "refresh.Rotate"

	next := models.RefreshToken{
		Token:     s.newToken(),
		ExpiresAt: s.expiry(),
	}

	userID, err := s.repo.RotateRefreshToken(ctx, token, next.Token, s.now().UTC(), next.ExpiresAt)
	if err != nil {
		if errors.Is(err, storage.ErrRefreshTokenNotFound) {
			return models.RefreshToken{}, ErrTokenNotActive
		}

		return models.RefreshToken{}, fmt.Errorf("%s: %w", op, err)
	}

	next.UserID = userID

	return next, nil
}

func (s *Store) RevokeAll(ctx context.Context, userID int64) (int64, error) {
	const op = "refresh.RevokeAll"

	n, err := s.repo.RevokeUserRefreshTokens(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

// SweepExpired deletes tokens with expires_at < now. Revoked tokens that
// have not expired yet are kept.
func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	const op = "refresh.SweepExpired"

	n, err := s.repo.DeleteExpiredRefreshTokens(ctx, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

// * RunSweeper периодически удаляет истекшие токены, пока ctx не отменен
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration, onSwept func(n int64)) {
	const op = "refresh.RunSweeper"

	log := s.log.With(slog.String("op", op))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("sweeper stopped")
			return
		case <-ticker.C:
			n, err := s.SweepExpired(ctx, s.now())
			if err != nil {
				log.Error("failed to sweep expired refresh tokens", sl.Err(err))
				continue
			}

			if onSwept != nil {
				onSwept(n)
			}

			log.Debug("expired refresh tokens swept", slog.Int64("count", n))
		}
	}
}

func (s *Store) expiry() time.Time {
	return s.now().UTC().Add(s.ttl).Truncate(time.Microsecond)
}
