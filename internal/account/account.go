package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	sl "account_service/internal/lib/logger/sl"
	"account_service/internal/models"
	"account_service/internal/storage"
)

var (
	ErrEmailTaken   = errors.New("email already taken")
	ErrUserNotFound = errors.New("user not found")
)

type Repository interface {
	SaveUser(ctx context.Context, email, name, passHash string) (models.User, error)
	User(ctx context.Context, email string) (models.User, error)
	UserByID(ctx context.Context, id int64) (models.User, error)
	SetEmailVerified(ctx context.Context, userID int64) error
	SetPasswordHash(ctx context.Context, userID int64, passHash string) error
}

type PasswordHasher interface {
	Hash(password string) (string, error)
}

type Directory struct {
	log    *slog.Logger
	repo   Repository
	hasher PasswordHasher
}

func New(log *slog.Logger, repo Repository, hasher PasswordHasher) *Directory {
	return &Directory{
		log:    log,
		repo:   repo,
		hasher: hasher,
	}
}

// Create registers a user. The lookup before insert only saves hashing
// work; uniqueness is enforced by the repository.
func (d *Directory) Create(ctx context.Context, email, name, password string) (models.User, error) {
	const op = "account.Create"

	log := d.log.With(slog.String("op", op))

	if _, err := d.repo.User(ctx, email); err == nil {
		log.Info("email already taken")
		return models.User{}, ErrEmailTaken
	} else if !errors.Is(err, storage.ErrUserNotFound) {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	passHash, err := d.hasher.Hash(password)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	user, err := d.repo.SaveUser(ctx, email, name, passHash)
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			log.Info("email taken concurrently")
			return models.User{}, ErrEmailTaken
		}

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user created", slog.Int64("uid", user.ID))

	return user, nil
}

func (d *Directory) FindByEmail(ctx context.Context, email string) (models.User, error) {
	const op = "account.FindByEmail"

	user, err := d.repo.User(ctx, email)
	if err != nil {
		return models.User{}, mapNotFound(op, err)
	}

	return user, nil
}

func (d *Directory) FindByID(ctx context.Context, id int64) (models.User, error) {
	const op = "account.FindByID"

	user, err := d.repo.UserByID(ctx, id)
	if err != nil {
		return models.User{}, mapNotFound(op, err)
	}

	return user, nil
}

func (d *Directory) MarkVerified(ctx context.Context, userID int64) error {
	const op = "account.MarkVerified"

	if err := d.repo.SetEmailVerified(ctx, userID); err != nil {
		return mapNotFound(op, err)
	}

	return nil
}

func (d *Directory) SetPasswordHash(ctx context.Context, userID int64, passHash string) error {
	const op = "account.SetPasswordHash"

	if err := d.repo.SetPasswordHash(ctx, userID, passHash); err != nil {
		return mapNotFound(op, err)
	}

	return nil
}

func mapNotFound(op string, err error) error {
	if errors.Is(err, storage.ErrUserNotFound) {
		return ErrUserNotFound
	}

	return fmt.Errorf("%s: %w", op, err)
}
