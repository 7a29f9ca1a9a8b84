package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"account_service/internal/models"
	"account_service/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// DBPool is the part of *pgxpool.Pool used by the repository.
type DBPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

type PostgresRepo struct {
	pool DBPool
}

func New(ctx context.Context, dsn string) (*PostgresRepo, error) {
	const op = "storage.postgres.New"

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse config: %w", op, err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create pool: %w", op, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	return &PostgresRepo{pool: pool}, nil
}

func NewWithPool(pool DBPool) *PostgresRepo {
	return &PostgresRepo{pool: pool}
}

func (r *PostgresRepo) SaveUser(ctx context.Context, email, name, passHash string) (models.User, error) {
	const op = "storage.postgres.SaveUser"

	const query = `
		INSERT INTO users (email, name, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, created_at;
	`

	u := models.User{
		Email:    email,
		Name:     name,
		PassHash: passHash,
	}

	err := r.pool.QueryRow(ctx, query, email, name, passHash).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, storage.ErrUserExists
		}

		return models.User{}, fmt.Errorf("%s: failed to save user: %w", op, err)
	}

	u.CreatedAt = u.CreatedAt.UTC()

	return u, nil
}

func (r *PostgresRepo) User(ctx context.Context, email string) (models.User, error) {
	const query = `
		SELECT id, email, name, password_hash, is_verified, created_at
		FROM users
		WHERE email = $1;
	`

	return r.scanUser("storage.postgres.User", r.pool.QueryRow(ctx, query, email))
}

func (r *PostgresRepo) UserByID(ctx context.Context, id int64) (models.User, error) {
	const query = `
		SELECT id, email, name, password_hash, is_verified, created_at
		FROM users
		WHERE id = $1;
	`

	return r.scanUser("storage.postgres.UserByID", r.pool.QueryRow(ctx, query, id))
}

func (r *PostgresRepo) scanUser(op string, row pgx.Row) (models.User, error) {
	var u models.User

	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.PassHash,
		&u.IsVerified,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	u.CreatedAt = u.CreatedAt.UTC()

	return u, nil
}

func (r *PostgresRepo) SetEmailVerified(ctx context.Context, userID int64) error {
	const op = "storage.postgres.SetEmailVerified"

	tag, err := r.pool.Exec(ctx, `UPDATE users SET is_verified = TRUE WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

func (r *PostgresRepo) SetPasswordHash(ctx context.Context, userID int64, passHash string) error {
	const op = "storage.postgres.SetPasswordHash"

	tag, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $1 WHERE id = $2`, passHash, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

func (r *PostgresRepo) SaveRefreshToken(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	const op = "storage.postgres.SaveRefreshToken"

	const query = `
		INSERT INTO refresh_tokens (user_id, token, expires_at)
		VALUES ($1, $2, $3)
	`

	if _, err := r.pool.Exec(ctx, query, userID, token, expiresAt.UTC()); err != nil {
		if isUniqueViolation(err) {
			return storage.ErrRefreshTokenExists
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *PostgresRepo) RefreshToken(ctx context.Context, token string) (models.RefreshToken, error) {
	const op = "storage.postgres.RefreshToken"

	const query = `
		SELECT id, user_id, token, expires_at, revoked, created_at
		FROM refresh_tokens
		WHERE token = $1;
	`

	var rt models.RefreshToken

	err := r.pool.QueryRow(ctx, query, token).Scan(
		&rt.ID,
		&rt.UserID,
		&rt.Token,
		&rt.ExpiresAt,
		&rt.Revoked,
		&rt.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.RefreshToken{}, storage.ErrRefreshTokenNotFound
		}

		return models.RefreshToken{}, fmt.Errorf("%s: %w", op, err)
	}

	rt.ExpiresAt = rt.ExpiresAt.UTC()
	rt.CreatedAt = rt.CreatedAt.UTC()

	return rt, nil
}

// RevokeRefreshToken reports whether a token row exists; revoking an
// already revoked token still reports true.
func (r *PostgresRepo) RevokeRefreshToken(ctx context.Context, token string) (bool, error) {
	const op = "storage.postgres.RevokeRefreshToken"

	tag, err := r.pool.Exec(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE token = $1`, token)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected() > 0, nil
}

// RotateRefreshToken revokes oldToken and stores newToken for the same user
// in one transaction. The revoke only matches an active row, so of two
// concurrent rotations of the same token exactly one succeeds.
func (r *PostgresRepo) RotateRefreshToken(
	ctx context.Context,
	oldToken, newToken string,
	now, expiresAt time.Time,
) (int64, error) {
	const op = "storage.postgres.RotateRefreshToken"

	const revokeQuery = `
		UPDATE refresh_tokens
		SET revoked = TRUE
		WHERE token = $1 AND revoked = FALSE AND expires_at > $2
		RETURNING user_id;
	`

	const insertQuery = `
		INSERT INTO refresh_tokens (user_id, token, expires_at)
		VALUES ($1, $2, $3)
	`

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: begin: %w", op, err)
	}

	var userID int64

	if err := tx.QueryRow(ctx, revokeQuery, oldToken, now.UTC()).Scan(&userID); err != nil {
		_ = tx.Rollback(ctx)

		if errors.Is(err, pgx.ErrNoRows) {
			return 0, storage.ErrRefreshTokenNotFound
		}

		return 0, fmt.Errorf("%s: revoke: %w", op, err)
	}

	if _, err := tx.Exec(ctx, insertQuery, userID, newToken, expiresAt.UTC()); err != nil {
		_ = tx.Rollback(ctx)

		if isUniqueViolation(err) {
			return 0, storage.ErrRefreshTokenExists
		}

		return 0, fmt.Errorf("%s: insert: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%s: commit: %w", op, err)
	}

	return userID, nil
}

func (r *PostgresRepo) RevokeUserRefreshTokens(ctx context.Context, userID int64) (int64, error) {
	const op = "storage.postgres.RevokeUserRefreshTokens"

	tag, err := r.pool.Exec(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE WHERE user_id = $1 AND revoked = FALSE`,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected(), nil
}

// * DeleteExpiredRefreshTokens удаляет токены, срок действия которых истек до before
func (r *PostgresRepo) DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	const op = "storage.postgres.DeleteExpiredRefreshTokens"

	tag, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected(), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError

	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (r *PostgresRepo) Close() {
	r.pool.Close()
}
