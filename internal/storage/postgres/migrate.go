package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"account_service/internal/storage/postgres/migrations"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// gooseUp is replaced in tests.
var gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
	return goose.UpContext(ctx, db, dir)
}

// Migrate применяет встроенные миграции к базе по dsn.
func Migrate(ctx context.Context, dsn string) error {
	const op = "storage.postgres.Migrate"

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("%s: open: %w", op, err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("%s: dialect: %w", op, err)
	}

	if err := gooseUp(ctx, db, "."); err != nil {
		return fmt.Errorf("%s: up: %w", op, err)
	}

	return nil
}
