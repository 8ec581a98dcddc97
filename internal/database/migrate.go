package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/BradenHooton/magiclink/migrations"
)

// Migrate applies the embedded goose migrations to the pool's database.
func Migrate(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}

	// Goose needs a database/sql handle
	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	before, err := goose.GetDBVersionContext(ctx, sqlDB)
	if err != nil {
		return fmt.Errorf("read migration version: %w", err)
	}

	if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	after, err := goose.GetDBVersionContext(ctx, sqlDB)
	if err != nil {
		return fmt.Errorf("read migration version: %w", err)
	}

	if logger != nil {
		logger.Info("database migrations applied",
			slog.Int64("from_version", before),
			slog.Int64("to_version", after),
		)
	}

	return nil
}
