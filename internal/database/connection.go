package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BradenHooton/magiclink/internal/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 2 * time.Second
)

// DB wraps the pgx pool shared by the token, user and settings repositories.
type DB struct {
	Pool   *pgxpool.Pool
	logger *slog.Logger
}

// PoolStats is a point-in-time view of the connection pool.
type PoolStats struct {
	Acquired int32
	Idle     int32
	Total    int32
	Max      int32
	// EmptyAcquires counts acquires that had to wait for a connection.
	EmptyAcquires int64
}

// NewConnection opens the pool and verifies it with a ping. ctx bounds the
// whole dial; connectTimeout applies on top of it.
func NewConnection(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to reach %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.Name, err)
	}

	logger.Info("database connection established",
		slog.String("host", cfg.Host),
		slog.String("database", cfg.Name),
		slog.Int("max_conns", int(cfg.MaxConns)),
		slog.Int("min_conns", int(cfg.MinConns)),
	)

	return &DB{Pool: pool, logger: logger}, nil
}

// Close drains the pool, logging how busy it was at shutdown.
func (db *DB) Close() {
	stats := db.Stats()
	db.logger.Info("closing database connection pool",
		slog.Int("acquired_conns", int(stats.Acquired)),
		slog.Int("total_conns", int(stats.Total)))
	db.Pool.Close()
}

// HealthCheck pings the database; it backs GET /health.
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := db.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Stats snapshots the pool for the metrics registry.
func (db *DB) Stats() PoolStats {
	return statsFrom(db.Pool.Stat())
}

func statsFrom(s *pgxpool.Stat) PoolStats {
	return PoolStats{
		Acquired:      s.AcquiredConns(),
		Idle:          s.IdleConns(),
		Total:         s.TotalConns(),
		Max:           s.MaxConns(),
		EmptyAcquires: s.EmptyAcquireCount(),
	}
}
