package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/magiclink/internal/database"
	"github.com/BradenHooton/magiclink/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

const tokenColumns = `id, email, token, code, expires_at, is_active, context, user_agent, ip_address, last_used_at, created_at`

// TokenRepository stores magic-link credentials in PostgreSQL
type TokenRepository struct {
	pool *pgxpool.Pool
}

// NewTokenRepository creates a new TokenRepository
func NewTokenRepository(db *database.DB) *TokenRepository {
	return &TokenRepository{pool: db.Pool}
}

// scanTokenRow handles nullable fields and populates a TokenRecord from a database row
func scanTokenRow(row rowScanner) (*models.TokenRecord, error) {
	var record models.TokenRecord
	var userAgent, ipAddress *string
	var lastUsedAt *time.Time

	err := row.Scan(
		&record.ID, &record.Email, &record.Token, &record.Code,
		&record.ExpiresAt, &record.IsActive, &record.Context,
		&userAgent, &ipAddress, &lastUsedAt, &record.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if record.Context == nil {
		record.Context = map[string]any{}
	}
	record.UserAgent = userAgent
	record.IPAddress = ipAddress
	record.LastUsedAt = lastUsedAt

	return &record, nil
}

// InvalidateActiveByEmail deactivates every active credential of an email
func (r *TokenRepository) InvalidateActiveByEmail(ctx context.Context, email string) (int64, error) {
	query := `UPDATE magic_tokens SET is_active = FALSE WHERE email = $1 AND is_active`

	result, err := r.pool.Exec(ctx, query, email)
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate active tokens: %w", err)
	}

	return result.RowsAffected(), nil
}

// TokenExists reports whether any record, active or not, holds the token value
func (r *TokenRepository) TokenExists(ctx context.Context, token string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM magic_tokens WHERE token = $1)`

	if err := r.pool.QueryRow(ctx, query, token).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check token existence: %w", err)
	}

	return exists, nil
}

// ActiveCodeExists reports whether an active record of the email holds the code
func (r *TokenRepository) ActiveCodeExists(ctx context.Context, email, code string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM magic_tokens WHERE email = $1 AND code = $2 AND is_active)`

	if err := r.pool.QueryRow(ctx, query, email, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check code existence: %w", err)
	}

	return exists, nil
}

// Create inserts a new active record. Unique index violations surface as
// models.ErrConflict.
func (r *TokenRepository) Create(ctx context.Context, record *models.TokenRecord) (*models.TokenRecord, error) {
	query := `
		INSERT INTO magic_tokens (email, token, code, expires_at, is_active, context, user_agent, ip_address)
		VALUES ($1, $2, $3, $4, TRUE, $5, $6, $7)
		RETURNING ` + tokenColumns

	tokenContext := record.Context
	if tokenContext == nil {
		tokenContext = map[string]any{}
	}

	created, err := scanTokenRow(r.pool.QueryRow(ctx, query,
		record.Email, record.Token, record.Code, record.ExpiresAt,
		tokenContext, record.UserAgent, record.IPAddress,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create magic token: %w", err)
	}

	return created, nil
}

// GetActiveByToken retrieves the active record holding the token value
func (r *TokenRepository) GetActiveByToken(ctx context.Context, token string) (*models.TokenRecord, error) {
	query := `SELECT ` + tokenColumns + ` FROM magic_tokens WHERE token = $1 AND is_active`

	return scanTokenRow(r.pool.QueryRow(ctx, query, token))
}

// GetLatestActiveByEmailCode retrieves the newest active record matching email and code
func (r *TokenRepository) GetLatestActiveByEmailCode(ctx context.Context, email, code string) (*models.TokenRecord, error) {
	query := `
		SELECT ` + tokenColumns + `
		FROM magic_tokens
		WHERE email = $1 AND code = $2 AND is_active
		ORDER BY created_at DESC
		LIMIT 1
	`

	return scanTokenRow(r.pool.QueryRow(ctx, query, email, code))
}

// Deactivate flips an active record to inactive, reporting whether it applied
func (r *TokenRepository) Deactivate(ctx context.Context, id string) (bool, error) {
	query := `UPDATE magic_tokens SET is_active = FALSE WHERE id = $1 AND is_active`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate magic token: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

// MarkAsUsed consumes an active record, reporting whether this call won
func (r *TokenRepository) MarkAsUsed(ctx context.Context, id string, usedAt time.Time) (bool, error) {
	query := `
		UPDATE magic_tokens
		SET is_active = FALSE, last_used_at = $2
		WHERE id = $1 AND is_active
	`

	result, err := r.pool.Exec(ctx, query, id, usedAt)
	if err != nil {
		return false, fmt.Errorf("failed to mark magic token as used: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

// CountActive returns the number of active records
func (r *TokenRepository) CountActive(ctx context.Context) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM magic_tokens WHERE is_active`

	if err := r.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active tokens: %w", err)
	}

	return count, nil
}
