package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/magiclink/internal/database"
	"github.com/BradenHooton/magiclink/internal/models"
	"github.com/BradenHooton/magiclink/pkg/auth"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, email, username, name, provider, confirmed, blocked, role, token_key, user_agent, client_ip, attribution, created_at, updated_at`

type UserRepository struct {
	db   *database.DB
	pool *pgxpool.Pool
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db, pool: db.Pool}
}

// rowScanner interface for scanning rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanUserRow handles nullable fields and populates a User model from a database row
func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User
	var userAgent, clientIP *string

	err := scanner.Scan(
		&user.ID, &user.Email, &user.Username, &user.Name, &user.Provider,
		&user.Confirmed, &user.Blocked, &user.Role, &user.TokenKey,
		&userAgent, &clientIP, &user.Attribution,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	user.UserAgent = userAgent
	user.ClientIP = clientIP
	if user.Attribution == nil {
		user.Attribution = map[string]any{}
	}

	return &user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	return scanUserRow(r.pool.QueryRow(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	return scanUserRow(r.pool.QueryRow(ctx, query, email))
}

// Create inserts a user with a fresh id and per-user token key. A duplicate
// email surfaces as models.ErrConflict.
func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	user.ID = uuid.New().String()

	tokenKey, err := auth.GenerateTokenKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token key: %w", err)
	}
	user.TokenKey = tokenKey

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	if user.Role == "" {
		user.Role = models.RoleAuthenticated
	}
	if user.Provider == "" {
		user.Provider = models.ProviderMagicLink
	}

	attribution := user.Attribution
	if attribution == nil {
		attribution = map[string]any{}
	}

	query := `
		INSERT INTO users (id, email, username, name, provider, confirmed, blocked, role, token_key, user_agent, client_ip, attribution, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING ` + userColumns

	return scanUserRow(r.pool.QueryRow(ctx, query,
		user.ID, user.Email, user.Username, user.Name, user.Provider,
		user.Confirmed, user.Blocked, user.Role, user.TokenKey,
		user.UserAgent, user.ClientIP, attribution,
		user.CreatedAt, user.UpdatedAt,
	))
}

// MarkConfirmed sets confirmed on an existing user and returns the stored row
func (r *UserRepository) MarkConfirmed(ctx context.Context, id string) (*models.User, error) {
	query := `
		UPDATE users SET confirmed = TRUE, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	return scanUserRow(r.pool.QueryRow(ctx, query, id))
}

// UpdateRole changes a user's role. A real change also rotates the user's
// token key, so sessions signed under the old role stop validating.
func (r *UserRepository) UpdateRole(ctx context.Context, id, role string) (*models.User, error) {
	var updated *models.User

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		current, err := scanUserRow(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if current.Role == role {
			updated = current
			return nil
		}

		tokenKey, err := auth.GenerateTokenKey()
		if err != nil {
			return fmt.Errorf("failed to generate token key: %w", err)
		}

		query := `
			UPDATE users SET role = $2, token_key = $3, updated_at = NOW()
			WHERE id = $1
			RETURNING ` + userColumns

		updated, err = scanUserRow(tx.QueryRow(ctx, query, id, role, tokenKey))
		return err
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}
