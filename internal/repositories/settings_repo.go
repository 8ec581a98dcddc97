package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/BradenHooton/magiclink/internal/database"
	"github.com/BradenHooton/magiclink/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SettingsRepository persists the dynamic email template layer as a single row
type SettingsRepository struct {
	pool *pgxpool.Pool
}

func NewSettingsRepository(db *database.DB) *SettingsRepository {
	return &SettingsRepository{pool: db.Pool}
}

// GetEmailSettings returns the persisted layer. A missing row yields empty
// settings, which resolve entirely to the lower layers.
func (r *SettingsRepository) GetEmailSettings(ctx context.Context) (*models.EmailTemplateSettings, error) {
	query := `
		SELECT default_from, default_reply_to, subject, text_template, html_template
		FROM email_settings WHERE id = 1
	`

	var s models.EmailTemplateSettings
	err := r.pool.QueryRow(ctx, query).Scan(&s.DefaultFrom, &s.DefaultReplyTo, &s.Subject, &s.Text, &s.HTML)
	if err != nil {
		err = database.MapPostgresError(err)
		if errors.Is(err, models.ErrNotFound) {
			return &models.EmailTemplateSettings{}, nil
		}
		return nil, fmt.Errorf("failed to load email settings: %w", err)
	}

	return &s, nil
}

// SaveEmailSettings overwrites the persisted layer verbatim
func (r *SettingsRepository) SaveEmailSettings(ctx context.Context, s *models.EmailTemplateSettings) (*models.EmailTemplateSettings, error) {
	query := `
		INSERT INTO email_settings (id, default_from, default_reply_to, subject, text_template, html_template, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE SET
			default_from = EXCLUDED.default_from,
			default_reply_to = EXCLUDED.default_reply_to,
			subject = EXCLUDED.subject,
			text_template = EXCLUDED.text_template,
			html_template = EXCLUDED.html_template,
			updated_at = EXCLUDED.updated_at
		RETURNING default_from, default_reply_to, subject, text_template, html_template
	`

	var saved models.EmailTemplateSettings
	err := r.pool.QueryRow(ctx, query, s.DefaultFrom, s.DefaultReplyTo, s.Subject, s.Text, s.HTML).
		Scan(&saved.DefaultFrom, &saved.DefaultReplyTo, &saved.Subject, &saved.Text, &saved.HTML)
	if err != nil {
		return nil, fmt.Errorf("failed to save email settings: %w", database.MapPostgresError(err))
	}

	return &saved, nil
}
