package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/magiclink/internal/models"
	"github.com/BradenHooton/magiclink/internal/settings"
	pkglogger "github.com/BradenHooton/magiclink/pkg/logger"
)

// SettingsRepository persists the dynamic email template layer
type SettingsRepository interface {
	GetEmailSettings(ctx context.Context) (*models.EmailTemplateSettings, error)
	SaveEmailSettings(ctx context.Context, s *models.EmailTemplateSettings) (*models.EmailTemplateSettings, error)
}

// SettingsService resolves layered token and email settings and manages the
// persisted email layer.
type SettingsService struct {
	repo            SettingsRepository
	deploymentEmail models.EmailTemplateSettings
	deploymentToken models.TokenSettings
	logger          *slog.Logger
	auditLogger     *pkglogger.AuditLogger
}

// NewSettingsService creates a new SettingsService over the deployment layers
func NewSettingsService(
	repo SettingsRepository,
	deploymentEmail models.EmailTemplateSettings,
	deploymentToken models.TokenSettings,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *SettingsService {
	return &SettingsService{
		repo:            repo,
		deploymentEmail: deploymentEmail,
		deploymentToken: deploymentToken,
		logger:          logger,
		auditLogger:     auditLogger,
	}
}

// ResolveTokenSettings merges the built-in and deployment token layers
func (s *SettingsService) ResolveTokenSettings(ctx context.Context) models.TokenSettings {
	return settings.ResolveToken(settings.BuiltinToken(), s.deploymentToken)
}

// ResolveEmailSettings merges built-in, deployment and persisted email layers
func (s *SettingsService) ResolveEmailSettings(ctx context.Context) (models.EmailTemplateSettings, error) {
	persisted, err := s.repo.GetEmailSettings(ctx)
	if err != nil {
		s.logger.Error("failed to load persisted email settings", slog.Any("error", err))
		return models.EmailTemplateSettings{}, fmt.Errorf("failed to load email settings: %w", err)
	}

	return settings.ResolveEmail(settings.BuiltinEmail(), s.deploymentEmail, *persisted), nil
}

// GetSettings returns the effective email template settings
func (s *SettingsService) GetSettings(ctx context.Context) (*models.EmailTemplateSettings, error) {
	resolved, err := s.ResolveEmailSettings(ctx)
	if err != nil {
		return nil, err
	}
	return &resolved, nil
}

// UpdateSettings stores the persisted layer verbatim and returns the
// effective settings after the change. Empty fields fall back to the lower
// layers on the next resolution.
func (s *SettingsService) UpdateSettings(ctx context.Context, in models.EmailTemplateSettings, actorID, ipAddress string) (*models.EmailTemplateSettings, error) {
	saved, err := s.repo.SaveEmailSettings(ctx, &in)
	if err != nil {
		s.logger.Error("failed to save email settings", slog.Any("error", err))
		return nil, fmt.Errorf("failed to save email settings: %w", err)
	}

	s.auditLogger.LogAccountAction(ctx, pkglogger.EventSettingsUpdated, actorID, ipAddress, nil)

	resolved := settings.ResolveEmail(settings.BuiltinEmail(), s.deploymentEmail, *saved)
	return &resolved, nil
}
