package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BradenHooton/magiclink/internal/models"
	pkglogger "github.com/BradenHooton/magiclink/pkg/logger"
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	MarkConfirmed(ctx context.Context, id string) (*models.User, error)
	UpdateRole(ctx context.Context, id, role string) (*models.User, error)
}

// ProvisionMetadata is the provenance recorded on newly created users
type ProvisionMetadata struct {
	UserAgent   string
	ClientIP    string
	Attribution map[string]any
}

// UserService provisions users for redeemed credentials
type UserService struct {
	repo        UserRepository
	defaultRole string
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewUserService creates a new UserService
func NewUserService(repo UserRepository, defaultRole string, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *UserService {
	return &UserService{
		repo:        repo,
		defaultRole: defaultRole,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// ProvisionByEmail returns the user owning email, creating a confirmed
// account with the default role on first sign-in. Existing users are marked
// confirmed; blocked users are refused.
func (s *UserService) ProvisionByEmail(ctx context.Context, email string, meta ProvisionMetadata) (*models.ProvisionedUser, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, models.ErrEmailRequired
	}

	existing, err := s.repo.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return s.confirmExisting(ctx, existing)
	case !errors.Is(err, models.ErrNotFound):
		s.logger.Error("failed to look up user", slog.Any("error", err))
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if s.defaultRole == "" {
		s.logger.Error("default role is not configured")
		return nil, models.ErrDefaultRoleMissing
	}

	user := &models.User{
		Email:       email,
		Username:    email,
		Name:        localPart(email),
		Provider:    models.ProviderMagicLink,
		Confirmed:   true,
		Role:        s.defaultRole,
		Attribution: meta.Attribution,
	}
	if meta.UserAgent != "" {
		user.UserAgent = &meta.UserAgent
	}
	if meta.ClientIP != "" {
		user.ClientIP = &meta.ClientIP
	}

	created, err := s.repo.Create(ctx, user)
	if errors.Is(err, models.ErrConflict) {
		// A concurrent exchange created the same user first
		existing, err := s.repo.GetByEmail(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("failed to look up user: %w", err)
		}
		return s.confirmExisting(ctx, existing)
	}
	if err != nil {
		s.logger.Error("failed to create user", slog.Any("error", err))
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.auditLogger.LogAccountAction(ctx, pkglogger.EventUserProvisioned, created.ID, meta.ClientIP, map[string]string{
		"provider": created.Provider,
		"role":     created.Role,
	})

	return &models.ProvisionedUser{User: created, IsNew: true}, nil
}

func (s *UserService) confirmExisting(ctx context.Context, user *models.User) (*models.ProvisionedUser, error) {
	if user.Blocked {
		s.logger.Warn("sign-in refused for blocked user", slog.String("user_id", user.ID))
		return nil, models.ErrAccountBlocked
	}

	if !user.Confirmed {
		confirmed, err := s.repo.MarkConfirmed(ctx, user.ID)
		if err != nil {
			s.logger.Error("failed to confirm user", slog.String("user_id", user.ID), slog.Any("error", err))
			return nil, fmt.Errorf("failed to confirm user: %w", err)
		}
		user = confirmed
	}

	return &models.ProvisionedUser{User: user, IsNew: false}, nil
}

// EnsureAdmin makes sure a confirmed user with the admin role exists for email
func (s *UserService) EnsureAdmin(ctx context.Context, email string) (*models.User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, models.ErrEmailRequired
	}

	existing, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		if existing.Role == models.RoleAdmin {
			return existing, nil
		}
		s.logger.Info("promoting existing user to admin", slog.String("user_id", existing.ID))
		return s.repo.UpdateRole(ctx, existing.ID, models.RoleAdmin)
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up admin user: %w", err)
	}

	created, err := s.repo.Create(ctx, &models.User{
		Email:     email,
		Username:  email,
		Name:      localPart(email),
		Provider:  models.ProviderMagicLink,
		Confirmed: true,
		Role:      models.RoleAdmin,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create admin user: %w", err)
	}

	s.logger.Info("admin user created", slog.String("user_id", created.ID))
	return created, nil
}

func localPart(email string) string {
	name, _, _ := strings.Cut(email, "@")
	return name
}
