package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/magiclink/internal/auth"
	"github.com/BradenHooton/magiclink/internal/models"
	pkglogger "github.com/BradenHooton/magiclink/pkg/logger"
)

// maxGenerationAttempts bounds the token draws and, separately, the code
// draws of one CreateToken call, insert retries included
const maxGenerationAttempts = 5

// Redemption methods and outcomes reported to metrics and the audit log
const (
	MethodToken = "token"
	MethodCode  = "code"

	ResultRedeemed    = "redeemed"
	ResultNotFound    = "not_found"
	ResultExpired     = "expired"
	ResultAlreadyUsed = "already_used"
)

// TokenRepository is the store contract for magic-link credentials.
// Deactivate and MarkAsUsed apply only to records that are still active and
// report whether this call performed the transition.
type TokenRepository interface {
	InvalidateActiveByEmail(ctx context.Context, email string) (int64, error)
	TokenExists(ctx context.Context, token string) (bool, error)
	ActiveCodeExists(ctx context.Context, email, code string) (bool, error)
	Create(ctx context.Context, record *models.TokenRecord) (*models.TokenRecord, error)
	GetActiveByToken(ctx context.Context, token string) (*models.TokenRecord, error)
	GetLatestActiveByEmailCode(ctx context.Context, email, code string) (*models.TokenRecord, error)
	Deactivate(ctx context.Context, id string) (bool, error)
	MarkAsUsed(ctx context.Context, id string, usedAt time.Time) (bool, error)
	CountActive(ctx context.Context) (int64, error)
}

// TokenSettingsResolver yields the effective token settings for one call
type TokenSettingsResolver interface {
	ResolveTokenSettings(ctx context.Context) models.TokenSettings
}

// CredentialMetrics receives credential lifecycle counts
type CredentialMetrics interface {
	TokenIssued()
	Redemption(method, result string)
	EmailSent(result string)
}

type noopMetrics struct{}

func (noopMetrics) TokenIssued()              {}
func (noopMetrics) Redemption(string, string) {}
func (noopMetrics) EmailSent(string)          {}

// CreateTokenOptions carries the optional inputs of CreateToken
type CreateTokenOptions struct {
	Context   map[string]any
	IPAddress string
	UserAgent string
	// KeepExisting leaves the email's other active credentials usable.
	// By default they are invalidated before the new one is stored.
	KeepExisting bool
}

// TokenService issues and redeems magic-link credentials
type TokenService struct {
	repo        TokenRepository
	settings    TokenSettingsResolver
	metrics     CredentialMetrics
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time
}

// NewTokenService creates a new TokenService. metrics may be nil.
func NewTokenService(
	repo TokenRepository,
	settings TokenSettingsResolver,
	metrics CredentialMetrics,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *TokenService {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &TokenService{
		repo:        repo,
		settings:    settings,
		metrics:     metrics,
		logger:      logger,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// NormalizeEmail trims and lowercases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateToken issues a new token/code pair for email. The returned value is
// the only place the plaintext secrets are ever exposed.
func (s *TokenService) CreateToken(ctx context.Context, email string, opts CreateTokenOptions) (*models.IssuedToken, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, models.ErrEmailRequired
	}

	if !opts.KeepExisting {
		n, err := s.repo.InvalidateActiveByEmail(ctx, email)
		if err != nil {
			s.logger.Error("failed to invalidate active tokens", slog.Any("error", err))
			return nil, fmt.Errorf("failed to invalidate active tokens: %w", err)
		}
		if n > 0 {
			s.logger.Debug("invalidated active tokens",
				slog.String("email", pkglogger.SanitizedEmail(email)),
				slog.Int64("count", n))
		}
	}

	cfg := s.settings.ResolveTokenSettings(ctx)

	record := &models.TokenRecord{
		Email:    email,
		IsActive: true,
		Context:  opts.Context,
	}
	if record.Context == nil {
		record.Context = map[string]any{}
	}
	if opts.IPAddress != "" {
		record.IPAddress = &opts.IPAddress
	}
	if opts.UserAgent != "" {
		record.UserAgent = &opts.UserAgent
	}

	// The existence checks and the insert are not atomic; a concurrent
	// issuer can still claim the same value, which the store rejects.
	// Every pass draws at least one token and one code, so the budgets
	// also bound the insert retries.
	tokenBudget, codeBudget := maxGenerationAttempts, maxGenerationAttempts
	for attempt := 1; ; attempt++ {
		token, err := s.uniqueToken(ctx, cfg.TokenLength, &tokenBudget)
		if err != nil {
			return nil, err
		}
		code, err := s.uniqueCode(ctx, email, cfg.CodeLength, &codeBudget)
		if err != nil {
			return nil, err
		}

		record.Token = token
		record.Code = code
		record.ExpiresAt = s.now().Add(time.Duration(cfg.TTLMinutes) * time.Minute)

		created, err := s.repo.Create(ctx, record)
		if errors.Is(err, models.ErrConflict) {
			s.logger.Warn("magic token collided on insert, regenerating", slog.Int("attempt", attempt))
			continue
		}
		if err != nil {
			s.logger.Error("failed to create magic token", slog.Any("error", err))
			return nil, fmt.Errorf("failed to create token: %w", err)
		}

		s.metrics.TokenIssued()
		s.auditLogger.LogCredentialEvent(ctx, pkglogger.AuditEvent{
			EventType: pkglogger.EventCredentialIssued,
			TokenID:   created.ID,
			Email:     created.Email,
			IPAddress: opts.IPAddress,
			UserAgent: opts.UserAgent,
			Success:   true,
		})

		return &models.IssuedToken{
			SanitizedToken: *created.Sanitize(),
			Token:          created.Token,
			Code:           created.Code,
		}, nil
	}
}

// uniqueToken draws tokens until one is unused, spending from budget.
func (s *TokenService) uniqueToken(ctx context.Context, length int, budget *int) (string, error) {
	for ; *budget > 0; *budget-- {
		token, err := auth.GenerateToken(length)
		if err != nil {
			return "", fmt.Errorf("failed to generate token: %w", err)
		}

		exists, err := s.repo.TokenExists(ctx, token)
		if err != nil {
			return "", fmt.Errorf("failed to check token uniqueness: %w", err)
		}
		if !exists {
			*budget--
			return token, nil
		}
	}

	s.logger.Error("token generation exhausted", slog.Int("attempts", maxGenerationAttempts))
	return "", fmt.Errorf("%w: token", models.ErrGenerationExhausted)
}

// uniqueCode draws codes until one is free among the email's active codes.
func (s *TokenService) uniqueCode(ctx context.Context, email string, length int, budget *int) (string, error) {
	for ; *budget > 0; *budget-- {
		code, err := auth.GenerateCode(length)
		if err != nil {
			return "", fmt.Errorf("failed to generate code: %w", err)
		}

		exists, err := s.repo.ActiveCodeExists(ctx, email, code)
		if err != nil {
			return "", fmt.Errorf("failed to check code uniqueness: %w", err)
		}
		if !exists {
			*budget--
			return code, nil
		}
	}

	s.logger.Error("code generation exhausted", slog.Int("attempts", maxGenerationAttempts))
	return "", fmt.Errorf("%w: code", models.ErrGenerationExhausted)
}

// ConsumeToken redeems a magic-link token. A missing, expired or already
// used token yields (nil, nil); errors are reserved for store failures.
func (s *TokenService) ConsumeToken(ctx context.Context, token string) (*models.SanitizedToken, error) {
	if token == "" {
		return nil, nil
	}

	record, err := s.repo.GetActiveByToken(ctx, token)
	return s.redeem(ctx, MethodToken, record, err)
}

// ConsumeEmailCode redeems the newest active code issued to email. Misses
// yield (nil, nil) exactly like ConsumeToken.
func (s *TokenService) ConsumeEmailCode(ctx context.Context, email, code string) (*models.SanitizedToken, error) {
	email = NormalizeEmail(email)
	if email == "" || code == "" {
		return nil, nil
	}

	record, err := s.repo.GetLatestActiveByEmailCode(ctx, email, code)
	return s.redeem(ctx, MethodCode, record, err)
}

func (s *TokenService) redeem(ctx context.Context, method string, record *models.TokenRecord, lookupErr error) (*models.SanitizedToken, error) {
	if lookupErr != nil {
		if errors.Is(lookupErr, models.ErrNotFound) {
			s.reject(ctx, method, "", ResultNotFound)
			return nil, nil
		}
		s.logger.Error("failed to look up magic token", slog.String("method", method), slog.Any("error", lookupErr))
		return nil, fmt.Errorf("failed to look up token: %w", lookupErr)
	}

	now := s.now()

	if record.IsExpiredAt(now) {
		if _, err := s.repo.Deactivate(ctx, record.ID); err != nil {
			s.logger.Error("failed to deactivate expired token", slog.String("token_id", record.ID), slog.Any("error", err))
			return nil, fmt.Errorf("failed to deactivate expired token: %w", err)
		}
		s.reject(ctx, method, record.ID, ResultExpired)
		return nil, nil
	}

	applied, err := s.repo.MarkAsUsed(ctx, record.ID, now)
	if err != nil {
		s.logger.Error("failed to mark token as used", slog.String("token_id", record.ID), slog.Any("error", err))
		return nil, fmt.Errorf("failed to mark token as used: %w", err)
	}
	if !applied {
		// Another redeemer won the conditional update
		s.reject(ctx, method, record.ID, ResultAlreadyUsed)
		return nil, nil
	}

	record.IsActive = false
	record.LastUsedAt = &now

	s.metrics.Redemption(method, ResultRedeemed)
	s.auditLogger.LogCredentialEvent(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventCredentialRedeemed,
		TokenID:   record.ID,
		Email:     record.Email,
		Method:    method,
		Success:   true,
	})

	return record.Sanitize(), nil
}

func (s *TokenService) reject(ctx context.Context, method, tokenID, reason string) {
	s.metrics.Redemption(method, reason)
	s.auditLogger.LogCredentialEvent(ctx, pkglogger.AuditEvent{
		EventType:     pkglogger.EventCredentialRejected,
		TokenID:       tokenID,
		Method:        method,
		Success:       false,
		FailureReason: reason,
	})
}
