package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/magiclink/internal/email"
	"github.com/BradenHooton/magiclink/internal/models"
	"github.com/BradenHooton/magiclink/internal/settings"
	pkglogger "github.com/BradenHooton/magiclink/pkg/logger"
)

// expiresAtLayout renders EXPIRES_AT as an ISO-8601 UTC timestamp with milliseconds
const expiresAtLayout = "2006-01-02T15:04:05.000Z07:00"

// TokenIssuer creates credentials for delivery
type TokenIssuer interface {
	CreateToken(ctx context.Context, email string, opts CreateTokenOptions) (*models.IssuedToken, error)
}

// EmailSettingsResolver yields the effective email template settings
type EmailSettingsResolver interface {
	ResolveEmailSettings(ctx context.Context) (models.EmailTemplateSettings, error)
}

// SendLimiter throttles outbound sign-in emails per key
type SendLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// SendMagicLinkOptions carries the optional inputs of SendMagicLinkEmail
type SendMagicLinkOptions struct {
	CreateTokenOptions
	// URL is the base the magic link is built on; empty means no link.
	URL string
}

// DeliveryService issues a credential and emails it
type DeliveryService struct {
	tokens      TokenIssuer
	settings    EmailSettingsResolver
	sender      email.Sender
	limiter     SendLimiter
	metrics     CredentialMetrics
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewDeliveryService creates a new DeliveryService. sender, limiter and
// metrics may be nil; without a sender every send fails with
// models.ErrEmailUnavailable.
func NewDeliveryService(
	tokens TokenIssuer,
	settingsResolver EmailSettingsResolver,
	sender email.Sender,
	limiter SendLimiter,
	metrics CredentialMetrics,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *DeliveryService {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &DeliveryService{
		tokens:      tokens,
		settings:    settingsResolver,
		sender:      sender,
		limiter:     limiter,
		metrics:     metrics,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// SendMagicLinkEmail issues a credential for address and emails it. The
// credential stays active when delivery fails. The result carries the
// plaintext secrets and must only reach trusted callers.
func (s *DeliveryService) SendMagicLinkEmail(ctx context.Context, address string, opts SendMagicLinkOptions) (*models.MagicLinkDelivery, error) {
	address = NormalizeEmail(address)
	if address == "" {
		return nil, models.ErrEmailRequired
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, address)
		if err != nil {
			// Fail open: the per-IP limiter still applies
			s.logger.Warn("send limiter unavailable", slog.Any("error", err))
		} else if !allowed {
			s.logger.Info("magic link send throttled", slog.String("email", pkglogger.SanitizedEmail(address)))
			return nil, models.ErrRateLimitExceeded
		}
	}

	issued, err := s.tokens.CreateToken(ctx, address, opts.CreateTokenOptions)
	if err != nil {
		return nil, err
	}

	cfg, err := s.settings.ResolveEmailSettings(ctx)
	if err != nil {
		return nil, err
	}

	magicLink, hasLink := email.BuildMagicLink(opts.URL, issued.Token)

	vars := map[string]string{
		"TOKEN":      issued.Token,
		"CODE":       issued.Code,
		"EMAIL":      issued.Email,
		"EXPIRES_AT": issued.ExpiresAt.UTC().Format(expiresAtLayout),
		"URL":        opts.URL,
		"MAGIC_LINK": magicLink,
	}

	subject, ok := email.Render(cfg.Subject, vars)
	if !ok || subject == "" {
		subject = settings.DefaultSubject
	}
	text, _ := email.Render(cfg.Text, vars)
	html, _ := email.Render(cfg.HTML, vars)

	if s.sender == nil {
		s.logger.Error("email sending is not configured")
		s.deliveryFailed(ctx, issued, "email_unavailable")
		return nil, models.ErrEmailUnavailable
	}

	msg := email.Message{
		To:      issued.Email,
		From:    cfg.DefaultFrom,
		ReplyTo: cfg.DefaultReplyTo,
		Subject: subject,
		Text:    text,
		HTML:    html,
	}

	if err := s.sender.Send(ctx, msg); err != nil {
		s.logger.Error("failed to send magic link email",
			slog.String("token_id", issued.ID),
			slog.String("email", pkglogger.SanitizedEmail(issued.Email)),
			slog.Any("error", err))
		s.deliveryFailed(ctx, issued, "send_failed")
		return nil, fmt.Errorf("%w: %w", models.ErrDeliveryFailed, err)
	}

	s.metrics.EmailSent("sent")
	s.auditLogger.LogCredentialEvent(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventMagicLinkSent,
		TokenID:   issued.ID,
		Email:     issued.Email,
		Success:   true,
	})

	delivery := &models.MagicLinkDelivery{
		Token:     issued.Token,
		Code:      issued.Code,
		ExpiresAt: issued.ExpiresAt,
		Email:     issued.Email,
	}
	if hasLink {
		delivery.MagicLink = &magicLink
	}

	return delivery, nil
}

func (s *DeliveryService) deliveryFailed(ctx context.Context, issued *models.IssuedToken, reason string) {
	s.metrics.EmailSent("failed")
	s.auditLogger.LogCredentialEvent(ctx, pkglogger.AuditEvent{
		EventType:     pkglogger.EventMagicLinkFailed,
		TokenID:       issued.ID,
		Email:         issued.Email,
		Success:       false,
		FailureReason: reason,
	})
}
