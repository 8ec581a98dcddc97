package logger

import (
	"context"
	"log/slog"
	"time"
)

// Credential audit event types
const (
	EventCredentialIssued   = "credential_issued"
	EventCredentialRedeemed = "credential_redeemed"
	EventCredentialRejected = "credential_rejected"
	EventMagicLinkSent      = "magic_link_sent"
	EventMagicLinkFailed    = "magic_link_failed"
	EventUserProvisioned    = "user_provisioned"
	EventSettingsUpdated    = "settings_updated"
)

// AuditEvent represents a security audit event. Email is masked before it
// is written; credential values never belong here.
type AuditEvent struct {
	EventType     string
	TokenID       string
	UserID        string
	Email         string
	Method        string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger provides audit logging functionality
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogCredentialEvent logs issuance, redemption and delivery of sign-in credentials
func (al *AuditLogger) LogCredentialEvent(ctx context.Context, event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "credential"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.TokenID != "" {
		attrs = append(attrs, slog.String("token_id", event.TokenID))
	}
	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.Email != "" {
		attrs = append(attrs, slog.String("email", SanitizedEmail(event.Email)))
	}
	if event.Method != "" {
		attrs = append(attrs, slog.String("method", event.Method))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}

	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	if event.Success {
		al.logger.LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)
	} else {
		al.logger.LogAttrs(ctx, slog.LevelWarn, "audit", attrs...)
	}
}

// LogAccountAction logs general account actions
func (al *AuditLogger) LogAccountAction(ctx context.Context, eventType, userID, ipAddress string, metadata map[string]string) {
	attrs := []slog.Attr{
		slog.String("audit_type", "account"),
		slog.String("event_type", eventType),
		slog.String("user_id", userID),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if ipAddress != "" {
		attrs = append(attrs, slog.String("ip_address", ipAddress))
	}

	for key, val := range metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	al.logger.LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)
}
