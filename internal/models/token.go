package models

import (
	"time"
)

// TokenRecord is a persisted sign-in credential: a magic-link token and a
// numeric one-time code bound to one email address.
type TokenRecord struct {
	ID         string         `json:"id"`
	Email      string         `json:"email"`
	Token      string         `json:"-"` // Never expose after issuance
	Code       string         `json:"-"` // Never expose after issuance
	ExpiresAt  time.Time      `json:"expires_at"`
	IsActive   bool           `json:"is_active"`
	Context    map[string]any `json:"context"`
	UserAgent  *string        `json:"user_agent,omitempty"`
	IPAddress  *string        `json:"ip_address,omitempty"`
	LastUsedAt *time.Time     `json:"last_used_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// IsExpiredAt reports whether the record is expired at the given instant.
// A record whose expiry equals now is already expired.
func (t *TokenRecord) IsExpiredAt(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// Sanitize returns the view of the record that is safe to hand out after
// issuance. The secrets are not part of the returned type at all.
func (t *TokenRecord) Sanitize() *SanitizedToken {
	if t == nil {
		return nil
	}

	ctx := t.Context
	if ctx == nil {
		ctx = map[string]any{}
	}

	return &SanitizedToken{
		ID:         t.ID,
		Email:      t.Email,
		ExpiresAt:  t.ExpiresAt,
		IsActive:   t.IsActive,
		Context:    ctx,
		UserAgent:  t.UserAgent,
		IPAddress:  t.IPAddress,
		LastUsedAt: t.LastUsedAt,
		CreatedAt:  t.CreatedAt,
	}
}

// SanitizedToken is a TokenRecord without its token and code.
type SanitizedToken struct {
	ID         string         `json:"id"`
	Email      string         `json:"email"`
	ExpiresAt  time.Time      `json:"expires_at"`
	IsActive   bool           `json:"is_active"`
	Context    map[string]any `json:"context"`
	UserAgent  *string        `json:"user_agent,omitempty"`
	IPAddress  *string        `json:"ip_address,omitempty"`
	LastUsedAt *time.Time     `json:"last_used_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// IssuedToken is returned once, at creation time, and is the only value in
// the system that carries the plaintext secrets.
type IssuedToken struct {
	SanitizedToken
	Token string `json:"token"`
	Code  string `json:"code"`
}

// MagicLinkDelivery is the result of sending a magic-link email.
type MagicLinkDelivery struct {
	Token     string    `json:"token"`
	Code      string    `json:"code"`
	MagicLink *string   `json:"magicLink,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	Email     string    `json:"email"`
}
