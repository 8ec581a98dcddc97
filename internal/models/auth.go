package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims are the JWT claims issued after a credential is redeemed.
type TokenClaims struct {
	Type   string `json:"type"`
	UserID string `json:"id"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Provider recorded on users created through a magic link or code.
const ProviderMagicLink = "magiclink"

// Roles
const (
	RoleAuthenticated = "authenticated"
	RoleAdmin         = "admin"
)
