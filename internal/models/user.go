package models

import (
	"time"
)

// User is the identity provisioned when a credential is redeemed.
type User struct {
	ID          string         `json:"id"`
	Email       string         `json:"email"`
	Username    string         `json:"username"`
	Name        string         `json:"name"`
	Provider    string         `json:"provider"`
	Confirmed   bool           `json:"confirmed"`
	Blocked     bool           `json:"blocked"`
	Role        string         `json:"role"`
	TokenKey    string         `json:"-"` // Per-user secret for composite token signing
	UserAgent   *string        `json:"-"`
	ClientIP    *string        `json:"-"`
	Attribution map[string]any `json:"-"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// ProvisionedUser is the user view returned by the token exchange.
type ProvisionedUser struct {
	*User
	IsNew bool `json:"isNew"`
}
