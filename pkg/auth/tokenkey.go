// Package auth holds key material helpers shared by the JWT layer.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// TokenKeyLength is the size in bytes of a per-user signing key (256 bits)
const TokenKeyLength = 32

// GenerateTokenKey returns a random per-user key mixed into JWT signing.
// Rotating it invalidates every JWT previously issued to that user.
func GenerateTokenKey() (string, error) {
	bytes := make([]byte, TokenKeyLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate token key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(bytes), nil
}
