package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/magiclink/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenTypeAccess marks session JWTs issued after a credential exchange
const TokenTypeAccess = "access"

// UserTokenKeyFetcher defines interface for retrieving user's TokenKey
type UserTokenKeyFetcher interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// TokenManager handles JWT token generation and validation
type TokenManager struct {
	secret            string
	accessTokenExpiry time.Duration
	userRepo          UserTokenKeyFetcher
	now               func() time.Time
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret string, accessExpiry time.Duration) *TokenManager {
	return &TokenManager{
		secret:            secret,
		accessTokenExpiry: accessExpiry,
		now:               time.Now,
	}
}

// SetUserRepo enables composite signing with per-user TokenKey
func (tm *TokenManager) SetUserRepo(repo UserTokenKeyFetcher) {
	tm.userRepo = repo
}

// getSigningKey returns composite key (global_secret + user.TokenKey) or global secret
func (tm *TokenManager) getSigningKey(userID string) []byte {
	if tm.userRepo == nil {
		return []byte(tm.secret)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	user, err := tm.userRepo.GetByID(ctx, userID)
	if err != nil {
		// Graceful degradation: use global secret if user not found
		return []byte(tm.secret)
	}

	return []byte(tm.secret + user.TokenKey)
}

// GenerateAccessToken signs a session JWT for a provisioned user
func (tm *TokenManager) GenerateAccessToken(userID, email, role string) (string, error) {
	now := tm.now()

	claims := &models.TokenClaims{
		Type:   TokenTypeAccess,
		UserID: userID,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.accessTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(tm.getSigningKey(userID))
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken verifies a token and returns its claims
func (tm *TokenManager) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		if tmpClaims, ok := token.Claims.(*models.TokenClaims); ok && tmpClaims.UserID != "" {
			return tm.getSigningKey(tmpClaims.UserID), nil
		}

		return []byte(tm.secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, models.ErrUnauthorized
	}

	if claims.Type != TokenTypeAccess {
		return nil, fmt.Errorf("invalid token: unexpected type %q", claims.Type)
	}

	return claims, nil
}
