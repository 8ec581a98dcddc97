package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/magiclink/internal/models"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour)

	signed, err := tm.GenerateAccessToken("user-1", "jane@example.com", models.RoleAuthenticated)
	require.NoError(t, err)

	claims, err := tm.ValidateToken(signed)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeAccess, claims.Type)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "jane@example.com", claims.Email)
	assert.Equal(t, models.RoleAuthenticated, claims.Role)
	assert.NotEmpty(t, claims.ID)
}

func TestTokenManager_Expired(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Minute)
	tm.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	signed, err := tm.GenerateAccessToken("user-1", "jane@example.com", models.RoleAuthenticated)
	require.NoError(t, err)

	_, err = tm.ValidateToken(signed)
	assert.Error(t, err)
}

func TestTokenManager_WrongSecret(t *testing.T) {
	signed, err := NewTokenManager(testSecret, time.Hour).GenerateAccessToken("user-1", "a@b.c", models.RoleAuthenticated)
	require.NoError(t, err)

	_, err = NewTokenManager("another-secret-32-characters-long", time.Hour).ValidateToken(signed)
	assert.Error(t, err)
}

func TestTokenManager_RejectsOtherTypes(t *testing.T) {
	claims := &models.TokenClaims{
		Type:   "refresh",
		UserID: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = NewTokenManager(testSecret, time.Hour).ValidateToken(signed)
	assert.Error(t, err)
}

type keyRepo struct{ key string }

func (k *keyRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	return &models.User{ID: id, TokenKey: k.key}, nil
}

func TestTokenManager_RotatedUserKeyInvalidatesTokens(t *testing.T) {
	repo := &keyRepo{key: "key-one"}
	tm := NewTokenManager(testSecret, time.Hour)
	tm.SetUserRepo(repo)

	signed, err := tm.GenerateAccessToken("user-1", "jane@example.com", models.RoleAuthenticated)
	require.NoError(t, err)

	_, err = tm.ValidateToken(signed)
	require.NoError(t, err)

	repo.key = "key-two"
	_, err = tm.ValidateToken(signed)
	assert.Error(t, err)
}
