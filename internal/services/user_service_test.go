package services

import (
	"context"
	"errors"
	"testing"

	"github.com/BradenHooton/magiclink/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUserService(repo UserRepository, defaultRole string) *UserService {
	logger, audit := NewTestLoggers()
	return NewUserService(repo, defaultRole, logger, audit)
}

func TestUserService_ProvisionByEmail_CreatesUser(t *testing.T) {
	var created *models.User
	repo := &MockUserRepository{
		CreateFunc: func(ctx context.Context, user *models.User) (*models.User, error) {
			stored := *user
			stored.ID = "user-1"
			created = &stored
			return created, nil
		},
	}
	svc := newTestUserService(repo, models.RoleAuthenticated)

	result, err := svc.ProvisionByEmail(context.Background(), " Jane.Doe@Example.com ", ProvisionMetadata{
		UserAgent:   "agent",
		ClientIP:    "198.51.100.2",
		Attribution: map[string]any{"utm_source": "newsletter"},
	})
	require.NoError(t, err)

	assert.True(t, result.IsNew)
	assert.Equal(t, "user-1", result.ID)
	assert.Equal(t, "jane.doe@example.com", created.Email)
	assert.Equal(t, "jane.doe@example.com", created.Username)
	assert.Equal(t, "jane.doe", created.Name)
	assert.Equal(t, models.ProviderMagicLink, created.Provider)
	assert.Equal(t, models.RoleAuthenticated, created.Role)
	assert.True(t, created.Confirmed)
	require.NotNil(t, created.UserAgent)
	assert.Equal(t, "agent", *created.UserAgent)
	require.NotNil(t, created.ClientIP)
	assert.Equal(t, "198.51.100.2", *created.ClientIP)
	assert.Equal(t, "newsletter", created.Attribution["utm_source"])
}

func TestUserService_ProvisionByEmail_ExistingUser(t *testing.T) {
	existing := NewTestUser("user-1", "a@example.com")
	repo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return existing, nil
		},
		CreateFunc: func(ctx context.Context, user *models.User) (*models.User, error) {
			t.Fatal("existing user must not be recreated")
			return nil, nil
		},
	}
	svc := newTestUserService(repo, models.RoleAuthenticated)

	result, err := svc.ProvisionByEmail(context.Background(), "a@example.com", ProvisionMetadata{})
	require.NoError(t, err)
	assert.False(t, result.IsNew)
	assert.Equal(t, "user-1", result.ID)
}

func TestUserService_ProvisionByEmail_ConfirmsUnconfirmed(t *testing.T) {
	existing := NewTestUser("user-1", "a@example.com")
	existing.Confirmed = false
	confirmedCalls := 0
	repo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return existing, nil
		},
		MarkConfirmedFunc: func(ctx context.Context, id string) (*models.User, error) {
			confirmedCalls++
			updated := *existing
			updated.Confirmed = true
			return &updated, nil
		},
	}
	svc := newTestUserService(repo, models.RoleAuthenticated)

	result, err := svc.ProvisionByEmail(context.Background(), "a@example.com", ProvisionMetadata{})
	require.NoError(t, err)
	assert.True(t, result.Confirmed)
	assert.Equal(t, 1, confirmedCalls)
}

func TestUserService_ProvisionByEmail_Blocked(t *testing.T) {
	existing := NewTestUser("user-1", "a@example.com")
	existing.Blocked = true
	repo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return existing, nil
		},
	}
	svc := newTestUserService(repo, models.RoleAuthenticated)

	result, err := svc.ProvisionByEmail(context.Background(), "a@example.com", ProvisionMetadata{})
	assert.Nil(t, result)
	assert.ErrorIs(t, err, models.ErrAccountBlocked)
}

func TestUserService_ProvisionByEmail_DefaultRoleMissing(t *testing.T) {
	svc := newTestUserService(&MockUserRepository{}, "")

	_, err := svc.ProvisionByEmail(context.Background(), "a@example.com", ProvisionMetadata{})
	assert.ErrorIs(t, err, models.ErrDefaultRoleMissing)
}

func TestUserService_ProvisionByEmail_CreateRace(t *testing.T) {
	lookups := 0
	repo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			lookups++
			if lookups == 1 {
				return nil, models.ErrNotFound
			}
			return NewTestUser("user-9", email), nil
		},
		CreateFunc: func(ctx context.Context, user *models.User) (*models.User, error) {
			return nil, models.ErrConflict
		},
	}
	svc := newTestUserService(repo, models.RoleAuthenticated)

	result, err := svc.ProvisionByEmail(context.Background(), "a@example.com", ProvisionMetadata{})
	require.NoError(t, err)
	assert.Equal(t, "user-9", result.ID)
	assert.False(t, result.IsNew)
	assert.Equal(t, 2, lookups)
}

func TestUserService_ProvisionByEmail_LookupError(t *testing.T) {
	repoErr := errors.New("db down")
	repo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return nil, repoErr
		},
	}
	svc := newTestUserService(repo, models.RoleAuthenticated)

	_, err := svc.ProvisionByEmail(context.Background(), "a@example.com", ProvisionMetadata{})
	assert.ErrorIs(t, err, repoErr)

	_, err = svc.ProvisionByEmail(context.Background(), "", ProvisionMetadata{})
	assert.ErrorIs(t, err, models.ErrEmailRequired)
}

func TestUserService_EnsureAdmin(t *testing.T) {
	t.Run("creates admin", func(t *testing.T) {
		repo := &MockUserRepository{
			CreateFunc: func(ctx context.Context, user *models.User) (*models.User, error) {
				assert.Equal(t, models.RoleAdmin, user.Role)
				assert.True(t, user.Confirmed)
				stored := *user
				stored.ID = "admin-1"
				return &stored, nil
			},
		}
		svc := newTestUserService(repo, models.RoleAuthenticated)

		admin, err := svc.EnsureAdmin(context.Background(), "Admin@Example.com")
		require.NoError(t, err)
		assert.Equal(t, "admin-1", admin.ID)
		assert.Equal(t, "admin@example.com", admin.Email)
	})

	t.Run("already admin", func(t *testing.T) {
		existing := NewTestUser("admin-1", "admin@example.com")
		existing.Role = models.RoleAdmin
		repo := &MockUserRepository{
			GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
				return existing, nil
			},
		}
		svc := newTestUserService(repo, models.RoleAuthenticated)

		admin, err := svc.EnsureAdmin(context.Background(), "admin@example.com")
		require.NoError(t, err)
		assert.Same(t, existing, admin)
	})

	t.Run("promotes existing user", func(t *testing.T) {
		existing := NewTestUser("user-1", "admin@example.com")
		repo := &MockUserRepository{
			GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
				return existing, nil
			},
			UpdateRoleFunc: func(ctx context.Context, id, role string) (*models.User, error) {
				assert.Equal(t, "user-1", id)
				updated := *existing
				updated.Role = role
				return &updated, nil
			},
		}
		svc := newTestUserService(repo, models.RoleAuthenticated)

		admin, err := svc.EnsureAdmin(context.Background(), "admin@example.com")
		require.NoError(t, err)
		assert.Equal(t, models.RoleAdmin, admin.Role)
	})
}
