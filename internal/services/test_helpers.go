package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/BradenHooton/magiclink/internal/email"
	"github.com/BradenHooton/magiclink/internal/models"
	pkglogger "github.com/BradenHooton/magiclink/pkg/logger"
)

// NewTestLoggers returns a discarding logger and an audit logger over it
func NewTestLoggers() (*slog.Logger, *pkglogger.AuditLogger) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return logger, pkglogger.NewAuditLogger(logger)
}

// MockTokenRepository implements TokenRepository for testing
type MockTokenRepository struct {
	InvalidateActiveByEmailFunc    func(ctx context.Context, email string) (int64, error)
	TokenExistsFunc                func(ctx context.Context, token string) (bool, error)
	ActiveCodeExistsFunc           func(ctx context.Context, email, code string) (bool, error)
	CreateFunc                     func(ctx context.Context, record *models.TokenRecord) (*models.TokenRecord, error)
	GetActiveByTokenFunc           func(ctx context.Context, token string) (*models.TokenRecord, error)
	GetLatestActiveByEmailCodeFunc func(ctx context.Context, email, code string) (*models.TokenRecord, error)
	DeactivateFunc                 func(ctx context.Context, id string) (bool, error)
	MarkAsUsedFunc                 func(ctx context.Context, id string, usedAt time.Time) (bool, error)
	CountActiveFunc                func(ctx context.Context) (int64, error)
}

func (m *MockTokenRepository) InvalidateActiveByEmail(ctx context.Context, email string) (int64, error) {
	if m.InvalidateActiveByEmailFunc != nil {
		return m.InvalidateActiveByEmailFunc(ctx, email)
	}
	return 0, nil
}

func (m *MockTokenRepository) TokenExists(ctx context.Context, token string) (bool, error) {
	if m.TokenExistsFunc != nil {
		return m.TokenExistsFunc(ctx, token)
	}
	return false, nil
}

func (m *MockTokenRepository) ActiveCodeExists(ctx context.Context, email, code string) (bool, error) {
	if m.ActiveCodeExistsFunc != nil {
		return m.ActiveCodeExistsFunc(ctx, email, code)
	}
	return false, nil
}

func (m *MockTokenRepository) Create(ctx context.Context, record *models.TokenRecord) (*models.TokenRecord, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, record)
	}
	return nil, models.ErrInternalServer
}

func (m *MockTokenRepository) GetActiveByToken(ctx context.Context, token string) (*models.TokenRecord, error) {
	if m.GetActiveByTokenFunc != nil {
		return m.GetActiveByTokenFunc(ctx, token)
	}
	return nil, models.ErrNotFound
}

func (m *MockTokenRepository) GetLatestActiveByEmailCode(ctx context.Context, email, code string) (*models.TokenRecord, error) {
	if m.GetLatestActiveByEmailCodeFunc != nil {
		return m.GetLatestActiveByEmailCodeFunc(ctx, email, code)
	}
	return nil, models.ErrNotFound
}

func (m *MockTokenRepository) Deactivate(ctx context.Context, id string) (bool, error) {
	if m.DeactivateFunc != nil {
		return m.DeactivateFunc(ctx, id)
	}
	return true, nil
}

func (m *MockTokenRepository) MarkAsUsed(ctx context.Context, id string, usedAt time.Time) (bool, error) {
	if m.MarkAsUsedFunc != nil {
		return m.MarkAsUsedFunc(ctx, id, usedAt)
	}
	return true, nil
}

func (m *MockTokenRepository) CountActive(ctx context.Context) (int64, error) {
	if m.CountActiveFunc != nil {
		return m.CountActiveFunc(ctx)
	}
	return 0, nil
}

// MemoryTokenRepository is a mutex-guarded TokenRepository with the same
// uniqueness and conditional-update rules as the database stores.
type MemoryTokenRepository struct {
	mu      sync.Mutex
	records []*models.TokenRecord
	seq     int
	now     func() time.Time
}

// NewMemoryTokenRepository creates an empty in-memory store
func NewMemoryTokenRepository() *MemoryTokenRepository {
	return &MemoryTokenRepository{now: time.Now}
}

func cloneRecord(r *models.TokenRecord) *models.TokenRecord {
	c := *r
	c.Context = make(map[string]any, len(r.Context))
	for k, v := range r.Context {
		c.Context[k] = v
	}
	return &c
}

func (m *MemoryTokenRepository) InvalidateActiveByEmail(ctx context.Context, email string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, r := range m.records {
		if r.Email == email && r.IsActive {
			r.IsActive = false
			n++
		}
	}
	return n, nil
}

func (m *MemoryTokenRepository) TokenExists(ctx context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.records {
		if r.Token == token {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryTokenRepository) ActiveCodeExists(ctx context.Context, email, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.records {
		if r.Email == email && r.Code == code && r.IsActive {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryTokenRepository) Create(ctx context.Context, record *models.TokenRecord) (*models.TokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.records {
		if r.Token == record.Token {
			return nil, models.ErrConflict
		}
		if r.IsActive && r.Email == record.Email && r.Code == record.Code {
			return nil, models.ErrConflict
		}
	}

	m.seq++
	stored := cloneRecord(record)
	stored.ID = fmt.Sprintf("tok-%d", m.seq)
	stored.IsActive = true
	// Sequence offset keeps creation order strict within one clock tick
	stored.CreatedAt = m.now().Add(time.Duration(m.seq) * time.Nanosecond)
	m.records = append(m.records, stored)

	return cloneRecord(stored), nil
}

func (m *MemoryTokenRepository) GetActiveByToken(ctx context.Context, token string) (*models.TokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.records {
		if r.Token == token && r.IsActive {
			return cloneRecord(r), nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *MemoryTokenRepository) GetLatestActiveByEmailCode(ctx context.Context, email, code string) (*models.TokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matches []*models.TokenRecord
	for _, r := range m.records {
		if r.Email == email && r.Code == code && r.IsActive {
			matches = append(matches, r)
		}
	}
	if len(matches) == 0 {
		return nil, models.ErrNotFound
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	return cloneRecord(matches[0]), nil
}

func (m *MemoryTokenRepository) Deactivate(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.records {
		if r.ID == id && r.IsActive {
			r.IsActive = false
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryTokenRepository) MarkAsUsed(ctx context.Context, id string, usedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.records {
		if r.ID == id && r.IsActive {
			r.IsActive = false
			r.LastUsedAt = &usedAt
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryTokenRepository) CountActive(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, r := range m.records {
		if r.IsActive {
			n++
		}
	}
	return n, nil
}

// Get returns a copy of the stored record with the given id
func (m *MemoryTokenRepository) Get(id string) (*models.TokenRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.records {
		if r.ID == id {
			return cloneRecord(r), true
		}
	}
	return nil, false
}

// StaticTokenSettings resolves to fixed token settings
type StaticTokenSettings models.TokenSettings

func (s StaticTokenSettings) ResolveTokenSettings(ctx context.Context) models.TokenSettings {
	return models.TokenSettings(s)
}

// StaticEmailSettings resolves to fixed email settings
type StaticEmailSettings struct {
	Settings models.EmailTemplateSettings
	Err      error
}

func (s StaticEmailSettings) ResolveEmailSettings(ctx context.Context) (models.EmailTemplateSettings, error) {
	return s.Settings, s.Err
}

// MockSender records sent messages
type MockSender struct {
	mu       sync.Mutex
	Messages []email.Message
	Err      error
}

func (m *MockSender) Send(ctx context.Context, msg email.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Messages = append(m.Messages, msg)
	return nil
}

// MockLimiter implements SendLimiter for testing
type MockLimiter struct {
	AllowFunc func(ctx context.Context, key string) (bool, error)
}

func (m *MockLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if m.AllowFunc != nil {
		return m.AllowFunc(ctx, key)
	}
	return true, nil
}

// RecordingMetrics counts CredentialMetrics calls
type RecordingMetrics struct {
	mu          sync.Mutex
	Issued      int
	Redemptions map[string]int
	Emails      map[string]int
}

func NewRecordingMetrics() *RecordingMetrics {
	return &RecordingMetrics{Redemptions: map[string]int{}, Emails: map[string]int{}}
}

func (r *RecordingMetrics) TokenIssued() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Issued++
}

func (r *RecordingMetrics) Redemption(method, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Redemptions[method+"/"+result]++
}

func (r *RecordingMetrics) EmailSent(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Emails[result]++
}

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc       func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc    func(ctx context.Context, email string) (*models.User, error)
	CreateFunc        func(ctx context.Context, user *models.User) (*models.User, error)
	MarkConfirmedFunc func(ctx context.Context, id string) (*models.User, error)
	UpdateRoleFunc    func(ctx context.Context, id, role string) (*models.User, error)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) MarkConfirmed(ctx context.Context, id string) (*models.User, error) {
	if m.MarkConfirmedFunc != nil {
		return m.MarkConfirmedFunc(ctx, id)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) UpdateRole(ctx context.Context, id, role string) (*models.User, error) {
	if m.UpdateRoleFunc != nil {
		return m.UpdateRoleFunc(ctx, id, role)
	}
	return nil, models.ErrInternalServer
}

// MockSettingsRepository implements SettingsRepository for testing
type MockSettingsRepository struct {
	GetEmailSettingsFunc  func(ctx context.Context) (*models.EmailTemplateSettings, error)
	SaveEmailSettingsFunc func(ctx context.Context, s *models.EmailTemplateSettings) (*models.EmailTemplateSettings, error)
}

func (m *MockSettingsRepository) GetEmailSettings(ctx context.Context) (*models.EmailTemplateSettings, error) {
	if m.GetEmailSettingsFunc != nil {
		return m.GetEmailSettingsFunc(ctx)
	}
	return &models.EmailTemplateSettings{}, nil
}

func (m *MockSettingsRepository) SaveEmailSettings(ctx context.Context, s *models.EmailTemplateSettings) (*models.EmailTemplateSettings, error) {
	if m.SaveEmailSettingsFunc != nil {
		return m.SaveEmailSettingsFunc(ctx, s)
	}
	saved := *s
	return &saved, nil
}

// NewTestUser creates a confirmed magic-link user for tests
func NewTestUser(id, email string) *models.User {
	return &models.User{
		ID:        id,
		Email:     email,
		Username:  email,
		Name:      localPart(email),
		Provider:  models.ProviderMagicLink,
		Confirmed: true,
		Role:      models.RoleAuthenticated,
		TokenKey:  "test-token-key",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}
