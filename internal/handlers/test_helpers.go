package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/magiclink/internal/auth"
	"github.com/BradenHooton/magiclink/internal/models"
	"github.com/BradenHooton/magiclink/internal/services"
	pkghttp "github.com/BradenHooton/magiclink/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAdminContext adds admin user claims to request context
func WithAdminContext(req *http.Request, userID, email string) *http.Request {
	claims := &models.TokenClaims{
		UserID: userID,
		Email:  email,
		Role:   models.RoleAdmin,
		Type:   auth.TokenTypeAccess,
	}
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockExchangeService implements ExchangeServiceInterface for testing
type MockExchangeService struct {
	ExchangeFunc func(ctx context.Context, req services.ExchangeRequest) (*services.ExchangeResult, error)
}

func (m *MockExchangeService) Exchange(ctx context.Context, req services.ExchangeRequest) (*services.ExchangeResult, error) {
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, req)
	}
	return nil, models.ErrUnauthorized
}

// MockDeliveryService implements DeliveryServiceInterface for testing
type MockDeliveryService struct {
	SendMagicLinkEmailFunc func(ctx context.Context, address string, opts services.SendMagicLinkOptions) (*models.MagicLinkDelivery, error)
}

func (m *MockDeliveryService) SendMagicLinkEmail(ctx context.Context, address string, opts services.SendMagicLinkOptions) (*models.MagicLinkDelivery, error) {
	if m.SendMagicLinkEmailFunc != nil {
		return m.SendMagicLinkEmailFunc(ctx, address, opts)
	}
	return &models.MagicLinkDelivery{Email: address}, nil
}

// MockSettingsService implements SettingsServiceInterface for testing
type MockSettingsService struct {
	GetSettingsFunc    func(ctx context.Context) (*models.EmailTemplateSettings, error)
	UpdateSettingsFunc func(ctx context.Context, in models.EmailTemplateSettings, actorID, ipAddress string) (*models.EmailTemplateSettings, error)
}

func (m *MockSettingsService) GetSettings(ctx context.Context) (*models.EmailTemplateSettings, error) {
	if m.GetSettingsFunc != nil {
		return m.GetSettingsFunc(ctx)
	}
	return &models.EmailTemplateSettings{}, nil
}

func (m *MockSettingsService) UpdateSettings(ctx context.Context, in models.EmailTemplateSettings, actorID, ipAddress string) (*models.EmailTemplateSettings, error) {
	if m.UpdateSettingsFunc != nil {
		return m.UpdateSettingsFunc(ctx, in, actorID, ipAddress)
	}
	return &in, nil
}

// MockPinger implements Pinger for testing
type MockPinger struct {
	Err error
}

func (m *MockPinger) HealthCheck(ctx context.Context) error {
	return m.Err
}
