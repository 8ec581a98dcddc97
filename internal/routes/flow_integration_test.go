//go:build integration

package routes_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/magiclink/internal/auth"
	"github.com/BradenHooton/magiclink/internal/database/testdb"
	"github.com/BradenHooton/magiclink/internal/email"
	"github.com/BradenHooton/magiclink/internal/handlers"
	"github.com/BradenHooton/magiclink/internal/middleware"
	"github.com/BradenHooton/magiclink/internal/models"
	"github.com/BradenHooton/magiclink/internal/repositories"
	"github.com/BradenHooton/magiclink/internal/routes"
	"github.com/BradenHooton/magiclink/internal/services"
	pkglogger "github.com/BradenHooton/magiclink/pkg/logger"
)

// capturingSender keeps every message for assertions
type capturingSender struct {
	mu       sync.Mutex
	messages []email.Message
}

func (c *capturingSender) Send(ctx context.Context, msg email.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	return nil
}

func (c *capturingSender) last(t *testing.T) email.Message {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.messages)
	return c.messages[len(c.messages)-1]
}

var credentialPattern = regexp.MustCompile(`CODE=(\d+) TOKEN=([0-9a-f]+)`)

func newIntegrationServer(t *testing.T, db *testdb.TestDB) (*httptest.Server, *capturingSender) {
	t.Helper()

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	auditLogger := pkglogger.NewAuditLogger(logger)

	userRepo := repositories.NewUserRepository(db.DB)
	settingsRepo := repositories.NewSettingsRepository(db.DB)
	tokenRepo := repositories.NewTokenRepository(db.DB)

	tm := auth.NewTokenManager("integration-secret-that-is-long-enough!!", time.Hour)
	tm.SetUserRepo(userRepo)

	sender := &capturingSender{}
	settingsService := services.NewSettingsService(settingsRepo,
		models.EmailTemplateSettings{DefaultFrom: "noreply@example.com", Text: "CODE={{CODE}} TOKEN={{TOKEN}}"},
		models.TokenSettings{}, logger, auditLogger)
	tokenService := services.NewTokenService(tokenRepo, settingsService, nil, logger, auditLogger)
	deliveryService := services.NewDeliveryService(tokenService, settingsService, sender, nil, nil, logger, auditLogger)
	userService := services.NewUserService(userRepo, models.RoleAuthenticated, logger, auditLogger)
	authService := services.NewAuthService(tokenService, userService, tm, logger)

	router := chi.NewRouter()
	routes.RegisterRoutes(router,
		handlers.NewAuthHandler(authService, deliveryService, nil),
		handlers.NewSettingsHandler(settingsService, nil),
		tm, userRepo,
		routes.Options{RateLimit: middleware.RateLimitConfig{RequestsPerMinute: 100}, Health: handlers.Health(db.DB)},
	)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, sender
}

func postJSON(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()

	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestSignInFlow_Integration(t *testing.T) {
	ctx := context.Background()
	db, err := testdb.Setup(ctx)
	require.NoError(t, err)
	defer db.Teardown(ctx)

	server, sender := newIntegrationServer(t, db)

	resp, body := postJSON(t, server.URL+"/send-mail", `{"email":"Flow@Example.com","url":"https://app.example.com/login"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	msg := sender.last(t)
	assert.Equal(t, "flow@example.com", msg.To)
	assert.Equal(t, "noreply@example.com", msg.From)
	match := credentialPattern.FindStringSubmatch(msg.Text)
	require.Len(t, match, 3)
	code, token := match[1], match[2]
	assert.Len(t, code, 6)
	assert.Len(t, token, 32)

	// Code path signs the user in and creates the account
	resp, body = postJSON(t, server.URL+"/oauth/token", `{"email":"flow@example.com","code":"`+code+`","clientIp":"203.0.113.9"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["jwt"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "flow@example.com", user["email"])
	assert.Equal(t, true, user["isNew"])
	assert.Equal(t, true, user["confirmed"])

	// The token of the same credential is spent as well
	resp, _ = postJSON(t, server.URL+"/oauth/token", `{"loginToken":"`+token+`"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// A fresh link signs the existing user in
	_, _ = postJSON(t, server.URL+"/send-mail", `{"email":"flow@example.com"}`)
	match = credentialPattern.FindStringSubmatch(sender.last(t).Text)
	require.Len(t, match, 3)

	resp, body = postJSON(t, server.URL+"/oauth/token", `{"token":"`+match[2]+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	user = body["user"].(map[string]any)
	assert.Equal(t, false, user["isNew"])
}

func TestSettingsFlow_Integration(t *testing.T) {
	ctx := context.Background()
	db, err := testdb.Setup(ctx)
	require.NoError(t, err)
	defer db.Teardown(ctx)

	server, sender := newIntegrationServer(t, db)

	userRepo := repositories.NewUserRepository(db.DB)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	admin, err := services.NewUserService(userRepo, models.RoleAuthenticated, logger, pkglogger.NewAuditLogger(logger)).
		EnsureAdmin(ctx, "admin@example.com")
	require.NoError(t, err)

	tm := auth.NewTokenManager("integration-secret-that-is-long-enough!!", time.Hour)
	tm.SetUserRepo(userRepo)
	adminJWT, err := tm.GenerateAccessToken(admin.ID, admin.Email, admin.Role)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPut, server.URL+"/settings", strings.NewReader(`{"subject":"Your code is {{CODE}}","text":"CODE={{CODE}} TOKEN={{TOKEN}}"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+adminJWT)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, _ = postJSON(t, server.URL+"/send-mail", `{"email":"someone@example.com"}`)
	msg := sender.last(t)
	match := credentialPattern.FindStringSubmatch(msg.Text)
	require.Len(t, match, 3)
	assert.Equal(t, "Your code is "+match[1], msg.Subject)
	assert.Equal(t, "noreply@example.com", msg.From, "unset persisted fields fall back to the deployment layer")
}
