package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/BradenHooton/magiclink/internal/auth"
	"github.com/BradenHooton/magiclink/internal/models"
	pkghttp "github.com/BradenHooton/magiclink/pkg/http"
)

// SettingsServiceInterface defines the interface for email template settings
type SettingsServiceInterface interface {
	GetSettings(ctx context.Context) (*models.EmailTemplateSettings, error)
	UpdateSettings(ctx context.Context, in models.EmailTemplateSettings, actorID, ipAddress string) (*models.EmailTemplateSettings, error)
}

// SettingsHandler handles admin email template settings requests
type SettingsHandler struct {
	service  SettingsServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewSettingsHandler creates a new SettingsHandler
func NewSettingsHandler(service SettingsServiceInterface, ipConfig *pkghttp.IPConfig) *SettingsHandler {
	return &SettingsHandler{service: service, ipConfig: ipConfig}
}

// GetSettings returns the effective email template settings
// @Summary Get email settings
// @Produce json
// @Success 200 {object} models.EmailTemplateSettings
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /settings [get]
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.service.GetSettings(r.Context())
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to load settings")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, settings)
}

// UpdateSettings replaces the persisted email template settings. Fields that
// are missing or not strings are stored empty.
// @Summary Update email settings
// @Accept json
// @Produce json
// @Success 200 {object} models.EmailTemplateSettings
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /settings [put]
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	in := models.EmailTemplateSettings{
		DefaultFrom:    stringField(body, "defaultFrom"),
		DefaultReplyTo: stringField(body, "defaultReplyTo"),
		Subject:        stringField(body, "subject"),
		Text:           stringField(body, "text"),
		HTML:           stringField(body, "html"),
	}

	var actorID string
	if claims := auth.GetUserFromContext(r); claims != nil {
		actorID = claims.UserID
	}

	updated, err := h.service.UpdateSettings(r.Context(), in, actorID, pkghttp.ExtractClientIP(r, h.ipConfig))
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to update settings")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, updated)
}

func stringField(body map[string]any, key string) string {
	s, _ := body[key].(string)
	return s
}
