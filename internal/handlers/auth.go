package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/BradenHooton/magiclink/internal/models"
	"github.com/BradenHooton/magiclink/internal/services"
	pkghttp "github.com/BradenHooton/magiclink/pkg/http"
)

// ExchangeServiceInterface defines the interface for credential exchange
type ExchangeServiceInterface interface {
	Exchange(ctx context.Context, req services.ExchangeRequest) (*services.ExchangeResult, error)
}

// DeliveryServiceInterface defines the interface for magic-link delivery
type DeliveryServiceInterface interface {
	SendMagicLinkEmail(ctx context.Context, address string, opts services.SendMagicLinkOptions) (*models.MagicLinkDelivery, error)
}

// AuthHandler handles magic-link sign-in HTTP requests
type AuthHandler struct {
	exchange ExchangeServiceInterface
	delivery DeliveryServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(exchange ExchangeServiceInterface, delivery DeliveryServiceInterface, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		exchange: exchange,
		delivery: delivery,
		ipConfig: ipConfig,
	}
}

// Request DTOs

// TokenRequest represents the request body for the credential exchange.
// LoginToken is accepted as an alias of Token.
type TokenRequest struct {
	Token       string         `json:"token" validate:"omitempty,max=512"`
	LoginToken  string         `json:"loginToken" validate:"omitempty,max=512"`
	Email       string         `json:"email" validate:"omitempty,email"`
	Code        string         `json:"code" validate:"omitempty,numeric,max=32"`
	UserAgent   string         `json:"userAgent" validate:"omitempty,max=1024"`
	ClientIP    string         `json:"clientIp" validate:"omitempty,ip"`
	Attribution map[string]any `json:"attribution"`
}

// SendMailRequest represents the request body for sending a magic link
type SendMailRequest struct {
	Email   string         `json:"email" validate:"required,email"`
	URL     string         `json:"url" validate:"omitempty,max=2048"`
	Context map[string]any `json:"context"`
}

// SendMailResponse represents the response for a sent magic link
type SendMailResponse struct {
	Success bool `json:"success"`
}

// Token exchanges a magic-link token or an email/code pair for a session
// @Summary Exchange credential
// @Accept json
// @Param request body TokenRequest true "Exchange request"
// @Produce json
// @Success 200 {object} services.ExchangeResult
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /oauth/token [post]
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	token := req.Token
	if token == "" {
		token = req.LoginToken
	}
	if token == "" && (req.Email == "" || req.Code == "") {
		pkghttp.WriteBadRequest(w, "token or email and code are required")
		return
	}

	clientIP := req.ClientIP
	if clientIP == "" {
		clientIP = pkghttp.ExtractClientIP(r, h.ipConfig)
	}
	userAgent := req.UserAgent
	if userAgent == "" {
		userAgent = r.Header.Get("User-Agent")
	}

	result, err := h.exchange.Exchange(r.Context(), services.ExchangeRequest{
		Token:       token,
		Email:       strings.ToLower(strings.TrimSpace(req.Email)),
		Code:        req.Code,
		UserAgent:   userAgent,
		ClientIP:    clientIP,
		Attribution: req.Attribution,
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "token or email and code are required")
		case errors.Is(err, models.ErrUnauthorized):
			// Unknown, expired and spent credentials are indistinguishable
			pkghttp.WriteUnauthorized(w, "Invalid or expired credential")
		case errors.Is(err, models.ErrAccountBlocked):
			pkghttp.WriteBadRequest(w, models.ErrAccountBlocked.Error())
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, result)
}

// SendMail issues a credential and emails the magic link and code
// @Summary Send magic link
// @Accept json
// @Param request body SendMailRequest true "Send mail request"
// @Produce json
// @Success 200 {object} SendMailResponse
// @Failure 400 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /send-mail [post]
func (h *AuthHandler) SendMail(w http.ResponseWriter, r *http.Request) {
	var req SendMailRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	_, err := h.delivery.SendMagicLinkEmail(r.Context(), req.Email, services.SendMagicLinkOptions{
		CreateTokenOptions: services.CreateTokenOptions{
			Context:   req.Context,
			IPAddress: pkghttp.ExtractClientIP(r, h.ipConfig),
			UserAgent: r.Header.Get("User-Agent"),
		},
		URL: req.URL,
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrEmailRequired):
			pkghttp.WriteBadRequest(w, "email is required")
		case errors.Is(err, models.ErrRateLimitExceeded):
			pkghttp.WriteTooManyRequests(w, "Too many sign-in emails requested. Please try again later.")
		case errors.Is(err, models.ErrEmailUnavailable):
			pkghttp.WriteServiceUnavailable(w, "Email delivery is not configured")
		case errors.Is(err, models.ErrDeliveryFailed):
			pkghttp.WriteBadGateway(w, "Failed to send email")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, SendMailResponse{Success: true})
}
