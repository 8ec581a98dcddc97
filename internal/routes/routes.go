package routes

import (
	"net/http"

	"github.com/BradenHooton/magiclink/internal/auth"
	"github.com/BradenHooton/magiclink/internal/handlers"
	"github.com/BradenHooton/magiclink/internal/middleware"
	"github.com/BradenHooton/magiclink/internal/models"
	"github.com/go-chi/chi/v5"
)

// Options carries the optional pieces of the route table
type Options struct {
	RateLimit      middleware.RateLimitConfig
	Health         http.Handler
	MetricsHandler http.Handler
}

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	settingsHandler *handlers.SettingsHandler,
	tokenManager *auth.TokenManager,
	userRepo auth.UserRepository,
	opts Options,
) {
	if opts.Health != nil {
		router.Method(http.MethodGet, "/health", opts.Health)
	}
	if opts.MetricsHandler != nil {
		router.Method(http.MethodGet, "/metrics", opts.MetricsHandler)
	}

	// Public sign-in routes, rate limited per client IP
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(opts.RateLimit))
		r.Post("/oauth/token", authHandler.Token)
		r.Post("/send-mail", authHandler.SendMail)
	})

	// Admin-only routes
	router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(tokenManager))
		r.Use(auth.RequireRole(userRepo, models.RoleAdmin))
		r.Get("/settings", settingsHandler.GetSettings)
		r.Put("/settings", settingsHandler.UpdateSettings)
	})
}
