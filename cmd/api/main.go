package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/multierr"

	"github.com/BradenHooton/magiclink/internal/auth"
	"github.com/BradenHooton/magiclink/internal/background"
	"github.com/BradenHooton/magiclink/internal/config"
	"github.com/BradenHooton/magiclink/internal/database"
	"github.com/BradenHooton/magiclink/internal/email"
	"github.com/BradenHooton/magiclink/internal/handlers"
	"github.com/BradenHooton/magiclink/internal/limiter"
	"github.com/BradenHooton/magiclink/internal/metrics"
	middlewareCustom "github.com/BradenHooton/magiclink/internal/middleware"
	"github.com/BradenHooton/magiclink/internal/repositories"
	"github.com/BradenHooton/magiclink/internal/routes"
	"github.com/BradenHooton/magiclink/internal/services"
	pkghttp "github.com/BradenHooton/magiclink/pkg/http"
	pkglogger "github.com/BradenHooton/magiclink/pkg/logger"
)

func main() {
	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		bootLogger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := pkglogger.New(os.Stdout, cfg.Server.LogLevel)
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("token_store", cfg.Token.Store),
		slog.String("email_provider", cfg.Email.Provider))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Initialize database
	db, err := database.NewConnection(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db.Pool, logger); err != nil {
			logger.Error("failed to run migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	settingsRepo := repositories.NewSettingsRepository(db)

	tokenRepo, mongoClient, err := newTokenStore(ctx, cfg, db, logger)
	if err != nil {
		logger.Error("failed to initialize token store", slog.Any("error", err))
		os.Exit(1)
	}

	// Metrics
	var (
		credentialMetrics services.CredentialMetrics
		httpObserver      middlewareCustom.HTTPObserver
		collector         *background.MetricsCollector
		promMetrics       *metrics.Metrics
	)
	if cfg.Metrics.Enabled {
		promMetrics, err = metrics.New(metrics.Options{})
		if err != nil {
			logger.Error("failed to initialize metrics", slog.Any("error", err))
			os.Exit(1)
		}
		if err := promMetrics.RegisterPool(db); err != nil {
			logger.Error("failed to register pool metrics", slog.Any("error", err))
			os.Exit(1)
		}
		credentialMetrics = promMetrics
		httpObserver = promMetrics
		collector = background.NewMetricsCollector(tokenRepo, promMetrics, logger, cfg.Metrics.RefreshInterval)
	}

	// Email delivery
	sender, err := newSender(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize email sender", slog.Any("error", err))
		os.Exit(1)
	}

	// Per-email send throttle
	var (
		sendLimiter services.SendLimiter
		redisClient *redis.Client
	)
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			// Allow fails open, so a missing Redis only disables the throttle
			logger.Warn("redis unreachable at startup", slog.Any("error", err))
		}
		sendLimiter = limiter.NewSendLimiter(redisClient, cfg.Redis.SendLimit, cfg.Redis.SendWindow)
	} else {
		logger.Info("REDIS_ADDR not set, per-email send throttle disabled")
	}

	// Token manager
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)

	// Enable composite signing with per-user TokenKey
	tokenManager.SetUserRepo(userRepo)

	auditLogger := pkglogger.NewAuditLogger(logger)

	// Initialize services
	settingsService := services.NewSettingsService(settingsRepo, cfg.Email.Template, cfg.Token.Settings, logger, auditLogger)
	tokenService := services.NewTokenService(tokenRepo, settingsService, credentialMetrics, logger, auditLogger)
	deliveryService := services.NewDeliveryService(tokenService, settingsService, sender, sendLimiter, credentialMetrics, logger, auditLogger)
	userService := services.NewUserService(userRepo, cfg.Auth.DefaultRole, logger, auditLogger)
	authService := services.NewAuthService(tokenService, userService, tokenManager, logger)

	// Bootstrap first admin user if configured
	if cfg.Auth.AdminEmail != "" {
		if _, err := userService.EnsureAdmin(ctx, cfg.Auth.AdminEmail); err != nil {
			logger.Error("failed to ensure admin user", slog.Any("error", err))
		}
	} else {
		logger.Info("no ADMIN_EMAIL set, skipping admin user creation")
	}

	// Initialize handlers
	ipConfig, err := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	if err != nil {
		logger.Error("invalid TRUSTED_PROXIES", slog.Any("error", err))
		os.Exit(1)
	}
	authHandler := handlers.NewAuthHandler(authService, deliveryService, ipConfig)
	settingsHandler := handlers.NewSettingsHandler(settingsService, ipConfig)

	// Setup CORS middleware
	corsConfig := middlewareCustom.DefaultCORSConfig(cfg.Server.Env)
	corsConfig.AllowedOrigins = cfg.Server.AllowedOrigins

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger, httpObserver))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routeOpts := routes.Options{
		RateLimit: middlewareCustom.RateLimitConfig{RequestsPerMinute: cfg.Server.RateLimitPerMinute},
		Health:    handlers.Health(db),
	}
	if promMetrics != nil {
		routeOpts.MetricsHandler = promMetrics.Handler()
	}
	routes.RegisterRoutes(router, authHandler, settingsHandler, tokenManager, userRepo, routeOpts)

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start metrics collector
	collectorCtx, collectorCancel := context.WithCancel(context.Background())
	defer collectorCancel()

	if collector != nil {
		go collector.Start(collectorCtx)
	}

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	collectorCancel()
	if collector != nil {
		collector.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	var shutdownErr error
	shutdownErr = multierr.Append(shutdownErr, server.Shutdown(shutdownCtx))
	if redisClient != nil {
		shutdownErr = multierr.Append(shutdownErr, redisClient.Close())
	}
	if mongoClient != nil {
		shutdownErr = multierr.Append(shutdownErr, mongoClient.Disconnect(shutdownCtx))
	}

	if shutdownErr != nil {
		logger.Error("shutdown error", slog.Any("error", shutdownErr))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// newTokenStore selects the credential store. The mongo client is returned
// so it can be disconnected on shutdown; it is nil for postgres.
func newTokenStore(ctx context.Context, cfg *config.Config, db *database.DB, logger *slog.Logger) (services.TokenRepository, *mongo.Client, error) {
	switch cfg.Token.Store {
	case config.StoreMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to mongo: %w", err)
		}
		if err := client.Ping(ctx, nil); err != nil {
			_ = client.Disconnect(ctx)
			return nil, nil, fmt.Errorf("failed to ping mongo: %w", err)
		}

		repo := repositories.NewMongoTokenRepository(client.Database(cfg.Mongo.Database).Collection(cfg.Mongo.Collection))
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, nil, fmt.Errorf("failed to create mongo indexes: %w", err)
		}

		logger.Info("using mongo token store",
			slog.String("database", cfg.Mongo.Database),
			slog.String("collection", cfg.Mongo.Collection))
		return repo, client, nil
	default:
		return repositories.NewTokenRepository(db), nil, nil
	}
}

// newSender builds the configured email sender. A nil sender with a nil
// error means delivery is disabled.
func newSender(ctx context.Context, cfg *config.Config, logger *slog.Logger) (email.Sender, error) {
	switch cfg.Email.Provider {
	case config.EmailProviderSES:
		return email.NewSESSender(ctx, cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
	case config.EmailProviderSMTP:
		return email.NewSMTPSender(email.SMTPSettings{
			Host:     cfg.Email.SMTP.Host,
			Port:     cfg.Email.SMTP.Port,
			Username: cfg.Email.SMTP.Username,
			Password: cfg.Email.SMTP.Password,
			From:     cfg.Email.SMTP.From,
			UseTLS:   cfg.Email.SMTP.UseTLS,
			Timeout:  cfg.Email.SMTP.Timeout,
		})
	default:
		logger.Warn("email delivery disabled, /send-mail will return 503")
		return nil, nil
	}
}
