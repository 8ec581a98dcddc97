package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/BradenHooton/magiclink/internal/models"
	"github.com/BradenHooton/magiclink/internal/settings"
)

// Token store drivers
const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

// Email providers
const (
	EmailProviderSES  = "ses"
	EmailProviderSMTP = "smtp"
	EmailProviderNone = "none"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Token    TokenConfig
	Email    EmailConfig
	Mongo    MongoConfig
	Redis    RedisConfig
	Metrics  MetricsConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	AutoMigrate       bool
}

type ServerConfig struct {
	Port               string
	Env                string
	LogLevel           string
	AllowedOrigins     []string
	TrustedProxies     []string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	RateLimitPerMinute int
}

type AuthConfig struct {
	JWTSecret         string
	AccessTokenExpiry time.Duration
	DefaultRole       string
	AdminEmail        string
}

// TokenConfig is the deployment layer of the credential settings. Zero
// values are unset and resolve to the built-in defaults.
type TokenConfig struct {
	Settings models.TokenSettings
	Store    string
}

type EmailConfig struct {
	Provider    string
	AWSRegion   string
	FromAddress string
	SMTP        SMTPConfig
	// Template is the deployment layer of the email template settings.
	Template models.EmailTemplateSettings
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseTLS   bool
	Timeout  time.Duration
}

type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	SendLimit  int
	SendWindow time.Duration
}

type MetricsConfig struct {
	Enabled         bool
	RefreshInterval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	tokenSettings, err := loadTokenSettings()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "magiclink"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			AutoMigrate:       getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			Env:                env,
			LogLevel:           getEnv("LOG_LEVEL", "info"),
			AllowedOrigins:     parseAllowedOrigins(env),
			TrustedProxies:     parseList(getEnv("TRUSTED_PROXIES", "")),
			ReadTimeout:        getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:       getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:        getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 10),
		},
		Auth: AuthConfig{
			JWTSecret:         jwtSecret,
			AccessTokenExpiry: getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 7*24*time.Hour),
			DefaultRole:       getEnv("AUTH_DEFAULT_ROLE", models.RoleAuthenticated),
			AdminEmail:        strings.ToLower(strings.TrimSpace(getEnv("ADMIN_EMAIL", ""))),
		},
		Token: TokenConfig{
			Settings: tokenSettings,
			Store:    strings.ToLower(getEnv("TOKEN_STORE", StorePostgres)),
		},
		Email: EmailConfig{
			Provider:    strings.ToLower(getEnv("EMAIL_PROVIDER", EmailProviderSES)),
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),
			SMTP: SMTPConfig{
				Host:     getEnv("SMTP_HOST", ""),
				Port:     getEnvAsInt("SMTP_PORT", 587),
				Username: getEnv("SMTP_USERNAME", ""),
				Password: getEnv("SMTP_PASSWORD", ""),
				From:     getEnv("SMTP_FROM", ""),
				UseTLS:   getEnvAsBool("SMTP_USE_TLS", false),
				Timeout:  getEnvAsDuration("SMTP_TIMEOUT", 10*time.Second),
			},
			Template: models.EmailTemplateSettings{
				DefaultFrom:    getEnv("EMAIL_DEFAULT_FROM", ""),
				DefaultReplyTo: getEnv("EMAIL_DEFAULT_REPLY_TO", ""),
				Subject:        getEnv("EMAIL_SUBJECT", ""),
				Text:           getEnv("EMAIL_TEXT_TEMPLATE", ""),
				HTML:           getEnv("EMAIL_HTML_TEMPLATE", ""),
			},
		},
		Mongo: MongoConfig{
			URI:        getEnv("MONGO_URI", ""),
			Database:   getEnv("MONGO_DATABASE", "magiclink"),
			Collection: getEnv("MONGO_TOKENS_COLLECTION", "tokens"),
		},
		Redis: RedisConfig{
			Addr:       getEnv("REDIS_ADDR", ""),
			Password:   getEnv("REDIS_PASSWORD", ""),
			DB:         getEnvAsInt("REDIS_DB", 0),
			SendLimit:  getEnvAsInt("SEND_LIMIT_PER_EMAIL", 5),
			SendWindow: getEnvAsDuration("SEND_LIMIT_WINDOW", 15*time.Minute),
		},
		Metrics: MetricsConfig{
			Enabled:         getEnvAsBool("METRICS_ENABLED", true),
			RefreshInterval: getEnvAsDuration("METRICS_REFRESH_INTERVAL", 1*time.Minute),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	switch cfg.Token.Store {
	case StorePostgres:
	case StoreMongo:
		if cfg.Mongo.URI == "" {
			return nil, fmt.Errorf("MONGO_URI is required when TOKEN_STORE=%s", StoreMongo)
		}
	default:
		return nil, fmt.Errorf("TOKEN_STORE must be one of %q or %q, got %q", StorePostgres, StoreMongo, cfg.Token.Store)
	}

	switch cfg.Email.Provider {
	case EmailProviderSES, EmailProviderNone:
	case EmailProviderSMTP:
		if cfg.Email.SMTP.Host == "" {
			return nil, fmt.Errorf("SMTP_HOST is required when EMAIL_PROVIDER=%s", EmailProviderSMTP)
		}
	default:
		return nil, fmt.Errorf("EMAIL_PROVIDER must be one of ses, smtp or none, got %q", cfg.Email.Provider)
	}

	return cfg, nil
}

// loadTokenSettings reads the deployment token layer. Unset or non-numeric
// values stay zero; numeric values are range-checked.
func loadTokenSettings() (models.TokenSettings, error) {
	var s models.TokenSettings

	if ttl, ok := lookupEnvAsInt("TOKEN_TTL_MINUTES"); ok {
		if ttl <= 0 {
			return s, fmt.Errorf("TOKEN_TTL_MINUTES must be a positive number of minutes, got %d", ttl)
		}
		s.TTLMinutes = ttl
	}
	if length, ok := lookupEnvAsInt("TOKEN_LENGTH"); ok {
		if length < settings.MinTokenLength || length > settings.MaxTokenLength {
			return s, fmt.Errorf("TOKEN_LENGTH must be an integer between %d and %d, got %d",
				settings.MinTokenLength, settings.MaxTokenLength, length)
		}
		s.TokenLength = length
	}
	if length, ok := lookupEnvAsInt("TOKEN_CODE_LENGTH"); ok {
		if length < settings.MinCodeLength || length > settings.MaxCodeLength {
			return s, fmt.Errorf("TOKEN_CODE_LENGTH must be an integer between %d and %d, got %d",
				settings.MinCodeLength, settings.MaxCodeLength, length)
		}
		s.CodeLength = length
	}

	return s, nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	// Minimum length based on environment
	minLength := 16 // Development minimum
	if env == "production" {
		minLength = 32 // Production requires stronger secret (256 bits)
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	// Check against common weak secrets
	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func lookupEnvAsInt(key string) (int, bool) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return 0, false
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return intVal, true
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseList(value string) []string {
	if value == "" {
		return []string{}
	}
	items := strings.Split(value, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		return parseList(getEnv("ALLOWED_ORIGINS", ""))
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173", // Vite default
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
