package config

import (
	"os"
	"testing"
	"time"
)

func TestServerConfig_Timeouts_Defaults(t *testing.T) {
	// Set required env vars
	os.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	os.Setenv("DB_PASSWORD", "test")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	// Verify default timeout values match hardcoded values from main.go
	tests := []struct {
		name     string
		actual   time.Duration
		expected time.Duration
	}{
		{"ReadTimeout", cfg.Server.ReadTimeout, 15 * time.Second},
		{"WriteTimeout", cfg.Server.WriteTimeout, 15 * time.Second},
		{"IdleTimeout", cfg.Server.IdleTimeout, 60 * time.Second},
	}

	for _, tt := range tests {
		if tt.actual != tt.expected {
			t.Errorf("%s: got %v, want %v", tt.name, tt.actual, tt.expected)
		}
	}
}

func TestServerConfig_Timeouts_CustomValues(t *testing.T) {
	// Set required env vars
	os.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	os.Setenv("DB_PASSWORD", "test")
	os.Setenv("SERVER_READ_TIMEOUT", "30s")
	os.Setenv("SERVER_WRITE_TIMEOUT", "45s")
	os.Setenv("SERVER_IDLE_TIMEOUT", "120s")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	// Verify custom timeout values
	tests := []struct {
		name     string
		actual   time.Duration
		expected time.Duration
	}{
		{"ReadTimeout", cfg.Server.ReadTimeout, 30 * time.Second},
		{"WriteTimeout", cfg.Server.WriteTimeout, 45 * time.Second},
		{"IdleTimeout", cfg.Server.IdleTimeout, 120 * time.Second},
	}

	for _, tt := range tests {
		if tt.actual != tt.expected {
			t.Errorf("%s: got %v, want %v", tt.name, tt.actual, tt.expected)
		}
	}
}

func TestServerConfig_Timeouts_InvalidDuration(t *testing.T) {
	// Set required env vars
	os.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	os.Setenv("DB_PASSWORD", "test")
	os.Setenv("SERVER_READ_TIMEOUT", "not-a-duration")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	// Invalid duration should fall back to default
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("ReadTimeout with invalid value: got %v, want %v", cfg.Server.ReadTimeout, 15*time.Second)
	}
}

func TestServerConfig_Timeouts_PartialCustom(t *testing.T) {
	// Set required env vars and only some timeouts
	os.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	os.Setenv("DB_PASSWORD", "test")
	os.Setenv("SERVER_READ_TIMEOUT", "25s")
	// WriteTimeout and IdleTimeout not set, should use defaults
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	// Verify mixed custom and default values
	tests := []struct {
		name     string
		actual   time.Duration
		expected time.Duration
	}{
		{"ReadTimeout (custom)", cfg.Server.ReadTimeout, 25 * time.Second},
		{"WriteTimeout (default)", cfg.Server.WriteTimeout, 15 * time.Second},
		{"IdleTimeout (default)", cfg.Server.IdleTimeout, 60 * time.Second},
	}

	for _, tt := range tests {
		if tt.actual != tt.expected {
			t.Errorf("%s: got %v, want %v", tt.name, tt.actual, tt.expected)
		}
	}
}

func TestServerConfig_Timeouts_ZeroValues(t *testing.T) {
	// Set required env vars
	os.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	os.Setenv("DB_PASSWORD", "test")
	os.Setenv("SERVER_READ_TIMEOUT", "0s")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	// Explicitly setting 0s should be honored (no timeout)
	if cfg.Server.ReadTimeout != 0 {
		t.Errorf("ReadTimeout with 0s: got %v, want 0", cfg.Server.ReadTimeout)
	}
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	t.Setenv("DB_PASSWORD", "test")
}

func TestTokenConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Token.Settings.TTLMinutes != 0 || cfg.Token.Settings.TokenLength != 0 || cfg.Token.Settings.CodeLength != 0 {
		t.Errorf("unset token settings should stay zero, got %+v", cfg.Token.Settings)
	}
	if cfg.Token.Store != StorePostgres {
		t.Errorf("Store: got %q, want %q", cfg.Token.Store, StorePostgres)
	}
	if cfg.Auth.DefaultRole != "authenticated" {
		t.Errorf("DefaultRole: got %q, want authenticated", cfg.Auth.DefaultRole)
	}
}

func TestTokenConfig_CustomValues(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TOKEN_TTL_MINUTES", "30")
	t.Setenv("TOKEN_LENGTH", "48")
	t.Setenv("TOKEN_CODE_LENGTH", "8")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Token.Settings.TTLMinutes != 30 {
		t.Errorf("TTLMinutes: got %d, want 30", cfg.Token.Settings.TTLMinutes)
	}
	if cfg.Token.Settings.TokenLength != 48 {
		t.Errorf("TokenLength: got %d, want 48", cfg.Token.Settings.TokenLength)
	}
	if cfg.Token.Settings.CodeLength != 8 {
		t.Errorf("CodeLength: got %d, want 8", cfg.Token.Settings.CodeLength)
	}
}

func TestTokenConfig_NonNumericIgnored(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TOKEN_TTL_MINUTES", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}
	if cfg.Token.Settings.TTLMinutes != 0 {
		t.Errorf("TTLMinutes: got %d, want 0", cfg.Token.Settings.TTLMinutes)
	}
}

func TestTokenConfig_OutOfRange(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"zero ttl", "TOKEN_TTL_MINUTES", "0"},
		{"negative ttl", "TOKEN_TTL_MINUTES", "-5"},
		{"short token", "TOKEN_LENGTH", "8"},
		{"short code", "TOKEN_CODE_LENGTH", "3"},
		{"long token", "TOKEN_LENGTH", "256"},
		{"long code", "TOKEN_CODE_LENGTH", "40"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.key, tt.value)

			if _, err := Load(); err == nil {
				t.Errorf("Load() with %s=%s should fail", tt.key, tt.value)
			}
		})
	}
}

func TestTokenConfig_StoreSelection(t *testing.T) {
	t.Run("mongo requires uri", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("TOKEN_STORE", "mongo")

		if _, err := Load(); err == nil {
			t.Error("Load() with TOKEN_STORE=mongo and no MONGO_URI should fail")
		}
	})

	t.Run("mongo with uri", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("TOKEN_STORE", "mongo")
		t.Setenv("MONGO_URI", "mongodb://localhost:27017")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() = %v, want nil", err)
		}
		if cfg.Token.Store != StoreMongo {
			t.Errorf("Store: got %q, want %q", cfg.Token.Store, StoreMongo)
		}
	})

	t.Run("unknown store", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("TOKEN_STORE", "sqlite")

		if _, err := Load(); err == nil {
			t.Error("Load() with unknown TOKEN_STORE should fail")
		}
	})
}

func TestEmailConfig_Provider(t *testing.T) {
	t.Run("smtp requires host", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("EMAIL_PROVIDER", "smtp")

		if _, err := Load(); err == nil {
			t.Error("Load() with EMAIL_PROVIDER=smtp and no SMTP_HOST should fail")
		}
	})

	t.Run("deployment template layer", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("EMAIL_PROVIDER", "none")
		t.Setenv("EMAIL_SUBJECT", "Sign in to Acme")
		t.Setenv("EMAIL_DEFAULT_FROM", "no-reply@acme.test")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() = %v, want nil", err)
		}
		if cfg.Email.Template.Subject != "Sign in to Acme" {
			t.Errorf("Subject: got %q", cfg.Email.Template.Subject)
		}
		if cfg.Email.Template.DefaultFrom != "no-reply@acme.test" {
			t.Errorf("DefaultFrom: got %q", cfg.Email.Template.DefaultFrom)
		}
		if cfg.Email.Template.Text != "" {
			t.Errorf("Text should be unset, got %q", cfg.Email.Template.Text)
		}
	})
}

func TestLoad_RequiresSecrets(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DB_PASSWORD", "test")
	if _, err := Load(); err == nil {
		t.Error("Load() without JWT_SECRET should fail")
	}

	t.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	t.Setenv("DB_PASSWORD", "")
	if _, err := Load(); err == nil {
		t.Error("Load() without DB_PASSWORD should fail")
	}
}

func TestTokenConfig_UpperBoundsAccepted(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TOKEN_LENGTH", "255")
	t.Setenv("TOKEN_CODE_LENGTH", "32")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}
	if cfg.Token.Settings.TokenLength != 255 {
		t.Errorf("TokenLength: got %d, want 255", cfg.Token.Settings.TokenLength)
	}
	if cfg.Token.Settings.CodeLength != 32 {
		t.Errorf("CodeLength: got %d, want 32", cfg.Token.Settings.CodeLength)
	}
}
