package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "PORT")
	unsetEnvWithCleanup(t, "SERVER_PORT")
	unsetEnvWithCleanup(t, "CURRENCY")
	unsetEnvWithCleanup(t, "ACCESS_TOKEN_TTL_MINUTES")
	unsetEnvWithCleanup(t, "MAX_TRANSACTION_AMOUNT")
	unsetEnvWithCleanup(t, "CARD_HOLD_TIMEOUT_MINUTES")
	unsetEnvWithCleanup(t, "CARD_HOLD_JOB_SCHEDULE")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.ServerPort)
	}
	if cfg.Currency != "NGN" {
		t.Fatalf("expected default currency NGN, got %q", cfg.Currency)
	}
	if cfg.AccessTokenTTLMinutes != 30 {
		t.Fatalf("expected 30 minute token ttl, got %d", cfg.AccessTokenTTLMinutes)
	}
	if cfg.EventExchange != "superapp.events" {
		t.Fatalf("expected default exchange, got %q", cfg.EventExchange)
	}
	if !cfg.AutoMigrate {
		t.Fatal("expected auto migrate to default to true")
	}
	if cfg.MaxTransactionAmount != DefaultMaxTransactionAmount {
		t.Fatalf("expected default max transaction amount, got %d", cfg.MaxTransactionAmount)
	}
	if cfg.CardHoldTimeoutMinutes != 15 || cfg.CardHoldJobSchedule != "*/5 * * * *" {
		t.Fatalf("unexpected card hold defaults: %d %q", cfg.CardHoldTimeoutMinutes, cfg.CardHoldJobSchedule)
	}
}

func TestLoadConfig_PortOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "9000")
	setEnvWithCleanup(t, "PORT", "7000")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "7000" {
		t.Fatalf("expected PORT to take precedence, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_NormalizesValues(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "CURRENCY", " usd ")
	setEnvWithCleanup(t, "REDIS_RATE_LIMIT_PREFIX", "app:limits:")
	setEnvWithCleanup(t, "OTP_MAX_ATTEMPTS", "0")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Currency != "USD" {
		t.Fatalf("expected uppercased currency, got %q", cfg.Currency)
	}
	if cfg.RedisRateLimitPrefix != "app:limits" {
		t.Fatalf("expected trailing colon trimmed, got %q", cfg.RedisRateLimitPrefix)
	}
	if cfg.OTPMaxAttempts != 5 {
		t.Fatalf("expected non-positive attempts to fall back to 5, got %d", cfg.OTPMaxAttempts)
	}
}

func TestLoadConfig_ReadsDotEnvFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "OTP_ISSUER")
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("OTP_ISSUER=DotEnvIssuer\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("OTP_ISSUER") })

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.OTPIssuer != "DotEnvIssuer" {
		t.Fatalf("expected issuer from .env, got %q", cfg.OTPIssuer)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{name: "missing database url", cfg: Config{JWTSecret: "s"}, want: ErrMissingDatabaseURL},
		{name: "missing jwt secret", cfg: Config{DatabaseURL: "postgres://x"}, want: ErrMissingJWTSecret},
		{name: "complete", cfg: Config{DatabaseURL: "postgres://x", JWTSecret: "s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
		}
	})
}
