package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFiles(t *testing.T, dir string) {
	t.Helper()

	config := `[server]
port = 9100

[tickstore]
dsn = "desk:desk@tcp(localhost:3306)/ticks"

[auth]
jwt_secret = "file-secret"

[backtest]
missing_price_policy = "skip"
max_legs = 6
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(config), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	creds := `[zerodha]
api_key = "key123"
api_secret = "secret456"
user_id = "AB1234"
`
	if err := os.WriteFile(filepath.Join(dir, "credentials.toml"), []byte(creds), 0600); err != nil {
		t.Fatalf("Failed to write credentials: %v", err)
	}
}

func TestLoadCreatesTemplateWhenMissing(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(dir)
	if err == nil {
		t.Fatal("expected error on first load")
	}
	if !strings.Contains(err.Error(), "created template") {
		t.Errorf("error = %v, want template creation notice", err)
	}

	if _, statErr := os.Stat(filepath.Join(dir, "config.toml")); statErr != nil {
		t.Errorf("template config not created: %v", statErr)
	}
}

func TestLoadAppliesFileValuesAndDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfigFiles(t, dir)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("port = %d, want 9100", cfg.Server.Port)
	}
	if cfg.Server.Addr() != "0.0.0.0:9100" {
		t.Errorf("addr = %q", cfg.Server.Addr())
	}
	if cfg.Backtest.MissingPricePolicy != "skip" || cfg.Backtest.MaxLegs != 6 {
		t.Errorf("backtest config = %+v", cfg.Backtest)
	}
	if cfg.Credentials.Zerodha.APIKey != "key123" {
		t.Errorf("api key = %q", cfg.Credentials.Zerodha.APIKey)
	}

	// Unset values fall back to defaults
	if cfg.TickStore.CacheTTL != 5*time.Minute {
		t.Errorf("cache_ttl = %s, want 5m", cfg.TickStore.CacheTTL)
	}
	if cfg.Auth.TokenTTL != 30*time.Minute {
		t.Errorf("token_ttl = %s, want 30m", cfg.Auth.TokenTTL)
	}
	if cfg.Database.Path != filepath.Join(dir, "desk.db") {
		t.Errorf("database path = %q", cfg.Database.Path)
	}
	if cfg.RedisEnabled() {
		t.Error("redis should be disabled by default")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	writeConfigFiles(t, dir)

	t.Setenv("KITE_API_KEY", "env-key")
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Credentials.Zerodha.APIKey != "env-key" {
		t.Errorf("api key = %q, want env-key", cfg.Credentials.Zerodha.APIKey)
	}
	if cfg.Auth.JWTSecret != "env-secret" {
		t.Errorf("jwt secret = %q, want env-secret", cfg.Auth.JWTSecret)
	}
	if !cfg.RedisEnabled() || cfg.Redis.Addr != "redis:6379" {
		t.Errorf("redis config = %+v", cfg.Redis)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: 8000},
			Backtest: BacktestConfig{MissingPricePolicy: "carry_forward", MaxLegs: 10},
			Auth:     AuthConfig{TokenTTL: 30 * time.Minute},
		}
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	c := valid()
	c.Server.Port = 0
	if err := c.Validate(); err == nil {
		t.Error("expected error for port 0")
	}

	c = valid()
	c.Backtest.MissingPricePolicy = "interpolate"
	if err := c.Validate(); err == nil {
		t.Error("expected error for unknown policy")
	}

	c = valid()
	c.Backtest.MaxLegs = 0
	if err := c.Validate(); err == nil {
		t.Error("expected error for max_legs 0")
	}

	c = valid()
	c.Auth.TokenTTL = 0
	if err := c.Validate(); err == nil {
		t.Error("expected error for zero token_ttl")
	}
}
