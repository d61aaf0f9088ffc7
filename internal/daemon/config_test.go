package daemon

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/clubejota/clube/internal/domain"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "127.0.0.1")
	}
	if cfg.API.Port != 8420 {
		t.Errorf("API.Port = %d, want %d", cfg.API.Port, 8420)
	}
	if cfg.Policy.CashbackRate != "0.10" {
		t.Errorf("Policy.CashbackRate = %q, want %q", cfg.Policy.CashbackRate, "0.10")
	}
	if !cfg.Policy.ResetOnReactivate {
		t.Error("Policy.ResetOnReactivate should be true by default")
	}
	if len(cfg.Policy.Tiers) != 3 {
		t.Errorf("len(Policy.Tiers) = %d, want 3", len(cfg.Policy.Tiers))
	}
	if cfg.Import.Timeout() != 30*time.Second {
		t.Errorf("Import.Timeout() = %v, want 30s", cfg.Import.Timeout())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("CLUBE_HOME", t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.API.Port != 8420 {
		t.Errorf("API.Port = %d, want default", cfg.API.Port)
	}
	if cfg.DataDir() != os.Getenv("CLUBE_HOME") {
		t.Errorf("DataDir() = %q, want CLUBE_HOME", cfg.DataDir())
	}
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[api]
port = 9000

[store]
dir = "/var/lib/clube"

[policy]
cashback_rate = "0.05"
reset_on_reactivate = false

[[policy.tiers]]
min_count = 0
name = "bronze"

[[policy.tiers]]
min_count = 5
name = "gold"

[import]
approved_statuses = ["pago"]
item_timeout = "5s"

[auth]
admins = ["root"]

[log]
level = "debug"
format = "json"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CLUBE_ADMINS", "ana, bia ,")
	t.Setenv("CLUBE_JWT_SECRET", "s3cret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.API.Port != 9000 {
		t.Errorf("API.Port = %d, want 9000", cfg.API.Port)
	}
	if cfg.DataDir() != "/var/lib/clube" {
		t.Errorf("DataDir() = %q", cfg.DataDir())
	}
	if rate, _ := cfg.Policy.Rate(); rate.String() != "0.05" {
		t.Errorf("Rate() = %s, want 0.05", rate)
	}
	if cfg.Policy.ResetOnReactivate {
		t.Error("ResetOnReactivate should be false")
	}
	if len(cfg.Policy.Tiers) != 2 || cfg.Policy.Tiers[1].Tier != domain.TierGold || cfg.Policy.Tiers[1].MinCount != 5 {
		t.Errorf("Policy.Tiers = %+v", cfg.Policy.Tiers)
	}
	if cfg.Import.Timeout() != 5*time.Second {
		t.Errorf("Import.Timeout() = %v, want 5s", cfg.Import.Timeout())
	}
	if strings.Join(cfg.Auth.Admins, "|") != "ana|bia" {
		t.Errorf("Auth.Admins = %v, want env override", cfg.Auth.Admins)
	}
	if cfg.Auth.JWTSecret != "s3cret" {
		t.Errorf("Auth.JWTSecret = %q", cfg.Auth.JWTSecret)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q", cfg.Log.Format)
	}
}

func TestLoad_InvalidPolicy(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]string{
		"negative rate":   "[policy]\ncashback_rate = \"-1\"\n",
		"garbage rate":    "[policy]\ncashback_rate = \"ten\"\n",
		"unordered tiers": "[[policy.tiers]]\nmin_count = 0\nname = \"a\"\n[[policy.tiers]]\nmin_count = 0\nname = \"b\"\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(name, " ", "_")+".toml")
			if err := os.WriteFile(path, []byte(content), 0600); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if !errors.Is(err, domain.ErrInvalidPolicy) {
				t.Errorf("Load() error = %v, want ErrInvalidPolicy", err)
			}
		})
	}
}

func TestLoad_BadPortEnv(t *testing.T) {
	t.Setenv("CLUBE_HOME", t.TempDir())
	t.Setenv("CLUBE_API_PORT", "http")
	if _, err := Load(""); err == nil {
		t.Error("Load() should reject a non-numeric port")
	}
}

func TestNewLogger(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "account", "ana")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info line should be filtered at warn level")
	}
	if !strings.Contains(out, `"account":"ana"`) {
		t.Errorf("json output missing attribute: %s", out)
	}
}

func TestLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := logLevel(tt.input); got != tt.want {
				t.Errorf("logLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
