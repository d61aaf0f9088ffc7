// Package daemon holds the club's runtime configuration: the TOML config
// file, environment overrides and logger construction.
package daemon

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/clubejota/clube/internal/app/tier"
	"github.com/clubejota/clube/internal/domain"
)

// Config is the full contents of config.toml.
type Config struct {
	API    APIConfig    `toml:"api"`
	Store  StoreConfig  `toml:"store"`
	Policy PolicyConfig `toml:"policy"`
	Import ImportConfig `toml:"import"`
	Auth   AuthConfig   `toml:"auth"`
	Log    LogConfig    `toml:"log"`
}

// APIConfig configures the admin HTTP API.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns host:port.
func (a APIConfig) Addr() string { return fmt.Sprintf("%s:%d", a.Host, a.Port) }

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Dir string `toml:"dir"` // empty means $CLUBE_HOME
}

// PolicyConfig is the loyalty policy.
type PolicyConfig struct {
	CashbackRate      string           `toml:"cashback_rate"`
	ResetOnReactivate bool             `toml:"reset_on_reactivate"`
	Tiers             []tier.Threshold `toml:"tiers"`
}

// Rate parses CashbackRate.
func (p PolicyConfig) Rate() (decimal.Decimal, error) {
	r, err := decimal.NewFromString(strings.TrimSpace(p.CashbackRate))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: cashback_rate %q", domain.ErrInvalidPolicy, p.CashbackRate)
	}
	return r, nil
}

// ImportConfig tunes the reconciliation importer.
type ImportConfig struct {
	ApprovedStatuses []string `toml:"approved_statuses"`
	MaxConcurrent    int      `toml:"max_concurrent"`
	ItemTimeout      string   `toml:"item_timeout"`
}

// Timeout parses ItemTimeout, falling back to 30s.
func (i ImportConfig) Timeout() time.Duration {
	d, err := time.ParseDuration(i.ItemTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// AuthConfig lists administrators and the API token secret.
type AuthConfig struct {
	Admins    []string `toml:"admins"`
	JWTSecret string   `toml:"jwt_secret"`
}

// LogConfig selects log level and format ("text" or "json").
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		API:   APIConfig{Host: "127.0.0.1", Port: 8420},
		Store: StoreConfig{},
		Policy: PolicyConfig{
			CashbackRate:      "0.10",
			ResetOnReactivate: true,
			Tiers:             tier.DefaultThresholds(),
		},
		Import: ImportConfig{
			ApprovedStatuses: []string{"aprovad", "approved", "settled"},
			MaxConcurrent:    4,
			ItemTimeout:      "30s",
		},
		Auth: AuthConfig{Admins: []string{"admin"}},
		Log:  LogConfig{Level: "info", Format: "text"},
	}
}

// ─── Locations ──────────────────────────────────────────────────────────────

// HomeDir returns $CLUBE_HOME, defaulting to ~/.clube.
func HomeDir() string {
	if h := os.Getenv("CLUBE_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".clube"
	}
	return filepath.Join(home, ".clube")
}

// ConfigPath returns the default config file location.
func ConfigPath() string { return filepath.Join(HomeDir(), "config.toml") }

// DataDir returns the directory holding the database.
func (c Config) DataDir() string {
	if c.Store.Dir != "" {
		return c.Store.Dir
	}
	return HomeDir()
}

// ─── Loading ────────────────────────────────────────────────────────────────

// Load reads .env (if present), decodes path over the defaults and applies
// environment overrides. A missing config file is not an error.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if path == "" {
		path = ConfigPath()
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("CLUBE_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("CLUBE_ADMINS"); v != "" {
		c.Auth.Admins = splitList(v)
	}
	if v := os.Getenv("CLUBE_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CLUBE_API_PORT: %w", err)
		}
		c.API.Port = port
	}
	return nil
}

// Validate checks the policy sections.
func (c Config) Validate() error {
	rate, err := c.Policy.Rate()
	if err != nil {
		return err
	}
	if rate.IsNegative() {
		return fmt.Errorf("%w: cashback_rate must not be negative", domain.ErrInvalidPolicy)
	}
	if _, err := tier.NewEngine(c.Policy.Tiers); err != nil {
		return err
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ─── Logging ────────────────────────────────────────────────────────────────

// NewLogger builds the process logger and installs it as slog's default.
func NewLogger(cfg LogConfig, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: logLevel(cfg.Level)}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func logLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
