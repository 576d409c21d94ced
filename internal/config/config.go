// internal/config/config.go
//
// Runtime configuration for the color memory server.
// Values come from the process environment; a .env file in the working
// directory is loaded first (missing file is fine) so development setups
// can keep secrets out of the shell.
//
// Every variable has a default; an unparsable value fails Load with an error
// naming the variable.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/robalobadob/colormemory/internal/game"
)

// Limits caps what a client may request, matching the slider ranges of the
// settings dialog.
type Limits struct {
	MaxSide          int
	MaxColors        int
	MaxRevealSeconds int
}

// Check reports whether cfg fits inside the limits.
func (l Limits) Check(cfg game.Config) error {
	switch {
	case cfg.Width > l.MaxSide:
		return fmt.Errorf("%w: width must be <= %d", game.ErrInvalidConfig, l.MaxSide)
	case cfg.Height > l.MaxSide:
		return fmt.Errorf("%w: height must be <= %d", game.ErrInvalidConfig, l.MaxSide)
	case cfg.ColorCount > l.MaxColors:
		return fmt.Errorf("%w: colorCount must be <= %d", game.ErrInvalidConfig, l.MaxColors)
	case cfg.RevealSeconds > l.MaxRevealSeconds:
		return fmt.Errorf("%w: revealSeconds must be <= %d", game.ErrInvalidConfig, l.MaxRevealSeconds)
	}
	return nil
}

// Config is the fully parsed server configuration.
type Config struct {
	Port      string
	LogLevel  zerolog.Level
	LogFormat string // "json" | "console"

	ClientOrigin string
	TokenSecret  string
	TokenTTL     time.Duration
	CookieName   string
	Production   bool

	DefaultGame game.Config
	Limits      Limits
	WinRule     game.WinRule
	Palette     game.Palette

	SessionIdleTTL time.Duration
	DailySalt      string
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from a lookup function (os.LookupEnv in production).
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	p := parser{lookup: lookup}

	cfg := &Config{
		Port:         p.str("PORT", "5175"),
		LogFormat:    p.str("LOG_FORMAT", "json"),
		ClientOrigin: p.str("CLIENT_ORIGIN", "http://localhost:5173"),
		TokenSecret:  p.str("TOKEN_SECRET", "dev_secret_change_me"),
		TokenTTL:     p.duration("TOKEN_TTL", 24*time.Hour),
		CookieName:   p.str("COOKIE_NAME", "colormemory_token"),
		Production:   p.str("APP_ENV", "development") == "production",
		DefaultGame: game.Config{
			Width:         p.integer("DEFAULT_WIDTH", game.DefaultConfig.Width),
			Height:        p.integer("DEFAULT_HEIGHT", game.DefaultConfig.Height),
			ColorCount:    p.integer("DEFAULT_COLORS", game.DefaultConfig.ColorCount),
			RevealSeconds: p.integer("DEFAULT_REVEAL_SECONDS", game.DefaultConfig.RevealSeconds),
		},
		Limits: Limits{
			MaxSide:          p.integer("MAX_SIDE", 7),
			MaxColors:        p.integer("MAX_COLORS", 7),
			MaxRevealSeconds: p.integer("MAX_REVEAL_SECONDS", 10),
		},
		SessionIdleTTL: p.duration("SESSION_IDLE_TTL", 30*time.Minute),
		DailySalt:      p.str("DAILY_SALT", "colormemory-daily"),
	}

	if p.boolean("STRICT_WIN", false) {
		cfg.WinRule = game.WinStrict
	}

	lvl, err := zerolog.ParseLevel(p.str("LOG_LEVEL", "info"))
	if err != nil {
		p.fail("LOG_LEVEL", err)
	}
	cfg.LogLevel = lvl

	palette, err := game.ParsePalette(p.str("PALETTE", "cycle"))
	if err != nil {
		p.fail("PALETTE", err)
	}
	cfg.Palette = palette

	if p.err != nil {
		return nil, p.err
	}

	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return nil, fmt.Errorf("LOG_FORMAT: want json or console, got %q", cfg.LogFormat)
	}
	if cfg.TokenTTL <= 0 {
		return nil, fmt.Errorf("TOKEN_TTL: must be positive, got %s", cfg.TokenTTL)
	}
	if cfg.SessionIdleTTL <= 0 {
		return nil, fmt.Errorf("SESSION_IDLE_TTL: must be positive, got %s", cfg.SessionIdleTTL)
	}
	if err := cfg.DefaultGame.Validate(); err != nil {
		return nil, fmt.Errorf("default game: %w", err)
	}
	if err := cfg.Limits.Check(cfg.DefaultGame); err != nil {
		return nil, fmt.Errorf("default game exceeds limits: %w", err)
	}
	if cfg.Production && cfg.TokenSecret == "dev_secret_change_me" {
		return nil, fmt.Errorf("TOKEN_SECRET must be set in production")
	}
	return cfg, nil
}

// parser collects the first error so Load can report one variable at a time.
type parser struct {
	lookup func(string) (string, bool)
	err    error
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%s: %w", key, err)
	}
}

func (p *parser) str(key, def string) string {
	if v, ok := p.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (p *parser) integer(key string, def int) int {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return n
}

func (p *parser) boolean(key string, def bool) bool {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return d
}
