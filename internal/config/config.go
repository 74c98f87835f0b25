// Package config loads bot settings from the environment (optionally seeded
// from a .env file) and builds the permission table used by the workflow.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all configuration values for the bot.
type Config struct {
	// Telegram
	Token string `env:"TELEGRAM_BOT_TOKEN"`
	Debug bool   `env:"BOT_DEBUG" envDefault:"false"`

	// Storage
	NominationsFile string `env:"NOMINATIONS_FILE" envDefault:"data/nominations.json"`
	DBPath          string `env:"DB_PATH" envDefault:"data/awards.db"`

	// Permission groups: user ids or @usernames
	NominatorIDs    []string `env:"NOMINATOR_IDS" envSeparator:","`
	ApproverIDs     []string `env:"APPROVER_IDS" envSeparator:","`
	PermissionsFile string   `env:"PERMISSIONS_FILE"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`

	// Status server; empty disables it
	HTTPAddr        string        `env:"HTTP_ADDR"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

// LoadDotEnv copies variables from the given .env files into the process
// environment. Missing files are ignored; already-set variables win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load parses the environment, normalizes values, and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	// --- normalization ---
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	cfg.Token = strings.TrimSpace(cfg.Token)
	cfg.NominatorIDs = cleanList(cfg.NominatorIDs)
	cfg.ApproverIDs = cleanList(cfg.ApproverIDs)

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error")
	}
	if strings.TrimSpace(cfg.NominationsFile) == "" {
		return cfg, errors.New("NOMINATIONS_FILE must not be empty")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.ShutdownTimeout <= 0 {
		return cfg, errors.New("SHUTDOWN_TIMEOUT must be positive")
	}

	return cfg, nil
}

// RequireToken is checked only by commands that talk to Telegram.
func (c Config) RequireToken() error {
	if c.Token == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is not set")
	}
	return nil
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}
