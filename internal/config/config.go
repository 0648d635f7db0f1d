// Package config loads settings shared by the card commands.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"
	// Embedded zone database for hosts without one.
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds environment-provided defaults. Command flags override them.
type Config struct {
	DBDriver string        `env:"CARDS_DB_DRIVER" envDefault:"sqlite"`
	DBPath   string        `env:"DB_PATH" envDefault:"cards.db"`
	LogFile  string        `env:"CARDS_LOG_FILE"`
	Timezone string        `env:"CARDS_TIMEZONE" envDefault:"Europe/Brussels"`
	Timeout  time.Duration `env:"CARDS_TIMEOUT" envDefault:"5m"`
}

// Load reads an optional .env file from the working directory and then the
// process environment. Variables already set in the environment win.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Location resolves the configured timezone used for calendar days.
func Location(name string) (*time.Location, error) {
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	return loc, nil
}
