// Package config loads client configuration from the environment.
//
// Settings come from MOCKMATE_* environment variables, optionally seeded
// from a .env file. FromEnv validates the result so the rest of the client
// can trust the values (base URL present and parseable, sane timeouts).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all client settings.
type Config struct {
	// APIBaseURL is the mock-interview service root, e.g. "https://api.example.com".
	APIBaseURL string `validate:"required,url"`

	// RequestTimeout bounds every HTTP round trip.
	RequestTimeout time.Duration `validate:"min=1s"`

	// DataDir holds the credential file and the local round archive.
	DataDir string `validate:"required"`

	// MaxRecordSeconds is the hard cap on a single recorded answer.
	MaxRecordSeconds int `validate:"min=5,max=600"`

	LogLevel  string
	LogFormat string
}

// Defaults returns a Config with everything but the base URL filled in.
func Defaults() Config {
	return Config{
		RequestTimeout:   30 * time.Second,
		DataDir:          defaultDataDir(),
		MaxRecordSeconds: 90,
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// LoadEnv loads .env files into the process environment, expanding a
// leading ~ to the user's home directory. Missing files are skipped.
func LoadEnv(files ...string) error {
	for _, file := range files {
		if strings.HasPrefix(file, "~") {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			file = strings.Replace(file, "~", home, 1)
		}
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("config: load %s: %w", file, err)
		}
	}
	return nil
}

// FromEnv builds and validates a Config from MOCKMATE_* variables.
func FromEnv() (*Config, error) {
	cfg := Defaults()

	cfg.APIBaseURL = strings.TrimRight(os.Getenv("MOCKMATE_API_URL"), "/")
	if v := os.Getenv("MOCKMATE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("MOCKMATE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MOCKMATE_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("MOCKMATE_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("config: MOCKMATE_REQUEST_TIMEOUT: %w", err)
		}
		cfg.RequestTimeout = d
	}
	if v := os.Getenv("MOCKMATE_MAX_RECORD_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: MOCKMATE_MAX_RECORD_SECONDS: %w", err)
		}
		cfg.MaxRecordSeconds = n
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

func defaultDataDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ".mockmate"
	}
	return filepath.Join(base, "mockmate")
}
