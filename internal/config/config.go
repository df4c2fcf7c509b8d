// Package config assembles runtime configuration: a .env file when present,
// environment variables, and optional YAML parameter files whose keys match
// the CLI flags.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"gosane/domain/deconv"
)

// Config represents the complete application configuration.
type Config struct {
	// DatabaseURL enables the PostgreSQL run repository when set; the server
	// falls back to the in-memory repository otherwise.
	DatabaseURL string
	// Addr is the HTTP listen address of the API server.
	Addr string
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// LogFile mirrors log output to a file when set.
	LogFile string
}

// Load reads .env (when present) and the environment.
func Load() Config {
	// A missing .env is not an error; the environment may be complete.
	_ = godotenv.Load()

	cfg := Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Addr:        os.Getenv("GOSANE_ADDR"),
		LogLevel:    os.Getenv("LOG_LEVEL"),
		LogFile:     os.Getenv("LOG_FILE"),
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return cfg
}

// LoadParams reads deconvolution parameters from a YAML file, starting from
// the defaults so absent keys keep their reference values.
func LoadParams(path string) (deconv.Params, error) {
	params := deconv.DefaultParams()
	raw, err := os.ReadFile(path)
	if err != nil {
		return params, fmt.Errorf("read params file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &params); err != nil {
		return params, fmt.Errorf("parse params file: %w", err)
	}
	return params, nil
}
