package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends selectable with STORE.
const (
	StoreMemory   = "memory"
	StoreValkey   = "valkey"
	StorePostgres = "postgres"
)

// Chat id modes selectable with CHAT_ID_MODE.
const (
	// ChatIDPair derives the chat id from the sorted participant pair and
	// creates chats with an atomic create-if-absent.
	ChatIDPair = "pair"
	// ChatIDRandom assigns a random id on creation.
	ChatIDRandom = "random"
)

// Config holds all configuration for the service.
type Config struct {
	Port     string
	Env      string
	LogLevel string

	Store       string
	ValkeyURL   string
	DatabaseURL string

	JWTSecret string
	TokenTTL  time.Duration

	ChatIDMode string
	DefaultTZ  string
	CORSOrigin string
}

// Load reads configuration from environment variables, loading a .env
// file first when one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Store:       strings.ToLower(getEnv("STORE", StoreMemory)),
		ValkeyURL:   os.Getenv("VALKEY_URL"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		ChatIDMode:  strings.ToLower(getEnv("CHAT_ID_MODE", ChatIDPair)),
		DefaultTZ:   getEnv("DEFAULT_TZ", "UTC"),
		CORSOrigin:  getEnv("CORS_ORIGIN", "http://127.0.0.1:5173"),
	}

	ttl, err := time.ParseDuration(getEnv("TOKEN_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid TOKEN_TTL: %w", err)
	}
	cfg.TokenTTL = ttl

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store {
	case StoreMemory:
	case StoreValkey:
		if c.ValkeyURL == "" {
			return fmt.Errorf("VALKEY_URL is required for STORE=%s", c.Store)
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for STORE=%s", c.Store)
		}
	default:
		return fmt.Errorf("unknown STORE %q", c.Store)
	}

	if c.ChatIDMode != ChatIDPair && c.ChatIDMode != ChatIDRandom {
		return fmt.Errorf("unknown CHAT_ID_MODE %q", c.ChatIDMode)
	}

	if _, err := time.LoadLocation(c.DefaultTZ); err != nil {
		return fmt.Errorf("invalid DEFAULT_TZ: %w", err)
	}

	if c.JWTSecret == "" {
		if !c.IsDevelopment() {
			return fmt.Errorf("JWT_SECRET is required in %s", c.Env)
		}
		c.JWTSecret = "dev-secret-change-me"
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Location returns the default timezone used for day separators.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DefaultTZ)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
