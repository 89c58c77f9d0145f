// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	BackendURL  string
	DeviceTTL   time.Duration
	// IdleTTL bounds how long an unused in-memory conversation is kept.
	IdleTTL    time.Duration
	Completion CompletionConfig
	Guest      GuestConfig
}

// CompletionConfig controls the chat completion provider.
type CompletionConfig struct {
	URL         string
	Token       string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// GuestConfig holds the shared guest account used by the guest login button.
type GuestConfig struct {
	UserID   string
	Password string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "3000"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/smartstar.db"),
		BackendURL:  strings.TrimRight(getEnv("BACKEND_URL", "http://localhost:8080"), "/"),
		DeviceTTL:   getEnvDuration("DEVICE_TTL", 30*24*time.Hour),
		IdleTTL:     getEnvDuration("CONVERSATION_IDLE_TTL", 2*time.Hour),
		Completion: CompletionConfig{
			URL:         getEnv("COMPLETION_URL", "https://router.huggingface.co/v1/chat/completions"),
			Token:       getEnv("HF_TOKEN", ""),
			Model:       getEnv("COMPLETION_MODEL", "meta-llama/Meta-Llama-3-8B-Instruct"),
			MaxTokens:   getEnvInt("COMPLETION_MAX_TOKENS", 500),
			Temperature: getEnvFloat("COMPLETION_TEMPERATURE", 0.7),
			Timeout:     getEnvDuration("COMPLETION_TIMEOUT", 60*time.Second),
		},
		Guest: GuestConfig{
			UserID:   getEnv("GUEST_USER_ID", "guest"),
			Password: getEnv("GUEST_PASSWORD", "1234"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.BackendURL == "" {
		return fmt.Errorf("BACKEND_URL cannot be empty")
	}
	if c.Completion.URL == "" {
		return fmt.Errorf("COMPLETION_URL cannot be empty")
	}
	if c.Completion.Model == "" {
		return fmt.Errorf("COMPLETION_MODEL cannot be empty")
	}
	if c.Completion.MaxTokens <= 0 {
		return fmt.Errorf("COMPLETION_MAX_TOKENS must be > 0")
	}
	if c.DeviceTTL <= 0 {
		return fmt.Errorf("DEVICE_TTL must be > 0")
	}
	if c.IdleTTL <= 0 {
		return fmt.Errorf("CONVERSATION_IDLE_TTL must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
