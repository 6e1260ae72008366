package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the server configuration
type Config struct {
	Port              string
	DBPath            string
	OllamaURL         string
	OllamaModel       string
	AllowedOrigins    []string
	RedisAddr         string
	AskedCacheTTL     time.Duration
	GenerationTimeout time.Duration
	RateLimit         int
	LogMode           string
	Timezone          string
}

// ClientConfig is the terminal client configuration
type ClientConfig struct {
	APIBase           string
	LocalDBPath       string
	UserFile          string
	GenerationTimeout time.Duration
	LogMode           string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnv("HER_PORT", "3001"),
		DBPath:            getEnv("HER_DB_PATH", "./data/her.db"),
		OllamaURL:         getEnv("HER_OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:       getEnv("HER_OLLAMA_MODEL", "qwen2.5:7b"),
		AllowedOrigins:    splitList(getEnv("HER_ALLOWED_ORIGINS", "http://localhost:*")),
		RedisAddr:         getEnv("HER_REDIS_ADDR", ""),
		AskedCacheTTL:     getEnvDuration("HER_ASKED_CACHE_TTL", 10*time.Minute),
		GenerationTimeout: getEnvDuration("HER_GENERATION_TIMEOUT", 6*time.Second),
		RateLimit:         getEnvInt("HER_RATE_LIMIT", 60),
		LogMode:           getEnv("HER_LOG_MODE", "dev"),
		Timezone:          getEnv("HER_TIMEZONE", "UTC"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("HER_PORT is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("HER_DB_PATH is required")
	}
	if c.OllamaURL == "" {
		return fmt.Errorf("HER_OLLAMA_URL is required")
	}
	if c.AskedCacheTTL <= 0 {
		return fmt.Errorf("HER_ASKED_CACHE_TTL must be positive")
	}
	if c.GenerationTimeout <= 0 {
		return fmt.Errorf("HER_GENERATION_TIMEOUT must be positive")
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("HER_RATE_LIMIT must be positive")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("HER_TIMEZONE: %w", err)
	}
	return nil
}

func LoadClient() (*ClientConfig, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	cfg := &ClientConfig{
		APIBase:           strings.TrimRight(getEnv("HER_API_BASE", "http://localhost:3001"), "/"),
		LocalDBPath:       getEnv("HER_LOCAL_DB_PATH", home+"/.her/local.db"),
		UserFile:          getEnv("HER_USER_FILE", home+"/.her/user"),
		GenerationTimeout: getEnvDuration("HER_GENERATION_TIMEOUT", 6*time.Second),
		LogMode:           getEnv("HER_LOG_MODE", "dev"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *ClientConfig) Validate() error {
	if c.APIBase == "" {
		return fmt.Errorf("HER_API_BASE is required")
	}
	if c.LocalDBPath == "" {
		return fmt.Errorf("HER_LOCAL_DB_PATH is required")
	}
	if c.UserFile == "" {
		return fmt.Errorf("HER_USER_FILE is required")
	}
	if c.GenerationTimeout <= 0 {
		return fmt.Errorf("HER_GENERATION_TIMEOUT must be positive")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt falls back to the default when the value is missing or not a number
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
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
