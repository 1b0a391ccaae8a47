package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"shortlinks/internal/apperr"
	"shortlinks/internal/db"
	"shortlinks/internal/shortener"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	ServerPort           string `env:"SERVER_PORT,default=:8080"`
	DatabaseDriver       string `env:"DATABASE_DRIVER,default=postgres"` // postgres or sqlite3
	DatabaseURL          string `env:"DATABASE_URL,required"`
	AvailableChars       string `env:"AVAILABLE_CHARS"`
	URLSize              int    `env:"URL_SIZE,default=8"`
	MaxCodeAttempts      int    `env:"MAX_CODE_ATTEMPTS,default=10"`
	RedisURL             string `env:"REDIS_URL"` // Optional, caching is off without it
	CacheTTLSeconds      int    `env:"CACHE_TTL_SECONDS,default=3600"`
	AuthHeader           string `env:"AUTH_HEADER,default=X-User-ID"`
	RedirectRequiresAuth bool   `env:"REDIRECT_REQUIRES_AUTH,default=false"`
	PageSize             int    `env:"PAGE_SIZE,default=6"`
	AllowedDomains       string `env:"ALLOWED_DOMAINS"` // Comma-separated list of allowed domains
	CORSAllowedOrigins   string `env:"CORS_ALLOWED_ORIGINS"`
	PreviewEnabled       bool   `env:"PREVIEW_ENABLED,default=false"`
	RenderWorkerCount    int    `env:"RENDER_WORKER_COUNT,default=3"`
	RenderTimeoutSeconds int    `env:"RENDER_TIMEOUT_SECONDS,default=90"`
	RodBinPath           string `env:"ROD_BIN_PATH"` // Optional, if not in default PATH
}

// LoadConfig loads configuration from environment variables.
// It looks for a .env file in the current directory for development convenience.
func LoadConfig() (*Config, error) {
	// Attempt to load .env file, but don't fail if it's not there (for production)
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:           getEnv("SERVER_PORT", ":8080"),
		DatabaseDriver:       getEnv("DATABASE_DRIVER", "postgres"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		AvailableChars:       getEnv("AVAILABLE_CHARS", shortener.DefaultAlphabet),
		URLSize:              getEnvInt("URL_SIZE", shortener.DefaultLength),
		MaxCodeAttempts:      getEnvInt("MAX_CODE_ATTEMPTS", 10),
		RedisURL:             getEnv("REDIS_URL", ""),
		CacheTTLSeconds:      getEnvInt("CACHE_TTL_SECONDS", 3600),
		AuthHeader:           getEnv("AUTH_HEADER", "X-User-ID"),
		RedirectRequiresAuth: getEnvBool("REDIRECT_REQUIRES_AUTH", false),
		PageSize:             getEnvInt("PAGE_SIZE", 6),
		AllowedDomains:       getEnv("ALLOWED_DOMAINS", ""), // Empty means allow all
		CORSAllowedOrigins:   getEnv("CORS_ALLOWED_ORIGINS", ""),
		PreviewEnabled:       getEnvBool("PREVIEW_ENABLED", false),
		RenderWorkerCount:    getEnvInt("RENDER_WORKER_COUNT", 3),
		RenderTimeoutSeconds: getEnvInt("RENDER_TIMEOUT_SECONDS", 90),
		RodBinPath:           getEnv("ROD_BIN_PATH", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%w: DATABASE_URL environment variable is required", apperr.ErrConfiguration)
	}
	switch c.DatabaseDriver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("%w: unsupported DATABASE_DRIVER %q", apperr.ErrConfiguration, c.DatabaseDriver)
	}
	if _, err := shortener.NewGenerator(c.AvailableChars, c.URLSize); err != nil {
		return err
	}
	if c.URLSize > db.MaxShortCodeLength {
		return fmt.Errorf("%w: URL_SIZE must be at most %d", apperr.ErrConfiguration, db.MaxShortCodeLength)
	}
	if c.MaxCodeAttempts < 1 {
		return fmt.Errorf("%w: MAX_CODE_ATTEMPTS must be at least 1", apperr.ErrConfiguration)
	}
	if c.PageSize < 1 {
		return fmt.Errorf("%w: PAGE_SIZE must be at least 1", apperr.ErrConfiguration)
	}
	if c.AuthHeader == "" {
		return fmt.Errorf("%w: AUTH_HEADER must not be empty", apperr.ErrConfiguration)
	}
	return nil
}

// AllowedDomainList splits ALLOWED_DOMAINS into trimmed, lowercased hosts.
func (c *Config) AllowedDomainList() []string {
	return splitList(c.AllowedDomains, true)
}

// CORSOriginList splits CORS_ALLOWED_ORIGINS.
func (c *Config) CORSOriginList() []string {
	return splitList(c.CORSAllowedOrigins, false)
}

func splitList(raw string, lower bool) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if lower {
			item = strings.ToLower(item)
		}
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnv(key string, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		log.Printf("Config: invalid integer for %s (%q), using default %d", key, value, fallback)
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		log.Printf("Config: invalid boolean for %s (%q), using default %t", key, value, fallback)
		return fallback
	}
	return b
}
