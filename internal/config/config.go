package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the configuration for the application.
type Config struct {
	DatabasePath    string
	SnapshotDir     string
	BundleCachePath string

	// LLM used for station bundling: "groq" or "gemini".
	LLMProvider  string
	GroqAPIKey   string
	GeminiAPIKey string

	HTTPAddr       string
	AllowedOrigins []string
	AdminJWTSecret string

	LogLevel  string
	LogFormat string

	MenuTimezone *time.Location

	// Optimizer tuning
	PlanCount      int
	ReusePenalty   float64
	SolveBudget    time.Duration
	SolverMaxNodes int

	// Telegram Config
	TelegramBotToken       string
	TelegramWebhookURL     string
	TelegramAllowedUserIDs []int64
}

// LoadDotEnv loads variables from a .env file when one exists. Variables
// already present in the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// NewFromEnv creates a new Config object from environment variables.
func NewFromEnv() (*Config, error) {
	cfg := &Config{
		DatabasePath:       getEnv("DATABASE_PATH", "data/fuelstack.db"),
		SnapshotDir:        getEnv("SNAPSHOT_DIR", "data/snapshots"),
		BundleCachePath:    getEnv("BUNDLE_CACHE_PATH", "data/bundle_cache.json"),
		LLMProvider:        strings.ToLower(getEnv("LLM_PROVIDER", "groq")),
		GroqAPIKey:         os.Getenv("GROQ_API_KEY"),
		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		AdminJWTSecret:     os.Getenv("ADMIN_JWT_SECRET"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
		TelegramBotToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramWebhookURL: os.Getenv("TELEGRAM_WEBHOOK_URL"),
	}

	switch cfg.LLMProvider {
	case "groq", "gemini":
	default:
		return nil, fmt.Errorf("LLM_PROVIDER must be groq or gemini, got %q", cfg.LLMProvider)
	}

	origins := getEnv("ALLOWED_ORIGINS", "http://localhost:5173")
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
		}
	}

	loc, err := time.LoadLocation(getEnv("MENU_TIMEZONE", "America/New_York"))
	if err != nil {
		return nil, fmt.Errorf("MENU_TIMEZONE is not a valid time zone: %w", err)
	}
	cfg.MenuTimezone = loc

	if cfg.PlanCount, err = getInt("PLAN_COUNT", 10); err != nil {
		return nil, err
	}
	if cfg.PlanCount < 1 {
		return nil, fmt.Errorf("PLAN_COUNT must be at least 1")
	}
	if cfg.SolverMaxNodes, err = getInt("SOLVER_MAX_NODES", 200000); err != nil {
		return nil, err
	}
	if cfg.ReusePenalty, err = getFloat("REUSE_PENALTY", 300); err != nil {
		return nil, err
	}
	if cfg.SolveBudget, err = getDuration("SOLVE_BUDGET", 10*time.Second); err != nil {
		return nil, err
	}

	for _, s := range strings.Split(os.Getenv("TELEGRAM_ALLOWED_USER_IDS"), ",") {
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("TELEGRAM_ALLOWED_USER_IDS contains invalid id %q", s)
		}
		cfg.TelegramAllowedUserIDs = append(cfg.TelegramAllowedUserIDs, id)
	}

	return cfg, nil
}

// RequireLLM reports whether the key for the configured provider is set.
// Only ingestion needs it.
func (c *Config) RequireLLM() error {
	switch c.LLMProvider {
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY environment variable not set")
		}
	default:
		if c.GroqAPIKey == "" {
			return fmt.Errorf("GROQ_API_KEY environment variable not set")
		}
	}
	return nil
}

// RequireTelegram checks the settings the bot server cannot run without.
func (c *Config) RequireTelegram() error {
	if c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN environment variable not set")
	}
	if c.TelegramWebhookURL == "" {
		return fmt.Errorf("TELEGRAM_WEBHOOK_URL environment variable not set")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number, got %q", key, v)
	}
	return f, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration, got %q", key, v)
	}
	return d, nil
}
