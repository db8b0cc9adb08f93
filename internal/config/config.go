package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all configuration for the simulator.
type Config struct {
	// Mode
	Debug     bool
	Dashboard bool

	// Polymarket API
	GammaAPIURL string
	CLOBAPIURL  string
	WSURL       string

	// Simulation
	InitialCapital decimal.Decimal
	TradePct       decimal.Decimal

	// Signal tuning
	OBIThreshold decimal.Decimal
	WindowSize   int
	TopLevels    int
	PollInterval time.Duration

	// Telegram (optional)
	TelegramToken  string
	TelegramChatID int64

	// Database
	DatabasePath string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Debug:     getEnvBool("DEBUG", false),
		Dashboard: getEnvBool("DASHBOARD", true),

		GammaAPIURL: getEnv("POLYMARKET_API_URL", "https://gamma-api.polymarket.com"),
		CLOBAPIURL:  getEnv("POLYMARKET_CLOB_URL", "https://clob.polymarket.com"),
		WSURL:       getEnv("POLYMARKET_WS_URL", "wss://ws-subscriptions-clob.polymarket.com/ws/market"),

		InitialCapital: getEnvDecimal("INITIAL_CAPITAL", decimal.NewFromInt(100)),
		TradePct:       getEnvDecimal("TRADE_PCT", decimal.NewFromFloat(0.02)),

		OBIThreshold: getEnvDecimal("OBI_THRESHOLD", decimal.NewFromFloat(0.15)),
		WindowSize:   getEnvInt("WINDOW_SIZE", 8),
		TopLevels:    getEnvInt("TOP_LEVELS", 15),
		PollInterval: getEnvDuration("POLL_INTERVAL", 3*time.Second),

		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		DatabasePath: getEnv("DATABASE_PATH", "data/polysim.db"),
	}

	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	if !cfg.InitialCapital.GreaterThan(decimal.Zero) {
		return nil, fmt.Errorf("INITIAL_CAPITAL must be positive")
	}
	if !cfg.TradePct.GreaterThan(decimal.Zero) || cfg.TradePct.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("TRADE_PCT must be in (0, 1]")
	}
	if cfg.PollInterval < time.Second {
		return nil, fmt.Errorf("POLL_INTERVAL must be at least 1s")
	}

	return cfg, nil
}

// TelegramEnabled reports whether both telegram settings are present.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != 0
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
