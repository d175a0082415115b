package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/aristath/portfolio-sentry/internal/domain"
)

// Config holds application configuration
type Config struct {
	Port         int
	DevMode      bool
	LogLevel     string
	DatabasePath string

	// Advisor microservice (LLM-backed stance evaluations)
	AdvisorServiceURL string
	AdvisorTimeout    time.Duration

	// Price oracle
	QuoteTimeout time.Duration
	MaxQuoteAge  time.Duration

	// Monitoring
	MonitorInterval   time.Duration
	SuppressionWindow time.Duration
	IdleCashPct       float64
	IdleCashDwell     time.Duration

	// Rebalancer
	Rebalancer RebalancerConfig

	// Notifications (Telegram bot API; empty token disables)
	TelegramBotToken string
	TelegramChatID   string

	// Off-site audit backup (empty bucket disables)
	AuditBackupBucket string
	AuditBackupPrefix string
}

// RebalancerConfig holds the auto-rebalancer safety limits.
type RebalancerConfig struct {
	Enabled             bool
	Mode                domain.ExecutionMode
	MaxTradesPerDay     int
	Cooldown            time.Duration
	MaxPositionDeltaPct float64
	ReduceFraction      float64
	TargetPositionPct   float64
	MaxPositionPct      float64
	MinTradeValue       float64
	ActOnMedium         bool
	ActOnLow            bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getEnvAsInt("PORT", 8002),
		DevMode:      getEnvAsBool("DEV_MODE", false),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		DatabasePath: getEnv("DATABASE_PATH", "./data/sentry.db"),

		AdvisorServiceURL: getEnv("ADVISOR_SERVICE_URL", "http://localhost:8010"),
		AdvisorTimeout:    getEnvAsDuration("ADVISOR_TIMEOUT_SECONDS", 20*time.Second),

		QuoteTimeout: getEnvAsDuration("QUOTE_TIMEOUT_SECONDS", 10*time.Second),
		MaxQuoteAge:  getEnvAsDuration("MAX_QUOTE_AGE_SECONDS", 15*time.Minute),

		MonitorInterval:   getEnvAsDuration("MONITOR_INTERVAL_SECONDS", 60*time.Second),
		SuppressionWindow: getEnvAsDuration("ALERT_SUPPRESSION_SECONDS", 30*time.Minute),
		IdleCashPct:       getEnvAsFloat("IDLE_CASH_PCT", 30.0),
		IdleCashDwell:     getEnvAsDuration("IDLE_CASH_DWELL_SECONDS", 10*time.Minute),

		Rebalancer: RebalancerConfig{
			Enabled:             getEnvAsBool("REBALANCER_ENABLED", true),
			Mode:                domain.ModeDryRun,
			MaxTradesPerDay:     getEnvAsInt("REBALANCER_MAX_DAILY_TRADES", 10),
			Cooldown:            getEnvAsDuration("REBALANCER_COOLDOWN_SECONDS", 15*time.Minute),
			MaxPositionDeltaPct: getEnvAsFloat("REBALANCER_MAX_POSITION_DELTA_PCT", 25.0),
			ReduceFraction:      getEnvAsFloat("REBALANCER_REDUCE_FRACTION", 0.5),
			TargetPositionPct:   getEnvAsFloat("REBALANCER_TARGET_POSITION_PCT", 5.0),
			MaxPositionPct:      getEnvAsFloat("REBALANCER_MAX_POSITION_PCT", 10.0),
			MinTradeValue:       getEnvAsFloat("REBALANCER_MIN_TRADE_VALUE", 100.0),
			ActOnMedium:         getEnvAsBool("REBALANCER_ACT_ON_MEDIUM", false),
			ActOnLow:            getEnvAsBool("REBALANCER_ACT_ON_LOW", false),
		},

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),

		AuditBackupBucket: getEnv("AUDIT_BACKUP_BUCKET", ""),
		AuditBackupPrefix: getEnv("AUDIT_BACKUP_PREFIX", "portfolio-sentry/audit"),
	}

	if getEnv("REBALANCER_MODE", "dry_run") == "live" {
		cfg.Rebalancer.Mode = domain.ModeLive
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.MonitorInterval <= 0 {
		return fmt.Errorf("MONITOR_INTERVAL_SECONDS must be positive")
	}
	if c.Rebalancer.ReduceFraction <= 0 || c.Rebalancer.ReduceFraction > 1 {
		return fmt.Errorf("REBALANCER_REDUCE_FRACTION must be in (0, 1]")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvAsDuration reads an integer number of seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil && intVal > 0 {
			return time.Duration(intVal) * time.Second
		}
	}
	return defaultValue
}
