package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Strategy names recognized by the engine.
const (
	StrategyBreakout  = "BREAKOUT"
	StrategyReversion = "REVERSION"
)

// Strategy selection modes.
const (
	ModeAdaptive = "adaptive"
	ModeSingle   = "single"
)

// Config holds application configuration
type Config struct {
	// Broker API
	BrokerAPIKey    string
	BrokerAPISecret string
	BrokerBaseURL   string
	BrokerWSURL     string
	BrokerTokenFile string

	// Instrument
	Symbol       string
	BarInterval  string
	TradeQty     int
	MarginPerLot float64

	// Mode
	PaperTrading   bool
	StrategyMode   string // adaptive | single
	StrategyName   string // BREAKOUT | REVERSION (used in single mode)
	WeekendTesting bool

	// Database configuration
	DatabaseHost     string
	DatabasePort     string
	DatabaseName     string
	DatabaseUser     string
	DatabasePassword string

	// Redis configuration
	RedisHost     string
	RedisPassword string
	RedisPort     string

	// Telegram alerts
	Telegram TelegramConfig

	// Trading configuration
	Trading TradingConfig

	// Exchange holidays (dates with no session)
	AnnualHolidays map[string]bool
}

// TelegramConfig holds Telegram bot alert configuration
type TelegramConfig struct {
	Enabled  bool
	BotToken string
	ChatID   string
}

// TradingConfig holds trading parameters and thresholds
type TradingConfig struct {
	// Breakout levels
	EntryBuffer  float64
	SLFactor     float64
	TargetFactor float64

	// Reversion bands
	Deviation   float64 // band width as fraction of price
	RRThreshold float64 // minimum reward/risk ratio

	// Risk management
	CooldownMinutes int
	MaxDailyLoss    float64 // negative value; trading halts below this

	// Loop pacing
	SleepIntervalSeconds int
	LookbackDays         int
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		BrokerAPIKey:    os.Getenv("BROKER_API_KEY"),
		BrokerAPISecret: os.Getenv("BROKER_API_SECRET"),
		BrokerBaseURL:   getEnvOrDefault("BROKER_BASE_URL", "https://api.kite.trade"),
		BrokerWSURL:     getEnvOrDefault("BROKER_WS_URL", "wss://ws.kite.trade"),
		BrokerTokenFile: getEnvOrDefault("BROKER_TOKEN_FILE", "tradewin_token.json"),

		Symbol:       getEnvOrDefault("TRADE_SYMBOL", "BANKNIFTY24FUT"),
		BarInterval:  getEnvOrDefault("BAR_INTERVAL", "5minute"),
		TradeQty:     getEnvInt("TRADE_QTY", 25),
		MarginPerLot: getEnvFloat("MARGIN_PER_LOT", 250000),

		PaperTrading:   getEnvOrDefault("PAPER_TRADING", "true") == "true",
		StrategyMode:   strings.ToLower(getEnvOrDefault("STRATEGY_MODE", ModeAdaptive)),
		StrategyName:   strings.ToUpper(getEnvOrDefault("STRATEGY_NAME", StrategyBreakout)),
		WeekendTesting: getEnvOrDefault("WEEKEND_TESTING", "false") == "true",

		// Database configuration
		DatabaseHost:     getEnvOrDefault("DB_HOST", "localhost"),
		DatabasePort:     getEnvOrDefault("DB_PORT", "5432"),
		DatabaseName:     getEnvOrDefault("DB_NAME", "tradewin"),
		DatabaseUser:     getEnvOrDefault("DB_USER", "tradewin"),
		DatabasePassword: getEnvOrDefault("DB_PASSWORD", "tradewin123"),

		// Redis configuration
		RedisHost:     getEnvOrDefault("REDIS_HOST", "localhost"),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),

		Telegram: TelegramConfig{
			Enabled:  getEnvOrDefault("TELEGRAM_ENABLED", "false") == "true",
			BotToken: getEnvOrDefault("TELEGRAM_BOT_TOKEN", ""),
			ChatID:   getEnvOrDefault("TELEGRAM_CHAT_ID", ""),
		},

		Trading: TradingConfig{
			EntryBuffer:  getEnvFloat("ORB_ENTRY_BUFFER", 10.0),
			SLFactor:     getEnvFloat("ORB_SL_FACTOR", 1.5),
			TargetFactor: getEnvFloat("ORB_TARGET_FACTOR", 4.0),

			Deviation:   getEnvFloat("REV_DEVIATION", 0.002),
			RRThreshold: getEnvFloat("REV_RR_THRESHOLD", 1.2),

			CooldownMinutes: getEnvInt("COOLDOWN_MINUTES", 5),
			MaxDailyLoss:    getEnvFloat("MAX_DAILY_LOSS", -1500),

			SleepIntervalSeconds: getEnvInt("SLEEP_INTERVAL_SECONDS", 60),
			LookbackDays:         getEnvInt("LOOKBACK_DAYS", 4),
		},

		AnnualHolidays: parseHolidays(os.Getenv("ANNUAL_HOLIDAYS")),
	}
}

// Validate checks the loaded configuration for values the engine cannot
// run with. Called once at startup; the process refuses to start on error.
func (c *Config) Validate() error {
	if c.StrategyMode != ModeAdaptive && c.StrategyMode != ModeSingle {
		return fmt.Errorf("unknown STRATEGY_MODE %q (want %q or %q)", c.StrategyMode, ModeAdaptive, ModeSingle)
	}
	if c.StrategyName != StrategyBreakout && c.StrategyName != StrategyReversion {
		return fmt.Errorf("unknown STRATEGY_NAME %q (want %q or %q)", c.StrategyName, StrategyBreakout, StrategyReversion)
	}
	if c.TradeQty <= 0 {
		return fmt.Errorf("TRADE_QTY must be positive, got %d", c.TradeQty)
	}
	if c.MarginPerLot <= 0 {
		return fmt.Errorf("MARGIN_PER_LOT must be positive, got %.2f", c.MarginPerLot)
	}
	if c.Trading.CooldownMinutes < 0 {
		return fmt.Errorf("COOLDOWN_MINUTES must not be negative, got %d", c.Trading.CooldownMinutes)
	}
	if c.Trading.EntryBuffer < 0 {
		return fmt.Errorf("ORB_ENTRY_BUFFER must not be negative, got %.2f", c.Trading.EntryBuffer)
	}
	if c.Trading.SLFactor <= 0 || c.Trading.TargetFactor <= 0 {
		return fmt.Errorf("ORB_SL_FACTOR and ORB_TARGET_FACTOR must be positive")
	}
	if c.Trading.RRThreshold <= 0 {
		return fmt.Errorf("REV_RR_THRESHOLD must be positive, got %.2f", c.Trading.RRThreshold)
	}
	if c.Trading.SleepIntervalSeconds <= 0 {
		return fmt.Errorf("SLEEP_INTERVAL_SECONDS must be positive, got %d", c.Trading.SleepIntervalSeconds)
	}
	if c.Trading.LookbackDays <= 0 {
		return fmt.Errorf("LOOKBACK_DAYS must be positive, got %d", c.Trading.LookbackDays)
	}
	return nil
}

// Cooldown returns the cooldown window as a duration.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Trading.CooldownMinutes) * time.Minute
}

// SleepInterval returns the polling interval as a duration.
func (c *Config) SleepInterval() time.Duration {
	return time.Duration(c.Trading.SleepIntervalSeconds) * time.Second
}

// parseHolidays parses a comma-separated list of YYYY-MM-DD dates.
// Unparseable entries are skipped with a warning.
func parseHolidays(raw string) map[string]bool {
	holidays := make(map[string]bool)
	if raw == "" {
		return holidays
	}
	for _, part := range strings.Split(raw, ",") {
		day := strings.TrimSpace(part)
		if day == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", day); err != nil {
			log.Printf("⚠️  Skipping unparseable holiday %q: %v", day, err)
			continue
		}
		holidays[day] = true
	}
	return holidays
}

// getEnvInt gets environment variable as int or returns default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvFloat gets environment variable as float64 or returns default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var floatValue float64
	if _, err := fmt.Sscanf(value, "%f", &floatValue); err != nil {
		return defaultValue
	}
	return floatValue
}

// getEnvOrDefault gets environment variable or returns default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
