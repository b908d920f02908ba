package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"trendEnvelopeBot/internal/adapters/logger" // Import the logger package for LogLevel
	"trendEnvelopeBot/internal/domain"
)

// Supported exchange venues.
const (
	VenueBybit   = "bybit"
	VenueBinance = "binance"
)

// Config holds all application configuration.
type Config struct {
	// Venues
	TradingVenue    string // where orders are placed
	MarketDataVenue string // where klines are read from

	// Bybit API
	BybitAPIKey    string
	BybitSecretKey string
	BybitTestnet   bool

	// Binance API
	BinanceAPIKey    string
	BinanceSecretKey string
	BinanceTestnet   bool

	// Instruments as data symbol / exchange symbol pairs
	Instruments []domain.Instrument

	// Trading Parameters
	TradeAmount       float64 // Quote notional per trade, e.g., 50 USDT
	StopLossPercent   float64 // Percent of entry price, e.g., 2
	TakeProfitPercent float64 // Percent of entry price, e.g., 20
	ProfitLockPercent float64 // Band-touch PnL at which profit is taken, e.g., 5
	TrailLockPercent  float64 // Profit locked by the trailing stop, e.g., 0.1

	// Strategy Parameters
	FastTimeframe  string // e.g., "15m"
	SlowTimeframe  string // e.g., "1h"
	BarLimit       int    // bars fetched per timeframe, e.g., 500
	EMAFastPeriod  int    // e.g., 38
	EMASlowPeriod  int    // e.g., 62
	EMATrendPeriod int    // e.g., 200
	NWEBandwidth   float64
	NWEMultiplier  float64
	NWERepaint     bool
	NWEWindow      int
	ATRLength      int

	// Scheduling
	ScanInterval    time.Duration
	MonitorInterval time.Duration

	// Remote call policy
	RetryAttempts int
	RetryDelay    time.Duration
	RetryMaxDelay time.Duration
	RetryFactor   float64

	// Database
	DBPath string

	// Logging
	LogLevel      logger.LogLevel // Use the LogLevel type from the logger adapter
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int

	// E-mail notifications; disabled when EmailSender is empty
	SMTPHost        string
	SMTPPort        int
	EmailSender     string
	EmailPassword   string
	EmailRecipients []string

	// Alert side channel; log only when AlertSound is empty
	AlertSound  string
	AlertPlayer string
}

// EmailEnabled reports whether e-mail notifications are configured.
func (c *Config) EmailEnabled() bool {
	return c.EmailSender != "" && len(c.EmailRecipients) > 0
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds the configuration from the current environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Venues
	cfg.TradingVenue = strings.ToLower(getEnv("TRADING_VENUE", VenueBybit))
	cfg.MarketDataVenue = strings.ToLower(getEnv("MARKET_DATA_VENUE", cfg.TradingVenue))
	for key, venue := range map[string]string{"TRADING_VENUE": cfg.TradingVenue, "MARKET_DATA_VENUE": cfg.MarketDataVenue} {
		if venue != VenueBybit && venue != VenueBinance {
			errs = append(errs, fmt.Sprintf("%s must be %q or %q, got %q", key, VenueBybit, VenueBinance, venue))
		}
	}

	cfg.BybitAPIKey = getEnv("BYBIT_API_KEY", "")
	cfg.BybitSecretKey = getEnv("BYBIT_API_SECRET", "")
	cfg.BybitTestnet = getEnvAsBool("BYBIT_TESTNET", true) // Default to testnet for safety
	cfg.BinanceAPIKey = getEnv("BINANCE_API_KEY", "")
	cfg.BinanceSecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.BinanceTestnet = getEnvAsBool("BINANCE_TESTNET", true)

	switch cfg.TradingVenue {
	case VenueBybit:
		if cfg.BybitAPIKey == "" || cfg.BybitSecretKey == "" {
			errs = append(errs, "BYBIT_API_KEY and BYBIT_API_SECRET must be set")
		}
	case VenueBinance:
		if cfg.BinanceAPIKey == "" || cfg.BinanceSecretKey == "" {
			errs = append(errs, "BINANCE_API_KEY and BINANCE_API_SECRET must be set")
		}
	}

	cfg.Instruments, err = ParseInstruments(getEnv("SYMBOLS", "BTCUSDT"))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SYMBOLS: %v", err))
	}

	// Trading Parameters
	cfg.TradeAmount, err = getEnvAsFloatRequired("TRADE_AMOUNT_USDT", 50)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TRADE_AMOUNT_USDT: %v", err))
	} else if cfg.TradeAmount <= 0 {
		errs = append(errs, "TRADE_AMOUNT_USDT must be positive")
	}

	cfg.StopLossPercent, err = getEnvAsFloatRequired("STOP_LOSS_PERCENT", 2)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STOP_LOSS_PERCENT: %v", err))
	} else if cfg.StopLossPercent <= 0 || cfg.StopLossPercent >= 100 {
		errs = append(errs, "STOP_LOSS_PERCENT must be between 0 and 100 (exclusive)")
	}

	cfg.TakeProfitPercent, err = getEnvAsFloatRequired("TAKE_PROFIT_PERCENT", 20)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TAKE_PROFIT_PERCENT: %v", err))
	} else if cfg.TakeProfitPercent <= 0 {
		errs = append(errs, "TAKE_PROFIT_PERCENT must be positive")
	}

	cfg.ProfitLockPercent, err = getEnvAsFloatRequired("PROFIT_LOCK_PERCENT", 5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PROFIT_LOCK_PERCENT: %v", err))
	} else if cfg.ProfitLockPercent <= 0 {
		errs = append(errs, "PROFIT_LOCK_PERCENT must be positive")
	}

	cfg.TrailLockPercent, err = getEnvAsFloatRequired("TRAIL_LOCK_PERCENT", 0.1)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TRAIL_LOCK_PERCENT: %v", err))
	} else if cfg.TrailLockPercent < 0 || cfg.TrailLockPercent >= cfg.ProfitLockPercent {
		errs = append(errs, "TRAIL_LOCK_PERCENT must be non-negative and below PROFIT_LOCK_PERCENT")
	}

	// Strategy Parameters (using defaults if not set)
	cfg.FastTimeframe = getEnv("FAST_TIMEFRAME", "15m")
	cfg.SlowTimeframe = getEnv("SLOW_TIMEFRAME", "1h")
	cfg.BarLimit = getEnvAsInt("BAR_LIMIT", 500)
	cfg.EMAFastPeriod = getEnvAsInt("EMA_FAST_PERIOD", 38)
	cfg.EMASlowPeriod = getEnvAsInt("EMA_SLOW_PERIOD", 62)
	cfg.EMATrendPeriod = getEnvAsInt("EMA_TREND_PERIOD", 200)
	cfg.NWEBandwidth = getEnvAsFloat("NWE_BANDWIDTH", 8)
	cfg.NWEMultiplier = getEnvAsFloat("NWE_MULTIPLIER", 3)
	cfg.NWERepaint = getEnvAsBool("NWE_REPAINT", true)
	cfg.NWEWindow = getEnvAsInt("NWE_WINDOW", 500)
	cfg.ATRLength = getEnvAsInt("ATR_LENGTH", 14)

	if cfg.EMAFastPeriod <= 0 || cfg.EMASlowPeriod <= 0 || cfg.EMATrendPeriod <= 0 || cfg.ATRLength <= 0 {
		errs = append(errs, "strategy periods (EMA, ATR) must be positive")
	}
	if cfg.EMAFastPeriod >= cfg.EMASlowPeriod {
		errs = append(errs, "EMA_FAST_PERIOD must be less than EMA_SLOW_PERIOD")
	}
	if cfg.BarLimit < 3 {
		errs = append(errs, "BAR_LIMIT must be at least 3")
	}
	if cfg.NWEBandwidth <= 0 || cfg.NWEMultiplier <= 0 || cfg.NWEWindow < 2 {
		errs = append(errs, "NWE_BANDWIDTH and NWE_MULTIPLIER must be positive, NWE_WINDOW at least 2")
	}
	if cfg.FastTimeframe == "" || cfg.SlowTimeframe == "" {
		errs = append(errs, "FAST_TIMEFRAME and SLOW_TIMEFRAME must be set")
	}

	// Scheduling
	scanSeconds := getEnvAsInt("SCAN_INTERVAL_SECONDS", 600)
	if scanSeconds <= 0 {
		errs = append(errs, "SCAN_INTERVAL_SECONDS must be positive")
	}
	cfg.ScanInterval = time.Duration(scanSeconds) * time.Second

	monitorSeconds := getEnvAsInt("MONITOR_INTERVAL_SECONDS", 5)
	if monitorSeconds <= 0 {
		errs = append(errs, "MONITOR_INTERVAL_SECONDS must be positive")
	}
	cfg.MonitorInterval = time.Duration(monitorSeconds) * time.Second

	// Remote call policy
	cfg.RetryAttempts = getEnvAsInt("RETRY_ATTEMPTS", 25)
	if cfg.RetryAttempts <= 0 {
		errs = append(errs, "RETRY_ATTEMPTS must be positive")
	}
	retryDelaySeconds := getEnvAsInt("RETRY_DELAY_SECONDS", 10)
	if retryDelaySeconds < 0 {
		errs = append(errs, "RETRY_DELAY_SECONDS cannot be negative")
	}
	cfg.RetryDelay = time.Duration(retryDelaySeconds) * time.Second
	cfg.RetryMaxDelay = time.Duration(getEnvAsInt("RETRY_MAX_DELAY_SECONDS", retryDelaySeconds)) * time.Second
	cfg.RetryFactor = getEnvAsFloat("RETRY_FACTOR", 1)
	if cfg.RetryFactor < 1 {
		errs = append(errs, "RETRY_FACTOR must be at least 1")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/trend_envelope_bot.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package
	cfg.LogFile = getEnv("LOG_FILE", "")
	cfg.LogMaxSizeMB = getEnvAsInt("LOG_MAX_SIZE_MB", 50)
	cfg.LogMaxBackups = getEnvAsInt("LOG_MAX_BACKUPS", 5)
	cfg.LogMaxAgeDays = getEnvAsInt("LOG_MAX_AGE_DAYS", 30)

	// E-mail
	cfg.SMTPHost = getEnv("SMTP_HOST", "smtp.gmail.com")
	cfg.SMTPPort = getEnvAsInt("SMTP_PORT", 587)
	cfg.EmailSender = getEnv("EMAIL_SENDER", "")
	cfg.EmailPassword = getEnv("EMAIL_PASSWORD", "")
	cfg.EmailRecipients = splitList(getEnv("EMAIL_RECIPIENTS", ""))
	if cfg.EmailSender != "" && len(cfg.EmailRecipients) == 0 {
		errs = append(errs, "EMAIL_RECIPIENTS must be set when EMAIL_SENDER is set")
	}

	// Alerts
	cfg.AlertSound = getEnv("ALERT_SOUND", "")
	cfg.AlertPlayer = getEnv("ALERT_PLAYER", "mpv")

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// ParseInstruments parses a comma separated list of DATA=TRADE pairs. A bare
// symbol is used for both market data and trading.
func ParseInstruments(v string) ([]domain.Instrument, error) {
	var out []domain.Instrument
	seen := make(map[string]bool)
	for _, item := range splitList(v) {
		data, trade, found := strings.Cut(item, "=")
		data, trade = strings.TrimSpace(data), strings.TrimSpace(trade)
		if !found {
			trade = data
		}
		if data == "" || trade == "" {
			return nil, fmt.Errorf("malformed instrument %q", item)
		}
		if seen[data] {
			return nil, fmt.Errorf("duplicate instrument %q", data)
		}
		seen[data] = true
		out = append(out, domain.Instrument{Symbol: strings.ToUpper(data), TradeSymbol: strings.ToUpper(trade)})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one instrument is required")
	}
	return out, nil
}

// --- Env Var Helpers ---

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
