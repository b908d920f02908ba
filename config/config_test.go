package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendEnvelopeBot/internal/adapters/logger"
	"trendEnvelopeBot/internal/domain"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TRADING_VENUE", "bybit")
	t.Setenv("MARKET_DATA_VENUE", "")
	t.Setenv("BYBIT_API_KEY", "key")
	t.Setenv("BYBIT_API_SECRET", "secret")
	t.Setenv("SYMBOLS", "")
	t.Setenv("EMAIL_SENDER", "")
	t.Setenv("EMAIL_RECIPIENTS", "")
}

func TestFromEnv_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, VenueBybit, cfg.TradingVenue)
	assert.Equal(t, VenueBybit, cfg.MarketDataVenue)
	assert.True(t, cfg.BybitTestnet)
	assert.Equal(t, []domain.Instrument{{Symbol: "BTCUSDT", TradeSymbol: "BTCUSDT"}}, cfg.Instruments)
	assert.Equal(t, 50.0, cfg.TradeAmount)
	assert.Equal(t, 2.0, cfg.StopLossPercent)
	assert.Equal(t, 20.0, cfg.TakeProfitPercent)
	assert.Equal(t, 5.0, cfg.ProfitLockPercent)
	assert.Equal(t, 0.1, cfg.TrailLockPercent)
	assert.Equal(t, "15m", cfg.FastTimeframe)
	assert.Equal(t, "1h", cfg.SlowTimeframe)
	assert.Equal(t, 500, cfg.BarLimit)
	assert.Equal(t, 38, cfg.EMAFastPeriod)
	assert.Equal(t, 62, cfg.EMASlowPeriod)
	assert.Equal(t, 200, cfg.EMATrendPeriod)
	assert.True(t, cfg.NWERepaint)
	assert.Equal(t, 600*time.Second, cfg.ScanInterval)
	assert.Equal(t, 25, cfg.RetryAttempts)
	assert.Equal(t, 10*time.Second, cfg.RetryDelay)
	assert.Equal(t, logger.LevelInfo, cfg.LogLevel)
	assert.False(t, cfg.EmailEnabled())
}

func TestFromEnv_Overrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("MARKET_DATA_VENUE", "BINANCE")
	t.Setenv("SYMBOLS", "ethusdt=ETHUSDT, SOLUSDT=SOLUSDT")
	t.Setenv("EMAIL_SENDER", "bot@example.com")
	t.Setenv("EMAIL_RECIPIENTS", "a@example.com, b@example.com")
	t.Setenv("MONITOR_INTERVAL_SECONDS", "2")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, VenueBinance, cfg.MarketDataVenue)
	assert.Equal(t, []domain.Instrument{
		{Symbol: "ETHUSDT", TradeSymbol: "ETHUSDT"},
		{Symbol: "SOLUSDT", TradeSymbol: "SOLUSDT"},
	}, cfg.Instruments)
	assert.True(t, cfg.EmailEnabled())
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.EmailRecipients)
	assert.Equal(t, 2*time.Second, cfg.MonitorInterval)
	assert.Equal(t, logger.LevelDebug, cfg.LogLevel)
}

func TestFromEnv_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown venue", "TRADING_VENUE", "kraken"},
		{"missing credentials", "BYBIT_API_KEY", ""},
		{"bad trade amount", "TRADE_AMOUNT_USDT", "abc"},
		{"negative trade amount", "TRADE_AMOUNT_USDT", "-5"},
		{"stop loss out of range", "STOP_LOSS_PERCENT", "150"},
		{"fast not below slow", "EMA_FAST_PERIOD", "80"},
		{"zero scan interval", "SCAN_INTERVAL_SECONDS", "0"},
		{"zero retry attempts", "RETRY_ATTEMPTS", "0"},
		{"malformed symbols", "SYMBOLS", "=BTCUSDT"},
		{"sender without recipients", "EMAIL_SENDER", "bot@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBaseEnv(t)
			t.Setenv(tt.key, tt.value)

			cfg, err := FromEnv()
			assert.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), "configuration validation failed")
		})
	}
}

func TestParseInstruments(t *testing.T) {
	got, err := ParseInstruments("BTC/USDT:USDT=BTCUSDT,ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, []domain.Instrument{
		{Symbol: "BTC/USDT:USDT", TradeSymbol: "BTCUSDT"},
		{Symbol: "ETHUSDT", TradeSymbol: "ETHUSDT"},
	}, got)

	_, err = ParseInstruments("BTCUSDT,BTCUSDT")
	assert.Error(t, err)

	_, err = ParseInstruments(" , ")
	assert.Error(t, err)
}
