package main

import (
	"context"
	"fmt"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"time"

	"trendEnvelopeBot/config"
	"trendEnvelopeBot/internal/adapters/alert"
	"trendEnvelopeBot/internal/adapters/binanceclient"
	"trendEnvelopeBot/internal/adapters/bybitclient"
	"trendEnvelopeBot/internal/adapters/logger"
	"trendEnvelopeBot/internal/adapters/notifier"
	"trendEnvelopeBot/internal/adapters/sqlite"
	"trendEnvelopeBot/internal/app"
	"trendEnvelopeBot/internal/ports"
	"trendEnvelopeBot/internal/retry"
	"trendEnvelopeBot/internal/risk"
	"trendEnvelopeBot/internal/strategy"
	"trendEnvelopeBot/internal/strategy/indicators"
)

// venue is what an exchange adapter offers the bot.
type venue interface {
	ports.TradingAPI
	ports.MarketDataProvider
}

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.New(logger.Config{
		Level:      cfg.LogLevel,
		Console:    true,
		FilePath:   cfg.LogFile,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAgeDays,
	})
	defer appLogger.Close()
	ctx := context.Background()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String(), "file": cfg.LogFile})

	// 3. Notifications and alerts
	var notify ports.Notifier = notifier.NewLogNotifier(appLogger)
	if cfg.EmailEnabled() {
		email, err := notifier.NewEmailNotifier(notifier.EmailConfig{
			SMTPHost:   cfg.SMTPHost,
			SMTPPort:   cfg.SMTPPort,
			Username:   cfg.EmailSender,
			Password:   cfg.EmailPassword,
			From:       cfg.EmailSender,
			Recipients: cfg.EmailRecipients,
		}, appLogger)
		if err != nil {
			fatal(ctx, appLogger, notify, err, "Failed to initialize e-mail notifier")
		}
		notify = email
	}
	var alerter ports.Alerter = alert.NewLogAlerter(appLogger)
	if cfg.AlertSound != "" {
		alerter = alert.NewSoundAlerter(cfg.AlertPlayer, cfg.AlertSound, appLogger)
	}

	// 4. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		fatal(ctx, appLogger, notify, err, "Failed to initialize database repository")
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()
	appLogger.Info(ctx, "Database repository initialized", map[string]interface{}{"path": cfg.DBPath})

	// 5. Initialize Exchange Clients
	trading, err := newVenue(cfg, cfg.TradingVenue, appLogger)
	if err != nil {
		fatal(ctx, appLogger, notify, err, "Failed to initialize trading venue")
	}
	market := ports.MarketDataProvider(trading)
	if cfg.MarketDataVenue != cfg.TradingVenue {
		if market, err = newVenue(cfg, cfg.MarketDataVenue, appLogger); err != nil {
			fatal(ctx, appLogger, notify, err, "Failed to initialize market data venue")
		}
	}
	appLogger.Info(ctx, "Exchange clients initialized", map[string]interface{}{
		"trading":    cfg.TradingVenue,
		"marketData": cfg.MarketDataVenue,
	})

	// 6. Initialize Strategy and Risk
	detector, err := strategy.New(strategy.Config{
		FastEMAPeriod:  cfg.EMAFastPeriod,
		SlowEMAPeriod:  cfg.EMASlowPeriod,
		TrendEMAPeriod: cfg.EMATrendPeriod,
		MinBars:        cfg.BarLimit,
	}, appLogger)
	if err != nil {
		fatal(ctx, appLogger, notify, err, "Failed to initialize entry detector")
	}
	riskManager, err := risk.NewRiskManager(risk.RiskConfig{
		Notional:          cfg.TradeAmount,
		StopLossPercent:   cfg.StopLossPercent / 100,
		TakeProfitPercent: cfg.TakeProfitPercent / 100,
		TrailLockPercent:  cfg.TrailLockPercent / 100,
	})
	if err != nil {
		fatal(ctx, appLogger, notify, err, "Failed to initialize risk manager")
	}

	// 7. Initialize Application Service
	retrier := retry.New(retry.Policy{
		MaxAttempts: cfg.RetryAttempts,
		Delay:       cfg.RetryDelay,
		Factor:      cfg.RetryFactor,
		MaxDelay:    cfg.RetryMaxDelay,
	}, appLogger, retry.WithAlerter(alerter))

	orders, err := app.NewOrderManager(app.OrderManagerConfig{
		Interval:  cfg.FastTimeframe,
		ATRLength: cfg.ATRLength,
	}, trading, market, riskManager, retrier, notify, alerter, appLogger)
	if err != nil {
		fatal(ctx, appLogger, notify, err, "Failed to initialize order manager")
	}
	session, err := app.NewSession(repo, repo, repo, notify, appLogger)
	if err != nil {
		fatal(ctx, appLogger, notify, err, "Failed to initialize session")
	}
	monitor := app.MonitorConfig{
		Interval: cfg.FastTimeframe,
		BarLimit: cfg.BarLimit,
		NWE: indicators.NWEConfig{
			Bandwidth:  cfg.NWEBandwidth,
			Multiplier: cfg.NWEMultiplier,
			Repaint:    cfg.NWERepaint,
			Window:     cfg.NWEWindow,
		},
		Policy:      strategy.ExitPolicy{ProfitLockPct: cfg.ProfitLockPercent},
		MinInterval: cfg.MonitorInterval,
	}

	tradingService, err := app.NewTradingService(cfg, appLogger, session, orders, detector, monitor)
	if err != nil {
		fatal(ctx, appLogger, notify, err, "Failed to initialize trading service")
	}
	appLogger.Info(ctx, "Trading service initialized", map[string]interface{}{"instruments": len(cfg.Instruments)})

	// 8. Start the Service
	if err := tradingService.Start(ctx); err != nil {
		fatal(ctx, appLogger, notify, err, "Trading service exited with error")
	}

	appLogger.Info(ctx, "Application finished gracefully.")
}

// newVenue builds the exchange adapter for name.
func newVenue(cfg *config.Config, name string, l ports.Logger) (venue, error) {
	switch name {
	case config.VenueBybit:
		return bybitclient.New(bybitclient.Config{
			APIKey:     cfg.BybitAPIKey,
			SecretKey:  cfg.BybitSecretKey,
			UseTestnet: cfg.BybitTestnet,
			Logger:     l,
		})
	case config.VenueBinance:
		return binanceclient.New(binanceclient.Config{
			APIKey:     cfg.BinanceAPIKey,
			SecretKey:  cfg.BinanceSecretKey,
			UseTestnet: cfg.BinanceTestnet,
			Logger:     l,
		})
	default:
		return nil, fmt.Errorf("%w: unknown venue %q", ports.ErrConfigurationError, name)
	}
}

// fatal reports err through every channel and exits.
func fatal(ctx context.Context, l *logger.ZeroLogger, n ports.Notifier, err error, msg string) {
	l.Error(ctx, err, "FATAL: "+msg)
	n.Notify(ctx, "Bot crashed", fmt.Sprintf("%s\nError: %v\nTime: %s", msg, err, time.Now().UTC().Format(time.RFC3339)))
	_ = l.Close()
	log.Printf("FATAL: %s: %v", msg, err) // Also log to stderr
	os.Exit(1)
}
