package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"trendEnvelopeBot/config"
	"trendEnvelopeBot/internal/adapters/binanceclient"
	"trendEnvelopeBot/internal/adapters/logger"
	"trendEnvelopeBot/internal/adapters/notifier"
	"trendEnvelopeBot/internal/adapters/sqlite"
	"trendEnvelopeBot/internal/app"
	"trendEnvelopeBot/internal/ports"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	// Logs go to stderr so command output stays clean.
	appLogger := logger.NewWithWriter(os.Stderr, cfg.LogLevel)

	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		return err
	}
	defer repo.Close()

	var notify ports.Notifier = notifier.NewLogNotifier(appLogger)
	if cfg.EmailEnabled() {
		if notify, err = notifier.NewEmailNotifier(notifier.EmailConfig{
			SMTPHost:   cfg.SMTPHost,
			SMTPPort:   cfg.SMTPPort,
			Username:   cfg.EmailSender,
			Password:   cfg.EmailPassword,
			From:       cfg.EmailSender,
			Recipients: cfg.EmailRecipients,
		}, appLogger); err != nil {
			return err
		}
	}
	session, err := app.NewSession(repo, repo, repo, notify, appLogger)
	if err != nil {
		return err
	}

	// Historical klines are public; keys are passed along when configured.
	bars, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.BinanceAPIKey,
		SecretKey:  cfg.BinanceSecretKey,
		UseTestnet: cfg.BinanceTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		return err
	}

	root := newRootCmd(&ctlApp{store: repo, session: session, bars: bars, now: time.Now})
	return root.ExecuteContext(context.Background())
}
