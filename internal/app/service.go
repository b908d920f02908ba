package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trendEnvelopeBot/config"
	"trendEnvelopeBot/internal/domain"
	"trendEnvelopeBot/internal/ports"
	"trendEnvelopeBot/internal/retry"
	"trendEnvelopeBot/internal/strategy"
)

// TradingService orchestrates the trading bot's operations: the periodic
// scan for entries and the supervision of the single open position.
type TradingService struct {
	cfg      *config.Config
	logger   ports.Logger
	session  *Session
	orders   *OrderManager
	detector *strategy.Detector
	monitor  MonitorConfig

	sleep retry.Sleeper
	now   func() time.Time
}

// NewTradingService creates a new application service instance.
func NewTradingService(
	cfg *config.Config,
	logger ports.Logger,
	session *Session,
	orders *OrderManager,
	detector *strategy.Detector,
	monitor MonitorConfig,
) (*TradingService, error) {

	// Validate dependencies
	if cfg == nil || logger == nil || session == nil || orders == nil || detector == nil {
		return nil, fmt.Errorf("missing required dependencies for TradingService")
	}
	if len(cfg.Instruments) == 0 {
		return nil, fmt.Errorf("%w: no instruments configured", ports.ErrConfigurationError)
	}
	if cfg.ScanInterval <= 0 {
		return nil, fmt.Errorf("%w: scan interval must be positive", ports.ErrConfigurationError)
	}

	return &TradingService{
		cfg:      cfg,
		logger:   logger,
		session:  session,
		orders:   orders,
		detector: detector,
		monitor:  monitor,
		sleep:    retry.SleepContext,
		now:      time.Now,
	}, nil
}

// Start begins the trading bot's main loop. It returns nil on a shutdown
// signal and an error on failures the bot cannot continue from.
func (s *TradingService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Trading Service...")

	// Create a context that can be canceled by signals
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel() // Cancel the main context
		case <-ctx.Done():
		}
	}()

	// --- Initialization Steps ---
	// 1. Check connectivity
	_, err := retry.Do(ctx, s.orders.retrier, "Ping", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.orders.trading.Ping(ctx)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		s.logger.Error(ctx, err, "Failed to reach the exchange")
		return fmt.Errorf("exchange ping failed: %w", err)
	}

	// 2. Reconcile persisted state with the exchange
	if err := s.reconcile(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	// --- Main Loop ---
	for {
		started := s.now()
		if err := s.scan(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			return err
		}
		wait := s.cfg.ScanInterval - s.now().Sub(started)
		if err := s.sleep(ctx, wait); err != nil {
			break
		}
	}

	s.logger.Info(context.Background(), "Trading Service stopped.")
	return nil
}

// reconcile resumes supervision of a persisted trade that is still open on
// the exchange and discards the record otherwise.
func (s *TradingService) reconcile(ctx context.Context) error {
	op := "reconcile"
	state, err := s.session.Load(ctx)
	if err != nil {
		s.logger.Error(ctx, err, op+": failed to load session state")
		return err
	}
	s.logger.Info(ctx, op+": session state loaded", map[string]interface{}{"mode": state.Mode, "hasTrade": state.ActiveTrade != nil})

	trade := state.ActiveTrade
	if trade == nil {
		return nil
	}

	pos, err := retry.Do(ctx, s.orders.retrier, "GetOpenPosition", func(ctx context.Context) (*ports.PositionInfo, error) {
		return s.orders.trading.GetOpenPosition(ctx, trade.TradeSymbol)
	})
	if err != nil {
		s.logger.Error(ctx, err, op+": failed to look up persisted position", map[string]interface{}{"symbol": trade.TradeSymbol})
		return fmt.Errorf("%s: %w", op, err)
	}

	if pos == nil || pos.Size <= 0 {
		s.logger.Warn(ctx, op+": persisted trade has no open position, discarding record", map[string]interface{}{
			"symbol": trade.TradeSymbol,
			"side":   trade.Side,
		})
		return s.session.DiscardTrade(ctx)
	}

	s.logger.Info(ctx, op+": resuming trade", map[string]interface{}{"symbol": trade.TradeSymbol, "size": pos.Size})
	return s.supervise(ctx, trade)
}

// scan checks every instrument for an entry while the mode allows it. Errors
// of a single instrument are reported and do not stop the scan.
func (s *TradingService) scan(ctx context.Context) error {
	op := "scan"
	s.logger.Info(ctx, op+": new scan")

	for _, inst := range s.cfg.Instruments {
		mode, err := s.session.Mode(ctx)
		if err != nil {
			s.logger.Error(ctx, err, op+": failed to read mode")
			return err
		}
		if mode != domain.ModeEntry {
			s.logger.Info(ctx, op+": skipping signal checks", map[string]interface{}{"mode": mode})
			return nil
		}

		if err := s.checkInstrument(ports.WithSymbol(ctx, inst.Symbol), inst); err != nil {
			if ctx.Err() != nil || errors.Is(err, ports.ErrPersistence) {
				return err
			}
			s.logger.Error(ctx, err, op+": signal check failed", map[string]interface{}{"symbol": inst.Symbol})
			s.orders.notifier.Notify(ctx, fmt.Sprintf("%s signal error", inst.Symbol),
				fmt.Sprintf("Error checking signals for %s\nError: %v", inst.Symbol, err))
		}
	}
	return nil
}

func (s *TradingService) checkInstrument(ctx context.Context, inst domain.Instrument) error {
	op := "checkInstrument"
	limit := s.cfg.BarLimit
	if r := s.detector.RequiredBars(); r > limit {
		limit = r
	}

	fast, err := s.fetchKlines(ctx, inst.Symbol, s.cfg.FastTimeframe, limit)
	if err != nil {
		return err
	}
	slow, err := s.fetchKlines(ctx, inst.Symbol, s.cfg.SlowTimeframe, limit)
	if err != nil {
		return err
	}

	eval, err := s.detector.Evaluate(ctx, fast, slow)
	if err != nil {
		return err
	}
	side, ok := eval.Signal.Side()
	if !ok {
		s.logger.Info(ctx, op+": no signal", map[string]interface{}{"symbol": inst.Symbol})
		return nil
	}

	s.logger.Info(ctx, op+": signal detected", map[string]interface{}{"symbol": inst.Symbol, "signal": eval.Signal.String()})
	s.orders.notifier.Notify(ctx, fmt.Sprintf("%s %s", eval.Signal, inst.Symbol),
		fmt.Sprintf("%s signal detected for %s\nPrice: %v\nFast EMA: %.2f\nSlow EMA: %.2f",
			eval.Signal, inst.Symbol, eval.Bar.Close, eval.FastEMA, eval.SlowEMA))

	return s.enter(ctx, inst, side)
}

func (s *TradingService) fetchKlines(ctx context.Context, symbol, interval string, limit int) ([]*domain.Kline, error) {
	return retry.Do(ctx, s.orders.retrier, "GetKlines", func(ctx context.Context) ([]*domain.Kline, error) {
		return s.orders.market.GetKlines(ctx, symbol, interval, limit)
	})
}

// enter opens a position on inst and supervises it until it is closed.
func (s *TradingService) enter(ctx context.Context, inst domain.Instrument, side domain.OrderSide) error {
	op := "enter"
	// The mode may have changed while the signal was computed.
	mode, err := s.session.Mode(ctx)
	if err != nil {
		return err
	}
	if mode != domain.ModeEntry {
		s.logger.Info(ctx, op+": trade blocked", map[string]interface{}{"symbol": inst.Symbol, "mode": mode})
		return nil
	}

	trade, err := s.orders.OpenPosition(ctx, inst, side)
	if err != nil && trade == nil {
		if isRejection(err) {
			s.orders.alerter.Alert(ctx, fmt.Sprintf("%s order rejected: %v", inst.TradeSymbol, err))
		}
		// Already notified by the order manager.
		return nil
	}
	// An unprotected fill is still a live position: persist and supervise it,
	// the monitor enforces the stop-loss and take-profit levels itself.

	if err := s.session.OpenTrade(ctx, trade); err != nil {
		s.logger.Error(ctx, err, op+": OPEN POSITION NOT PERSISTED", map[string]interface{}{"symbol": trade.TradeSymbol})
		s.orders.notifier.Notify(ctx, fmt.Sprintf("%s trade error", inst.TradeSymbol),
			fmt.Sprintf("Position opened but could not be persisted\nError: %v", err))
		return err
	}
	return s.supervise(ctx, trade)
}

// supervise blocks until the position of trade is closed.
func (s *TradingService) supervise(ctx context.Context, trade *domain.ActiveTrade) error {
	m, err := NewMonitor(s.monitor, trade, s.session, s.orders, s.logger)
	if err != nil {
		return err
	}
	m.sleep = s.sleep
	m.now = s.now
	return m.Run(ports.WithSymbol(ctx, trade.Symbol))
}
