package app

import (
	"context"
	"fmt"
	"time"

	"trendEnvelopeBot/internal/domain"
	"trendEnvelopeBot/internal/ports"
	"trendEnvelopeBot/internal/retry"
	"trendEnvelopeBot/internal/risk"
	"trendEnvelopeBot/internal/strategy"
	"trendEnvelopeBot/internal/strategy/indicators"
)

// MonitorConfig holds the parameters of position supervision.
type MonitorConfig struct {
	Interval    string // timeframe the envelope is computed on
	BarLimit    int    // bars fetched per tick
	NWE         indicators.NWEConfig
	Policy      strategy.ExitPolicy
	MinInterval time.Duration // minimum time between two ticks
}

// Monitor supervises one open position until it is closed.
type Monitor struct {
	cfg     MonitorConfig
	trade   *domain.ActiveTrade
	session *Session
	orders  *OrderManager
	logger  ports.Logger
	sleep   retry.Sleeper
	now     func() time.Time

	state     domain.MonitorState
	lastPrice float64
}

// NewMonitor creates a Monitor in the Active state for trade.
func NewMonitor(cfg MonitorConfig, trade *domain.ActiveTrade, session *Session, orders *OrderManager, logger ports.Logger) (*Monitor, error) {
	if trade == nil || session == nil || orders == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Monitor")
	}
	if cfg.BarLimit < 3 {
		return nil, fmt.Errorf("%w: monitor needs at least 3 bars, got %d", ports.ErrConfigurationError, cfg.BarLimit)
	}
	return &Monitor{
		cfg:     cfg,
		trade:   trade,
		session: session,
		orders:  orders,
		logger:  logger,
		sleep:   retry.SleepContext,
		now:     time.Now,
		state:   domain.StateActive,
	}, nil
}

// State returns the lifecycle state of the monitor.
func (m *Monitor) State() domain.MonitorState {
	return m.state
}

// Trade returns the supervised trade.
func (m *Monitor) Trade() *domain.ActiveTrade {
	return m.trade
}

// Run ticks until the position is closed or ctx is done. Ticks are spaced by
// at least MinInterval.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info(ctx, "Monitor.Run: supervising position", map[string]interface{}{
		"symbol":     m.trade.TradeSymbol,
		"side":       m.trade.Side,
		"entryPrice": m.trade.EntryPrice,
		"stopLoss":   m.trade.StopLoss,
		"takeProfit": m.trade.TakeProfit,
	})
	for {
		start := m.now()
		if err := m.Tick(ctx); err != nil {
			return err
		}
		if m.state == domain.StateClosed {
			return nil
		}
		if err := m.sleep(ctx, m.cfg.MinInterval-m.now().Sub(start)); err != nil {
			return fmt.Errorf("Monitor.Run: %w: %w", ports.ErrContextCanceled, err)
		}
	}
}

// Tick performs one supervision step. Failed exchange reads are reported and
// leave the position Active; only persistence failures and cancellation are
// returned.
func (m *Monitor) Tick(ctx context.Context) error {
	op := "Monitor.Tick"
	if m.state == domain.StateClosed {
		return nil
	}
	t := m.trade
	o := m.orders

	pos, err := retry.Do(ctx, o.retrier, "GetOpenPosition", func(ctx context.Context) (*ports.PositionInfo, error) {
		return o.trading.GetOpenPosition(ctx, t.TradeSymbol)
	})
	if err != nil {
		return m.tickFailed(ctx, err)
	}
	if pos == nil || pos.Size <= 0 {
		return m.closedExternally(ctx)
	}

	price, err := o.Price(ctx, t.TradeSymbol)
	if err != nil {
		return m.tickFailed(ctx, err)
	}
	m.lastPrice = price

	klines, err := retry.Do(ctx, o.retrier, "GetKlines", func(ctx context.Context) ([]*domain.Kline, error) {
		return o.market.GetKlines(ctx, t.Symbol, m.cfg.Interval, m.cfg.BarLimit)
	})
	if err != nil {
		return m.tickFailed(ctx, err)
	}
	prev, last, err := m.bandBars(klines)
	if err != nil {
		return m.tickFailed(ctx, err)
	}

	decision := m.cfg.Policy.EvaluateExit(strategy.ExitInput{
		Side:       t.Side,
		EntryPrice: t.EntryPrice,
		StopLoss:   t.StopLoss,
		TakeProfit: t.TakeProfit,
		Price:      price,
		Prev:       prev,
		Last:       last,
	})

	m.logger.Info(ctx, fmt.Sprintf("%s %s | PnL: %+.2f%% | Price: %.4f | SL: %.4f | TP: %.4f",
		t.Symbol, t.Side, decision.PnL, price, t.StopLoss, t.TakeProfit), map[string]interface{}{
		"action": decision.Action.String(),
		"upper":  last.Upper,
		"lower":  last.Lower,
	})

	switch decision.Action {
	case strategy.ActionTrail:
		return m.trail(ctx, decision)
	case strategy.ActionExit:
		return m.exit(ctx, pos, price, decision)
	default:
		m.logger.Debug(ctx, op+": holding", map[string]interface{}{"symbol": t.TradeSymbol})
		return nil
	}
}

// bandBars computes the envelope and returns the two most recent closed bars.
func (m *Monitor) bandBars(klines []*domain.Kline) (prev, last strategy.BandBar, err error) {
	idx := domain.LastClosedIndex(klines)
	if idx < 1 {
		return prev, last, fmt.Errorf("%w: %d bars are not enough for the envelope", ports.ErrDataUnavailable, len(klines))
	}
	env := indicators.NadarayaWatson(domain.Closes(klines), m.cfg.NWE)
	at := func(i int) strategy.BandBar {
		k := klines[i]
		return strategy.BandBar{Open: k.Open, High: k.High, Low: k.Low, Close: k.Close, Upper: env.Upper[i], Lower: env.Lower[i]}
	}
	return at(idx - 1), at(idx), nil
}

func (m *Monitor) trail(ctx context.Context, decision strategy.ExitDecision) error {
	op := "Monitor.trail"
	t := m.trade
	o := m.orders

	level := o.risk.TrailingStop(t.Side, t.EntryPrice)
	if risk.StopAtOrBeyond(t.Side, t.StopLoss, level) {
		m.logger.Debug(ctx, op+": stop-loss already trailing", map[string]interface{}{"stopLoss": t.StopLoss, "level": level})
		return nil
	}

	_, err := retry.Do(ctx, o.retrier, "UpdateStopLoss", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, o.trading.UpdateStopLoss(ctx, t.TradeSymbol, risk.FormatPrice(level))
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.logger.Error(ctx, err, op+": failed to move stop-loss", map[string]interface{}{"symbol": t.TradeSymbol, "level": level})
		o.alerter.Alert(ctx, fmt.Sprintf("%s trailing stop update failed: %v", t.TradeSymbol, err))
		return nil
	}

	t.StopLoss = level
	if err := m.session.UpdateTrade(ctx, t); err != nil {
		return err
	}
	m.logger.Info(ctx, op+": stop-loss moved into profit", map[string]interface{}{"symbol": t.TradeSymbol, "stopLoss": level, "pnl": decision.PnL})
	o.notifier.Notify(ctx, fmt.Sprintf("%s trailing SL", t.Symbol),
		fmt.Sprintf("Adjusted SL to %s\nCurrent PnL: %.2f%%", risk.FormatPrice(level), decision.PnL))
	return nil
}

func (m *Monitor) exit(ctx context.Context, pos *ports.PositionInfo, price float64, decision strategy.ExitDecision) error {
	op := "Monitor.exit"
	t := m.trade
	m.state = domain.StateExiting
	m.logger.Info(ctx, op+": exit condition met", map[string]interface{}{
		"symbol": t.TradeSymbol,
		"reason": decision.Reason,
		"price":  price,
		"pnl":    decision.PnL,
	})

	reentry, err := m.orders.CloseAndReenter(ctx, t, pos.Size)
	if err != nil {
		m.state = domain.StateActive
		return m.tickFailed(ctx, err)
	}

	outcome := m.outcome(price, decision.PnL, decision.Reason)
	limitLine := "No re-entry order placed"
	if reentry != nil {
		outcome.ReentryPrice = reentry.Price
		limitLine = fmt.Sprintf("Placed %s limit at %s", reentry.Side, risk.FormatPrice(reentry.Price))
	}
	// The position is flat now; a shutdown must not leave the record behind.
	ctx = context.WithoutCancel(ctx)
	if err := m.session.CloseTrade(ctx, outcome); err != nil {
		return err
	}
	m.state = domain.StateClosed

	m.orders.notifier.Notify(ctx, fmt.Sprintf("%s closed, limit set", t.Symbol),
		fmt.Sprintf("Exit Reason: %s\nEntry: %.4f\nExit: %.4f\nPnL: %.2f%%\n%s\nState: %s",
			decision.Reason.Description(), t.EntryPrice, price, decision.PnL, limitLine, domain.ModeManage))
	return nil
}

func (m *Monitor) closedExternally(ctx context.Context) error {
	t := m.trade
	m.logger.Info(ctx, "Monitor.Tick: position no longer exists", map[string]interface{}{"symbol": t.TradeSymbol})

	pnl := 0.0
	if m.lastPrice > 0 {
		pnl = t.PnLPercent(m.lastPrice)
	}
	ctx = context.WithoutCancel(ctx)
	if err := m.session.CloseTrade(ctx, m.outcome(m.lastPrice, pnl, domain.ExitReasonExternal)); err != nil {
		return err
	}
	m.state = domain.StateClosed
	m.orders.notifier.Notify(ctx, fmt.Sprintf("%s closed", t.Symbol),
		fmt.Sprintf("Position closed externally\nState set to %s", domain.ModeManage))
	return nil
}

func (m *Monitor) outcome(price, pnl float64, reason domain.ExitReason) *domain.Trade {
	t := m.trade
	return &domain.Trade{
		Symbol:      t.Symbol,
		TradeSymbol: t.TradeSymbol,
		Side:        t.Side,
		EntryPrice:  t.EntryPrice,
		ExitPrice:   price,
		Quantity:    t.Quantity,
		PnLPercent:  pnl,
		EntryTime:   t.OpenedAt,
		ExitTime:    m.now().UTC(),
		ExitReason:  reason,
	}
}

// tickFailed reports a failed tick and keeps supervising. It never closes
// the position.
func (m *Monitor) tickFailed(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("Monitor.Tick: %w: %w", ports.ErrContextCanceled, ctx.Err())
	}
	t := m.trade
	m.logger.Error(ctx, err, "Monitor.Tick: tick failed, still managing position", map[string]interface{}{"symbol": t.TradeSymbol})
	m.orders.alerter.Alert(ctx, fmt.Sprintf("%s monitoring error: %v", t.TradeSymbol, err))

	last := "Unknown"
	if m.lastPrice > 0 {
		last = risk.FormatPrice(m.lastPrice)
	}
	m.orders.notifier.Notify(ctx, fmt.Sprintf("%s monitoring error", t.Symbol),
		fmt.Sprintf("Error: %v\nLast Price: %s\nStill managing position.", err, last))
	return nil
}
