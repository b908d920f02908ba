package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"trendEnvelopeBot/internal/domain"
	"trendEnvelopeBot/internal/ports"
	"trendEnvelopeBot/internal/retry"
	"trendEnvelopeBot/internal/risk"
	"trendEnvelopeBot/internal/strategy/indicators"
)

// OrderManagerConfig holds the parameters of order placement.
type OrderManagerConfig struct {
	Interval  string // timeframe of the ATR used for the re-entry price
	ATRLength int
}

// OrderManager sizes, places and unwinds orders. Reads go through the retry
// wrapper; order submissions do not, a rejected order is final.
type OrderManager struct {
	cfg      OrderManagerConfig
	trading  ports.TradingAPI
	market   ports.MarketDataProvider
	risk     *risk.RiskManager
	retrier  *retry.Retrier
	notifier ports.Notifier
	alerter  ports.Alerter
	logger   ports.Logger
	now      func() time.Time
	newID    func() string
}

// Reentry describes the limit order placed after a close.
type Reentry struct {
	Side     domain.OrderSide
	Price    float64
	Quantity float64
	ATR      float64
	OrderID  string
}

// NewOrderManager creates a new OrderManager.
func NewOrderManager(
	cfg OrderManagerConfig,
	trading ports.TradingAPI,
	market ports.MarketDataProvider,
	riskManager *risk.RiskManager,
	retrier *retry.Retrier,
	notifier ports.Notifier,
	alerter ports.Alerter,
	logger ports.Logger,
) (*OrderManager, error) {
	if trading == nil || market == nil || riskManager == nil || retrier == nil || notifier == nil || alerter == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for OrderManager")
	}
	if cfg.ATRLength <= 0 {
		cfg.ATRLength = indicators.DefaultATRLength
	}
	if cfg.Interval == "" {
		return nil, fmt.Errorf("%w: ATR interval must be set", ports.ErrConfigurationError)
	}
	return &OrderManager{
		cfg:      cfg,
		trading:  trading,
		market:   market,
		risk:     riskManager,
		retrier:  retrier,
		notifier: notifier,
		alerter:  alerter,
		logger:   logger,
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}, nil
}

// Price returns the last traded price of symbol.
func (o *OrderManager) Price(ctx context.Context, symbol string) (float64, error) {
	price, err := retry.Do(ctx, o.retrier, "GetTickerPrice", func(ctx context.Context) (float64, error) {
		return o.trading.GetTickerPrice(ctx, symbol)
	})
	if err != nil {
		return 0, err
	}
	if price <= 0 {
		return 0, fmt.Errorf("%w: %s reported price %v", ports.ErrPriceUnavailable, symbol, price)
	}
	return price, nil
}

func (o *OrderManager) lotRule(ctx context.Context, symbol string) (domain.LotSizeRule, error) {
	rule, err := retry.Do(ctx, o.retrier, "GetLotSizeRule", func(ctx context.Context) (*domain.LotSizeRule, error) {
		return o.trading.GetLotSizeRule(ctx, symbol)
	})
	if err != nil {
		return domain.LotSizeRule{}, err
	}
	if rule == nil {
		return domain.LotSizeRule{}, fmt.Errorf("%w: no lot size rule for %s", ports.ErrConfigurationError, symbol)
	}
	return *rule, risk.ValidateLotRule(*rule)
}

// OpenPosition opens a market position on inst with stop-loss and
// take-profit attached. Any failure is notified. When the entry filled but
// the protective orders failed, both the trade and an error wrapping
// ports.ErrPositionUnprotected are returned and the caller owns the position;
// on any other failure no trade exists.
func (o *OrderManager) OpenPosition(ctx context.Context, inst domain.Instrument, side domain.OrderSide) (*domain.ActiveTrade, error) {
	op := "OrderManager.OpenPosition"
	trade, err := o.openPosition(ctx, inst, side)
	switch {
	case err == nil:
		return trade, nil
	case trade != nil:
		o.logger.Error(ctx, err, op+": position filled without protective orders", map[string]interface{}{
			"symbol":     inst.TradeSymbol,
			"side":       side,
			"entryPrice": trade.EntryPrice,
		})
		o.alerter.Alert(ctx, fmt.Sprintf("%s position unprotected: %v", inst.TradeSymbol, err))
		o.notifier.Notify(ctx, fmt.Sprintf("%s %s position unprotected", side, inst.TradeSymbol),
			fmt.Sprintf("%s %s filled at %s but the stop-loss/take-profit orders failed\nSL: %s | TP: %s\nError: %v",
				side, inst.TradeSymbol, risk.FormatPrice(trade.EntryPrice),
				risk.FormatPrice(trade.StopLoss), risk.FormatPrice(trade.TakeProfit), err))
		return trade, err
	default:
		o.logger.Error(ctx, err, op+": failed", map[string]interface{}{"symbol": inst.TradeSymbol, "side": side})
		o.notifier.Notify(ctx, fmt.Sprintf("%s %s order failed", side, inst.TradeSymbol),
			fmt.Sprintf("Failed to execute %s order\nError: %v", side, err))
		return nil, err
	}
}

func (o *OrderManager) openPosition(ctx context.Context, inst domain.Instrument, side domain.OrderSide) (*domain.ActiveTrade, error) {
	op := "OrderManager.OpenPosition"
	price, err := o.Price(ctx, inst.TradeSymbol)
	if err != nil {
		return nil, err
	}
	rule, err := o.lotRule(ctx, inst.TradeSymbol)
	if err != nil {
		return nil, err
	}
	qty, err := o.risk.Size(o.risk.Notional(), price, rule)
	if err != nil {
		return nil, err
	}
	sl, tp := o.risk.StopLevels(side, price)

	req := ports.MarketOrderRequest{
		Symbol:        inst.TradeSymbol,
		Side:          side,
		Quantity:      risk.FormatQuantity(qty, rule.QtyStep),
		StopLoss:      risk.FormatPrice(sl),
		TakeProfit:    risk.FormatPrice(tp),
		ClientOrderID: o.newID(),
	}
	o.logger.Info(ctx, op+": placing market order", map[string]interface{}{
		"symbol":     req.Symbol,
		"side":       side,
		"price":      price,
		"quantity":   req.Quantity,
		"stopLoss":   req.StopLoss,
		"takeProfit": req.TakeProfit,
	})

	resp, err := o.trading.OpenPosition(ctx, req)
	if err != nil && resp == nil {
		return nil, err
	}

	entry := price
	if resp != nil && resp.AvgPrice > 0 {
		entry = resp.AvgPrice
	}
	trade := &domain.ActiveTrade{
		Symbol:      inst.Symbol,
		TradeSymbol: inst.TradeSymbol,
		Side:        side,
		EntryPrice:  entry,
		StopLoss:    sl,
		TakeProfit:  tp,
		Quantity:    qty,
		Notional:    o.risk.Notional(),
		OpenedAt:    o.now().UTC(),
	}
	if err != nil {
		if !errors.Is(err, ports.ErrPositionUnprotected) {
			err = fmt.Errorf("%w: %w", ports.ErrPositionUnprotected, err)
		}
		return trade, err
	}

	o.logger.Info(ctx, op+": order executed", map[string]interface{}{"symbol": req.Symbol, "orderID": orderID(resp), "entryPrice": entry})
	o.notifier.Notify(ctx, fmt.Sprintf("%s %s executed", side, inst.TradeSymbol),
		fmt.Sprintf("%s %s at %s\nQuantity: %s\nSL: %s | TP: %s",
			side, inst.TradeSymbol, risk.FormatPrice(entry), req.Quantity, req.StopLoss, req.TakeProfit))
	return trade, nil
}

// CloseAndReenter closes size of trade at market and then places a GTC
// limit order on the same side two ATRs beyond the last closed bar. The
// returned Reentry is nil when the close succeeded but the limit order could
// not be placed; that failure never undoes the close.
func (o *OrderManager) CloseAndReenter(ctx context.Context, trade *domain.ActiveTrade, size float64) (*Reentry, error) {
	op := "OrderManager.CloseAndReenter"
	rule, err := o.lotRule(ctx, trade.TradeSymbol)
	if err != nil {
		return nil, err
	}

	qty := risk.FormatQuantity(size, rule.QtyStep)
	resp, err := o.trading.ClosePosition(ctx, trade.TradeSymbol, trade.Side.Opposite(), qty)
	if err != nil {
		o.logger.Error(ctx, err, op+": close order failed", map[string]interface{}{"symbol": trade.TradeSymbol, "quantity": qty})
		return nil, err
	}
	o.logger.Info(ctx, op+": position closed", map[string]interface{}{"symbol": trade.TradeSymbol, "orderID": orderID(resp), "quantity": qty})

	reentry, err := o.placeReentry(ctx, trade, rule)
	if err != nil {
		o.logger.Error(ctx, err, op+": re-entry order failed", map[string]interface{}{"symbol": trade.TradeSymbol})
		o.alerter.Alert(ctx, fmt.Sprintf("%s re-entry failed: %v", trade.TradeSymbol, err))
		o.notifier.Notify(ctx, fmt.Sprintf("%s re-entry failed", trade.TradeSymbol),
			fmt.Sprintf("Position closed but the re-entry limit order failed\nError: %v", err))
		return nil, nil
	}

	o.notifier.Notify(ctx, fmt.Sprintf("%s limit order placed", trade.TradeSymbol),
		fmt.Sprintf("Placed %s limit at %s\nATR: %.4f\nQty: %s",
			reentry.Side, risk.FormatPrice(reentry.Price), reentry.ATR, risk.FormatQuantity(reentry.Quantity, rule.QtyStep)))
	return reentry, nil
}

func (o *OrderManager) placeReentry(ctx context.Context, trade *domain.ActiveTrade, rule domain.LotSizeRule) (*Reentry, error) {
	op := "OrderManager.placeReentry"
	limit := o.cfg.ATRLength + 2
	klines, err := retry.Do(ctx, o.retrier, "GetKlines", func(ctx context.Context) ([]*domain.Kline, error) {
		return o.market.GetKlines(ctx, trade.Symbol, o.cfg.Interval, limit)
	})
	if err != nil {
		return nil, err
	}
	levels, err := indicators.ATRLevelsAt(klines, o.cfg.ATRLength)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ports.ErrDataUnavailable, err)
	}

	price, err := o.Price(ctx, trade.TradeSymbol)
	if err != nil {
		return nil, err
	}
	notional := trade.Notional
	if notional <= 0 {
		notional = o.risk.Notional()
	}
	qty, err := o.risk.Size(notional, price, rule)
	if err != nil {
		return nil, err
	}

	limitPrice := levels.Upper
	if trade.Side == domain.Sell {
		limitPrice = levels.Lower
	}
	if limitPrice <= 0 {
		return nil, fmt.Errorf("%s: %w: limit price %v", op, ports.ErrInvalidRequest, limitPrice)
	}

	resp, err := o.trading.PlaceLimitOrder(ctx, ports.LimitOrderRequest{
		Symbol:        trade.TradeSymbol,
		Side:          trade.Side,
		Quantity:      risk.FormatQuantity(qty, rule.QtyStep),
		Price:         risk.FormatPrice(limitPrice),
		ClientOrderID: o.newID(),
	})
	if err != nil {
		return nil, err
	}

	r := &Reentry{Side: trade.Side, Price: limitPrice, Quantity: qty, ATR: levels.ATR, OrderID: orderID(resp)}
	o.logger.Info(ctx, op+": limit order placed", map[string]interface{}{
		"symbol":  trade.TradeSymbol,
		"side":    r.Side,
		"price":   risk.FormatPrice(r.Price),
		"atr":     r.ATR,
		"orderID": r.OrderID,
	})
	return r, nil
}

func orderID(resp *ports.OrderResponse) string {
	if resp == nil {
		return ""
	}
	return resp.OrderID
}

// isRejection reports whether err is a business rejection by the exchange.
func isRejection(err error) bool {
	return errors.Is(err, ports.ErrOrderRejected) || errors.Is(err, ports.ErrInsufficientFunds)
}
