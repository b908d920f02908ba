package domain

import "time"

// ActiveTrade is the durable record of the single position the bot supervises.
// It exists from the moment the entry order is accepted until the position is
// confirmed closed.
type ActiveTrade struct {
	Symbol      string    `json:"symbol"`       // Market data symbol the signal was detected on
	TradeSymbol string    `json:"trade_symbol"` // Exchange symbol the order was placed on
	Side        OrderSide `json:"side"`
	EntryPrice  float64   `json:"entry_price"`
	StopLoss    float64   `json:"sl_price"`
	TakeProfit  float64   `json:"tp_price"`
	Quantity    float64   `json:"quantity"`
	Notional    float64   `json:"notional"` // Quote currency amount the position was sized from
	OpenedAt    time.Time `json:"opened_at"`
}

// PnLPercent returns the unrealized profit in percent of the entry price,
// sign-adjusted by side.
func (t *ActiveTrade) PnLPercent(price float64) float64 {
	if t.EntryPrice == 0 {
		return 0
	}
	if t.Side == Sell {
		return (t.EntryPrice - price) / t.EntryPrice * 100
	}
	return (price - t.EntryPrice) / t.EntryPrice * 100
}

// Instrument pairs the symbol used for market data with the symbol traded on the exchange.
type Instrument struct {
	Symbol      string
	TradeSymbol string
}

// LotSizeRule holds the exchange quantity constraints of an instrument.
type LotSizeRule struct {
	MinQty  float64
	MaxQty  float64
	QtyStep float64
}

// ATRLevels are the volatility band levels around the last closed bar.
type ATRLevels struct {
	Close float64
	ATR   float64
	Upper float64
	Lower float64
}

// SessionState is the process-wide mutable state: the trading mode and the
// trade being supervised, if any.
type SessionState struct {
	Mode        Mode
	ActiveTrade *ActiveTrade
}
