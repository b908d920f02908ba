package ports

import (
	"context"
	"time"

	"trendEnvelopeBot/internal/domain"
)

// OrderResponse represents the essential details returned after placing an order.
type OrderResponse struct {
	OrderID       string    // Exchange's order ID
	Symbol        string    // Symbol for the order
	ClientOrderID string    // User-defined order ID
	Price         float64   // Price of the order (0 for market orders)
	AvgPrice      float64   // Average filled price, 0 if the venue does not report it
	Quantity      float64   // Quantity requested
	Status        string    // Order status as reported by the venue
	Side          string    // Order side
	Timestamp     time.Time // Time the order response was generated
}

// PositionInfo is the exchange view of an open position.
type PositionInfo struct {
	Symbol     string
	Side       domain.OrderSide
	Size       float64 // Always positive; Side carries the direction
	EntryPrice float64
	MarkPrice  float64
	StopLoss   float64
	TakeProfit float64
}

// MarketOrderRequest opens a position at market with protective levels attached.
type MarketOrderRequest struct {
	Symbol        string
	Side          domain.OrderSide
	Quantity      string
	StopLoss      string
	TakeProfit    string
	ClientOrderID string
}

// LimitOrderRequest places a good-till-cancelled limit order.
type LimitOrderRequest struct {
	Symbol        string
	Side          domain.OrderSide
	Quantity      string
	Price         string
	ClientOrderID string
}

// MarketDataProvider serves historical candles.
type MarketDataProvider interface {
	// GetKlines returns up to limit klines ordered oldest to newest. The newest
	// kline may still be in progress.
	GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error)
}

// TradingAPI defines the order and position operations the bot needs from an exchange.
type TradingAPI interface {
	// Ping checks the connectivity to the exchange API.
	Ping(ctx context.Context) error

	// GetTickerPrice retrieves the last traded price for a symbol.
	// Fails with ErrPriceUnavailable when the venue returns no data.
	GetTickerPrice(ctx context.Context, symbol string) (float64, error)

	// GetLotSizeRule retrieves the quantity constraints of a symbol.
	GetLotSizeRule(ctx context.Context, symbol string) (*domain.LotSizeRule, error)

	// OpenPosition submits a market order with attached stop-loss and take-profit.
	// Venue level rejections are reported as ErrOrderRejected. A non-nil
	// response together with an error means the entry filled and the position
	// exists without its protective orders.
	OpenPosition(ctx context.Context, req MarketOrderRequest) (*OrderResponse, error)

	// ClosePosition submits a reduce-only market order on the given closing side.
	ClosePosition(ctx context.Context, symbol string, side domain.OrderSide, quantity string) (*OrderResponse, error)

	// PlaceLimitOrder places a GTC limit order.
	PlaceLimitOrder(ctx context.Context, req LimitOrderRequest) (*OrderResponse, error)

	// UpdateStopLoss moves the stop-loss of the open position on symbol.
	UpdateStopLoss(ctx context.Context, symbol string, stopPrice string) error

	// GetOpenPosition returns the open position for symbol, or nil if there is none.
	GetOpenPosition(ctx context.Context, symbol string) (*PositionInfo, error)
}
