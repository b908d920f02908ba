package domain

import "time"

// Trade represents a completed, supervised position.
type Trade struct {
	ID           int64      // Unique identifier for the trade (usually from DB)
	Symbol       string     // Market data symbol
	TradeSymbol  string     // Exchange symbol
	Side         OrderSide  // Side of the original entry
	EntryPrice   float64    // Price at which the position was entered
	ExitPrice    float64    // Price observed when the exit was decided
	Quantity     float64    // Size of the position traded
	PnLPercent   float64    // Unrealized PnL in percent at the exit decision
	EntryTime    time.Time  // Timestamp when the position was entered
	ExitTime     time.Time  // Timestamp when the position was exited
	ExitReason   ExitReason // Reason why the position was closed
	ReentryPrice float64    // Limit price of the re-entry order, 0 if none was placed
}
