package ports

import (
	"context"

	"trendEnvelopeBot/internal/domain"
)

// TradeStore keeps the single active trade record. Implementations must be
// crash-consistent: a torn write must never load back as a valid trade.
type TradeStore interface {
	// SaveActiveTrade replaces the stored active trade.
	SaveActiveTrade(ctx context.Context, trade *domain.ActiveTrade) error
	// LoadActiveTrade returns nil, nil when no trade is stored.
	LoadActiveTrade(ctx context.Context) (*domain.ActiveTrade, error)
	// ClearActiveTrade removes the stored trade. Clearing an empty store is not an error.
	ClearActiveTrade(ctx context.Context) error
}

// ModeStore persists the process-wide trading mode.
type ModeStore interface {
	// GetMode returns the stored mode, initializing it to ENTRY if absent.
	GetMode(ctx context.Context) (domain.Mode, error)
	// SetMode stores mode.
	SetMode(ctx context.Context, mode domain.Mode) error
}

// TradeHistoryRepository defines the interface for storing and retrieving completed trades.
type TradeHistoryRepository interface {
	// CreateTrade saves a new trade record and returns its assigned ID.
	CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error)
	// FindBySymbol retrieves the most recent trades for a given symbol, up to a limit.
	FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error)
	// FindRecent retrieves the most recent trades across all symbols, up to a limit.
	FindRecent(ctx context.Context, limit int) ([]*domain.Trade, error)
}
