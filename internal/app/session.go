package app

import (
	"context"
	"fmt"

	"trendEnvelopeBot/internal/domain"
	"trendEnvelopeBot/internal/ports"
)

// Session owns the process-wide trading mode and the supervised trade. Every
// mutation is written through to the stores before the in-memory copy changes.
type Session struct {
	trades   ports.TradeStore
	modes    ports.ModeStore
	history  ports.TradeHistoryRepository
	notifier ports.Notifier
	logger   ports.Logger

	state domain.SessionState
}

// NewSession creates a Session over the given stores.
func NewSession(trades ports.TradeStore, modes ports.ModeStore, history ports.TradeHistoryRepository, notifier ports.Notifier, logger ports.Logger) (*Session, error) {
	if trades == nil || modes == nil || history == nil || notifier == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Session")
	}
	return &Session{trades: trades, modes: modes, history: history, notifier: notifier, logger: logger}, nil
}

// Load reads the persisted mode and active trade.
func (s *Session) Load(ctx context.Context) (domain.SessionState, error) {
	mode, err := s.modes.GetMode(ctx)
	if err != nil {
		return domain.SessionState{}, err
	}
	trade, err := s.trades.LoadActiveTrade(ctx)
	if err != nil {
		return domain.SessionState{}, err
	}
	s.state = domain.SessionState{Mode: mode, ActiveTrade: trade}
	return s.state, nil
}

// Mode re-reads the mode from its store so operator changes made while the
// bot runs are honored.
func (s *Session) Mode(ctx context.Context) (domain.Mode, error) {
	mode, err := s.modes.GetMode(ctx)
	if err != nil {
		return "", err
	}
	s.state.Mode = mode
	return mode, nil
}

// SetMode stores mode and notifies when it differs from the current one.
func (s *Session) SetMode(ctx context.Context, mode domain.Mode) error {
	previous, err := s.modes.GetMode(ctx)
	if err != nil {
		return err
	}
	if err := s.modes.SetMode(ctx, mode); err != nil {
		return err
	}
	s.state.Mode = mode
	if previous != mode {
		s.logger.Info(ctx, "Session.SetMode: mode changed", map[string]interface{}{"from": previous, "to": mode})
		s.notifier.Notify(ctx, fmt.Sprintf("Mode changed to %s", mode),
			fmt.Sprintf("Trading mode changed from %s to %s", previous, mode))
	}
	return nil
}

// ActiveTrade returns the supervised trade, or nil.
func (s *Session) ActiveTrade() *domain.ActiveTrade {
	return s.state.ActiveTrade
}

// OpenTrade persists a freshly opened trade.
func (s *Session) OpenTrade(ctx context.Context, trade *domain.ActiveTrade) error {
	if err := s.trades.SaveActiveTrade(ctx, trade); err != nil {
		return err
	}
	s.state.ActiveTrade = trade
	return nil
}

// UpdateTrade persists a change to the supervised trade, e.g. a moved stop-loss.
func (s *Session) UpdateTrade(ctx context.Context, trade *domain.ActiveTrade) error {
	return s.OpenTrade(ctx, trade)
}

// CloseTrade finishes the supervised trade: the record is cleared, the mode
// switches to MANAGE and the outcome is appended to the trade history.
// A history write failure is logged only.
func (s *Session) CloseTrade(ctx context.Context, outcome *domain.Trade) error {
	if err := s.trades.ClearActiveTrade(ctx); err != nil {
		return err
	}
	s.state.ActiveTrade = nil
	if err := s.SetMode(ctx, domain.ModeManage); err != nil {
		return err
	}
	if outcome == nil {
		return nil
	}
	if _, err := s.history.CreateTrade(ctx, outcome); err != nil {
		s.logger.Error(ctx, err, "Session.CloseTrade: failed to record trade history", map[string]interface{}{
			"symbol": outcome.Symbol,
			"reason": outcome.ExitReason,
		})
	}
	return nil
}

// DiscardTrade clears a stale record without touching the mode.
func (s *Session) DiscardTrade(ctx context.Context) error {
	if err := s.trades.ClearActiveTrade(ctx); err != nil {
		return err
	}
	s.state.ActiveTrade = nil
	return nil
}
