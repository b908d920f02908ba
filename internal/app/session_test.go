package app

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendEnvelopeBot/internal/domain"
	"trendEnvelopeBot/internal/ports"
)

func TestNewSession_RequiresDependencies(t *testing.T) {
	_, err := NewSession(nil, &memStore{}, &memStore{}, &mockNotifier{}, &mockLogger{})
	assert.Error(t, err)
}

func TestSession_Load(t *testing.T) {
	h := newHarness(t)
	h.store.trade = longTrade()
	h.store.mode = domain.ModeManage

	state, err := h.session.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.ModeManage, state.Mode)
	require.NotNil(t, state.ActiveTrade)
	assert.Equal(t, "BTCUSDT", state.ActiveTrade.TradeSymbol)
	assert.Equal(t, state.ActiveTrade, h.session.ActiveTrade())
}

func TestSession_LoadFailure(t *testing.T) {
	h := newHarness(t)
	h.store.loadErr = fmt.Errorf("%w: locked", ports.ErrPersistence)

	_, err := h.session.Load(context.Background())
	assert.ErrorIs(t, err, ports.ErrPersistence)
}

func TestSession_SetModeNotifiesOnChangeOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.session.SetMode(ctx, domain.ModeEntry))
	assert.Empty(t, h.notifier.sent)

	require.NoError(t, h.session.SetMode(ctx, domain.ModeManage))
	require.Len(t, h.notifier.sent, 1)
	assert.Equal(t, "Mode changed to MANAGE", h.notifier.sent[0].subject)
	assert.Equal(t, "Trading mode changed from ENTRY to MANAGE", h.notifier.sent[0].body)

	mode, err := h.session.Mode(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ModeManage, mode)
}

func TestSession_CloseTrade(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.session.OpenTrade(ctx, longTrade()))

	outcome := &domain.Trade{Symbol: "BTCUSDT", ExitReason: domain.ExitReasonTakeProfit}
	require.NoError(t, h.session.CloseTrade(ctx, outcome))

	assert.Nil(t, h.store.trade)
	assert.Nil(t, h.session.ActiveTrade())
	assert.Equal(t, domain.ModeManage, h.store.mode)
	assert.Equal(t, []*domain.Trade{outcome}, h.store.history)
}

func TestSession_DiscardTradeKeepsMode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.session.OpenTrade(ctx, longTrade()))

	require.NoError(t, h.session.DiscardTrade(ctx))

	assert.Nil(t, h.store.trade)
	assert.Equal(t, domain.ModeEntry, h.store.mode)
	assert.Empty(t, h.store.history)
	assert.Empty(t, h.notifier.sent)
}
