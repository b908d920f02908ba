package app

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trendEnvelopeBot/config"
	"trendEnvelopeBot/internal/domain"
	"trendEnvelopeBot/internal/ports"
	"trendEnvelopeBot/internal/retry"
	"trendEnvelopeBot/internal/risk"
	"trendEnvelopeBot/internal/strategy"
	"trendEnvelopeBot/internal/strategy/indicators"
)

// Mock implementations
type mockLogger struct {
	debugMsgs []string
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.debugMsgs = append(m.debugMsgs, msg)
}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.errorMsgs = append(m.errorMsgs, msg)
}

type notification struct {
	subject string
	body    string
}

type mockNotifier struct {
	sent []notification
}

func (m *mockNotifier) Notify(ctx context.Context, subject, body string) {
	m.sent = append(m.sent, notification{subject: subject, body: body})
}

func (m *mockNotifier) subjects() []string {
	out := make([]string, len(m.sent))
	for i, n := range m.sent {
		out[i] = n.subject
	}
	return out
}

type mockAlerter struct {
	alerts []string
}

func (m *mockAlerter) Alert(ctx context.Context, reason string) {
	m.alerts = append(m.alerts, reason)
}

type closeCall struct {
	symbol   string
	side     domain.OrderSide
	quantity string
}

type mockTrading struct {
	pingErr     error
	price       float64
	priceErr    error
	rule        *domain.LotSizeRule
	ruleErr     error
	openResp    *ports.OrderResponse
	openErr     error
	closeErr    error
	limitErr    error
	updateErr   error
	positions   []*ports.PositionInfo // returned in order, the last one repeats
	positionErr error
	onClose     func() // runs after a successful close order

	opened        []ports.MarketOrderRequest
	closed        []closeCall
	limits        []ports.LimitOrderRequest
	stopUpdates   []string
	priceCalls    int
	positionCalls int
}

func (m *mockTrading) Ping(ctx context.Context) error {
	return m.pingErr
}

func (m *mockTrading) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	m.priceCalls++
	return m.price, m.priceErr
}

func (m *mockTrading) GetLotSizeRule(ctx context.Context, symbol string) (*domain.LotSizeRule, error) {
	return m.rule, m.ruleErr
}

func (m *mockTrading) OpenPosition(ctx context.Context, req ports.MarketOrderRequest) (*ports.OrderResponse, error) {
	m.opened = append(m.opened, req)
	// a response with an error models a fill whose protective orders failed
	return m.openResp, m.openErr
}

func (m *mockTrading) ClosePosition(ctx context.Context, symbol string, side domain.OrderSide, quantity string) (*ports.OrderResponse, error) {
	m.closed = append(m.closed, closeCall{symbol: symbol, side: side, quantity: quantity})
	if m.closeErr != nil {
		return nil, m.closeErr
	}
	if m.onClose != nil {
		m.onClose()
	}
	return &ports.OrderResponse{OrderID: "close-1", Symbol: symbol}, nil
}

func (m *mockTrading) PlaceLimitOrder(ctx context.Context, req ports.LimitOrderRequest) (*ports.OrderResponse, error) {
	m.limits = append(m.limits, req)
	if m.limitErr != nil {
		return nil, m.limitErr
	}
	return &ports.OrderResponse{OrderID: "limit-1", Symbol: req.Symbol}, nil
}

func (m *mockTrading) UpdateStopLoss(ctx context.Context, symbol string, stopPrice string) error {
	m.stopUpdates = append(m.stopUpdates, stopPrice)
	return m.updateErr
}

func (m *mockTrading) GetOpenPosition(ctx context.Context, symbol string) (*ports.PositionInfo, error) {
	m.positionCalls++
	if m.positionErr != nil {
		return nil, m.positionErr
	}
	if len(m.positions) == 0 {
		return nil, nil
	}
	i := m.positionCalls - 1
	if i >= len(m.positions) {
		i = len(m.positions) - 1
	}
	return m.positions[i], nil
}

// mockMarket serves the newest limit klines of a fixed series per interval.
type mockMarket struct {
	series map[string][]*domain.Kline
	err    error
	calls  []string
}

func (m *mockMarket) GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error) {
	m.calls = append(m.calls, interval)
	if m.err != nil {
		return nil, m.err
	}
	all := m.series[interval]
	if limit < len(all) {
		return all[len(all)-limit:], nil
	}
	return all, nil
}

// memStore is an in-memory TradeStore, ModeStore and TradeHistoryRepository.
// Writes fail on a canceled context, as the SQLite transactions do.
type memStore struct {
	trade   *domain.ActiveTrade
	mode    domain.Mode
	history []*domain.Trade
	saveErr error
	loadErr error
}

func (m *memStore) SaveActiveTrade(ctx context.Context, trade *domain.ActiveTrade) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	cp := *trade
	m.trade = &cp
	return nil
}

func (m *memStore) LoadActiveTrade(ctx context.Context) (*domain.ActiveTrade, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.trade == nil {
		return nil, nil
	}
	cp := *m.trade
	return &cp, nil
}

func (m *memStore) ClearActiveTrade(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.trade = nil
	return nil
}

func (m *memStore) GetMode(ctx context.Context) (domain.Mode, error) {
	if m.loadErr != nil {
		return "", m.loadErr
	}
	if m.mode == "" {
		m.mode = domain.ModeEntry
	}
	return m.mode, nil
}

func (m *memStore) SetMode(ctx context.Context, mode domain.Mode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mode = mode
	return nil
}

func (m *memStore) CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.history = append(m.history, trade)
	return int64(len(m.history)), nil
}

func (m *memStore) FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error) {
	return m.history, nil
}

func (m *memStore) FindRecent(ctx context.Context, limit int) ([]*domain.Trade, error) {
	return m.history, nil
}

var baseTime = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// flatKlines returns n bars closing at 99.9 and 100.1 in turn with a one
// point range. The envelope is about 100 ± 0.3, so every bar's high and low
// reach the bands, and the ATR is exactly 1.
func flatKlines(n int) []*domain.Kline {
	out := make([]*domain.Kline, n)
	for i := range out {
		open := baseTime.Add(time.Duration(i) * 15 * time.Minute)
		c := 99.9
		if i%2 == 1 {
			c = 100.1
		}
		out[i] = &domain.Kline{
			OpenTime:  open,
			CloseTime: open.Add(15*time.Minute - time.Millisecond),
			Symbol:    "BTCUSDT",
			Interval:  "15m",
			Open:      99.8,
			High:      100.5,
			Low:       99.5,
			Close:     c,
			IsFinal:   i < n-1,
		}
	}
	return out
}

// choppyKlines alternates closes between 98 and 102, giving a wide envelope
// that no bar touches.
func choppyKlines(n int) []*domain.Kline {
	out := flatKlines(n)
	for i, k := range out {
		c := 98.0
		if i%2 == 1 {
			c = 102
		}
		k.Open, k.Close, k.High, k.Low = c, c, c+0.5, c-0.5
	}
	return out
}

// reversalKlines drops the last two bars to 50, crossing below the lower band.
func reversalKlines(n int) []*domain.Kline {
	out := flatKlines(n)
	for _, k := range out[n-2:] {
		k.Open, k.Close, k.High, k.Low = 55, 50, 56, 49
	}
	return out
}

type harness struct {
	trading  *mockTrading
	market   *mockMarket
	store    *memStore
	notifier *mockNotifier
	alerter  *mockAlerter
	logger   *mockLogger
	session  *Session
	orders   *OrderManager
	cfg      *config.Config
}

func noSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		trading: &mockTrading{
			price: 100,
			rule:  &domain.LotSizeRule{MinQty: 0.01, MaxQty: 1000, QtyStep: 0.01},
		},
		market:   &mockMarket{series: map[string][]*domain.Kline{"15m": flatKlines(60), "1h": flatKlines(60)}},
		store:    &memStore{mode: domain.ModeEntry},
		notifier: &mockNotifier{},
		alerter:  &mockAlerter{},
		logger:   &mockLogger{},
	}

	var err error
	h.session, err = NewSession(h.store, h.store, h.store, h.notifier, h.logger)
	require.NoError(t, err)

	riskManager, err := risk.NewRiskManager(risk.DefaultRiskConfig())
	require.NoError(t, err)

	retrier := retry.New(retry.Policy{MaxAttempts: 3, Delay: time.Second}, h.logger,
		retry.WithSleeper(func(ctx context.Context, d time.Duration) error { return nil }),
		retry.WithAlerter(h.alerter))

	h.orders, err = NewOrderManager(OrderManagerConfig{Interval: "15m", ATRLength: 14},
		h.trading, h.market, riskManager, retrier, h.notifier, h.alerter, h.logger)
	require.NoError(t, err)
	h.orders.now = func() time.Time { return baseTime }
	ids := 0
	h.orders.newID = func() string {
		ids++
		return "client-" + strconv.Itoa(ids)
	}

	h.cfg = &config.Config{
		Instruments:   []domain.Instrument{{Symbol: "BTCUSDT", TradeSymbol: "BTCUSDT"}},
		FastTimeframe: "15m",
		SlowTimeframe: "1h",
		BarLimit:      60,
		ScanInterval:  10 * time.Minute,
	}
	return h
}

func (h *harness) monitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval:    "15m",
		BarLimit:    50,
		NWE:         indicators.DefaultNWEConfig(),
		Policy:      strategy.DefaultExitPolicy(),
		MinInterval: time.Second,
	}
}

func (h *harness) monitor(t *testing.T, trade *domain.ActiveTrade) *Monitor {
	t.Helper()
	m, err := NewMonitor(h.monitorConfig(), trade, h.session, h.orders, h.logger)
	require.NoError(t, err)
	m.now = func() time.Time { return baseTime }
	m.sleep = noSleep
	return m
}

func (h *harness) service(t *testing.T, minBars int) *TradingService {
	t.Helper()
	cfg := strategy.DefaultConfig()
	cfg.MinBars = minBars
	detector, err := strategy.New(cfg, h.logger)
	require.NoError(t, err)
	s, err := NewTradingService(h.cfg, h.logger, h.session, h.orders, detector, h.monitorConfig())
	require.NoError(t, err)
	s.now = func() time.Time { return baseTime }
	s.sleep = noSleep
	return s
}

func longTrade() *domain.ActiveTrade {
	return &domain.ActiveTrade{
		Symbol:      "BTCUSDT",
		TradeSymbol: "BTCUSDT",
		Side:        domain.Buy,
		EntryPrice:  100,
		StopLoss:    98,
		TakeProfit:  120,
		Quantity:    0.5,
		Notional:    50,
		OpenedAt:    baseTime,
	}
}

func openPosition(size float64) *ports.PositionInfo {
	return &ports.PositionInfo{Symbol: "BTCUSDT", Side: domain.Buy, Size: size, EntryPrice: 100}
}
