package strategy

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendEnvelopeBot/internal/domain"
	"trendEnvelopeBot/internal/ports"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct {
	debugMsgs []string
	infoMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.debugMsgs = append(m.debugMsgs, msg)
}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.errorMsgs = append(m.errorMsgs, msg)
}

func (m *mockLogger) Fatal(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

var baseTime = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func klinesFromCloses(closes []float64, step time.Duration) []*domain.Kline {
	out := make([]*domain.Kline, len(closes))
	for i, c := range closes {
		out[i] = &domain.Kline{
			OpenTime: baseTime.Add(time.Duration(i) * step),
			Symbol:   "BTCUSDT",
			Open:     c,
			High:     c,
			Low:      c,
			Close:    c,
		}
	}
	return out
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		logger  ports.Logger
		wantErr bool
	}{
		{name: "valid config", cfg: DefaultConfig(), logger: &mockLogger{}},
		{name: "nil logger", cfg: DefaultConfig(), logger: nil, wantErr: true},
		{
			name:    "invalid periods",
			cfg:     Config{FastEMAPeriod: 0, SlowEMAPeriod: 62, TrendEMAPeriod: 200, MinBars: 500},
			logger:  &mockLogger{},
			wantErr: true,
		},
		{
			name:    "fast not below slow",
			cfg:     Config{FastEMAPeriod: 62, SlowEMAPeriod: 38, TrendEMAPeriod: 200, MinBars: 500},
			logger:  &mockLogger{},
			wantErr: true,
		},
		{
			name:    "too few bars",
			cfg:     Config{FastEMAPeriod: 38, SlowEMAPeriod: 62, TrendEMAPeriod: 200, MinBars: 2},
			logger:  &mockLogger{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New(tt.cfg, tt.logger)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, d)
				return
			}
			assert.NoError(t, err)
			assert.NotNil(t, d)
		})
	}
}

func TestEvaluate_InsufficientData(t *testing.T) {
	d, err := New(DefaultConfig(), &mockLogger{})
	require.NoError(t, err)

	fast := klinesFromCloses(make([]float64, 499), 15*time.Minute)
	slow := klinesFromCloses(make([]float64, 500), time.Hour)

	_, err = d.Evaluate(context.Background(), fast, slow)
	assert.ErrorIs(t, err, ports.ErrDataUnavailable)
}

func TestEvaluate_FlatMarketHasNoSignal(t *testing.T) {
	logger := &mockLogger{}
	d, err := New(DefaultConfig(), logger)
	require.NoError(t, err)

	closes := make([]float64, 500)
	for i := range closes {
		closes[i] = 100
	}
	fast := klinesFromCloses(closes, 15*time.Minute)
	slow := klinesFromCloses(closes, time.Hour)

	eval, err := d.Evaluate(context.Background(), fast, slow)
	require.NoError(t, err)

	assert.Equal(t, domain.SignalNone, eval.Signal)
	assert.Same(t, fast[498], eval.Bar)
	assert.InDelta(t, 100, eval.FastEMA, 1e-9)
	assert.Len(t, logger.debugMsgs, 1)
}

func TestAlignAsOf(t *testing.T) {
	slow := []*domain.Kline{
		{OpenTime: baseTime},
		{OpenTime: baseTime.Add(time.Hour)},
	}
	fast := []*domain.Kline{
		{OpenTime: baseTime.Add(-15 * time.Minute)},
		{OpenTime: baseTime},
		{OpenTime: baseTime.Add(15 * time.Minute)},
		{OpenTime: baseTime.Add(45 * time.Minute)},
		{OpenTime: baseTime.Add(time.Hour)},
		{OpenTime: baseTime.Add(75 * time.Minute)},
	}

	got := AlignAsOf(fast, slow, []float64{1, 2})

	assert.True(t, math.IsNaN(got[0]))
	assert.Equal(t, []float64{1, 1, 1, 2, 2}, got[1:])
}

func TestMacroSignals(t *testing.T) {
	klines := klinesFromCloses([]float64{10, 12}, 15*time.Minute)

	tests := []struct {
		name     string
		series   Series
		expected domain.Signal
	}{
		{
			name: "bullish cross above both trends",
			series: Series{
				FastEMA: []float64{1, 3}, SlowEMA: []float64{2, 2},
				TrendEMA: []float64{5, 5}, TrendEMASlowTF: []float64{5, 5},
			},
			expected: domain.SignalBuy,
		},
		{
			name: "bearish cross below both trends",
			series: Series{
				FastEMA: []float64{3, 1}, SlowEMA: []float64{2, 2},
				TrendEMA: []float64{20, 20}, TrendEMASlowTF: []float64{20, 20},
			},
			expected: domain.SignalSell,
		},
		{
			name: "bullish cross under higher timeframe trend",
			series: Series{
				FastEMA: []float64{1, 3}, SlowEMA: []float64{2, 2},
				TrendEMA: []float64{5, 5}, TrendEMASlowTF: []float64{15, 15},
			},
			expected: domain.SignalNone,
		},
		{
			name: "undefined higher timeframe trend",
			series: Series{
				FastEMA: []float64{1, 3}, SlowEMA: []float64{2, 2},
				TrendEMA: []float64{5, 5}, TrendEMASlowTF: []float64{math.NaN(), math.NaN()},
			},
			expected: domain.SignalNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MacroSignals(klines, tt.series)
			assert.Equal(t, domain.SignalNone, got[0])
			assert.Equal(t, tt.expected, got[1])
		})
	}
}

func TestCandidateEntries(t *testing.T) {
	t.Run("close crosses up through fast EMA", func(t *testing.T) {
		klines := klinesFromCloses([]float64{9, 11}, 15*time.Minute)
		s := Series{
			FastEMA: []float64{10, 10.5}, SlowEMA: []float64{9, 9},
			TrendEMA: []float64{5, 5}, TrendEMASlowTF: []float64{5, 5},
		}
		up, down := CandidateEntries(klines, s)
		assert.Equal(t, []bool{false, true}, up)
		assert.Equal(t, []bool{false, false}, down)
	})

	t.Run("close crosses down through fast EMA", func(t *testing.T) {
		klines := klinesFromCloses([]float64{11, 9}, 15*time.Minute)
		s := Series{
			FastEMA: []float64{10, 9.5}, SlowEMA: []float64{12, 12},
			TrendEMA: []float64{20, 20}, TrendEMASlowTF: []float64{20, 20},
		}
		up, down := CandidateEntries(klines, s)
		assert.Equal(t, []bool{false, false}, up)
		assert.Equal(t, []bool{false, true}, down)
	})

	t.Run("filtered by trend", func(t *testing.T) {
		klines := klinesFromCloses([]float64{9, 11}, 15*time.Minute)
		s := Series{
			FastEMA: []float64{10, 10.5}, SlowEMA: []float64{9, 9},
			TrendEMA: []float64{12, 12}, TrendEMASlowTF: []float64{5, 5},
		}
		up, _ := CandidateEntries(klines, s)
		assert.False(t, up[1])
	})
}

// pullbackCloses is flat at 100, rallies so the fast EMA crosses above the
// slow one (bar 40), pulls back below the fast EMA (bar 46) and closes back
// above it (bar 47). The final bar is still forming.
func pullbackCloses() []float64 {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100
	}
	return append(closes, 101, 102, 103, 104, 105, 103, 101.5, 104, 104.5)
}

func mirrored(closes []float64) []float64 {
	out := make([]float64, len(closes))
	for i, c := range closes {
		out[i] = 200 - c
	}
	return out
}

// hourlyFrom builds the higher timeframe: one bar per four fast bars, closing
// at the close of the fourth.
func hourlyFrom(closes []float64) []*domain.Kline {
	var hourly []float64
	for j := 0; 4*j < len(closes); j++ {
		hourly = append(hourly, closes[min(4*j+3, len(closes)-1)])
	}
	return klinesFromCloses(hourly, time.Hour)
}

func shortDetector(t *testing.T) *Detector {
	t.Helper()
	d, err := New(Config{FastEMAPeriod: 3, SlowEMAPeriod: 8, TrendEMAPeriod: 20, MinBars: 3}, &mockLogger{})
	require.NoError(t, err)
	return d
}

func TestEvaluate_TriggerOnLastClosedBar(t *testing.T) {
	tests := []struct {
		name   string
		closes []float64
		macro  domain.Signal
		want   domain.Signal
	}{
		{"long pullback entry", pullbackCloses(), domain.SignalBuy, domain.SignalBuy},
		{"short pullback entry", mirrored(pullbackCloses()), domain.SignalSell, domain.SignalSell},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := shortDetector(t)
			fast := klinesFromCloses(tt.closes, 15*time.Minute)
			slow := hourlyFrom(tt.closes)

			eval, err := d.Evaluate(context.Background(), fast, slow)
			require.NoError(t, err)
			assert.Equal(t, tt.want, eval.Signal)
			assert.Same(t, fast[47], eval.Bar)

			s := d.ComputeSeries(fast, slow)
			macro := MacroSignals(fast, s)
			assert.Equal(t, tt.macro, macro[40], "crossover arms the latch")
			for i, m := range macro {
				if i != 40 {
					assert.Equal(t, domain.SignalNone, m, "bar %d", i)
				}
			}

			up, down := CandidateEntries(fast, s)
			triggers := LatchTriggers(macro, up, down)
			for i, sig := range triggers {
				if i == 47 {
					continue
				}
				assert.Equal(t, domain.SignalNone, sig, "bar %d", i)
			}
		})
	}
}

func TestEvaluate_IgnoresTriggerOnFormingBar(t *testing.T) {
	tests := []struct {
		name   string
		closes []float64
		want   domain.Signal
	}{
		{"long", pullbackCloses()[:48], domain.SignalBuy},
		{"short", mirrored(pullbackCloses())[:48], domain.SignalSell},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := shortDetector(t)
			fast := klinesFromCloses(tt.closes, 15*time.Minute)
			slow := hourlyFrom(tt.closes)

			s := d.ComputeSeries(fast, slow)
			up, down := CandidateEntries(fast, s)
			triggers := LatchTriggers(MacroSignals(fast, s), up, down)
			require.Equal(t, tt.want, triggers[len(fast)-1], "the forming bar carries the trigger")

			eval, err := d.Evaluate(context.Background(), fast, slow)
			require.NoError(t, err)
			assert.Equal(t, domain.SignalNone, eval.Signal)
			assert.Same(t, fast[len(fast)-2], eval.Bar)
		})
	}
}
