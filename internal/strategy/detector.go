// Package strategy turns indicator output into trading decisions: entry
// triggers from the dual-timeframe EMA crossover latch and exit decisions
// from the kernel envelope.
package strategy

import (
	"context"
	"fmt"

	"trendEnvelopeBot/internal/domain"
	"trendEnvelopeBot/internal/ports"
	"trendEnvelopeBot/internal/strategy/indicators"
)

// Config holds parameters for the entry detector.
type Config struct {
	FastEMAPeriod  int // e.g., 38
	SlowEMAPeriod  int // e.g., 62
	TrendEMAPeriod int // e.g., 200, applied on both timeframes
	MinBars        int // minimum bars per timeframe, e.g., 500
}

// DefaultConfig returns the periods the bot trades with.
func DefaultConfig() Config {
	return Config{FastEMAPeriod: 38, SlowEMAPeriod: 62, TrendEMAPeriod: 200, MinBars: 500}
}

// Series is the indicator set of one evaluation. Every slice is aligned with
// the fast timeframe klines.
type Series struct {
	FastEMA        []float64
	SlowEMA        []float64
	TrendEMA       []float64
	TrendEMASlowTF []float64
}

// Evaluation is the outcome of one detector run for one instrument.
type Evaluation struct {
	Signal         domain.Signal
	Bar            *domain.Kline // last closed fast bar
	FastEMA        float64
	SlowEMA        float64
	TrendEMA       float64
	TrendEMASlowTF float64
}

// Detector emits at most one entry trigger per scan.
type Detector struct {
	cfg    Config
	logger ports.Logger

	fastEMA, slowEMA, trendEMA *indicators.MovingAverage
}

// New creates a new Detector instance.
func New(cfg Config, logger ports.Logger) (*Detector, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for detector")
	}
	d := &Detector{cfg: cfg, logger: logger}
	for _, ma := range []struct {
		dst    **indicators.MovingAverage
		period int
	}{
		{&d.fastEMA, cfg.FastEMAPeriod},
		{&d.slowEMA, cfg.SlowEMAPeriod},
		{&d.trendEMA, cfg.TrendEMAPeriod},
	} {
		m, err := indicators.NewMovingAverage(indicators.MovingAverageConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: ma.period},
			Type:            indicators.ExponentialMovingAverage,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ports.ErrConfigurationError, err)
		}
		*ma.dst = m
	}
	if cfg.FastEMAPeriod >= cfg.SlowEMAPeriod {
		return nil, fmt.Errorf("%w: fast EMA period must be less than slow EMA period", ports.ErrConfigurationError)
	}
	if cfg.MinBars < 3 {
		return nil, fmt.Errorf("%w: minimum bar count must be at least 3", ports.ErrConfigurationError)
	}
	return d, nil
}

// RequiredBars returns the bar count to fetch per timeframe.
func (d *Detector) RequiredBars() int {
	return d.cfg.MinBars
}

// ComputeSeries calculates the EMA set over fast and aligns the slow
// timeframe trend EMA onto it.
func (d *Detector) ComputeSeries(fast, slow []*domain.Kline) Series {
	closes := domain.Closes(fast)
	slowTrend := d.trendEMA.Series(domain.Closes(slow))
	return Series{
		FastEMA:        d.fastEMA.Series(closes),
		SlowEMA:        d.slowEMA.Series(closes),
		TrendEMA:       d.trendEMA.Series(closes),
		TrendEMASlowTF: AlignAsOf(fast, slow, slowTrend),
	}
}

// Evaluate runs the detector over the two windows and reports the trigger on
// the last closed fast bar.
func (d *Detector) Evaluate(ctx context.Context, fast, slow []*domain.Kline) (*Evaluation, error) {
	const op = "Detector.Evaluate"
	if len(fast) < d.cfg.MinBars || len(slow) < d.cfg.MinBars {
		return nil, fmt.Errorf("%s: %w: need %d bars per timeframe, got %d/%d",
			op, ports.ErrDataUnavailable, d.cfg.MinBars, len(fast), len(slow))
	}

	s := d.ComputeSeries(fast, slow)
	macro := MacroSignals(fast, s)
	up, down := CandidateEntries(fast, s)
	triggers := LatchTriggers(macro, up, down)

	idx := domain.LastClosedIndex(fast)
	eval := &Evaluation{
		Signal:         triggers[idx],
		Bar:            fast[idx],
		FastEMA:        s.FastEMA[idx],
		SlowEMA:        s.SlowEMA[idx],
		TrendEMA:       s.TrendEMA[idx],
		TrendEMASlowTF: s.TrendEMASlowTF[idx],
	}

	d.logger.Debug(ctx, op+": evaluated", map[string]interface{}{
		"symbol":     eval.Bar.Symbol,
		"barTime":    eval.Bar.OpenTime,
		"close":      eval.Bar.Close,
		"fastEMA":    eval.FastEMA,
		"slowEMA":    eval.SlowEMA,
		"trendEMA":   eval.TrendEMA,
		"trendEMA1h": eval.TrendEMASlowTF,
		"macro":      macro[idx].String(),
		"signal":     eval.Signal.String(),
	})
	return eval, nil
}

// AlignAsOf maps values computed on slow onto the bars of fast. Each fast
// bar takes the value of the latest slow bar whose open time is not after
// its own; fast bars before the first slow bar get NaN.
func AlignAsOf(fast, slow []*domain.Kline, values []float64) []float64 {
	out := make([]float64, len(fast))
	j := -1
	for i, k := range fast {
		for j+1 < len(slow) && !slow[j+1].OpenTime.After(k.OpenTime) {
			j++
		}
		if j < 0 {
			out[i] = nan
			continue
		}
		out[i] = values[j]
	}
	return out
}

// MacroSignals flags bars where the fast EMA crosses the slow EMA in the
// direction of both trend EMAs.
func MacroSignals(klines []*domain.Kline, s Series) []domain.Signal {
	out := make([]domain.Signal, len(klines))
	for i := 1; i < len(klines); i++ {
		c := klines[i].Close
		switch {
		case indicators.CrossedAbove(s.FastEMA[i-1], s.SlowEMA[i-1], s.FastEMA[i], s.SlowEMA[i]) &&
			c > s.TrendEMA[i] && c > s.TrendEMASlowTF[i]:
			out[i] = domain.SignalBuy
		case indicators.CrossedBelow(s.FastEMA[i-1], s.SlowEMA[i-1], s.FastEMA[i], s.SlowEMA[i]) &&
			c < s.TrendEMA[i] && c < s.TrendEMASlowTF[i]:
			out[i] = domain.SignalSell
		}
	}
	return out
}

// CandidateEntries flags bars where the close crosses the fast EMA while the
// fast EMA sits on the matching side of the slow EMA, filtered by both trend
// EMAs.
func CandidateEntries(klines []*domain.Kline, s Series) (up, down []bool) {
	up = make([]bool, len(klines))
	down = make([]bool, len(klines))
	for i := 1; i < len(klines); i++ {
		c, prev := klines[i].Close, klines[i-1].Close
		up[i] = s.FastEMA[i] > s.SlowEMA[i] &&
			prev < s.FastEMA[i-1] && c > s.FastEMA[i] &&
			c > s.TrendEMA[i] && c > s.TrendEMASlowTF[i]
		down[i] = s.FastEMA[i] < s.SlowEMA[i] &&
			prev > s.FastEMA[i-1] && c < s.FastEMA[i] &&
			c < s.TrendEMA[i] && c < s.TrendEMASlowTF[i]
	}
	return up, down
}
