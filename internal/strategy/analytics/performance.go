package analytics

import (
	"sort"
	"time"

	"trendEnvelopeBot/internal/domain"
)

// PerformanceMetrics summarizes closed trades. Returns are in percent of the
// entry price, as recorded in the trade history.
type PerformanceMetrics struct {
	// Basic Metrics
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64 // fraction, 0..1
	TotalPnL      float64 // sum of per-trade percent returns
	AverageWin    float64
	AverageLoss   float64 // negative or zero
	ProfitFactor  float64 // gross wins over gross losses, 0 without losses
	Expectancy    float64 // mean percent return per trade
	MaxDrawdown   float64 // largest drop of the cumulative return from its peak, in points

	// Streaks and timing
	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	AverageTradeDuration time.Duration

	ExitReasons    map[domain.ExitReason]int
	MonthlyReturns map[string]float64 // keyed by exit month, "2006-01"
	EquityCurve    []EquityPoint
}

// EquityPoint is the cumulative percent return after a trade.
type EquityPoint struct {
	Time     time.Time
	Value    float64
	Drawdown float64
}

// AnalyzePerformance calculates the metrics of trades in exit order. The
// input slice is not modified.
func AnalyzePerformance(trades []*domain.Trade) *PerformanceMetrics {
	metrics := &PerformanceMetrics{
		ExitReasons:    make(map[domain.ExitReason]int),
		MonthlyReturns: make(map[string]float64),
	}
	if len(trades) == 0 {
		return metrics
	}

	ordered := make([]*domain.Trade, len(trades))
	copy(ordered, trades)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ExitTime.Before(ordered[j].ExitTime)
	})

	var (
		equity, peak          float64
		grossWin, grossLoss   float64
		winStreak, lossStreak int
		totalDuration         time.Duration
	)
	for _, trade := range ordered {
		pnl := trade.PnLPercent
		metrics.TotalTrades++
		if pnl > 0 {
			metrics.WinningTrades++
			grossWin += pnl
			winStreak++
			lossStreak = 0
		} else {
			metrics.LosingTrades++
			grossLoss += pnl
			lossStreak++
			winStreak = 0
		}
		if winStreak > metrics.MaxConsecutiveWins {
			metrics.MaxConsecutiveWins = winStreak
		}
		if lossStreak > metrics.MaxConsecutiveLosses {
			metrics.MaxConsecutiveLosses = lossStreak
		}

		equity += pnl
		if equity > peak {
			peak = equity
		}
		drawdown := peak - equity
		if drawdown > metrics.MaxDrawdown {
			metrics.MaxDrawdown = drawdown
		}
		metrics.EquityCurve = append(metrics.EquityCurve, EquityPoint{Time: trade.ExitTime, Value: equity, Drawdown: drawdown})

		metrics.ExitReasons[trade.ExitReason]++
		metrics.MonthlyReturns[trade.ExitTime.UTC().Format("2006-01")] += pnl
		if !trade.EntryTime.IsZero() && trade.ExitTime.After(trade.EntryTime) {
			totalDuration += trade.ExitTime.Sub(trade.EntryTime)
		}
	}

	n := float64(metrics.TotalTrades)
	metrics.TotalPnL = equity
	metrics.WinRate = float64(metrics.WinningTrades) / n
	metrics.Expectancy = equity / n
	metrics.AverageTradeDuration = totalDuration / time.Duration(metrics.TotalTrades)
	if metrics.WinningTrades > 0 {
		metrics.AverageWin = grossWin / float64(metrics.WinningTrades)
	}
	if metrics.LosingTrades > 0 {
		metrics.AverageLoss = grossLoss / float64(metrics.LosingTrades)
	}
	if grossLoss < 0 {
		metrics.ProfitFactor = grossWin / -grossLoss
	}
	return metrics
}

// GetMonthlyReturns returns the monthly returns as a sorted slice
func (m *PerformanceMetrics) GetMonthlyReturns() []MonthlyReturn {
	returns := make([]MonthlyReturn, 0, len(m.MonthlyReturns))
	for month, pnl := range m.MonthlyReturns {
		date, _ := time.Parse("2006-01", month)
		returns = append(returns, MonthlyReturn{Month: date, Return: pnl})
	}
	sort.Slice(returns, func(i, j int) bool {
		return returns[i].Month.Before(returns[j].Month)
	})
	return returns
}

// MonthlyReturn represents a monthly return value
type MonthlyReturn struct {
	Month  time.Time
	Return float64
}
