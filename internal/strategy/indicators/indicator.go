// Package indicators computes price-series indicators over whole kline windows.
// Every function is a pure function of its input; nothing is carried between
// evaluations.
package indicators

import "math"

// IndicatorConfig holds common configuration for indicators
type IndicatorConfig struct {
	Period int
}

// Defined reports whether v is a usable indicator value.
func Defined(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// CrossedAbove reports whether a moved from at-or-below b to above b between
// the previous and the current observation.
func CrossedAbove(prevA, prevB, a, b float64) bool {
	return prevA <= prevB && a > b
}

// CrossedBelow reports whether a moved from at-or-above b to below b between
// the previous and the current observation.
func CrossedBelow(prevA, prevB, a, b float64) bool {
	return prevA >= prevB && a < b
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
