package domain

import "time"

// Kline represents a single candlestick data point.
type Kline struct {
	OpenTime  time.Time // Start time of the interval
	CloseTime time.Time // End time of the interval
	Symbol    string    // Trading symbol
	Interval  string    // Kline interval (e.g., "15m", "1h")
	Open      float64   // Opening price
	High      float64   // Highest price
	Low       float64   // Lowest price
	Close     float64   // Closing price
	Volume    float64   // Trading volume
	IsFinal   bool      // Whether this kline is the final one for the interval
}

// LastClosedIndex returns the index of the last fully closed bar. The newest
// element of an exchange series may still be forming, so decisions are taken on
// the one before it. The result is negative when fewer than two bars are present.
func LastClosedIndex(klines []*Kline) int {
	return len(klines) - 2
}

// Closes extracts the close prices of klines.
func Closes(klines []*Kline) []float64 {
	out := make([]float64, len(klines))
	for i, k := range klines {
		out[i] = k.Close
	}
	return out
}
