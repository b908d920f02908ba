package indicators

import (
	"fmt"
	"math"

	"trendEnvelopeBot/internal/domain"
)

// DefaultATRLength is the ATR window used for band levels.
const DefaultATRLength = 14

// ATRBandMultiplier scales ATR into the band levels around the close.
const ATRBandMultiplier = 2.0

// TrueRange returns max(high-low, |high-prevClose|, |low-prevClose|) per bar.
// The first bar has no previous close, so its value is NaN.
func TrueRange(klines []*domain.Kline) []float64 {
	out := nanSlice(len(klines))
	for i := 1; i < len(klines); i++ {
		high := klines[i].High
		low := klines[i].Low
		prevClose := klines[i-1].Close

		tr1 := high - low
		tr2 := math.Abs(high - prevClose)
		tr3 := math.Abs(low - prevClose)

		out[i] = math.Max(tr1, math.Max(tr2, tr3))
	}
	return out
}

// ATR returns the simple rolling mean of the true range over length bars.
// The first length values are NaN and must not be consumed.
func ATR(klines []*domain.Kline, length int) []float64 {
	return RollingMean(TrueRange(klines), length)
}

// ATRLevelsAt computes the band levels around the last closed bar:
// close ± 2·ATR. It needs at least length+2 klines so that the closed bar
// carries a defined ATR.
func ATRLevelsAt(klines []*domain.Kline, length int) (domain.ATRLevels, error) {
	if length <= 0 {
		return domain.ATRLevels{}, fmt.Errorf("ATR length must be positive, got %d", length)
	}
	idx := domain.LastClosedIndex(klines)
	if idx < length {
		return domain.ATRLevels{}, fmt.Errorf("not enough data points for ATR levels: need %d, got %d", length+2, len(klines))
	}
	atr := ATR(klines, length)[idx]
	if !Defined(atr) {
		return domain.ATRLevels{}, fmt.Errorf("ATR undefined at closed bar %d", idx)
	}
	last := klines[idx].Close
	return domain.ATRLevels{
		Close: last,
		ATR:   atr,
		Upper: last + ATRBandMultiplier*atr,
		Lower: last - ATRBandMultiplier*atr,
	}, nil
}
