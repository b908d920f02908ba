package strategy

import (
	"math"

	"trendEnvelopeBot/internal/domain"
)

var nan = math.NaN()

// LatchTriggers folds macro signals and candidate entries into actual entry
// triggers. A macro signal arms the latch in its direction; the first
// candidate entry in the armed direction fires and disarms it. Later
// candidates stay silent until another macro signal arrives. A macro signal
// and a candidate on the same bar fire together.
func LatchTriggers(macro []domain.Signal, up, down []bool) []domain.Signal {
	out := make([]domain.Signal, len(macro))
	last := domain.SignalNone
	for i := 1; i < len(macro); i++ {
		if macro[i] != domain.SignalNone {
			last = macro[i]
		}
		switch {
		case last == domain.SignalBuy && up[i]:
			out[i] = domain.SignalBuy
			last = domain.SignalNone
		case last == domain.SignalSell && down[i]:
			out[i] = domain.SignalSell
			last = domain.SignalNone
		}
	}
	return out
}
