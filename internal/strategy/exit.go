package strategy

import (
	"trendEnvelopeBot/internal/domain"
)

// ExitAction is what the position monitor must do after an exit evaluation.
type ExitAction int

const (
	ActionHold  ExitAction = iota // keep watching
	ActionTrail                   // move the stop-loss into profit, skip the rest of the tick
	ActionExit                    // close the position
)

func (a ExitAction) String() string {
	switch a {
	case ActionTrail:
		return "TRAIL"
	case ActionExit:
		return "EXIT"
	default:
		return "HOLD"
	}
}

// BandBar is a closed bar together with the envelope values at that bar.
type BandBar struct {
	Open  float64
	High  float64
	Low   float64
	Close float64
	Upper float64
	Lower float64
}

// ExitInput is everything the exit policy looks at in one tick.
type ExitInput struct {
	Side       domain.OrderSide
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	Price      float64 // latest traded price
	Prev       BandBar // closed bar before Last
	Last       BandBar // last closed bar
}

// ExitDecision is the outcome of EvaluateExit.
type ExitDecision struct {
	Action ExitAction
	Reason domain.ExitReason
	PnL    float64
}

// ExitPolicy decides when a supervised position is closed.
type ExitPolicy struct {
	ProfitLockPct float64 // band-touch PnL at or above which profit is taken, e.g., 5
}

// DefaultExitPolicy returns the thresholds the bot trades with.
func DefaultExitPolicy() ExitPolicy {
	return ExitPolicy{ProfitLockPct: 5}
}

// EvaluateExit applies the exit rules in priority order; the first match wins:
// forced reversal through the opposite band edge, band-touch profit lock,
// band-touch trail, band-touch loss cut, then the static stop-loss and
// take-profit levels.
func (p ExitPolicy) EvaluateExit(in ExitInput) ExitDecision {
	trade := domain.ActiveTrade{Side: in.Side, EntryPrice: in.EntryPrice}
	pnl := trade.PnLPercent(in.Price)
	d := ExitDecision{Action: ActionHold, PnL: pnl}

	if ForcedReversal(in.Side, in.Prev, in.Last) {
		return exitWith(d, domain.ExitReasonForcedReversal)
	}

	if BandTouched(in.Side, in.Last) {
		switch {
		case pnl >= p.ProfitLockPct:
			return exitWith(d, domain.ExitReasonBandProfit)
		case pnl > 0:
			d.Action = ActionTrail
			return d
		default:
			return exitWith(d, domain.ExitReasonBandLossCut)
		}
	}

	if in.Side == domain.Sell {
		if in.Price >= in.StopLoss {
			return exitWith(d, domain.ExitReasonStopLoss)
		}
		if in.Price <= in.TakeProfit {
			return exitWith(d, domain.ExitReasonTakeProfit)
		}
		return d
	}

	if in.Price <= in.StopLoss {
		return exitWith(d, domain.ExitReasonStopLoss)
	}
	if in.Price >= in.TakeProfit {
		return exitWith(d, domain.ExitReasonTakeProfit)
	}
	return d
}

func exitWith(d ExitDecision, reason domain.ExitReason) ExitDecision {
	d.Action = ActionExit
	d.Reason = reason
	return d
}

// ForcedReversal reports whether the close crossed the band edge opposite to
// the position between the two most recent closed bars: down through the
// lower band for a long, up through the upper band for a short. A cross
// through the favorable edge is deliberately not a reversal; the band-touch
// rules own that case.
func ForcedReversal(side domain.OrderSide, prev, last BandBar) bool {
	if side == domain.Sell {
		return prev.Close < prev.Upper && last.Close > last.Upper
	}
	return prev.Close > prev.Lower && last.Close < last.Lower
}

// BandTouched reports whether bar reached the favorable band edge for side.
// A bar that opened and closed beyond the edge is already extended and does
// not count as a fresh touch.
func BandTouched(side domain.OrderSide, bar BandBar) bool {
	if side == domain.Sell {
		reached := bar.Close <= bar.Lower || bar.Low <= bar.Lower
		extended := bar.Close < bar.Lower && bar.Open < bar.Lower
		return reached && !extended
	}
	reached := bar.Close >= bar.Upper || bar.High >= bar.Upper
	extended := bar.Close > bar.Upper && bar.Open > bar.Upper
	return reached && !extended
}
