package domain

// Signal is a directional entry signal attached to one bar.
type Signal int

const (
	SignalSell Signal = -1
	SignalNone Signal = 0
	SignalBuy  Signal = 1
)

func (s Signal) String() string {
	switch s {
	case SignalBuy:
		return "BUY"
	case SignalSell:
		return "SELL"
	default:
		return "NONE"
	}
}

// Side maps a directional signal to the order side that opens the position.
// The second return value is false for SignalNone.
func (s Signal) Side() (OrderSide, bool) {
	switch s {
	case SignalBuy:
		return Buy, true
	case SignalSell:
		return Sell, true
	default:
		return "", false
	}
}
