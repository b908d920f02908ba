package domain

import (
	"fmt"
	"strings"
)

// OrderSide represents the side of an order or position (Buy or Sell).
type OrderSide string

const (
	Buy  OrderSide = "Buy"
	Sell OrderSide = "Sell"
)

// Opposite returns the side that closes a position opened on s.
func (s OrderSide) Opposite() OrderSide {
	if s == Buy {
		return Sell
	}
	return Buy
}

// ParseOrderSide accepts BUY/SELL/LONG/SHORT in any case.
func ParseOrderSide(v string) (OrderSide, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "BUY", "LONG":
		return Buy, nil
	case "SELL", "SHORT":
		return Sell, nil
	default:
		return "", fmt.Errorf("unknown order side %q", v)
	}
}

// Mode is the process-wide trading mode.
type Mode string

const (
	// ModeEntry allows new positions to be opened.
	ModeEntry Mode = "ENTRY"
	// ModeManage suppresses new entries until an operator switches back to ENTRY.
	ModeManage Mode = "MANAGE"
)

// ParseMode converts a stored or user supplied value into a Mode.
func ParseMode(v string) (Mode, error) {
	switch Mode(strings.ToUpper(strings.TrimSpace(v))) {
	case ModeEntry:
		return ModeEntry, nil
	case ModeManage:
		return ModeManage, nil
	default:
		return "", fmt.Errorf("invalid mode %q: must be ENTRY or MANAGE", v)
	}
}

// ExitReason indicates why a supervised position was closed.
type ExitReason string

const (
	ExitReasonForcedReversal ExitReason = "FORCE_CLOSE"
	ExitReasonBandProfit     ExitReason = "BAND_TAKE_PROFIT"
	ExitReasonBandLossCut    ExitReason = "BAND_LOSS_CUT"
	ExitReasonStopLoss       ExitReason = "STOP_LOSS"
	ExitReasonTakeProfit     ExitReason = "TAKE_PROFIT"
	ExitReasonExternal       ExitReason = "EXTERNAL" // closed on the exchange, not by the bot
	ExitReasonUnknown        ExitReason = "UNKNOWN"
)

// Description returns the human readable wording used in notifications.
func (r ExitReason) Description() string {
	switch r {
	case ExitReasonForcedReversal:
		return "Force close (trend reversed through the envelope)"
	case ExitReasonBandProfit:
		return "Take profit (>=5% + band touch)"
	case ExitReasonBandLossCut:
		return "Closed at loss (band touch)"
	case ExitReasonStopLoss:
		return "Stop-loss triggered"
	case ExitReasonTakeProfit:
		return "Take-profit triggered"
	case ExitReasonExternal:
		return "Position closed externally"
	default:
		return string(r)
	}
}

// MonitorState is the lifecycle state of a position monitor.
type MonitorState int

const (
	StateActive MonitorState = iota
	StateExiting
	StateClosed
)

func (s MonitorState) String() string {
	switch s {
	case StateActive:
		return "Active"
	case StateExiting:
		return "Exiting"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}
