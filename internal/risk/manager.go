// Package risk sizes orders against exchange lot constraints and derives the
// protective price levels of a position.
package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"trendEnvelopeBot/internal/domain"
	"trendEnvelopeBot/internal/ports"
)

// pricePlaces is the precision of stop-loss and take-profit levels.
const pricePlaces = 4

// RiskConfig holds configuration for risk management
type RiskConfig struct {
	Notional          float64 // Quote currency amount per trade, e.g., 50
	StopLossPercent   float64 // Fraction of entry price, e.g., 0.02
	TakeProfitPercent float64 // Fraction of entry price, e.g., 0.20
	TrailLockPercent  float64 // Profit locked in by the trailing stop, e.g., 0.001
}

// DefaultRiskConfig returns the parameters the bot trades with.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		Notional:          50,
		StopLossPercent:   0.02,
		TakeProfitPercent: 0.20,
		TrailLockPercent:  0.001,
	}
}

// RiskManager implements order sizing and price level calculations.
type RiskManager struct {
	config RiskConfig
}

// NewRiskManager creates a new risk manager instance
func NewRiskManager(config RiskConfig) (*RiskManager, error) {
	if config.Notional <= 0 {
		return nil, fmt.Errorf("%w: trade notional must be positive", ports.ErrConfigurationError)
	}
	if config.StopLossPercent <= 0 || config.StopLossPercent >= 1 {
		return nil, fmt.Errorf("%w: stop loss percent must be in (0, 1)", ports.ErrConfigurationError)
	}
	if config.TakeProfitPercent <= 0 || config.TrailLockPercent < 0 {
		return nil, fmt.Errorf("%w: take profit and trail percentages must be positive", ports.ErrConfigurationError)
	}
	return &RiskManager{config: config}, nil
}

// Notional returns the configured quote amount per trade.
func (r *RiskManager) Notional() float64 {
	return r.config.Notional
}

// ValidateLotRule checks that rule admits at least one order size.
func ValidateLotRule(rule domain.LotSizeRule) error {
	if rule.QtyStep <= 0 || rule.MinQty <= 0 || rule.MaxQty < rule.MinQty {
		return fmt.Errorf("%w: invalid lot size rule min=%v max=%v step=%v",
			ports.ErrConfigurationError, rule.MinQty, rule.MaxQty, rule.QtyStep)
	}
	step := decimal.NewFromFloat(rule.QtyStep)
	lo := decimal.NewFromFloat(rule.MinQty).Div(step).Ceil().Mul(step)
	hi := decimal.NewFromFloat(rule.MaxQty).Div(step).Floor().Mul(step)
	if lo.GreaterThan(hi) {
		return fmt.Errorf("%w: no step multiple between min=%v and max=%v",
			ports.ErrConfigurationError, rule.MinQty, rule.MaxQty)
	}
	return nil
}

// Size converts a quote notional into an order quantity at price that
// satisfies rule.
func (r *RiskManager) Size(notional, price float64, rule domain.LotSizeRule) (float64, error) {
	if price <= 0 {
		return 0, fmt.Errorf("%w: price %v", ports.ErrPriceUnavailable, price)
	}
	if notional <= 0 {
		return 0, fmt.Errorf("%w: notional %v", ports.ErrInvalidRequest, notional)
	}
	if err := ValidateLotRule(rule); err != nil {
		return 0, err
	}
	raw := decimal.NewFromFloat(notional).Div(decimal.NewFromFloat(price))
	return quantize(raw, rule).InexactFloat64(), nil
}

// Quantize clamps qty to [min, max], rounds it to the nearest step and pulls
// the result back inside the bounds in whole steps. Applying it twice gives
// the same result as applying it once.
func Quantize(qty float64, rule domain.LotSizeRule) float64 {
	return quantize(decimal.NewFromFloat(qty), rule).InexactFloat64()
}

func quantize(raw decimal.Decimal, rule domain.LotSizeRule) decimal.Decimal {
	step := decimal.NewFromFloat(rule.QtyStep)
	minQty := decimal.NewFromFloat(rule.MinQty)
	maxQty := decimal.NewFromFloat(rule.MaxQty)

	q := decimal.Min(decimal.Max(raw, minQty), maxQty)
	q = q.Div(step).Round(0).Mul(step)
	if q.LessThan(minQty) {
		q = minQty.Div(step).Ceil().Mul(step)
	}
	if q.GreaterThan(maxQty) {
		q = maxQty.Div(step).Floor().Mul(step)
	}
	return q
}

// FormatQuantity renders qty with the number of decimals implied by step.
func FormatQuantity(qty, step float64) string {
	places := int32(0)
	if exp := decimal.NewFromFloat(step).Exponent(); exp < 0 {
		places = -exp
	}
	return decimal.NewFromFloat(qty).StringFixed(places)
}

// FormatPrice renders a price level the way orders are submitted.
func FormatPrice(price float64) string {
	return decimal.NewFromFloat(price).Round(pricePlaces).String()
}

func roundPrice(v decimal.Decimal) float64 {
	return v.Round(pricePlaces).InexactFloat64()
}

// StopLevels returns the stop-loss and take-profit levels for a position
// entered at price.
func (r *RiskManager) StopLevels(side domain.OrderSide, price float64) (stopLoss, takeProfit float64) {
	p := decimal.NewFromFloat(price)
	one := decimal.NewFromInt(1)
	sl := decimal.NewFromFloat(r.config.StopLossPercent)
	tp := decimal.NewFromFloat(r.config.TakeProfitPercent)

	if side == domain.Sell {
		return roundPrice(p.Mul(one.Add(sl))), roundPrice(p.Mul(one.Sub(tp)))
	}
	return roundPrice(p.Mul(one.Sub(sl))), roundPrice(p.Mul(one.Add(tp)))
}

// TrailingStop returns the stop-loss level that locks in a small profit over
// entry.
func (r *RiskManager) TrailingStop(side domain.OrderSide, entry float64) float64 {
	e := decimal.NewFromFloat(entry)
	lock := decimal.NewFromFloat(r.config.TrailLockPercent)
	if side == domain.Sell {
		return roundPrice(e.Mul(decimal.NewFromInt(1).Sub(lock)))
	}
	return roundPrice(e.Mul(decimal.NewFromInt(1).Add(lock)))
}

// StopAtOrBeyond reports whether current already protects at least as much
// as level for side.
func StopAtOrBeyond(side domain.OrderSide, current, level float64) bool {
	if current <= 0 {
		return false
	}
	if side == domain.Sell {
		return current <= level
	}
	return current >= level
}
