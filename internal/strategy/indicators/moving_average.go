package indicators

import (
	"fmt"
	"math"
)

// MovingAverageType defines the type of moving average
type MovingAverageType string

const (
	// SimpleMovingAverage represents a simple moving average
	SimpleMovingAverage MovingAverageType = "SMA"
	// ExponentialMovingAverage represents an exponential moving average
	ExponentialMovingAverage MovingAverageType = "EMA"
)

// MovingAverageConfig holds configuration for moving average indicators
type MovingAverageConfig struct {
	IndicatorConfig
	Type MovingAverageType
}

// MovingAverage computes SMA or EMA series.
type MovingAverage struct {
	config MovingAverageConfig
}

// NewMovingAverage creates a new moving average indicator instance
func NewMovingAverage(config MovingAverageConfig) (*MovingAverage, error) {
	if config.Period <= 0 {
		return nil, fmt.Errorf("moving average period must be positive, got %d", config.Period)
	}
	switch config.Type {
	case SimpleMovingAverage, ExponentialMovingAverage:
	default:
		return nil, fmt.Errorf("unsupported moving average type: %s", config.Type)
	}
	return &MovingAverage{config: config}, nil
}

// Name returns the name of the indicator
func (m *MovingAverage) Name() string {
	return fmt.Sprintf("%s(%d)", m.config.Type, m.config.Period)
}

// Series computes the moving average for every element of values.
func (m *MovingAverage) Series(values []float64) []float64 {
	if m.config.Type == SimpleMovingAverage {
		return RollingMean(values, m.config.Period)
	}
	return EMA(values, m.config.Period)
}

// EMA returns the exponential moving average of values with the given span.
// The first output equals the first input and every later output is
// prev + alpha*(value-prev) with alpha = 2/(span+1). The output has the same
// length as the input.
func EMA(values []float64, span int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	alpha := 2.0 / float64(span+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = out[i-1] + alpha*(values[i]-out[i-1])
	}
	return out
}

// RollingMean returns the simple mean over a trailing window. Positions
// before the window is full, and windows containing NaN, are NaN.
func RollingMean(values []float64, window int) []float64 {
	out := nanSlice(len(values))
	if window <= 0 {
		return out
	}
	for i := window - 1; i < len(values); i++ {
		sum := 0.0
		for j := i - window + 1; j <= i; j++ {
			sum += values[j]
		}
		if math.IsNaN(sum) {
			continue
		}
		out[i] = sum / float64(window)
	}
	return out
}
