package indicators

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestEMA(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		span     int
		expected []float64
	}{
		{
			name:     "empty input",
			values:   nil,
			span:     3,
			expected: []float64{},
		},
		{
			name:     "seeded with first value",
			values:   []float64{10, 11, 12},
			span:     3,
			expected: []float64{10, 10.5, 11.25},
		},
		{
			name:     "span one tracks input",
			values:   []float64{5, 7, 3},
			span:     1,
			expected: []float64{5, 7, 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EMA(tt.values, tt.span)
			if len(got) != len(tt.expected) {
				t.Fatalf("Expected %d values, got %d", len(tt.expected), len(got))
			}
			for i := range got {
				if math.Abs(got[i]-tt.expected[i]) > 1e-9 {
					t.Errorf("index %d: expected %f, got %f", i, tt.expected[i], got[i])
				}
			}
		})
	}
}

func TestRollingMean(t *testing.T) {
	got := RollingMean([]float64{1, 2, 3, 4, math.NaN(), 6}, 2)

	if !math.IsNaN(got[0]) {
		t.Errorf("Expected NaN before window fills, got %f", got[0])
	}
	if got[1] != 1.5 || got[2] != 2.5 || got[3] != 3.5 {
		t.Errorf("Unexpected rolling means: %v", got[1:4])
	}
	if !math.IsNaN(got[4]) || !math.IsNaN(got[5]) {
		t.Errorf("Expected NaN for windows containing NaN, got %v", got[4:])
	}
}

func TestNewMovingAverage(t *testing.T) {
	tests := []struct {
		name        string
		config      MovingAverageConfig
		expected    string
		expectError bool
	}{
		{
			name:     "EMA name",
			config:   MovingAverageConfig{IndicatorConfig: IndicatorConfig{Period: 38}, Type: ExponentialMovingAverage},
			expected: "EMA(38)",
		},
		{
			name:     "SMA name",
			config:   MovingAverageConfig{IndicatorConfig: IndicatorConfig{Period: 14}, Type: SimpleMovingAverage},
			expected: "SMA(14)",
		},
		{
			name:        "zero period",
			config:      MovingAverageConfig{Type: ExponentialMovingAverage},
			expectError: true,
		},
		{
			name:        "unknown type",
			config:      MovingAverageConfig{IndicatorConfig: IndicatorConfig{Period: 3}, Type: "WMA"},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ma, err := NewMovingAverage(tt.config)
			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if name := ma.Name(); name != tt.expected {
				t.Errorf("Expected name %s, got %s", tt.expected, name)
			}
		})
	}
}

func TestEMA_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	series := gen.SliceOf(gen.Float64Range(1, 100000))

	properties.Property("output length equals input length", prop.ForAll(
		func(values []float64, span int) bool {
			return len(EMA(values, span)) == len(values)
		},
		series, gen.IntRange(1, 300),
	))

	properties.Property("first output equals first input", prop.ForAll(
		func(values []float64, span int) bool {
			if len(values) == 0 {
				return true
			}
			return EMA(values, span)[0] == values[0]
		},
		series, gen.IntRange(1, 300),
	))

	properties.Property("output stays within input range", prop.ForAll(
		func(values []float64, span int) bool {
			if len(values) == 0 {
				return true
			}
			lo, hi := values[0], values[0]
			for _, v := range values {
				lo = math.Min(lo, v)
				hi = math.Max(hi, v)
			}
			for _, v := range EMA(values, span) {
				if v < lo-1e-6 || v > hi+1e-6 {
					return false
				}
			}
			return true
		},
		series, gen.IntRange(1, 300),
	))

	properties.TestingRun(t)
}
