package indicators

import "math"

// Envelope is a Nadaraya-Watson kernel regression line with its bands.
type Envelope struct {
	Mid   []float64
	Upper []float64
	Lower []float64
}

// NWEConfig holds the kernel envelope parameters.
type NWEConfig struct {
	Bandwidth  float64 // Gaussian kernel bandwidth h
	Multiplier float64 // Band half-width multiplier applied to the mean absolute error
	Repaint    bool    // Recompute every point against the whole window
	Window     int     // Trailing kernel length in non-repaint mode
}

// DefaultNWEConfig mirrors the parameters the bot trades with.
func DefaultNWEConfig() NWEConfig {
	return NWEConfig{Bandwidth: 8, Multiplier: 3, Repaint: true, Window: 500}
}

func gauss(x, h float64) float64 {
	return math.Exp(-(x * x) / (h * h * 2))
}

// NadarayaWatson computes the kernel envelope of src.
//
// In repaint mode every output point is the Gaussian-weighted mean of the
// whole window, so historical values move as bars arrive. Only the most
// recent values of a given evaluation may be trusted and the output must not
// be stored as history. The band half-width is the mean absolute deviation
// between src and the regression line times the multiplier, constant over
// the window.
//
// In non-repaint mode each point only uses itself and earlier points with
// fixed weights, and the half-width is a rolling mean absolute error.
func NadarayaWatson(src []float64, cfg NWEConfig) Envelope {
	if cfg.Repaint {
		return nweRepaint(src, cfg.Bandwidth, cfg.Multiplier)
	}
	return nweCausal(src, cfg.Bandwidth, cfg.Multiplier, cfg.Window)
}

func nweRepaint(src []float64, h, mult float64) Envelope {
	n := len(src)
	env := Envelope{Mid: make([]float64, n), Upper: make([]float64, n), Lower: make([]float64, n)}
	if n == 0 {
		return env
	}

	// weights depend on |i-j| only
	weights := make([]float64, n)
	for d := range weights {
		weights[d] = gauss(float64(d), h)
	}

	sae := 0.0
	for i := 0; i < n; i++ {
		sum, sumw := 0.0, 0.0
		for j := 0; j < n; j++ {
			d := i - j
			if d < 0 {
				d = -d
			}
			w := weights[d]
			sum += src[j] * w
			sumw += w
		}
		env.Mid[i] = sum / sumw
		sae += math.Abs(src[i] - env.Mid[i])
	}

	width := sae / float64(n) * mult
	for i := 0; i < n; i++ {
		env.Upper[i] = env.Mid[i] + width
		env.Lower[i] = env.Mid[i] - width
	}
	return env
}

func nweCausal(src []float64, h, mult float64, window int) Envelope {
	n := len(src)
	if window <= 0 || window > n {
		window = n
	}
	env := Envelope{Mid: nanSlice(n), Upper: nanSlice(n), Lower: nanSlice(n)}
	if n == 0 {
		return env
	}

	coefs := make([]float64, window)
	for j := range coefs {
		coefs[j] = gauss(float64(j), h)
	}

	absErr := make([]float64, n)
	for i := 0; i < n; i++ {
		sum, den := 0.0, 0.0
		for j := 0; j < window && j <= i; j++ {
			sum += src[i-j] * coefs[j]
			den += coefs[j]
		}
		env.Mid[i] = sum / den
		absErr[i] = math.Abs(src[i] - env.Mid[i])
	}

	maeWindow := window - 1
	if maeWindow < 1 {
		maeWindow = 1
	}
	mae := RollingMean(absErr, maeWindow)
	for i := 0; i < n; i++ {
		if !Defined(mae[i]) {
			continue
		}
		env.Upper[i] = env.Mid[i] + mae[i]*mult
		env.Lower[i] = env.Mid[i] - mae[i]*mult
	}
	return env
}
