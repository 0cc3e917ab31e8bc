package strategy

import (
	"math"

	talib "github.com/markcheno/go-talib"
)

// rocPct computes the total rate of change over the window, in percent,
// using talib. Returns 0, false when the series is too short or the
// result is not finite.
func rocPct(closes []float64, window int) (float64, bool) {
	if window < 2 || len(closes) < window {
		return 0, false
	}
	series := talib.Roc(closes, window-1)
	v := lastNonNaN(series)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// movingAverage returns the last value of an SMA or EMA over period.
func movingAverage(closes []float64, period int, exponential bool) (float64, bool) {
	if period < 1 || len(closes) < period {
		return 0, false
	}
	var series []float64
	if exponential {
		series = talib.Ema(closes, period)
	} else {
		series = talib.Sma(closes, period)
	}
	v := lastNonZero(series)
	if v <= 0 || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// volumeConfirms reports whether recent volume exceeds the earlier
// average, i.e. the move has participation behind it.
func volumeConfirms(volumes []float64, window int) bool {
	if len(volumes) < window || window < 4 {
		return false
	}
	recent := volumes[len(volumes)-window/2:]
	earlier := volumes[len(volumes)-window : len(volumes)-window/2]
	return mean(recent) > mean(earlier)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func lastNonZero(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if series[i] != 0 && !math.IsNaN(series[i]) {
			return series[i]
		}
	}
	return 0
}

func lastNonNaN(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) {
			return series[i]
		}
	}
	return math.NaN()
}
