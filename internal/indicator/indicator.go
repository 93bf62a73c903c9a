// Package indicator computes technical indicators over a close-price series.
//
// Every function here is a pure function of its input slice: same series in,
// same series out, no shared state and no I/O. Leading values for which a
// window has not yet filled are represented as math.NaN() in the returned
// series; callers that need a single usable number should go through
// SafeLast rather than indexing the series directly.
package indicator

import "math"

// RSI computes Wilder's Relative Strength Index over window periods.
// The returned series has the same length as close; entries before the
// window has filled are NaN.
func RSI(close []float64, window int) []float64 {
	out := make([]float64, len(close))
	for i := range out {
		out[i] = math.NaN()
	}
	if window <= 0 || len(close) < window+1 {
		return out
	}

	var gainSum, lossSum float64
	for i := 1; i <= window; i++ {
		change := close[i] - close[i-1]
		if change > 0 {
			gainSum += change
		} else {
			lossSum += math.Abs(change)
		}
	}
	avgGain := gainSum / float64(window)
	avgLoss := lossSum / float64(window)
	out[window] = rsiValue(avgGain, avgLoss)

	for i := window + 1; i < len(close); i++ {
		change := close[i] - close[i-1]
		var gain, loss float64
		if change > 0 {
			gain = change
		} else {
			loss = math.Abs(change)
		}
		avgGain = (avgGain*float64(window-1) + gain) / float64(window)
		avgLoss = (avgLoss*float64(window-1) + loss) / float64(window)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// SMA computes the simple moving average over window periods.
func SMA(close []float64, window int) []float64 {
	out := make([]float64, len(close))
	for i := range out {
		out[i] = math.NaN()
	}
	if window <= 0 {
		return out
	}
	var sum float64
	for i, c := range close {
		sum += c
		if i >= window {
			sum -= close[i-window]
		}
		if i >= window-1 {
			out[i] = sum / float64(window)
		}
	}
	return out
}

// MAReturn computes the rolling mean of the first-difference percentage
// return over window periods, expressed in percent (mean * 100).
func MAReturn(close []float64, window int) []float64 {
	out := make([]float64, len(close))
	for i := range out {
		out[i] = math.NaN()
	}
	if window <= 0 || len(close) < 2 {
		return out
	}
	returns := make([]float64, len(close))
	returns[0] = math.NaN()
	for i := 1; i < len(close); i++ {
		if close[i-1] == 0 {
			returns[i] = math.NaN()
			continue
		}
		returns[i] = (close[i] - close[i-1]) / close[i-1]
	}
	for i := window; i < len(close); i++ {
		var sum float64
		n := 0
		for j := i - window + 1; j <= i; j++ {
			if math.IsNaN(returns[j]) {
				continue
			}
			sum += returns[j]
			n++
		}
		if n == window {
			out[i] = (sum / float64(n)) * 100
		}
	}
	return out
}

// CumReturn computes (close / close.shift(window) - 1) * 100.
func CumReturn(close []float64, window int) []float64 {
	out := make([]float64, len(close))
	for i := range out {
		out[i] = math.NaN()
	}
	if window <= 0 {
		return out
	}
	for i := window; i < len(close); i++ {
		past := close[i-window]
		if past == 0 {
			continue
		}
		out[i] = ((close[i] / past) - 1) * 100
	}
	return out
}

// Fallback constants for SafeLast, per the documented indicator semantics.
const (
	FallbackRSI    = 50.0
	FallbackReturn = 0.0
)

// SafeLast returns the last non-NaN value in series. If the final value is
// NaN it walks backward for the most recent non-NaN value; if none exists it
// returns fallback. This never returns NaN or +/-Inf.
func SafeLast(series []float64, fallback float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		v := series[i]
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			return v
		}
	}
	return fallback
}

// SafeLastMA is SafeLast specialized for moving-average-like series, whose
// documented fallback is the last close price if available, else 50.0.
func SafeLastMA(series []float64, close []float64) float64 {
	fallback := FallbackRSI
	if len(close) > 0 {
		fallback = close[len(close)-1]
	}
	return SafeLast(series, fallback)
}
