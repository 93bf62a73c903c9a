package market

import "time"

// Bar is a single OHLCV observation. The close-bar series built from Bars is
// the canonical input to the indicator engine.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// BarSeries is an ordered (oldest-first) sequence of Bars for one symbol.
type BarSeries []Bar

// Closes extracts the close-price series consumed by the indicator engine.
func (s BarSeries) Closes() []float64 {
	closes := make([]float64, len(s))
	for i, b := range s {
		closes[i] = b.Close
	}
	return closes
}

// Last returns the most recent bar and true, or the zero Bar and false if
// the series is empty.
func (s BarSeries) Last() (Bar, bool) {
	if len(s) == 0 {
		return Bar{}, false
	}
	return s[len(s)-1], true
}

// Quote is a single bid/ask/last observation for a symbol.
type Quote struct {
	Bid  float64
	Ask  float64
	Last float64
}

// Mid returns the broker mid-quote: (bid+ask)/2 when both sides are
// positive, otherwise whichever side is positive, otherwise (0, false).
func (q Quote) Mid() (float64, bool) {
	switch {
	case q.Bid > 0 && q.Ask > 0:
		return (q.Bid + q.Ask) / 2, true
	case q.Bid > 0:
		return q.Bid, true
	case q.Ask > 0:
		return q.Ask, true
	default:
		return 0, false
	}
}
