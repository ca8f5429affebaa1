package market

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrMalformedBar is returned when a bar fails OHLC validation.
var ErrMalformedBar = errors.New("malformed bar")

// Bar is a single closed OHLCV observation for one symbol and timeframe.
// Bars are immutable once stored; re-arrival of the same
// (symbol, timeframe, timestamp) key replaces the previous row.
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// IsBullish reports whether the bar closed above its open.
func (b Bar) IsBullish() bool {
	return b.Close > b.Open
}

// BodySize returns the absolute distance between open and close.
func (b Bar) BodySize() float64 {
	return math.Abs(b.Close - b.Open)
}

// UpperShadow returns the wick above the body.
func (b Bar) UpperShadow() float64 {
	return b.High - math.Max(b.Open, b.Close)
}

// LowerShadow returns the wick below the body.
func (b Bar) LowerShadow() float64 {
	return math.Min(b.Open, b.Close) - b.Low
}

// Range returns high minus low.
func (b Bar) Range() float64 {
	return b.High - b.Low
}

// Validate checks the OHLC ordering invariant
// low <= min(open, close) <= max(open, close) <= high
// and rejects non-finite numerics. Malformed bars must not enter
// the pipeline.
func (b Bar) Validate() error {
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value in %s %s", ErrMalformedBar, b.Symbol, b.Timestamp.Format(time.RFC3339))
		}
	}
	lo := math.Min(b.Open, b.Close)
	hi := math.Max(b.Open, b.Close)
	if b.Low > lo || hi > b.High {
		return fmt.Errorf("%w: OHLC out of order for %s (o=%.2f h=%.2f l=%.2f c=%.2f)",
			ErrMalformedBar, b.Symbol, b.Open, b.High, b.Low, b.Close)
	}
	return nil
}
