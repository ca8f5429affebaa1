package market

import "time"

// Pattern identifies a candlestick pattern recognized at the tail of a series.
type Pattern string

const (
	PatternNone             Pattern = ""
	PatternHammer           Pattern = "Hammer"
	PatternBullishEngulfing Pattern = "Bullish Engulfing"
	PatternShootingStar     Pattern = "Shooting Star"
	PatternBearishEngulfing Pattern = "Bearish Engulfing"
)

// IsBullish reports whether the pattern is a bullish reversal.
func (p Pattern) IsBullish() bool {
	return p == PatternHammer || p == PatternBullishEngulfing
}

// PivotType marks a pivot as a local low or high.
type PivotType string

const (
	PivotLow  PivotType = "low"
	PivotHigh PivotType = "high"
)

// Pivot is a local extremum anchored to the bar that produced it.
// Price is the low of the source bar for a pivot-low and the high for a
// pivot-high. Pivots are append-only; insertion order equals
// chronological order.
type Pivot struct {
	Type      PivotType `json:"type"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
	BarIndex  int       `json:"bar_index"`
	Pattern   Pattern   `json:"pattern"`
}

// SupportZone is a price band around the latest pivot-low, width k*ATR on
// each side. Recomputed every bar, never persisted.
type SupportZone struct {
	Pivot    Pivot   `json:"pivot"`
	ZoneLow  float64 `json:"zone_low"`
	ZoneHigh float64 `json:"zone_high"`
}

// ContainsPrice reports whether the bar range [low, high] overlaps the zone.
func (z SupportZone) ContainsPrice(low, high float64) bool {
	return z.ZoneLow <= high && z.ZoneHigh >= low
}

// IndicatorSnapshot holds the indicator values for one bar. Any field may be
// nil while the corresponding indicator is still warming up.
type IndicatorSnapshot struct {
	RSI           *float64 `json:"rsi"`
	MACD          *float64 `json:"macd"`
	MACDSignal    *float64 `json:"macd_signal"`
	MACDHistogram *float64 `json:"macd_histogram"`
	ATR           *float64 `json:"atr"`
}
