package patterns

import (
	"dnse-trading-bot/internal/market"
)

// Config holds the classification thresholds. Zero value is not usable;
// construct with DefaultConfig and override as needed.
type Config struct {
	// MaxBodyRatio is the maximum body/range ratio for hammer-family bars.
	MaxBodyRatio float64
	// MinShadowRangeRatio is the minimum dominant-shadow/range ratio.
	MinShadowRangeRatio float64
	// MinShadowBodyRatio is the minimum dominant-shadow/body ratio when the
	// bar has a body.
	MinShadowBodyRatio float64
	// MaxOppositeShadowBodyRatio caps the opposite shadow relative to the
	// body when the bar has a body.
	MaxOppositeShadowBodyRatio float64
	// DojiMinShadowRangeRatio is the minimum dominant-shadow/range ratio for
	// zero-body bars.
	DojiMinShadowRangeRatio float64
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		MaxBodyRatio:               0.35,
		MinShadowRangeRatio:        0.4,
		MinShadowBodyRatio:         1.8,
		MaxOppositeShadowBodyRatio: 1.2,
		DojiMinShadowRangeRatio:    0.6,
	}
}

// Detector classifies single bars and bar pairs into candlestick patterns.
// It is a pure function of its inputs and keeps no state.
type Detector struct {
	cfg Config
}

// NewDetector creates a detector with the given thresholds.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// IsHammer reports whether the bar is a hammer: small body near the top of
// the range with a long lower shadow.
func (d *Detector) IsHammer(bar market.Bar) bool {
	r := bar.Range()
	if r <= 0 {
		return false
	}
	body := bar.BodySize()
	lower := bar.LowerShadow()
	upper := bar.UpperShadow()

	if body/r > d.cfg.MaxBodyRatio {
		return false
	}
	if lower < d.cfg.MinShadowRangeRatio*r {
		return false
	}
	if body > 0 {
		return lower/body >= d.cfg.MinShadowBodyRatio && upper <= d.cfg.MaxOppositeShadowBodyRatio*body
	}
	// Zero-body doji: demand a clearly dominant lower shadow.
	return lower >= d.cfg.DojiMinShadowRangeRatio*r
}

// IsShootingStar mirrors IsHammer on the high side: small body near the
// bottom of the range with a long upper shadow.
func (d *Detector) IsShootingStar(bar market.Bar) bool {
	r := bar.Range()
	if r <= 0 {
		return false
	}
	body := bar.BodySize()
	lower := bar.LowerShadow()
	upper := bar.UpperShadow()

	if body/r > d.cfg.MaxBodyRatio {
		return false
	}
	if upper < d.cfg.MinShadowRangeRatio*r {
		return false
	}
	if body > 0 {
		return upper/body >= d.cfg.MinShadowBodyRatio && lower <= d.cfg.MaxOppositeShadowBodyRatio*body
	}
	return upper >= d.cfg.DojiMinShadowRangeRatio*r
}

// IsBullishEngulfing reports whether cur's body strictly contains prev's
// body, with prev bearish and cur bullish.
func (d *Detector) IsBullishEngulfing(prev, cur market.Bar) bool {
	if prev.Close >= prev.Open || !cur.IsBullish() {
		return false
	}
	prevLo := min(prev.Open, prev.Close)
	prevHi := max(prev.Open, prev.Close)
	curLo := min(cur.Open, cur.Close)
	curHi := max(cur.Open, cur.Close)
	return curLo < prevLo && curHi > prevHi
}

// IsBearishEngulfing reports whether cur's body strictly contains prev's
// body, with prev bullish and cur bearish.
func (d *Detector) IsBearishEngulfing(prev, cur market.Bar) bool {
	if !prev.IsBullish() || cur.Close >= cur.Open {
		return false
	}
	prevLo := min(prev.Open, prev.Close)
	prevHi := max(prev.Open, prev.Close)
	curLo := min(cur.Open, cur.Close)
	curHi := max(cur.Open, cur.Close)
	return curLo < prevLo && curHi > prevHi
}

// DetectBullishReversal classifies the tail of the series. The single-bar
// hammer wins over the two-bar engulfing when both would match.
func (d *Detector) DetectBullishReversal(bars []market.Bar) market.Pattern {
	n := len(bars)
	if n == 0 {
		return market.PatternNone
	}
	if d.IsHammer(bars[n-1]) {
		return market.PatternHammer
	}
	if n >= 2 && d.IsBullishEngulfing(bars[n-2], bars[n-1]) {
		return market.PatternBullishEngulfing
	}
	return market.PatternNone
}

// DetectBearishReversal is the mirror of DetectBullishReversal.
func (d *Detector) DetectBearishReversal(bars []market.Bar) market.Pattern {
	n := len(bars)
	if n == 0 {
		return market.PatternNone
	}
	if d.IsShootingStar(bars[n-1]) {
		return market.PatternShootingStar
	}
	if n >= 2 && d.IsBearishEngulfing(bars[n-2], bars[n-1]) {
		return market.PatternBearishEngulfing
	}
	return market.PatternNone
}
