package pivots

import (
	"dnse-trading-bot/internal/market"
	"dnse-trading-bot/internal/patterns"
)

// Detector turns reversal patterns at the tail of a bar series into pivot
// points. Pivots are appended in bar order and never removed; BarIndex is
// strictly increasing within each list.
type Detector struct {
	detector *patterns.Detector
	lows     []market.Pivot
	highs    []market.Pivot
}

// NewDetector creates a pivot detector using the given pattern thresholds.
func NewDetector(cfg patterns.Config) *Detector {
	return &Detector{detector: patterns.NewDetector(cfg)}
}

// ProcessBar inspects the tail of bars after the bar at index has been
// appended. A bullish reversal produces a pivot-low at the bar's low, a
// bearish reversal a pivot-high at the bar's high. Bullish is checked
// first; at most one pivot is produced per bar. Returns the new pivot or
// nil.
func (d *Detector) ProcessBar(bars []market.Bar, index int) *market.Pivot {
	// A reversal needs something to reverse from.
	if index < 1 || index >= len(bars) {
		return nil
	}
	tail := bars[:index+1]
	bar := bars[index]

	if p := d.detector.DetectBullishReversal(tail); p != market.PatternNone {
		pivot := market.Pivot{
			Type:      market.PivotLow,
			Price:     bar.Low,
			Timestamp: bar.Timestamp,
			BarIndex:  index,
			Pattern:   p,
		}
		d.lows = append(d.lows, pivot)
		return &pivot
	}

	if p := d.detector.DetectBearishReversal(tail); p != market.PatternNone {
		pivot := market.Pivot{
			Type:      market.PivotHigh,
			Price:     bar.High,
			Timestamp: bar.Timestamp,
			BarIndex:  index,
			Pattern:   p,
		}
		d.highs = append(d.highs, pivot)
		return &pivot
	}

	return nil
}

// Lows returns the full pivot-low sequence in insertion order.
func (d *Detector) Lows() []market.Pivot {
	return d.lows
}

// Highs returns the full pivot-high sequence in insertion order.
func (d *Detector) Highs() []market.Pivot {
	return d.highs
}

// RecentLows returns the last n pivot-lows in chronological order.
func (d *Detector) RecentLows(n int) []market.Pivot {
	return tailOf(d.lows, n)
}

// RecentHighs returns the last n pivot-highs in chronological order.
func (d *Detector) RecentHighs(n int) []market.Pivot {
	return tailOf(d.highs, n)
}

// LastLow returns the most recent pivot-low, or nil.
func (d *Detector) LastLow() *market.Pivot {
	if len(d.lows) == 0 {
		return nil
	}
	p := d.lows[len(d.lows)-1]
	return &p
}

// PreviousLow returns the second-to-last pivot-low, or nil.
func (d *Detector) PreviousLow() *market.Pivot {
	if len(d.lows) < 2 {
		return nil
	}
	p := d.lows[len(d.lows)-2]
	return &p
}

// Reset drops all accumulated pivots.
func (d *Detector) Reset() {
	d.lows = nil
	d.highs = nil
}

// Rebase shifts all bar indices down by drop after the owning history
// trimmed that many bars from its front. Pivots that fall before the new
// window are discarded.
func (d *Detector) Rebase(drop int) {
	if drop <= 0 {
		return
	}
	d.lows = rebase(d.lows, drop)
	d.highs = rebase(d.highs, drop)
}

func rebase(pivots []market.Pivot, drop int) []market.Pivot {
	out := pivots[:0]
	for _, p := range pivots {
		if p.BarIndex < drop {
			continue
		}
		p.BarIndex -= drop
		out = append(out, p)
	}
	return out
}

func tailOf(pivots []market.Pivot, n int) []market.Pivot {
	if n <= 0 || len(pivots) == 0 {
		return nil
	}
	if n > len(pivots) {
		n = len(pivots)
	}
	out := make([]market.Pivot, n)
	copy(out, pivots[len(pivots)-n:])
	return out
}
