package pivots

import (
	"testing"
	"time"

	"dnse-trading-bot/internal/market"
	"dnse-trading-bot/internal/patterns"
)

func barAt(i int, open, high, low, close float64) market.Bar {
	return market.Bar{
		Symbol:    "VNM",
		Timeframe: "1H",
		Timestamp: time.Date(2024, 1, 1, i, 0, 0, 0, time.UTC),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
	}
}

// TestProcessBarPivotLow tests that a hammer at the tail produces a pivot-low
func TestProcessBarPivotLow(t *testing.T) {
	d := NewDetector(patterns.DefaultConfig())

	bars := []market.Bar{
		barAt(0, 102, 103, 101, 101.5),
		barAt(1, 100, 101, 95, 100.5), // hammer
	}
	pivot := d.ProcessBar(bars, 1)
	if pivot == nil {
		t.Fatal("Expected a pivot from hammer bar")
	}
	if pivot.Type != market.PivotLow {
		t.Errorf("Expected pivot-low, got %q", pivot.Type)
	}
	if pivot.Price != 95 {
		t.Errorf("Pivot-low price should be bar low 95, got %.2f", pivot.Price)
	}
	if pivot.BarIndex != 1 {
		t.Errorf("Expected bar index 1, got %d", pivot.BarIndex)
	}
	if pivot.Pattern != market.PatternHammer {
		t.Errorf("Expected Hammer pattern, got %q", pivot.Pattern)
	}
}

// TestProcessBarPivotHigh tests that a shooting star produces a pivot-high
func TestProcessBarPivotHigh(t *testing.T) {
	d := NewDetector(patterns.DefaultConfig())

	bars := []market.Bar{
		barAt(0, 99, 100, 98, 99.5),
		barAt(1, 100.5, 105, 100, 100), // shooting star
	}
	pivot := d.ProcessBar(bars, 1)
	if pivot == nil {
		t.Fatal("Expected a pivot from shooting star bar")
	}
	if pivot.Type != market.PivotHigh {
		t.Errorf("Expected pivot-high, got %q", pivot.Type)
	}
	if pivot.Price != 105 {
		t.Errorf("Pivot-high price should be bar high 105, got %.2f", pivot.Price)
	}
}

// TestProcessBarNeedsHistory tests that the first bar never pivots
func TestProcessBarNeedsHistory(t *testing.T) {
	d := NewDetector(patterns.DefaultConfig())

	bars := []market.Bar{barAt(0, 100, 101, 95, 100.5)} // hammer shape
	if pivot := d.ProcessBar(bars, 0); pivot != nil {
		t.Error("First bar should not produce a pivot")
	}
	if len(d.Lows()) != 0 || len(d.Highs()) != 0 {
		t.Error("Detector should hold no pivots after a single bar")
	}
}

// TestBarIndexStrictlyIncreasing tests the pivot ordering invariant
func TestBarIndexStrictlyIncreasing(t *testing.T) {
	d := NewDetector(patterns.DefaultConfig())

	var bars []market.Bar
	base := 100.0
	for i := 0; i < 20; i++ {
		var bar market.Bar
		if i%2 == 0 {
			bar = barAt(i, base, base+1, base-5, base+0.5) // hammer
		} else {
			bar = barAt(i, base+0.5, base+5, base, base) // shooting star
		}
		bars = append(bars, bar)
		d.ProcessBar(bars, i)
		base += 2
	}

	for _, pivots := range [][]market.Pivot{d.Lows(), d.Highs()} {
		for i := 1; i < len(pivots); i++ {
			if pivots[i].BarIndex <= pivots[i-1].BarIndex {
				t.Fatalf("Pivot bar indices must be strictly increasing: %d then %d",
					pivots[i-1].BarIndex, pivots[i].BarIndex)
			}
		}
	}
}

// TestLastAndPreviousLow tests the accessors used for stop placement
func TestLastAndPreviousLow(t *testing.T) {
	d := NewDetector(patterns.DefaultConfig())

	if d.LastLow() != nil || d.PreviousLow() != nil {
		t.Fatal("Empty detector should have no last or previous low")
	}

	var bars []market.Bar
	lows := []float64{95, 97, 99}
	base := 100.0
	for i, lo := range lows {
		bars = append(bars, barAt(2*i, base+3, base+4, base+2, base+2.5))
		d.ProcessBar(bars, len(bars)-1)
		bars = append(bars, barAt(2*i+1, base, base+1, lo, base+0.5)) // hammer
		d.ProcessBar(bars, len(bars)-1)
		base += 2
	}

	last := d.LastLow()
	if last == nil || last.Price != 99 {
		t.Fatalf("Expected last pivot-low at 99, got %+v", last)
	}
	prev := d.PreviousLow()
	if prev == nil || prev.Price != 97 {
		t.Fatalf("Expected previous pivot-low at 97, got %+v", prev)
	}

	recent := d.RecentLows(2)
	if len(recent) != 2 || recent[0].Price != 97 || recent[1].Price != 99 {
		t.Errorf("RecentLows(2) should return [97 99] in order, got %+v", recent)
	}
}
