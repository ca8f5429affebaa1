package trend

import (
	"strings"
	"testing"

	"dnse-trading-bot/internal/market"
)

func pivotsAt(prices ...float64) []market.Pivot {
	out := make([]market.Pivot, len(prices))
	for i, p := range prices {
		out[i] = market.Pivot{Price: p, BarIndex: i}
	}
	return out
}

// TestUptrendConfirmed tests the minimum qualifying sequences
func TestUptrendConfirmed(t *testing.T) {
	a := NewAnalyzer()

	res := a.Analyze(pivotsAt(10, 11, 12, 13), pivotsAt(20, 21, 22, 23))
	if !res.IsUptrend {
		t.Fatalf("Four ascending pivots on each side should confirm uptrend: %s", res.Reason)
	}
	if res.HigherLows != 3 || res.HigherHighs != 3 {
		t.Errorf("Expected 3/3 ascending pairs, got %d/%d", res.HigherLows, res.HigherHighs)
	}
	if res.Reason != "Uptrend confirmed: 3 higher lows + 3 higher highs" {
		t.Errorf("Unexpected reason: %q", res.Reason)
	}
}

// TestNoUptrendInsufficientPairs tests rejection below the threshold
func TestNoUptrendInsufficientPairs(t *testing.T) {
	a := NewAnalyzer()

	res := a.Analyze(pivotsAt(10, 11, 12), pivotsAt(20, 21, 22, 23))
	if res.IsUptrend {
		t.Fatal("Two ascending low pairs should not confirm uptrend")
	}
	if res.HigherLows != 2 {
		t.Errorf("Expected 2 higher lows, got %d", res.HigherLows)
	}
	if !strings.Contains(res.Reason, "insufficient higher lows (2/3)") {
		t.Errorf("Reason should name the failing count: %q", res.Reason)
	}
}

// TestSuffixResetOnLowerPivot tests that the count restarts after a break
func TestSuffixResetOnLowerPivot(t *testing.T) {
	a := NewAnalyzer()

	// Long ascent broken by a lower low, then two ascending pairs.
	res := a.Analyze(pivotsAt(10, 11, 12, 13, 9, 10, 11), pivotsAt(20, 21, 22, 23))
	if res.IsUptrend {
		t.Fatal("Break in the low sequence should reset the suffix count")
	}
	if res.HigherLows != 2 {
		t.Errorf("Expected suffix count 2 after the break, got %d", res.HigherLows)
	}
}

// TestEqualPricesNotAscending tests strict monotonicity
func TestEqualPricesNotAscending(t *testing.T) {
	a := NewAnalyzer()

	res := a.Analyze(pivotsAt(10, 11, 11, 12), pivotsAt(20, 21, 22, 23))
	if res.HigherLows != 1 {
		t.Errorf("Equal prices must not count as ascending, got %d", res.HigherLows)
	}
}

// TestEmptyPivots tests the cold-start state
func TestEmptyPivots(t *testing.T) {
	a := NewAnalyzer()

	res := a.Analyze(nil, nil)
	if res.IsUptrend {
		t.Fatal("No pivots should never be an uptrend")
	}
	if res.HigherLows != 0 || res.HigherHighs != 0 {
		t.Errorf("Expected 0/0 counts, got %d/%d", res.HigherLows, res.HigherHighs)
	}
}
