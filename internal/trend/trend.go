package trend

import (
	"fmt"

	"dnse-trading-bot/internal/market"
)

// Result describes the zig-zag trend state derived from the pivot sequences.
type Result struct {
	IsUptrend   bool   `json:"is_uptrend"`
	HigherLows  int    `json:"higher_lows_count"`
	HigherHighs int    `json:"higher_highs_count"`
	Reason      string `json:"trend_reason"`
}

// Analyzer counts consecutive ascending pivots. An uptrend requires at
// least minHigherLows ascending pivot-low pairs and minHigherHighs
// ascending pivot-high pairs at the tail of each sequence.
type Analyzer struct {
	minHigherLows  int
	minHigherHighs int
}

// NewAnalyzer creates an analyzer with the standard requirement of three
// ascending pairs on each side.
func NewAnalyzer() *Analyzer {
	return &Analyzer{minHigherLows: 3, minHigherHighs: 3}
}

// Analyze evaluates the pivot sequences and returns the trend verdict with
// a reason suitable for the per-bar analysis snapshot.
func (a *Analyzer) Analyze(lows, highs []market.Pivot) Result {
	hl := countAscendingSuffix(lows)
	hh := countAscendingSuffix(highs)

	if hl >= a.minHigherLows && hh >= a.minHigherHighs {
		return Result{
			IsUptrend:   true,
			HigherLows:  hl,
			HigherHighs: hh,
			Reason:      fmt.Sprintf("Uptrend confirmed: %d higher lows + %d higher highs", hl, hh),
		}
	}
	return Result{
		HigherLows:  hl,
		HigherHighs: hh,
		Reason: fmt.Sprintf("No uptrend: insufficient higher lows (%d/%d), higher highs (%d/%d)",
			hl, a.minHigherLows, hh, a.minHigherHighs),
	}
}

// countAscendingSuffix returns the number of consecutive strictly ascending
// price pairs at the end of the pivot sequence.
func countAscendingSuffix(pivots []market.Pivot) int {
	count := 0
	for i := len(pivots) - 1; i > 0; i-- {
		if pivots[i].Price > pivots[i-1].Price {
			count++
		} else {
			break
		}
	}
	return count
}
