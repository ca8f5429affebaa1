package signal

import (
	"math"
	"strings"
	"testing"
	"time"

	"dnse-trading-bot/internal/indicators"
	"dnse-trading-bot/internal/market"
)

func ts(i int) time.Time {
	return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Hour)
}

// neutralBar is a plain rising bar that matches no pattern.
func neutralBar(i int, base float64) market.Bar {
	return market.Bar{
		Symbol: "VNM", Timeframe: "1H", Timestamp: ts(i),
		Open: base, High: base + 1.3, Low: base - 0.2, Close: base + 1,
	}
}

// hammerBar has a long lower shadow and closes near its high.
func hammerBar(i int, base float64) market.Bar {
	return market.Bar{
		Symbol: "VNM", Timeframe: "1H", Timestamp: ts(i),
		Open: base, High: base + 0.6, Low: base - 2, Close: base + 0.3,
	}
}

// starBar has a long upper shadow and closes near its low.
func starBar(i int, base float64) market.Bar {
	return market.Bar{
		Symbol: "VNM", Timeframe: "1H", Timestamp: ts(i),
		Open: base + 0.3, High: base + 2.3, Low: base - 0.1, Close: base,
	}
}

// buySetupBars builds a 17-bar vector: nine neutral rising bars for
// indicator warm-up, then alternating shooting stars and hammers that
// produce four ascending pivot-highs and four ascending pivot-lows, the
// last bar being the qualifying hammer.
func buySetupBars() []market.Bar {
	var bars []market.Bar
	for i := 0; i < 9; i++ {
		bars = append(bars, neutralBar(i, 100+float64(i)))
	}
	for i := 9; i < 17; i++ {
		base := 100 + float64(i)
		if i%2 == 1 {
			bars = append(bars, starBar(i, base))
		} else {
			bars = append(bars, hammerBar(i, base))
		}
	}
	return bars
}

// TestFullBuySignal feeds the qualifying vector and checks the emitted signal
func TestFullBuySignal(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil)
	bars := buySetupBars()

	var fired []*market.Signal
	var last *CheckResult
	for _, bar := range bars {
		last = engine.AddBar(bar)
		if last.ShouldSignal {
			fired = append(fired, last.Signal)
		}
	}

	if len(fired) != 1 {
		t.Fatalf("Expected exactly one signal, got %d", len(fired))
	}
	sig := fired[0]

	finalBar := bars[len(bars)-1]
	if sig.Entry != finalBar.Close {
		t.Errorf("Entry should be the final close %.2f, got %.2f", finalBar.Close, sig.Entry)
	}

	atr := indicators.CalculateATR(bars, 14)
	if atr == nil {
		t.Fatal("ATR must be defined for the setup vector")
	}
	// Previous pivot-low is the hammer at index 14: low = 114 - 2.
	wantSL := 112 - 0.05**atr
	if math.Abs(sig.StopLoss-wantSL) > 1e-9 {
		t.Errorf("Expected stop-loss %.4f below previous pivot-low, got %.4f", wantSL, sig.StopLoss)
	}
	wantTP := sig.Entry + 2*(sig.Entry-sig.StopLoss)
	if math.Abs(sig.TakeProfit-wantTP) > 1e-9 {
		t.Errorf("Expected take-profit %.4f, got %.4f", wantTP, sig.TakeProfit)
	}

	if !(sig.StopLoss < sig.Entry && sig.Entry < sig.TakeProfit) {
		t.Error("BUY signal must satisfy stopLoss < entry < takeProfit")
	}
	if sig.Status != market.StatusActive {
		t.Errorf("New signal should be ACTIVE, got %q", sig.Status)
	}
	if sig.OriginalSL != sig.StopLoss {
		t.Error("OriginalSL must equal the initial stop-loss")
	}
	if sig.Quantity != 100 {
		t.Errorf("Expected default quantity 100, got %d", sig.Quantity)
	}

	for _, want := range []string{"Uptrend", "support zone", "Bullish reversal", "Confirmation"} {
		if !strings.Contains(sig.Reason, want) {
			t.Errorf("Signal reason should mention %q:\n%s", want, sig.Reason)
		}
	}
	if len(last.Reasons) != 4 {
		t.Errorf("All four conditions should pass, got %d", len(last.Reasons))
	}
}

// TestInsufficientData tests the cold-start reason
func TestInsufficientData(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil)

	res := engine.AddBar(neutralBar(0, 100))
	if res.ShouldSignal {
		t.Fatal("One bar must never produce a signal")
	}
	if len(res.Failed) != 1 || res.Failed[0] != "Insufficient data" {
		t.Errorf("Expected the insufficient-data reason, got %v", res.Failed)
	}
}

// TestATRWarmupReason tests the explicit ATR warm-up failure
func TestATRWarmupReason(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil)

	engine.AddBar(neutralBar(0, 100))
	res := engine.AddBar(neutralBar(1, 101))
	if res.ShouldSignal {
		t.Fatal("Warm-up must never produce a signal")
	}
	if len(res.Failed) != 1 || res.Failed[0] != "ATR not available (need more data)" {
		t.Errorf("Expected the ATR warm-up reason, got %v", res.Failed)
	}
}

// TestConfirmationRSINotAvailable tests the RSI=N/A reason when ATR is
// warm but RSI is not
func TestConfirmationRSINotAvailable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Indicators.ATRPeriod = 2 // warm ATR quickly, leave RSI(14) cold
	engine := NewEngine(cfg, nil)

	var res *CheckResult
	for i := 0; i < 5; i++ {
		res = engine.AddBar(neutralBar(i, 100+float64(i)))
	}
	if res.ShouldSignal {
		t.Fatal("No signal expected during RSI warm-up")
	}

	found := false
	for _, f := range res.Failed {
		if strings.Contains(f, "RSI=N/A") {
			found = true
		}
	}
	if !found {
		t.Errorf("Confirmation failure should mention RSI=N/A, got %v", res.Failed)
	}
}

// TestBuildSignalFallbackStop tests the bar-low stop when no previous
// pivot-low exists
func TestBuildSignalFallbackStop(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil)

	bar := hammerBar(0, 100)
	sig := engine.buildSignal(bar, 10, []string{"reason"})
	want := bar.Low - 0.05*10
	if math.Abs(sig.StopLoss-want) > 1e-9 {
		t.Errorf("Expected fallback stop at bar low minus buffer %.4f, got %.4f", want, sig.StopLoss)
	}
}

// TestLoadBarsPrimesState tests that replaying history rebuilds pivots and
// the previous MACD snapshot
func TestLoadBarsPrimesState(t *testing.T) {
	bars := buySetupBars()

	replayed := NewEngine(DefaultConfig(), nil)
	replayed.LoadBars(bars[:len(bars)-1])
	res := replayed.AddBar(bars[len(bars)-1])
	if !res.ShouldSignal {
		t.Fatalf("Engine seeded via LoadBars should fire on the final bar: %v", res.Failed)
	}

	streamed := NewEngine(DefaultConfig(), nil)
	var streamRes *CheckResult
	for _, bar := range bars {
		streamRes = streamed.AddBar(bar)
	}
	if streamRes.Signal.StopLoss != res.Signal.StopLoss || streamRes.Signal.Entry != res.Signal.Entry {
		t.Error("Seeded and streamed engines should produce identical signals")
	}
}

// TestHistoryTrimRebasesPivots tests the bounded history window
func TestHistoryTrimRebasesPivots(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBars = 200
	engine := NewEngine(cfg, nil)

	for i := 0; i < 300; i++ {
		base := 100 + float64(i)
		if i%10 == 0 {
			engine.AddBar(hammerBar(i, base))
		} else {
			engine.AddBar(neutralBar(i, base))
		}
	}

	if engine.BarCount() != 200 {
		t.Fatalf("History should be capped at 200 bars, got %d", engine.BarCount())
	}
	for _, p := range engine.pivots.Lows() {
		if p.BarIndex < 0 || p.BarIndex >= engine.BarCount() {
			t.Fatalf("Rebased pivot index %d out of window", p.BarIndex)
		}
	}
}

// TestSetDefaultQuantity tests live quantity updates
func TestSetDefaultQuantity(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil)
	engine.SetDefaultQuantity(250)

	sig := engine.buildSignal(hammerBar(0, 100), 10, nil)
	if sig.Quantity != 250 {
		t.Errorf("Expected quantity 250 after update, got %d", sig.Quantity)
	}

	engine.SetDefaultQuantity(0)
	sig = engine.buildSignal(hammerBar(0, 100), 10, nil)
	if sig.Quantity != 250 {
		t.Error("Non-positive quantity must be ignored")
	}
}
