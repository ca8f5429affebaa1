package signal

import (
	"math"
	"testing"

	"dnse-trading-bot/internal/indicators"
	"dnse-trading-bot/internal/market"
)

// TestCheckPayloadShape tests the analysis snapshot contents
func TestCheckPayloadShape(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil)
	bars := buySetupBars()

	var res *CheckResult
	for _, bar := range bars {
		res = engine.AddBar(bar)
	}

	payload := engine.CheckPayload(res)

	if payload["symbol"] != "VNM" {
		t.Errorf("Expected symbol VNM, got %v", payload["symbol"])
	}
	if payload["conditions_passed"] != 4 {
		t.Errorf("Expected 4 passed conditions, got %v", payload["conditions_passed"])
	}
	if payload["total_conditions"] != 4 {
		t.Errorf("Expected total_conditions 4, got %v", payload["total_conditions"])
	}

	analysis, ok := payload["analysis"].(map[string]interface{})
	if !ok {
		t.Fatal("Payload must carry an analysis map")
	}
	if analysis["is_uptrend"] != true {
		t.Error("Analysis should report the uptrend")
	}
	if analysis["higher_lows_count"] != 3 || analysis["higher_highs_count"] != 3 {
		t.Errorf("Expected 3/3 trend counts, got %v/%v",
			analysis["higher_lows_count"], analysis["higher_highs_count"])
	}
	if analysis["total_bars"] != len(bars) {
		t.Errorf("Expected total_bars %d, got %v", len(bars), analysis["total_bars"])
	}

	lows, ok := analysis["pivot_lows"].([]map[string]interface{})
	if !ok || len(lows) != 4 {
		t.Fatalf("Expected 4 pivot lows in the tail, got %v", analysis["pivot_lows"])
	}
	if lows[len(lows)-1]["price"] != 114.0 {
		t.Errorf("Last pivot-low should be 114, got %v", lows[len(lows)-1]["price"])
	}

	zone, ok := analysis["support_zone"].(map[string]interface{})
	if !ok {
		t.Fatal("Support zone should be present after pivots formed")
	}
	if zone["pivot_price"] != 114.0 {
		t.Errorf("Zone should center on the last pivot-low 114, got %v", zone["pivot_price"])
	}
}

// TestCheckPayloadMACDScaling tests the display scaling at the boundary
func TestCheckPayloadMACDScaling(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil)

	var bars []market.Bar
	var res *CheckResult
	for i := 0; i < 40; i++ {
		bar := neutralBar(i, 100+float64(i))
		bars = append(bars, bar)
		res = engine.AddBar(bar)
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	raw := indicators.CalculateMACD(closes, 12, 26, 9)
	if raw == nil {
		t.Fatal("MACD should be defined over 40 closes")
	}

	ind := engine.CheckPayload(res)["indicators"].(map[string]interface{})
	macd, ok := ind["macd"].(float64)
	if !ok {
		t.Fatal("Payload MACD should be a number")
	}
	if math.Abs(macd-raw.MACD/1000) > 1e-12 {
		t.Errorf("Payload MACD must be raw/1000: raw=%.6f payload=%.6f", raw.MACD, macd)
	}
	if ind["rsi"] == nil || ind["atr"] == nil {
		t.Error("RSI and ATR should be present unscaled")
	}
}

// TestCheckPayloadWarmup tests nil indicator fields during warm-up
func TestCheckPayloadWarmup(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil)
	res := engine.AddBar(neutralBar(0, 100))

	payload := engine.CheckPayload(res)
	ind := payload["indicators"].(map[string]interface{})
	if ind["rsi"] != nil || ind["macd"] != nil || ind["atr"] != nil {
		t.Error("Indicator fields should be nil during warm-up")
	}
	if payload["conditions_passed"] != 0 {
		t.Errorf("No conditions should pass on the first bar, got %v", payload["conditions_passed"])
	}
}
