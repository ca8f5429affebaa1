package signal

import (
	"time"

	"dnse-trading-bot/internal/market"
)

// totalConditions is the number of conditions in the BUY rule.
const totalConditions = 4

// CheckPayload builds the per-bar analysis snapshot published as a
// signal_check event. It reflects the engine state after the bar that
// produced result was processed. MACD values are scaled to the display
// convention here; everything upstream works on raw values.
func (e *Engine) CheckPayload(result *CheckResult) map[string]interface{} {
	bar := e.LatestBar()
	snap := e.Indicators()

	payload := map[string]interface{}{
		"conditions_passed": len(result.Reasons),
		"total_conditions":  totalConditions,
		"passed":            stringsOrEmpty(result.Reasons),
		"failed":            stringsOrEmpty(result.Failed),
		"indicators": map[string]interface{}{
			"rsi":         floatOrNil(snap.RSI, 1),
			"macd":        floatOrNil(snap.MACD, macdDisplayScale),
			"macd_signal": floatOrNil(snap.MACDSignal, macdDisplayScale),
			"atr":         floatOrNil(snap.ATR, 1),
		},
		"analysis":  e.analysisPayload(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if bar != nil {
		payload["symbol"] = bar.Symbol
		payload["bar"] = *bar
	}
	return payload
}

func (e *Engine) analysisPayload() map[string]interface{} {
	trendResult := e.trend.Analyze(e.pivots.Lows(), e.pivots.Highs())

	analysis := map[string]interface{}{
		"pivot_lows":         pivotPoints(e.pivots.RecentLows(5)),
		"pivot_highs":        pivotPoints(e.pivots.RecentHighs(5)),
		"higher_lows_count":  trendResult.HigherLows,
		"higher_highs_count": trendResult.HigherHighs,
		"is_uptrend":         trendResult.IsUptrend,
		"trend_reason":       trendResult.Reason,
		"support_zone":       nil,
		"total_bars":         e.BarCount(),
	}

	if bar := e.LatestBar(); bar != nil {
		analysis["bar_low"] = bar.Low
		analysis["bar_high"] = bar.High
	}

	if snap := e.Indicators(); snap.ATR != nil {
		if zone := e.SupportZone(*snap.ATR); zone != nil {
			analysis["support_zone"] = map[string]interface{}{
				"pivot_price": zone.Pivot.Price,
				"zone_low":    zone.ZoneLow,
				"zone_high":   zone.ZoneHigh,
			}
		}
	}
	return analysis
}

func pivotPoints(pivots []market.Pivot) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(pivots))
	for _, p := range pivots {
		out = append(out, map[string]interface{}{
			"price": p.Price,
			"index": p.BarIndex,
		})
	}
	return out
}

func floatOrNil(v *float64, scale float64) interface{} {
	if v == nil {
		return nil
	}
	return *v / scale
}

func stringsOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
