package indicators

import (
	"math"

	"dnse-trading-bot/internal/market"
)

// Config holds the indicator periods.
type Config struct {
	RSIPeriod  int `json:"rsi_period"`
	MACDFast   int `json:"macd_fast"`
	MACDSlow   int `json:"macd_slow"`
	MACDSignal int `json:"macd_signal"`
	ATRPeriod  int `json:"atr_period"`
}

// DefaultConfig returns the standard RSI(14), MACD(12/26/9), ATR(14) setup.
func DefaultConfig() Config {
	return Config{
		RSIPeriod:  14,
		MACDFast:   12,
		MACDSlow:   26,
		MACDSignal: 9,
		ATRPeriod:  14,
	}
}

// CalculateSMA returns the simple moving average of the last period values,
// or nil during warm-up.
func CalculateSMA(values []float64, period int) *float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	sma := sum / float64(period)
	return &sma
}

// CalculateEMA returns the full EMA series seeded with the SMA of the first
// period values. The first element corresponds to values[period-1]. Returns
// nil during warm-up.
func CalculateEMA(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	out := make([]float64, 0, len(values)-period+1)

	seed := 0.0
	for _, v := range values[:period] {
		seed += v
	}
	seed /= float64(period)
	out = append(out, seed)

	alpha := 2.0 / float64(period+1)
	ema := seed
	for _, v := range values[period:] {
		ema = v*alpha + ema*(1-alpha)
		out = append(out, ema)
	}
	return out
}

// CalculateRSI returns the Wilder-smoothed RSI of the close series, or nil
// until period+1 closes exist. Average gain and loss are seeded with the
// simple mean over the first period diffs. A zero average loss yields
// exactly 100.
func CalculateRSI(closes []float64, period int) *float64 {
	if period <= 0 || len(closes) < period+1 {
		return nil
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		diff := closes[i] - closes[i-1]
		if diff > 0 {
			avgGain += diff
		} else {
			avgLoss -= diff
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(closes); i++ {
		diff := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if diff > 0 {
			gain = diff
		} else {
			loss = -diff
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	rsi := 100.0
	if avgLoss > 0 {
		rs := avgGain / avgLoss
		rsi = 100.0 - 100.0/(1.0+rs)
	}
	return &rsi
}

// MACDResult holds one bar's MACD line, signal line and histogram. Values
// are raw EMA differences; any display scaling happens at the payload
// boundary.
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// CalculateMACD computes MACD(fast, slow, signalPeriod) over the close
// series and returns the latest values, or nil until slow+signalPeriod
// closes exist. The MACD line aligns the fast EMA onto the slow EMA's
// index range.
func CalculateMACD(closes []float64, fast, slow, signalPeriod int) *MACDResult {
	if fast <= 0 || slow <= fast || signalPeriod <= 0 {
		return nil
	}
	if len(closes) < slow+signalPeriod {
		return nil
	}

	fastEMA := CalculateEMA(closes, fast)
	slowEMA := CalculateEMA(closes, slow)

	offset := slow - fast
	macdLine := make([]float64, len(slowEMA))
	for i := range slowEMA {
		macdLine[i] = fastEMA[i+offset] - slowEMA[i]
	}

	signalLine := CalculateEMA(macdLine, signalPeriod)
	if signalLine == nil {
		return nil
	}

	macd := macdLine[len(macdLine)-1]
	sig := signalLine[len(signalLine)-1]
	return &MACDResult{
		MACD:      macd,
		Signal:    sig,
		Histogram: macd - sig,
	}
}

// CheckMACDCrossover reports a bullish crossover between two consecutive
// bars' MACD snapshots: previously at or below the signal line, now above.
// Either snapshot missing means no crossover.
func CheckMACDCrossover(cur, prev *MACDResult) bool {
	if cur == nil || prev == nil {
		return false
	}
	return prev.MACD <= prev.Signal && cur.MACD > cur.Signal
}

// trueRange returns the TR of bar i given its predecessor's close.
func trueRange(bar market.Bar, prevClose float64) float64 {
	tr := bar.High - bar.Low
	if v := math.Abs(bar.High - prevClose); v > tr {
		tr = v
	}
	if v := math.Abs(bar.Low - prevClose); v > tr {
		tr = v
	}
	return tr
}

// CalculateATR returns the arithmetic mean of the last period true ranges,
// or nil until period+1 bars exist.
func CalculateATR(bars []market.Bar, period int) *float64 {
	if period <= 0 || len(bars) < period+1 {
		return nil
	}
	sum := 0.0
	for i := len(bars) - period; i < len(bars); i++ {
		sum += trueRange(bars[i], bars[i-1].Close)
	}
	atr := sum / float64(period)
	return &atr
}

// CalculateATRSeries returns the Wilder-smoothed ATR series seeded with the
// SMA of the first period true ranges. The first element corresponds to
// bars[period]. This smoothing intentionally differs from the point value
// of CalculateATR; the two must not be compared against each other.
func CalculateATRSeries(bars []market.Bar, period int) []float64 {
	if period <= 0 || len(bars) < period+1 {
		return nil
	}

	trs := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		trs = append(trs, trueRange(bars[i], bars[i-1].Close))
	}

	seed := 0.0
	for _, tr := range trs[:period] {
		seed += tr
	}
	seed /= float64(period)

	out := make([]float64, 0, len(trs)-period+1)
	out = append(out, seed)
	atr := seed
	for _, tr := range trs[period:] {
		atr = (atr*float64(period-1) + tr) / float64(period)
		out = append(out, atr)
	}
	return out
}

// Snapshot computes all indicators over the bar history. Fields stay nil
// while their indicator is warming up.
func Snapshot(bars []market.Bar, cfg Config) market.IndicatorSnapshot {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	snap := market.IndicatorSnapshot{
		RSI: CalculateRSI(closes, cfg.RSIPeriod),
		ATR: CalculateATR(bars, cfg.ATRPeriod),
	}
	if macd := CalculateMACD(closes, cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal); macd != nil {
		snap.MACD = &macd.MACD
		snap.MACDSignal = &macd.Signal
		snap.MACDHistogram = &macd.Histogram
	}
	return snap
}
