package signal

import (
	"fmt"
	"strings"

	"dnse-trading-bot/internal/indicators"
	"dnse-trading-bot/internal/logging"
	"dnse-trading-bot/internal/market"
	"dnse-trading-bot/internal/patterns"
	"dnse-trading-bot/internal/pivots"
	"dnse-trading-bot/internal/trend"
)

// macdDisplayScale converts raw EMA differences to the display convention
// used in payloads. Crossover detection always runs on raw values.
const macdDisplayScale = 1000.0

// defaultMaxBars bounds the per-symbol history kept by the engine.
const defaultMaxBars = 500

// Config holds the signal rule parameters.
type Config struct {
	ZoneWidthATRMult float64            `json:"zone_width_atr_multiplier"`
	SLBufferATRMult  float64            `json:"sl_buffer_atr_multiplier"`
	RiskRewardRatio  float64            `json:"risk_reward_ratio"`
	DefaultQuantity  int                `json:"default_quantity"`
	MaxBars          int                `json:"max_bars"`
	Indicators       indicators.Config  `json:"indicators"`
	Patterns         patterns.Config    `json:"-"`
}

// DefaultConfig returns the standard rule parameters.
func DefaultConfig() Config {
	return Config{
		ZoneWidthATRMult: 0.2,
		SLBufferATRMult:  0.05,
		RiskRewardRatio:  2.0,
		DefaultQuantity:  100,
		MaxBars:          defaultMaxBars,
		Indicators:       indicators.DefaultConfig(),
		Patterns:         patterns.DefaultConfig(),
	}
}

// CheckResult is the outcome of evaluating the BUY rule on one bar.
type CheckResult struct {
	ShouldSignal bool
	Signal       *market.Signal
	Reasons      []string
	Failed       []string
}

// Engine evaluates the four-condition BUY rule over a single symbol's bar
// stream. It is not safe for concurrent use; each pipeline worker owns
// exactly one engine.
type Engine struct {
	cfg      Config
	detector *patterns.Detector
	pivots   *pivots.Detector
	trend    *trend.Analyzer
	logger   *logging.Logger

	bars     []market.Bar
	prevMACD *indicators.MACDResult
}

// NewEngine creates an engine with the given rule parameters.
func NewEngine(cfg Config, logger *logging.Logger) *Engine {
	if cfg.MaxBars < 200 {
		cfg.MaxBars = defaultMaxBars
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		cfg:      cfg,
		detector: patterns.NewDetector(cfg.Patterns),
		pivots:   pivots.NewDetector(cfg.Patterns),
		trend:    trend.NewAnalyzer(),
		logger:   logger.WithComponent("signal-engine"),
	}
}

// AddBar appends a closed bar, updates pivots, evaluates the BUY rule and
// returns the check result. The previous MACD snapshot is advanced after
// the check so the crossover predicate compares consecutive bars.
func (e *Engine) AddBar(bar market.Bar) *CheckResult {
	e.bars = append(e.bars, bar)
	e.trimHistory()
	e.pivots.ProcessBar(e.bars, len(e.bars)-1)

	result := e.CheckSignal()

	e.prevMACD = indicators.CalculateMACD(
		e.closes(),
		e.cfg.Indicators.MACDFast, e.cfg.Indicators.MACDSlow, e.cfg.Indicators.MACDSignal,
	)
	return result
}

// CheckSignal evaluates the four conditions against the current state.
func (e *Engine) CheckSignal() *CheckResult {
	if len(e.bars) < 2 {
		return &CheckResult{Failed: []string{"Insufficient data"}}
	}

	currentBar := e.bars[len(e.bars)-1]
	snap := indicators.Snapshot(e.bars, e.cfg.Indicators)
	if snap.ATR == nil {
		return &CheckResult{Failed: []string{"ATR not available (need more data)"}}
	}
	atr := *snap.ATR

	var reasons, failed []string

	// Condition 1: uptrend
	trendResult := e.trend.Analyze(e.pivots.Lows(), e.pivots.Highs())
	if trendResult.IsUptrend {
		reasons = append(reasons, "✓ Uptrend: "+trendResult.Reason)
	} else {
		failed = append(failed, trendResult.Reason)
	}

	// Condition 2: price touches the support zone
	zone := e.SupportZone(atr)
	if zone == nil {
		failed = append(failed, "No support zone available")
	} else if zone.ContainsPrice(currentBar.Low, currentBar.High) {
		reasons = append(reasons, fmt.Sprintf("✓ Price in support zone [%.2f - %.2f]", zone.ZoneLow, zone.ZoneHigh))
	} else {
		failed = append(failed, fmt.Sprintf("Price not in support zone [%.2f - %.2f]", zone.ZoneLow, zone.ZoneHigh))
	}

	// Condition 3: bullish reversal pattern at the tail
	pattern := e.detector.DetectBullishReversal(e.bars)
	if pattern != market.PatternNone {
		reasons = append(reasons, fmt.Sprintf("✓ Bullish reversal: %s", pattern))
	} else {
		failed = append(failed, "No bullish reversal pattern")
	}

	// Condition 4: confirmation, MACD crossover or RSI above 50
	currentMACD := indicators.CalculateMACD(
		e.closes(),
		e.cfg.Indicators.MACDFast, e.cfg.Indicators.MACDSlow, e.cfg.Indicators.MACDSignal,
	)
	switch {
	case indicators.CheckMACDCrossover(currentMACD, e.prevMACD):
		reasons = append(reasons, "✓ Confirmation: MACD bullish crossover")
	case snap.RSI != nil && *snap.RSI > 50:
		reasons = append(reasons, fmt.Sprintf("✓ Confirmation: RSI > 50 (%.1f)", *snap.RSI))
	default:
		rsiStr := "N/A"
		if snap.RSI != nil {
			rsiStr = fmt.Sprintf("%.1f", *snap.RSI)
		}
		failed = append(failed, fmt.Sprintf("No confirmation (MACD no cross, RSI=%s)", rsiStr))
	}

	if len(failed) > 0 || len(reasons) < 4 {
		return &CheckResult{Reasons: reasons, Failed: failed}
	}

	sig := e.buildSignal(currentBar, atr, reasons)
	if sig.StopLoss >= sig.Entry {
		e.logger.Error("Suppressing signal with stop-loss above entry",
			"symbol", sig.Symbol, "entry", sig.Entry, "stop_loss", sig.StopLoss)
		failed = append(failed, fmt.Sprintf("Invalid stop-loss %.2f >= entry %.2f", sig.StopLoss, sig.Entry))
		return &CheckResult{Reasons: reasons, Failed: failed}
	}

	return &CheckResult{ShouldSignal: true, Signal: &sig, Reasons: reasons}
}

// SupportZone derives the zone from the latest pivot-low, or nil if none
// exists yet.
func (e *Engine) SupportZone(atr float64) *market.SupportZone {
	last := e.pivots.LastLow()
	if last == nil {
		return nil
	}
	width := e.cfg.ZoneWidthATRMult * atr
	return &market.SupportZone{
		Pivot:    *last,
		ZoneLow:  last.Price - width,
		ZoneHigh: last.Price + width,
	}
}

func (e *Engine) buildSignal(bar market.Bar, atr float64, reasons []string) market.Signal {
	entry := bar.Close

	// Stop goes below the previous pivot-low when one exists, otherwise
	// below the current bar's low.
	var sl float64
	if prev := e.pivots.PreviousLow(); prev != nil {
		sl = prev.Price - e.cfg.SLBufferATRMult*atr
	} else {
		sl = bar.Low - e.cfg.SLBufferATRMult*atr
	}

	risk := entry - sl
	tp := entry + e.cfg.RiskRewardRatio*risk

	return market.Signal{
		Symbol:     bar.Symbol,
		Type:       market.SignalBuy,
		Timestamp:  bar.Timestamp,
		Entry:      entry,
		StopLoss:   sl,
		TakeProfit: tp,
		Quantity:   e.cfg.DefaultQuantity,
		Status:     market.StatusActive,
		Reason:     strings.Join(reasons, "\n"),
		OriginalSL: sl,
	}
}

// LoadBars replays historical bars through the pivot detector and primes
// the previous MACD snapshot, without emitting any check results.
func (e *Engine) LoadBars(bars []market.Bar) {
	e.Reset()
	for _, bar := range bars {
		e.bars = append(e.bars, bar)
		e.pivots.ProcessBar(e.bars, len(e.bars)-1)
	}
	e.trimHistory()

	if len(e.bars) > 0 {
		e.prevMACD = indicators.CalculateMACD(
			e.closes(),
			e.cfg.Indicators.MACDFast, e.cfg.Indicators.MACDSlow, e.cfg.Indicators.MACDSignal,
		)
	}
}

// Reset drops all engine state.
func (e *Engine) Reset() {
	e.bars = nil
	e.prevMACD = nil
	e.pivots.Reset()
}

// SetDefaultQuantity changes the quantity stamped on future signals.
func (e *Engine) SetDefaultQuantity(qty int) {
	if qty > 0 {
		e.cfg.DefaultQuantity = qty
	}
}

// BarCount returns the current history length.
func (e *Engine) BarCount() int {
	return len(e.bars)
}

// LatestBar returns the most recent bar, or nil on a cold engine.
func (e *Engine) LatestBar() *market.Bar {
	if len(e.bars) == 0 {
		return nil
	}
	b := e.bars[len(e.bars)-1]
	return &b
}

// Indicators recomputes the indicator snapshot over the current history.
func (e *Engine) Indicators() market.IndicatorSnapshot {
	return indicators.Snapshot(e.bars, e.cfg.Indicators)
}

func (e *Engine) closes() []float64 {
	closes := make([]float64, len(e.bars))
	for i, b := range e.bars {
		closes[i] = b.Close
	}
	return closes
}

// trimHistory enforces the bar cap. Pivot indices are rebased so they keep
// pointing at the same bars; pivots that fall off the window are dropped.
func (e *Engine) trimHistory() {
	if len(e.bars) <= e.cfg.MaxBars {
		return
	}
	drop := len(e.bars) - e.cfg.MaxBars
	e.bars = append(e.bars[:0], e.bars[drop:]...)
	e.pivots.Rebase(drop)
}
