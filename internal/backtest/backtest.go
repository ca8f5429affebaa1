// Package backtest replays historical bars through the signal engine and
// simulates taking every generated signal, producing a performance report.
package backtest

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"dnse-trading-bot/internal/logging"
	"dnse-trading-bot/internal/market"
	"dnse-trading-bot/internal/signal"
)

// Trade is one completed round trip.
type Trade struct {
	Signal     market.Signal `json:"signal"`
	EntryTime  time.Time     `json:"entry_time"`
	ExitTime   time.Time     `json:"exit_time"`
	EntryPrice float64       `json:"entry_price"`
	ExitPrice  float64       `json:"exit_price"`
	Quantity   int           `json:"quantity"`
	PnL        float64       `json:"pnl"`
	PnLPercent float64       `json:"pnl_percent"`
	ExitReason string        `json:"exit_reason"` // TP or SL
}

// EquityPoint is one sample of the equity curve, taken after every bar.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// Result is the backtest performance report.
type Result struct {
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	InitialCapital float64   `json:"initial_capital"`
	FinalCapital   float64   `json:"final_capital"`

	TotalTrades   int `json:"total_trades"`
	WinningTrades int `json:"winning_trades"`
	LosingTrades  int `json:"losing_trades"`

	TotalPnL        float64 `json:"total_pnl"`
	TotalPnLPercent float64 `json:"total_pnl_percent"`

	MaxDrawdown        float64 `json:"max_drawdown"`
	MaxDrawdownPercent float64 `json:"max_drawdown_percent"`

	WinRate      float64 `json:"win_rate"`
	ProfitFactor float64 `json:"profit_factor"`
	AverageWin   float64 `json:"average_win"`
	AverageLoss  float64 `json:"average_loss"`

	Trades      []Trade       `json:"trades"`
	EquityCurve []EquityPoint `json:"equity_curve"`
}

// Config holds backtest settings.
type Config struct {
	InitialCapital      float64       `json:"initial_capital"`
	PositionSizePercent float64       `json:"position_size_percent"`
	Engine              signal.Config `json:"engine"`
}

// DefaultConfig sizes for the Vietnamese market: 100M VND capital, 10%
// per position.
func DefaultConfig() Config {
	return Config{
		InitialCapital:      100_000_000,
		PositionSizePercent: 10.0,
		Engine:              signal.DefaultConfig(),
	}
}

// Engine simulates the strategy over a bar vector. At most one open
// position per symbol; exits are evaluated before the bar feeds the
// signal engine, so a signal can never exit on its own bar.
type Engine struct {
	cfg    Config
	logger *logging.Logger

	capital     float64
	peakCapital float64
	maxDrawdown float64
	positions   map[string]*market.Signal
	trades      []Trade
	equity      []EquityPoint
}

// New creates a backtest engine.
func New(cfg Config, logger *logging.Logger) *Engine {
	if cfg.InitialCapital <= 0 {
		cfg.InitialCapital = 100_000_000
	}
	if cfg.PositionSizePercent <= 0 {
		cfg.PositionSizePercent = 10.0
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		cfg:    cfg,
		logger: logger.WithComponent("backtest"),
	}
}

// Run replays the bars, oldest first, and returns the report. Input order
// for equal timestamps is preserved, so identical input yields an
// identical trade list and equity curve.
func (e *Engine) Run(bars []market.Bar) *Result {
	e.reset()

	if len(bars) == 0 {
		now := time.Now().UTC()
		return &Result{
			StartDate: now, EndDate: now,
			InitialCapital: e.cfg.InitialCapital,
			FinalCapital:   e.cfg.InitialCapital,
		}
	}

	ordered := append([]market.Bar(nil), bars...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	engines := make(map[string]*signal.Engine)

	e.logger.Info("Starting backtest", "bars", len(ordered))

	for _, bar := range ordered {
		e.checkPosition(bar)

		eng, ok := engines[bar.Symbol]
		if !ok {
			eng = signal.NewEngine(e.cfg.Engine, e.logger)
			engines[bar.Symbol] = eng
		}

		result := eng.AddBar(bar)
		if result.ShouldSignal {
			e.openPosition(*result.Signal)
		}

		e.equity = append(e.equity, EquityPoint{Timestamp: bar.Timestamp, Equity: e.capital})

		if e.capital > e.peakCapital {
			e.peakCapital = e.capital
		}
		if dd := (e.peakCapital - e.capital) / e.peakCapital; dd > e.maxDrawdown {
			e.maxDrawdown = dd
		}
	}

	return e.buildResult(ordered)
}

func (e *Engine) reset() {
	e.capital = e.cfg.InitialCapital
	e.peakCapital = e.cfg.InitialCapital
	e.maxDrawdown = 0
	e.positions = make(map[string]*market.Signal)
	e.trades = nil
	e.equity = nil
}

// checkPosition tests the symbol's open position against the bar: stop
// first, then target, then the move-to-breakeven rule. The stop wins when
// a bar straddles both levels.
func (e *Engine) checkPosition(bar market.Bar) {
	sig, ok := e.positions[bar.Symbol]
	if !ok {
		return
	}

	var exitPrice float64
	var exitReason string
	switch {
	case bar.Low <= sig.StopLoss:
		exitPrice, exitReason = sig.StopLoss, "SL"
	case bar.High >= sig.TakeProfit:
		exitPrice, exitReason = sig.TakeProfit, "TP"
	case sig.Status == market.StatusActive && bar.High >= sig.BreakevenPrice():
		sig.StopLoss = sig.Entry
		sig.Status = market.StatusBreakeven
		e.logger.Debug("Stop moved to breakeven", "symbol", sig.Symbol, "stop_loss", sig.StopLoss)
		return
	default:
		return
	}

	pnl := (exitPrice - sig.Entry) * float64(sig.Quantity)
	e.trades = append(e.trades, Trade{
		Signal:     *sig,
		EntryTime:  sig.Timestamp,
		ExitTime:   bar.Timestamp,
		EntryPrice: sig.Entry,
		ExitPrice:  exitPrice,
		Quantity:   sig.Quantity,
		PnL:        pnl,
		PnLPercent: (exitPrice - sig.Entry) / sig.Entry * 100,
		ExitReason: exitReason,
	})
	e.capital += pnl
	delete(e.positions, bar.Symbol)

	e.logger.Debug("Position closed",
		"symbol", sig.Symbol, "exit", exitPrice, "reason", exitReason, "pnl", pnl)
}

// openPosition sizes and opens a position for a fresh signal. Symbols
// with an open position and positions that would round to zero shares are
// skipped.
func (e *Engine) openPosition(sig market.Signal) {
	if _, ok := e.positions[sig.Symbol]; ok {
		return
	}

	positionValue := e.capital * e.cfg.PositionSizePercent / 100
	quantity := int(positionValue / sig.Entry)
	if quantity <= 0 {
		return
	}

	sig.Quantity = quantity
	e.positions[sig.Symbol] = &sig
	e.logger.Debug("Position opened", "symbol", sig.Symbol, "quantity", quantity, "entry", sig.Entry)
}

func (e *Engine) buildResult(bars []market.Bar) *Result {
	r := &Result{
		StartDate:          bars[0].Timestamp,
		EndDate:            bars[len(bars)-1].Timestamp,
		InitialCapital:     e.cfg.InitialCapital,
		FinalCapital:       e.capital,
		TotalPnL:           e.capital - e.cfg.InitialCapital,
		TotalPnLPercent:    (e.capital - e.cfg.InitialCapital) / e.cfg.InitialCapital * 100,
		MaxDrawdown:        e.maxDrawdown * e.cfg.InitialCapital,
		MaxDrawdownPercent: e.maxDrawdown * 100,
		Trades:             e.trades,
		EquityCurve:        e.equity,
	}
	r.calculateMetrics()
	return r
}

// calculateMetrics derives the aggregate statistics from the trade list.
// A trade with zero PnL (a breakeven stop-out) counts as a loss.
func (r *Result) calculateMetrics() {
	if len(r.Trades) == 0 {
		return
	}

	r.TotalTrades = len(r.Trades)

	var totalWins, totalLosses float64
	for _, t := range r.Trades {
		if t.PnL > 0 {
			r.WinningTrades++
			totalWins += t.PnL
		} else {
			r.LosingTrades++
			totalLosses += math.Abs(t.PnL)
		}
	}

	r.WinRate = float64(r.WinningTrades) / float64(r.TotalTrades) * 100

	if totalLosses > 0 {
		r.ProfitFactor = totalWins / totalLosses
	} else {
		r.ProfitFactor = math.Inf(1)
	}

	if r.WinningTrades > 0 {
		r.AverageWin = totalWins / float64(r.WinningTrades)
	}
	if r.LosingTrades > 0 {
		r.AverageLoss = totalLosses / float64(r.LosingTrades)
	}
}

// Report renders the result as a plain-text summary for the CLI.
func (r *Result) Report() string {
	var b strings.Builder
	line := strings.Repeat("=", 50)
	thin := strings.Repeat("-", 50)

	fmt.Fprintln(&b, line)
	fmt.Fprintln(&b, "BACKTEST REPORT")
	fmt.Fprintln(&b, line)
	fmt.Fprintf(&b, "Period: %s -> %s\n", r.StartDate.Format("2006-01-02"), r.EndDate.Format("2006-01-02"))
	fmt.Fprintf(&b, "Initial Capital: %.0f\n", r.InitialCapital)
	fmt.Fprintf(&b, "Final Capital:   %.0f\n", r.FinalCapital)
	fmt.Fprintln(&b, thin)
	fmt.Fprintf(&b, "Total PnL: %.0f (%.2f%%)\n", r.TotalPnL, r.TotalPnLPercent)
	fmt.Fprintf(&b, "Max Drawdown: %.2f%%\n", r.MaxDrawdownPercent)
	fmt.Fprintln(&b, thin)
	fmt.Fprintf(&b, "Total Trades: %d\n", r.TotalTrades)
	fmt.Fprintf(&b, "Win Rate: %.1f%%\n", r.WinRate)
	fmt.Fprintf(&b, "Profit Factor: %.2f\n", r.ProfitFactor)
	fmt.Fprintf(&b, "Avg Win:  %.0f\n", r.AverageWin)
	fmt.Fprintf(&b, "Avg Loss: %.0f\n", r.AverageLoss)
	fmt.Fprintln(&b, line)
	return b.String()
}
