package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dnse-trading-bot/internal/database"
	"dnse-trading-bot/internal/logging"
	"dnse-trading-bot/internal/market"
	"dnse-trading-bot/internal/signal"
)

// worker processes one symbol's bar stream sequentially. All engine and
// tracker access happens on the worker goroutine; only the inbox, control
// channels and the lastCheck copy are shared.
type worker struct {
	symbol string
	m      *Manager
	engine *signal.Engine
	opens  *breakevenTracker
	logger *logging.Logger

	inbox  chan market.Bar
	qtyCh  chan int
	snapCh chan chan market.IndicatorSnapshot

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	lastCheck map[string]interface{}
}

func newWorker(symbol string, m *Manager) *worker {
	ctx, cancel := context.WithCancel(m.ctx)
	logger := m.logger.WithField("symbol", symbol)
	return &worker{
		symbol: symbol,
		m:      m,
		engine: signal.NewEngine(m.cfg.Engine, logger),
		opens:  newBreakevenTracker(),
		logger: logger,
		inbox:  make(chan market.Bar, m.cfg.InboxSize),
		qtyCh:  make(chan int, 1),
		snapCh: make(chan chan market.IndicatorSnapshot),
		ctx:    ctx,
		cancel: cancel,
	}
}

// seed primes the engine with historical bars and loads open signals so
// the breakeven tracker resumes where the previous run stopped. Seeding
// failures degrade to a cold start, never an error.
func (w *worker) seed(ctx context.Context) {
	bars := w.loadHistory(ctx)
	if len(bars) > 0 {
		w.engine.LoadBars(bars)
		w.logger.Info("Engine seeded from history", "bars", len(bars))
	}

	rows, err := w.m.store.GetOpenSignals(ctx, w.symbol)
	if err != nil {
		w.logger.Warn("Cannot load open signals", "error", err.Error())
		return
	}
	for _, row := range rows {
		w.opens.Track(row.Signal())
	}
	if len(rows) > 0 {
		w.logger.Info("Resumed open signals", "count", len(rows))
	}
}

func (w *worker) loadHistory(ctx context.Context) []market.Bar {
	rows, err := w.m.store.GetBars(ctx, w.symbol, w.m.cfg.Timeframe, w.m.cfg.HistoryBars)
	if err != nil {
		w.logger.Warn("Cannot load stored bars", "error", err.Error())
	}
	if len(rows) > 0 {
		bars := make([]market.Bar, len(rows))
		for i, row := range rows {
			bars[i] = row.Bar()
		}
		return bars
	}

	if w.m.history == nil {
		return nil
	}
	bars, err := w.m.history.FetchHistory(ctx, w.symbol, w.m.cfg.Timeframe, w.m.cfg.HistoryBars)
	if err != nil {
		w.logger.Warn("Cannot fetch history", "error", err.Error())
		return nil
	}
	if len(bars) > 0 {
		rows := make([]database.BarRow, len(bars))
		for i, bar := range bars {
			rows[i] = database.BarRowFrom(bar)
		}
		if err := w.m.store.SaveBars(ctx, rows); err != nil {
			w.logger.Warn("Cannot persist fetched history", "error", err.Error())
		}
	}
	return bars
}

func (w *worker) run() {
	for {
		select {
		case <-w.ctx.Done():
			return
		case bar := <-w.inbox:
			w.processBar(bar)
		case qty := <-w.qtyCh:
			w.engine.SetDefaultQuantity(qty)
		case reply := <-w.snapCh:
			reply <- w.engine.Indicators()
		}
	}
}

func (w *worker) stop() {
	w.cancel()
}

// enqueue never blocks the feed callback: when the inbox is full the
// oldest queued bar is shed to make room for the newest.
func (w *worker) enqueue(bar market.Bar) {
	select {
	case w.inbox <- bar:
		return
	default:
	}

	select {
	case dropped := <-w.inbox:
		w.logger.Warn("Inbox full, dropping oldest bar", "dropped_ts", dropped.Timestamp.Format(time.RFC3339))
	default:
	}
	select {
	case w.inbox <- bar:
	default:
	}
}

// processBar runs the full per-bar sequence: validate, persist, publish
// the bar, manage open stops, evaluate the rule, publish the analysis and
// finally any generated signal. The next bar is not touched until all of
// this completed.
func (w *worker) processBar(bar market.Bar) {
	if err := bar.Validate(); err != nil {
		w.logger.Error("Dropping malformed bar", "error", err.Error())
		return
	}

	row := database.BarRowFrom(bar)
	if err := w.m.store.SaveBar(w.ctx, &row); err != nil {
		w.logger.Warn("Cannot persist bar", "error", err.Error())
	}

	w.m.bus.PublishBarClosed(bar)

	w.manageOpenSignals(bar)

	result := w.engine.AddBar(bar)

	payload := w.engine.CheckPayload(result)
	w.setLastCheck(payload)
	w.m.snapshots.StoreCheck(w.ctx, w.symbol, payload)
	w.m.bus.PublishSignalCheck(payload)

	if result.ShouldSignal {
		w.emitSignal(*result.Signal)
	}
}

// manageOpenSignals applies the move-to-breakeven rule to every open
// signal. Exits stay with the backtester; live tracking only advances
// stops.
func (w *worker) manageOpenSignals(bar market.Bar) {
	for _, sig := range w.opens.MoveToBreakeven(bar) {
		if err := w.m.store.UpdateSignal(w.ctx, sig.ID, string(sig.Status), sig.StopLoss); err != nil {
			w.logger.Warn("Cannot persist breakeven move", "signal_id", sig.ID, "error", err.Error())
		}
		w.logger.Info("Stop moved to breakeven",
			"signal_id", sig.ID, "entry", sig.Entry, "stop_loss", sig.StopLoss)
		w.m.bus.PublishSignal(sig)
	}
}

// emitSignal persists and fans out a freshly generated signal. Persistence
// and delivery are independent: a failed insert leaves the signal without a
// store id but it is still tracked, published and notified.
func (w *worker) emitSignal(sig market.Signal) {
	row := database.SignalRowFrom(sig)
	if err := w.m.store.SaveSignal(w.ctx, &row); err != nil {
		w.logger.Error("Cannot persist signal", "error", err.Error())
	}
	saved := row.Signal()
	w.opens.Track(saved)

	w.logger.Info("BUY signal generated",
		"signal_id", saved.ID, "entry", saved.Entry, "stop_loss", saved.StopLoss, "take_profit", saved.TakeProfit)

	w.m.bus.PublishSignal(saved)
	w.m.notify(saved)
}

func (w *worker) trackSignal(sig market.Signal) {
	w.opens.Track(sig)
}

func (w *worker) setQuantity(qty int) {
	select {
	case w.qtyCh <- qty:
	default:
	}
}

func (w *worker) indicatorSnapshot() (market.IndicatorSnapshot, error) {
	reply := make(chan market.IndicatorSnapshot, 1)
	select {
	case w.snapCh <- reply:
	case <-time.After(snapshotTimeout):
		return market.IndicatorSnapshot{}, fmt.Errorf("worker %s busy", w.symbol)
	case <-w.ctx.Done():
		return market.IndicatorSnapshot{}, fmt.Errorf("worker %s stopped", w.symbol)
	}

	select {
	case snap := <-reply:
		return snap, nil
	case <-time.After(snapshotTimeout):
		return market.IndicatorSnapshot{}, fmt.Errorf("worker %s busy", w.symbol)
	}
}

func (w *worker) setLastCheck(payload map[string]interface{}) {
	w.mu.Lock()
	w.lastCheck = payload
	w.mu.Unlock()
}

func (w *worker) latestCheck() map[string]interface{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastCheck
}
