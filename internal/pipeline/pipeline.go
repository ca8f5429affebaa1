// Package pipeline routes closed bars from the market-data adapter to
// per-symbol workers. Each worker owns one signal engine and processes its
// bars strictly in order; the manager handles the symbol set, fan-in from
// the transport and control requests from the API layer.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"dnse-trading-bot/internal/cache"
	"dnse-trading-bot/internal/database"
	"dnse-trading-bot/internal/dnse"
	"dnse-trading-bot/internal/events"
	"dnse-trading-bot/internal/logging"
	"dnse-trading-bot/internal/market"
	"dnse-trading-bot/internal/signal"
)

// defaultHistoryBars is how many bars a worker is seeded with on start.
const defaultHistoryBars = 200

// defaultInboxSize bounds a worker's pending-bar queue.
const defaultInboxSize = 256

// snapshotTimeout bounds how long a control request waits on a busy worker.
const snapshotTimeout = 2 * time.Second

// Store is the persistence surface the pipeline needs.
type Store interface {
	SaveBar(ctx context.Context, bar *database.BarRow) error
	SaveBars(ctx context.Context, bars []database.BarRow) error
	GetBars(ctx context.Context, symbol, timeframe string, limit int) ([]database.BarRow, error)
	SaveSignal(ctx context.Context, sig *database.SignalRow) error
	UpdateSignal(ctx context.Context, id int64, status string, stopLoss float64) error
	GetOpenSignals(ctx context.Context, symbol string) ([]database.SignalRow, error)
}

// Notifier pushes generated signals to outside channels. May be nil.
type Notifier interface {
	SendSignal(symbol, side string, price, stopLoss, takeProfit float64, reason string) error
}

// Config holds pipeline settings.
type Config struct {
	Timeframe   string        `json:"timeframe"`
	HistoryBars int           `json:"history_bars"`
	InboxSize   int           `json:"inbox_size"`
	Engine      signal.Config `json:"engine"`
}

// Manager owns the per-symbol workers.
type Manager struct {
	cfg       Config
	store     Store
	bus       *events.Bus
	snapshots *cache.SnapshotCache
	notifier  Notifier
	history   dnse.HistoryProvider
	logger    *logging.Logger

	mu      sync.RWMutex
	workers map[string]*worker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a pipeline manager. The snapshot cache, notifier and
// history provider may be nil; the pipeline degrades gracefully without
// them.
func NewManager(cfg Config, store Store, bus *events.Bus, snapshots *cache.SnapshotCache, notifier Notifier, history dnse.HistoryProvider, logger *logging.Logger) *Manager {
	if cfg.HistoryBars <= 0 {
		cfg.HistoryBars = defaultHistoryBars
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = defaultInboxSize
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Manager{
		cfg:       cfg,
		store:     store,
		bus:       bus,
		snapshots: snapshots,
		notifier:  notifier,
		history:   history,
		logger:    logger.WithComponent("pipeline"),
		workers:   make(map[string]*worker),
	}
}

// Start spins up one worker per symbol.
func (m *Manager) Start(ctx context.Context, symbols []string) error {
	m.ctx, m.cancel = context.WithCancel(ctx)
	for _, symbol := range symbols {
		if err := m.AddSymbol(symbol); err != nil {
			return err
		}
	}
	return nil
}

// Stop cancels all workers and waits for them to drain.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// AddSymbol starts a worker for the symbol. Adding a symbol that already
// has a worker is a no-op.
func (m *Manager) AddSymbol(symbol string) error {
	if m.ctx == nil {
		return fmt.Errorf("pipeline not started")
	}

	m.mu.Lock()
	if _, ok := m.workers[symbol]; ok {
		m.mu.Unlock()
		return nil
	}
	w := newWorker(symbol, m)
	m.workers[symbol] = w
	m.mu.Unlock()

	w.seed(m.ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		w.run()
	}()

	m.logger.Info("Symbol worker started", "symbol", symbol)
	return nil
}

// RemoveSymbol stops the symbol's worker and drops its cached snapshot.
func (m *Manager) RemoveSymbol(symbol string) {
	m.mu.Lock()
	w, ok := m.workers[symbol]
	if ok {
		delete(m.workers, symbol)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	w.stop()
	m.snapshots.DeleteCheck(context.Background(), symbol)
	m.logger.Info("Symbol worker stopped", "symbol", symbol)
}

// Symbols returns the active symbol set, sorted.
func (m *Manager) Symbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	symbols := make([]string, 0, len(m.workers))
	for s := range m.workers {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// HandleBar routes a closed bar to its symbol's worker. Bars for symbols
// without a worker are dropped. A full inbox sheds the oldest queued bar
// so the feed callback never blocks.
func (m *Manager) HandleBar(bar market.Bar) {
	m.mu.RLock()
	w, ok := m.workers[bar.Symbol]
	m.mu.RUnlock()

	if !ok {
		return
	}
	w.enqueue(bar)
}

// SetDefaultQuantity updates the quantity stamped on future signals across
// all workers.
func (m *Manager) SetDefaultQuantity(qty int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, w := range m.workers {
		w.setQuantity(qty)
	}
}

// IndicatorSnapshot asks the symbol's worker for the current indicator
// values. The request runs inside the worker loop so it sees consistent
// state, never a half-updated engine.
func (m *Manager) IndicatorSnapshot(symbol string) (market.IndicatorSnapshot, error) {
	m.mu.RLock()
	w, ok := m.workers[symbol]
	m.mu.RUnlock()

	if !ok {
		return market.IndicatorSnapshot{}, fmt.Errorf("symbol %s not tracked", symbol)
	}
	return w.indicatorSnapshot()
}

// Snapshots returns the latest signal_check payload per symbol for
// subscriber replay. Workers that have not processed a bar yet fall back
// to the Redis copy from a previous run.
func (m *Manager) Snapshots(ctx context.Context) map[string]map[string]interface{} {
	m.mu.RLock()
	workers := make(map[string]*worker, len(m.workers))
	for s, w := range m.workers {
		workers[s] = w
	}
	m.mu.RUnlock()

	out := make(map[string]map[string]interface{}, len(workers))
	for symbol, w := range workers {
		if payload := w.latestCheck(); payload != nil {
			out[symbol] = payload
			continue
		}
		if payload := m.snapshots.LoadCheck(ctx, symbol); payload != nil {
			out[symbol] = payload
		}
	}
	return out
}

// InjectSignal persists and publishes a signal that was synthesized
// outside the rule engine, e.g. the demo hook. The store assigns the id.
func (m *Manager) InjectSignal(ctx context.Context, sig market.Signal) (market.Signal, error) {
	row := database.SignalRowFrom(sig)
	if err := m.store.SaveSignal(ctx, &row); err != nil {
		return market.Signal{}, fmt.Errorf("saving signal: %w", err)
	}
	saved := row.Signal()

	m.bus.PublishSignal(saved)
	m.notify(saved)

	m.mu.RLock()
	w, ok := m.workers[sig.Symbol]
	m.mu.RUnlock()
	if ok {
		w.trackSignal(saved)
	}
	return saved, nil
}

func (m *Manager) notify(sig market.Signal) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.SendSignal(sig.Symbol, string(sig.Type), sig.Entry, sig.StopLoss, sig.TakeProfit, sig.Reason); err != nil {
		m.logger.Warn("Signal notification failed", "symbol", sig.Symbol, "error", err.Error())
	}
}
