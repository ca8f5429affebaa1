package dnse

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"dnse-trading-bot/internal/market"
)

// MockAdapter simulates the DNSE feed for development and demos. It emits
// a random-walk bar per subscribed symbol on a fixed interval and can
// synthesize history for pipeline seeding.
type MockAdapter struct {
	onBar    BarHandler
	onStatus StatusHandler
	interval time.Duration
	logger   zerolog.Logger

	mu        sync.Mutex
	symbols   map[string]struct{}
	prices    map[string]float64
	timeframe string
	connected bool
	cancel    context.CancelFunc
	rng       *rand.Rand
}

// NewMockAdapter creates a mock feed emitting one bar per symbol per
// interval.
func NewMockAdapter(interval time.Duration, onBar BarHandler, onStatus StatusHandler, logger zerolog.Logger) *MockAdapter {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &MockAdapter{
		onBar:    onBar,
		onStatus: onStatus,
		interval: interval,
		logger:   logger.With().Str("component", "dnse-mock").Logger(),
		symbols:  make(map[string]struct{}),
		prices:   make(map[string]float64),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Connect starts the bar generator.
func (m *MockAdapter) Connect(ctx context.Context, symbols []string, timeframe string) error {
	m.mu.Lock()
	m.timeframe = timeframe
	for _, s := range symbols {
		m.symbols[s] = struct{}{}
	}
	m.connected = true
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	m.logger.Info().Int("symbols", len(symbols)).Msg("Mock feed connected")
	if m.onStatus != nil {
		m.onStatus(true)
	}

	go m.run(runCtx)
	return nil
}

func (m *MockAdapter) run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.emitBars()
		}
	}
}

func (m *MockAdapter) emitBars() {
	m.mu.Lock()
	symbols := make([]string, 0, len(m.symbols))
	for s := range m.symbols {
		symbols = append(symbols, s)
	}
	timeframe := m.timeframe
	m.mu.Unlock()

	for _, symbol := range symbols {
		bar := m.nextBar(symbol, timeframe, time.Now().UTC())
		if m.onBar != nil {
			m.onBar(bar)
		}
	}
}

// nextBar advances the symbol's random walk by one bar.
func (m *MockAdapter) nextBar(symbol, timeframe string, ts time.Time) market.Bar {
	m.mu.Lock()
	defer m.mu.Unlock()

	base, ok := m.prices[symbol]
	if !ok {
		base = 50000 + m.rng.Float64()*50000
	}

	open := base + (m.rng.Float64()-0.5)*base*0.02
	high := open + m.rng.Float64()*base*0.01
	low := open - m.rng.Float64()*base*0.01
	close := low + m.rng.Float64()*(high-low)
	m.prices[symbol] = close

	return market.Bar{
		Symbol:    symbol,
		Timeframe: timeframe,
		Timestamp: ts,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    float64(10000 + m.rng.Intn(990000)),
	}
}

// FetchHistory synthesizes limit hourly bars ending now, oldest first.
func (m *MockAdapter) FetchHistory(_ context.Context, symbol, timeframe string, limit int) ([]market.Bar, error) {
	bars := make([]market.Bar, 0, limit)
	start := time.Now().UTC().Add(-time.Duration(limit) * time.Hour)
	for i := 0; i < limit; i++ {
		bars = append(bars, m.nextBar(symbol, timeframe, start.Add(time.Duration(i)*time.Hour)))
	}
	return bars, nil
}

// Subscribe adds a symbol to the generator.
func (m *MockAdapter) Subscribe(symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.symbols[symbol] = struct{}{}
	return nil
}

// Unsubscribe removes a symbol from the generator.
func (m *MockAdapter) Unsubscribe(symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.symbols, symbol)
	delete(m.prices, symbol)
	return nil
}

// IsConnected reports whether the generator is running.
func (m *MockAdapter) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Close stops the generator.
func (m *MockAdapter) Close() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.connected = false
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if m.onStatus != nil {
		m.onStatus(false)
	}
	m.logger.Info().Msg("Mock feed disconnected")
}
