package pipeline

import (
	"sync"

	"dnse-trading-bot/internal/market"
)

// breakevenTracker holds the open signals of one symbol and applies the
// move-to-breakeven rule as bars arrive. It is mutex-protected because
// externally injected signals are tracked from outside the worker loop.
type breakevenTracker struct {
	mu    sync.Mutex
	opens map[int64]*market.Signal
}

func newBreakevenTracker() *breakevenTracker {
	return &breakevenTracker{opens: make(map[int64]*market.Signal)}
}

// Track registers an open signal. Closed signals are ignored.
func (t *breakevenTracker) Track(sig market.Signal) {
	if !sig.IsOpen() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	s := sig
	t.opens[s.ID] = &s
}

// MoveToBreakeven advances the stop of every Active signal whose
// breakeven level was reached by the bar's high: stopLoss becomes entry
// and status flips to Breakeven. The transition fires at most once per
// signal; signals already at Breakeven stay put. Returns the signals that
// transitioned, so the caller can persist and publish them.
func (t *breakevenTracker) MoveToBreakeven(bar market.Bar) []market.Signal {
	t.mu.Lock()
	defer t.mu.Unlock()

	var moved []market.Signal
	for _, sig := range t.opens {
		if sig.Status != market.StatusActive {
			continue
		}
		if bar.High < sig.BreakevenPrice() {
			continue
		}
		sig.StopLoss = sig.Entry
		sig.Status = market.StatusBreakeven
		moved = append(moved, *sig)
	}
	return moved
}

// Open returns a copy of the currently tracked signals.
func (t *breakevenTracker) Open() []market.Signal {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]market.Signal, 0, len(t.opens))
	for _, sig := range t.opens {
		out = append(out, *sig)
	}
	return out
}
