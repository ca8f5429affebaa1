package events

import (
	"sync"
	"time"

	"dnse-trading-bot/internal/logging"
)

// EventType identifies the kind of event flowing through the bus
type EventType string

const (
	// EventSystem carries connectivity and status changes
	EventSystem EventType = "system"
	// EventBarClosed carries a newly closed bar
	EventBarClosed EventType = "bar_closed"
	// EventSignalCheck carries the per-bar analysis snapshot
	EventSignalCheck EventType = "signal_check"
	// EventSignal carries a newly generated trading signal
	EventSignal EventType = "signal"
)

// Event is the envelope delivered to subscribers. The JSON shape is
// { "event": <kind>, "data": <payload> }.
type Event struct {
	Type      EventType   `json:"event"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"-"`
}

// defaultBuffer is the per-subscriber queue depth.
const defaultBuffer = 64

// Bus fans events out to a dynamic set of subscribers. Each subscriber
// owns a buffered channel; delivery preserves publish order per
// subscriber. A subscriber that cannot keep up is dropped, never blocking
// the producer.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]chan Event
	logger *logging.Logger
}

// NewBus creates an empty bus.
func NewBus(logger *logging.Logger) *Bus {
	if logger == nil {
		logger = logging.Default()
	}
	return &Bus{
		subs:   make(map[string]chan Event),
		logger: logger.WithComponent("events"),
	}
}

// Subscribe registers a subscriber under id and returns its channel. A
// previous subscription with the same id is replaced.
func (b *Bus) Subscribe(id string) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if old, ok := b.subs[id]; ok {
		close(old)
	}
	ch := make(chan Event, defaultBuffer)
	b.subs[id] = ch
	return ch
}

// Unsubscribe removes a subscriber and closes its channel. Unknown ids are
// ignored.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// SubscriberCount returns the number of registered subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish delivers the event to every subscriber. Subscribers whose queue
// is full are deregistered; the publisher never blocks.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	var stale []string

	b.mu.RLock()
	for id, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			stale = append(stale, id)
		}
	}
	b.mu.RUnlock()

	for _, id := range stale {
		b.logger.Warn("Dropping slow event subscriber", "subscriber", id, "event", string(evt.Type))
		b.Unsubscribe(id)
	}
}

// PublishSystem publishes a system status event.
func (b *Bus) PublishSystem(data interface{}) {
	b.Publish(Event{Type: EventSystem, Data: data})
}

// PublishBarClosed publishes a closed bar.
func (b *Bus) PublishBarClosed(data interface{}) {
	b.Publish(Event{Type: EventBarClosed, Data: data})
}

// PublishSignalCheck publishes an analysis snapshot.
func (b *Bus) PublishSignalCheck(data interface{}) {
	b.Publish(Event{Type: EventSignalCheck, Data: data})
}

// PublishSignal publishes a new trading signal.
func (b *Bus) PublishSignal(data interface{}) {
	b.Publish(Event{Type: EventSignal, Data: data})
}
