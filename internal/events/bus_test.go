package events

import (
	"testing"
	"time"
)

// TestPublishOrder tests that a subscriber sees events in publish order
func TestPublishOrder(t *testing.T) {
	bus := NewBus(nil)
	ch := bus.Subscribe("client-1")

	bus.PublishBarClosed("bar")
	bus.PublishSignalCheck("check")
	bus.PublishSignal("signal")

	want := []EventType{EventBarClosed, EventSignalCheck, EventSignal}
	for _, wt := range want {
		select {
		case evt := <-ch:
			if evt.Type != wt {
				t.Fatalf("Expected %q, got %q", wt, evt.Type)
			}
		case <-time.After(time.Second):
			t.Fatalf("Timed out waiting for %q", wt)
		}
	}
}

// TestSlowSubscriberDropped tests the drop-subscriber policy
func TestSlowSubscriberDropped(t *testing.T) {
	bus := NewBus(nil)
	bus.Subscribe("slow")

	// Never read: fill the buffer and overflow once.
	for i := 0; i < defaultBuffer+1; i++ {
		bus.PublishSystem(i)
	}

	if bus.SubscriberCount() != 0 {
		t.Errorf("Slow subscriber should have been dropped, %d remain", bus.SubscriberCount())
	}
}

// TestUnsubscribeClosesChannel tests deregistration
func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus(nil)
	ch := bus.Subscribe("client-1")

	bus.Unsubscribe("client-1")
	if _, ok := <-ch; ok {
		t.Error("Channel should be closed after unsubscribe")
	}

	// Unknown id is a no-op.
	bus.Unsubscribe("client-1")

	// Publishing to an empty bus must not panic.
	bus.PublishSystem("status")
}

// TestResubscribeReplacesChannel tests id reuse
func TestResubscribeReplacesChannel(t *testing.T) {
	bus := NewBus(nil)
	old := bus.Subscribe("client-1")
	fresh := bus.Subscribe("client-1")

	if _, ok := <-old; ok {
		t.Error("Old channel should be closed on resubscribe")
	}

	bus.PublishSystem("status")
	select {
	case evt := <-fresh:
		if evt.Type != EventSystem {
			t.Errorf("Expected system event, got %q", evt.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("Fresh subscription should receive events")
	}

	if bus.SubscriberCount() != 1 {
		t.Errorf("Expected one subscriber, got %d", bus.SubscriberCount())
	}
}
