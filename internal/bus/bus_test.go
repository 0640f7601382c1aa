package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("chat.", 10)
	defer unsub()

	b.Publish(Event{Kind: "chat.updated", Payload: "test"})

	select {
	case evt := <-ch:
		if evt.Kind != "chat.updated" {
			t.Errorf("got kind %q, want chat.updated", evt.Kind)
		}
		if evt.Timestamp.IsZero() {
			t.Error("timestamp not defaulted")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestPrefixFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("rt.", 10)
	defer unsub()

	b.Publish(Event{Kind: "chat.updated"})
	b.Publish(Event{Kind: "rt.connected"})

	select {
	case evt := <-ch:
		if evt.Kind != "rt.connected" {
			t.Errorf("got kind %q, want rt.connected", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("chat.", 10)
	unsub()
	unsub() // repeated calls are safe

	b.Publish(Event{Kind: "chat.updated"})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("view.", 1)
	defer unsub()

	b.Publish(Event{Kind: "view.updated", Payload: 1})
	// Buffer full: this one is lost instead of blocking the publisher.
	b.Publish(Event{Kind: "view.updated", Payload: 2})

	evt := <-ch
	if evt.Payload != 1 {
		t.Errorf("got payload %v, want 1", evt.Payload)
	}
}
