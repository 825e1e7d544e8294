package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(NamespaceMessage, 10)
	defer unsub()

	b.Emit(MessageUpserted, "payload")

	select {
	case evt := <-ch:
		if evt.Kind != MessageUpserted {
			t.Errorf("got kind %q, want %s", evt.Kind, MessageUpserted)
		}
		if evt.ID == "" {
			t.Error("event id not stamped")
		}
		if evt.Timestamp.IsZero() {
			t.Error("event timestamp not stamped")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(NamespacePresence, 10)
	defer unsub()

	b.Emit(MessageUpserted, nil)
	b.Emit(PresenceUpdated, nil)

	select {
	case evt := <-ch:
		if evt.Kind != PresenceUpdated {
			t.Errorf("got kind %q, want %s", evt.Kind, PresenceUpdated)
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

func TestEmptyNamespaceMatchesAll(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("", 10)
	defer unsub()

	b.Emit(StreamStatusChanged, nil)
	b.Emit(NotifyToast, nil)

	for _, want := range []string{StreamStatusChanged, NotifyToast} {
		select {
		case evt := <-ch:
			if evt.Kind != want {
				t.Errorf("got %q, want %q", evt.Kind, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %s", want)
		}
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(NamespaceStream, 10)
	unsub()
	unsub()

	if n := b.Subscribers(); n != 0 {
		t.Fatalf("Subscribers() = %d, want 0", n)
	}

	b.Emit(StreamStatusChanged, nil)

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("test.", 1)
	defer unsub()

	b.Emit("test.one", nil)
	b.Emit("test.two", nil)

	evt := <-ch
	if evt.Kind != "test.one" {
		t.Errorf("got %q, want test.one", evt.Kind)
	}
}

func TestNilBusPublishIsNoop(t *testing.T) {
	var b *Bus
	b.Emit(NotifyToast, "ignored")
}
