package presence

import (
	"testing"
	"time"

	"github.com/matheus3301/showroom/internal/bus"
)

func TestRosterPublishesUpdates(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe(bus.NamespacePresence, 10)
	defer unsub()

	r := NewRoster("me@x.com", WithBus(b), WithClock(func() time.Time { return now }))
	r.ApplySnapshot([]Raw{{"email": "a@x.com", "status": "online"}})

	select {
	case evt := <-ch:
		entries, ok := evt.Payload.([]Entry)
		if !ok || len(entries) != 1 {
			t.Errorf("payload = %#v", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for presence.updated")
	}

	r.ApplyDelta(Raw{"status": "dnd"})
	select {
	case evt := <-ch:
		t.Errorf("delta without email published %v", evt.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRosterRestampAgesOut(t *testing.T) {
	clock := now
	r := NewRoster("me@x.com", WithClock(func() time.Time { return clock }), WithGrace(time.Minute))
	r.ApplySnapshot([]Raw{
		{"email": "a@x.com", "status": "online", "updatedAt": float64(now.UnixMilli())},
		{"email": "me@x.com", "status": "online", "updatedAt": float64(now.UnixMilli())},
	})

	clock = now.Add(30 * time.Second)
	if r.Restamp() {
		t.Error("Restamp() changed within grace")
	}
	clock = now.Add(61 * time.Second)
	if !r.Restamp() {
		t.Fatal("Restamp() did not age out stale entry")
	}
	entries := r.Entries()
	if entries[0].Status != Offline || entries[1].Status != Online {
		t.Errorf("entries = %+v", entries)
	}
}

func TestRosterLookup(t *testing.T) {
	r := NewRoster("me@x.com")
	r.Load([]Entry{
		{Email: "ann@x.com", Name: "Ann Lee", RawStatus: Online},
		{Email: "bob@x.com", Name: "Bob", RawStatus: Online},
		{Email: "bobby@x.com", Name: "Bobby", RawStatus: Online},
	})

	tests := []struct {
		query string
		want  string
		ok    bool
	}{
		{"ANN@x.com", "ann@x.com", true},
		{"bob", "bob@x.com", true},
		{"ann", "ann@x.com", true},
		{"bo", "", false},
		{"zed", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			e, ok := r.Lookup(tt.query)
			if ok != tt.ok || e.Email != tt.want {
				t.Errorf("Lookup(%q) = %q, %v; want %q, %v", tt.query, e.Email, ok, tt.want, tt.ok)
			}
		})
	}
}
