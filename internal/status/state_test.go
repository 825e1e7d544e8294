package status

import (
	"testing"

	"github.com/matheus3301/showroom/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Idle {
		t.Errorf("initial state = %s, want IDLE", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Idle, Connecting},
		{Connecting, Live},
		{Connecting, Reconnecting},
		{Live, Reconnecting},
		{Live, Connecting},
		{Reconnecting, Connecting},
		{Reconnecting, Disconnected},
		{Disconnected, Connecting},
		{Live, Closed},
		{Closed, Connecting},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Live); err == nil {
		t.Error("Transition(IDLE -> LIVE) should fail")
	}
	if m.Current() != Idle {
		t.Errorf("state = %s, want IDLE after rejected transition", m.Current())
	}
}

func TestSameStateIsNoop(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe(bus.NamespaceStream, 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(Idle); err != nil {
		t.Fatalf("Transition(IDLE -> IDLE) error = %v", err)
	}
	select {
	case evt := <-ch:
		t.Errorf("unexpected event %v", evt)
	default:
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe(bus.NamespaceStream, 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.TransitionWith(Connecting, "channel:general"); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != bus.StreamStatusChanged {
		t.Errorf("event kind = %q, want %s", evt.Kind, bus.StreamStatusChanged)
	}
	change, ok := evt.Payload.(StatusChange)
	if !ok {
		t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
	}
	if change.From != Idle || change.To != Connecting || change.Reason != "channel:general" {
		t.Errorf("change = %+v", change)
	}
}

// A flapping connection must surface DISCONNECTED and still be able to
// recover without going back through IDLE.
func TestFailureCycleRecovers(t *testing.T) {
	m := NewMachine(nil)
	steps := []State{Connecting, Reconnecting, Connecting, Reconnecting, Disconnected, Connecting, Live}
	for _, s := range steps {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
	if m.Current() != Live {
		t.Errorf("final state = %s, want LIVE", m.Current())
	}
}

func TestClosedCannotGoLiveDirectly(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Closed)
	if err := m.Transition(Live); err == nil {
		t.Fatal("Transition(CLOSED -> LIVE) should fail; must reconnect first")
	}
}

func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Idle:         {},
		Connecting:   {Connecting},
		Live:         {Connecting, Live},
		Reconnecting: {Connecting, Reconnecting},
		Disconnected: {Connecting, Reconnecting, Disconnected},
		Closed:       {Connecting, Live, Closed},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
